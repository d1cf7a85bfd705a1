package chat

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Gemini serves both captions and stories through the Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a genai client for the Gemini API backend.
func NewGeminiClient(ctx context.Context, apiKey string, httpClient *http.Client) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	})
}

// NewGemini wraps client for the given model.
func NewGemini(client *genai.Client, model string) *Gemini {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &Gemini{client: client, model: model}
}

func (g *Gemini) Name() string { return ProviderGemini }

// Caption sends the image inline followed by the task instruction.
// Temperature 0 keeps repeated captions of the same image identical.
func (g *Gemini) Caption(ctx context.Context, req CaptionRequest) (Result, error) {
	parts := []*genai.Part{
		{InlineData: &genai.Blob{MIMEType: req.MIMEType, Data: req.Image}},
		{Text: TaskInstruction(req.TaskPrompt)},
	}
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0),
		CandidateCount:  1,
		MaxOutputTokens: int32(req.MaxNewTokens),
	}
	return g.generate(ctx, "caption", parts, config)
}

// Generate maps the repetition penalty (1.0 = none) onto Gemini's
// frequency penalty (0 = none).
func (g *Gemini) Generate(ctx context.Context, req StoryRequest) (Result, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		TopP:            genai.Ptr(float32(req.TopP)),
		CandidateCount:  1,
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.RepetitionPenalty > 1 {
		config.FrequencyPenalty = genai.Ptr(float32(req.RepetitionPenalty - 1))
	}
	return g.generate(ctx, "story", []*genai.Part{{Text: req.Prompt}}, config)
}

func (g *Gemini) generate(ctx context.Context, op string, parts []*genai.Part, config *genai.GenerateContentConfig) (Result, error) {
	log.Debug().
		Str("model", g.model).
		Str("op", op).
		Int("part_count", len(parts)).
		Msg("Starting Gemini API call")

	callStart := time.Now()
	contents := []*genai.Content{{Role: "user", Parts: parts}}
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	duration := time.Since(callStart)
	if err != nil {
		log.Error().Err(err).Dur("duration", duration).Str("op", op).Msg("Gemini API call failed")
		return rejection(fmt.Errorf("failed to generate content: %w", err))
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return Result{Err: fmt.Errorf("received empty response from Gemini API")}, nil
	}

	responseText := resp.Text()
	log.Debug().
		Int("response_length", len(responseText)).
		Dur("duration", duration).
		Str("op", op).
		Msg("Gemini API response received")

	return Result{Text: responseText}, nil
}

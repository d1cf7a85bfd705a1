package chat

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	oagc "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAICompatible generates stories through any OpenAI-style
// chat-completions endpoint. The default endpoint is Together.ai.
type OpenAICompatible struct {
	oac   *oagc.Client
	model string
}

// NewOpenAICompatible creates a client for endpoint. Retries are left to
// Invoke so one policy governs every provider.
func NewOpenAICompatible(endpoint, apiKey, model string, httpClient *http.Client) *OpenAICompatible {
	if endpoint == "" {
		endpoint = DefaultTogetherEndpoint
	}
	return &OpenAICompatible{
		oac: oagc.NewClient(
			option.WithHTTPClient(httpClient),
			// Relative paths resolve against the base, so it must end in "/".
			option.WithBaseURL(strings.TrimRight(endpoint, "/")+"/"),
			option.WithAPIKey(apiKey),
			option.WithMaxRetries(0),
		),
		model: model,
	}
}

func (o *OpenAICompatible) Name() string { return ProviderOpenAI }

// Generate sends the prompt as a single user message. repetition_penalty is
// not part of the OpenAI schema, so it is added to the JSON body directly.
func (o *OpenAICompatible) Generate(ctx context.Context, req StoryRequest) (Result, error) {
	params := oagc.ChatCompletionNewParams{
		Messages: oagc.F([]oagc.ChatCompletionMessageParamUnion{
			oagc.UserMessage(req.Prompt),
		}),
		Model:       oagc.F(oagc.ChatModel(o.model)),
		MaxTokens:   oagc.Int(int64(req.MaxTokens)),
		Temperature: oagc.Float(req.Temperature),
		TopP:        oagc.Float(req.TopP),
	}

	resp, err := o.oac.Chat.Completions.New(ctx, params,
		option.WithJSONSet("repetition_penalty", req.RepetitionPenalty))
	if err != nil {
		return rejection(err)
	}
	if len(resp.Choices) == 0 {
		return Result{Err: fmt.Errorf("%w: no choices", ErrUnrecognizedResponse)}, nil
	}
	return Result{Text: strings.TrimSpace(resp.Choices[0].Message.Content)}, nil
}

package chat

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// HuggingFace calls a model hosted behind the Hugging Face Inference API, or
// any self-hosted service speaking the same JSON shape.
type HuggingFace struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewHuggingFace creates a client for model at endpoint. An empty endpoint
// selects the public Inference API.
func NewHuggingFace(endpoint, model, apiKey string, httpClient *http.Client) *HuggingFace {
	if endpoint == "" {
		endpoint = DefaultHuggingFaceEndpoint
	}
	return &HuggingFace{
		endpoint:   endpoint,
		model:      model,
		apiKey:     apiKey,
		httpClient: httpClient,
	}
}

func (h *HuggingFace) Name() string { return ProviderHuggingFace }

// --- request types ---

type hfRequest struct {
	Inputs     string         `json:"inputs"`
	Parameters map[string]any `json:"parameters,omitempty"`
	Options    hfOptions      `json:"options"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
	UseCache     bool `json:"use_cache"`
}

// Caption sends the image base64-encoded with the task directive as the prompt.
func (h *HuggingFace) Caption(ctx context.Context, req CaptionRequest) (Result, error) {
	body, err := h.post(ctx, hfRequest{
		Inputs: base64.StdEncoding.EncodeToString(req.Image),
		Parameters: map[string]any{
			"prompt":         req.TaskPrompt,
			"max_new_tokens": req.MaxNewTokens,
			"num_beams":      req.NumBeams,
			"do_sample":      false,
		},
		// Cached replies keep identical inputs identical across calls.
		Options: hfOptions{WaitForModel: true, UseCache: true},
	})
	if err != nil {
		return rejection(err)
	}
	return NormalizeCaption(body, req.TaskPrompt), nil
}

// Generate runs text generation. return_full_text is disabled, but some
// deployments echo the prompt anyway; the story stage strips it.
func (h *HuggingFace) Generate(ctx context.Context, req StoryRequest) (Result, error) {
	body, err := h.post(ctx, hfRequest{
		Inputs: req.Prompt,
		Parameters: map[string]any{
			"max_new_tokens":     req.MaxTokens,
			"temperature":        req.Temperature,
			"top_p":              req.TopP,
			"repetition_penalty": req.RepetitionPenalty,
			"do_sample":          true,
			"return_full_text":   false,
		},
		Options: hfOptions{WaitForModel: true},
	})
	if err != nil {
		return rejection(err)
	}
	return NormalizeGenerated(body), nil
}

func (h *HuggingFace) post(ctx context.Context, payload hfRequest) ([]byte, error) {
	headers := map[string]string{}
	if h.apiKey != "" {
		headers["Authorization"] = "Bearer " + h.apiKey
	}
	return postJSON(ctx, h.httpClient, h.endpoint+"/"+h.model, headers, payload)
}

// postJSON marshals payload, POSTs it, and returns the body of a 2xx reply.
// Any other status becomes a *StatusError.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Error().
			Int("status", resp.StatusCode).
			Str("url", url).
			Str("body", truncateString(string(respBody), 500)).
			Msg("Inference API returned error")
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}

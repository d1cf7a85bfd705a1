package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"maps"
	"net/http"
	"strings"
)

const (
	promptPreamble = `This is a conversation between User and Llama, a friendly storyteller. Llama writes vivid, original fiction and answers every request immediately.

User:`
	promptSuffix = `
Llama:`

	imagePreamble = `A chat between a curious human and an artificial intelligence assistant. The assistant gives accurate, literal descriptions of images.
USER:`
	imageSuffix = `
ASSISTANT:`

	// imageSlot is the id llama.cpp uses to splice image_data into the prompt.
	imageSlot = 10
)

type jsonmap map[string]any

var llamaDefaults = jsonmap{
	"n_probs":           0,
	"stop":              []string{"</s>", "Llama:", "User:", "USER:"},
	"repeat_last_n":     256,
	"top_k":             40,
	"presence_penalty":  0,
	"frequency_penalty": 0,
	"cache_prompt":      true,
}

// Llama talks to a llama.cpp server's /completion endpoint. A multimodal
// model (LLaVA-style) is needed for captions.
type Llama struct {
	srvAddr string
	seed    int
	client  *http.Client
}

// NewLlama creates a client for the server at srvAddr. seed pins sampling so
// repeated captions of the same image agree.
func NewLlama(srvAddr string, seed int, httpClient *http.Client) *Llama {
	if srvAddr == "" {
		srvAddr = DefaultLlamaEndpoint
	}
	return &Llama{srvAddr: srvAddr, seed: seed, client: httpClient}
}

func (l *Llama) Name() string { return ProviderLlama }

// Caption decodes greedily (temperature 0).
func (l *Llama) Caption(ctx context.Context, req CaptionRequest) (Result, error) {
	prompt := fmt.Sprintf("%s[img-%d]%s%s", imagePreamble, imageSlot, TaskInstruction(req.TaskPrompt), imageSuffix)
	return l.sendRequest(ctx, prompt, jsonmap{
		"n_predict":   req.MaxNewTokens,
		"temperature": 0,
		"image_data": []jsonmap{
			{"data": base64.StdEncoding.EncodeToString(req.Image), "id": imageSlot},
		},
	})
}

func (l *Llama) Generate(ctx context.Context, req StoryRequest) (Result, error) {
	return l.sendRequest(ctx, promptPreamble+req.Prompt+promptSuffix, jsonmap{
		"n_predict":      req.MaxTokens,
		"temperature":    req.Temperature,
		"top_p":          req.TopP,
		"repeat_penalty": req.RepetitionPenalty,
	})
}

func (l *Llama) sendRequest(ctx context.Context, prompt string, keys jsonmap) (Result, error) {
	data := maps.Clone(llamaDefaults)
	maps.Copy(data, keys)
	data["prompt"] = prompt
	data["stream"] = false
	data["seed"] = l.seed

	body, err := postJSON(ctx, l.client, l.srvAddr+"/completion", nil, data)
	if err != nil {
		return rejection(err)
	}

	var respbody struct {
		Content string `json:"content"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &respbody); err != nil {
		return Result{Err: fmt.Errorf("%w: %v", ErrUnrecognizedResponse, err)}, nil
	}
	if respbody.Error != nil {
		return Result{Err: fmt.Errorf("llama: %s", respbody.Error.Message)}, nil
	}
	return Result{Text: strings.TrimSpace(respbody.Content)}, nil
}

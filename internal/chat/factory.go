package chat

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fpang/image-story/internal/auth"
	"github.com/fpang/image-story/internal/config"
	"github.com/fpang/image-story/internal/stageerr"
	"github.com/rs/zerolog/log"
)

// NewCaptioner builds the captioner named by svc.Provider. A provider that
// needs a credential is refused here, before any request, when svc.APIKey is
// empty.
func NewCaptioner(ctx context.Context, svc config.Service, seed int, httpClient *http.Client) (Captioner, error) {
	if err := requireCredential(svc); err != nil {
		return nil, err
	}

	log.Debug().Str("provider", svc.Provider).Str("model", svc.Model).Msg("Creating captioner")

	switch svc.Provider {
	case ProviderHuggingFace:
		return NewHuggingFace(svc.Endpoint, svc.Model, svc.APIKey, httpClient), nil
	case ProviderGemini:
		client, err := NewGeminiClient(ctx, svc.APIKey, httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return NewGemini(client, svc.Model), nil
	case ProviderLlama:
		return NewLlama(svc.Endpoint, seed, httpClient), nil
	default:
		return nil, stageerr.New(stageerr.KindConfiguration, "",
			fmt.Sprintf("unknown caption provider %q", svc.Provider), nil)
	}
}

// NewStoryteller builds the story generator named by svc.Provider, with the
// same credential check as NewCaptioner.
func NewStoryteller(ctx context.Context, svc config.Service, httpClient *http.Client) (Storyteller, error) {
	if err := requireCredential(svc); err != nil {
		return nil, err
	}

	log.Debug().Str("provider", svc.Provider).Str("model", svc.Model).Msg("Creating storyteller")

	switch svc.Provider {
	case ProviderHuggingFace:
		return NewHuggingFace(svc.Endpoint, svc.Model, svc.APIKey, httpClient), nil
	case ProviderGemini:
		client, err := NewGeminiClient(ctx, svc.APIKey, httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return NewGemini(client, svc.Model), nil
	case ProviderLlama:
		return NewLlama(svc.Endpoint, 0, httpClient), nil
	case ProviderOpenAI:
		return NewOpenAICompatible(svc.Endpoint, svc.APIKey, svc.Model, httpClient), nil
	default:
		return nil, stageerr.New(stageerr.KindConfiguration, "",
			fmt.Sprintf("unknown story provider %q", svc.Provider), nil)
	}
}

func requireCredential(svc config.Service) error {
	if svc.Provider == ProviderLlama {
		return nil
	}
	return auth.RequireCredential(svc.Provider, svc.APIKey)
}

// Package chat holds the clients for the two remote inference services: the
// image captioner and the story generator.
//
// Every provider reports its reply as a Result. A transport failure (network
// error, timeout, 5xx) comes back as the error return and may be retried by
// Invoke; a rejection the service itself reported is carried in Result.Err
// and is never retried.
package chat

import (
	"context"
	"errors"
)

// Result is the normalized reply of one inference call.
type Result struct {
	// Text is the generated text with transport envelopes removed.
	Text string
	// Err is an application-level rejection reported by the service.
	Err error
}

// CaptionRequest asks for a caption of one image.
type CaptionRequest struct {
	// TaskPrompt is the task directive, e.g. "<MORE_DETAILED_CAPTION>".
	TaskPrompt   string
	Image        []byte
	MIMEType     string
	MaxNewTokens int
	NumBeams     int
}

// StoryRequest asks for a story continuation of a fully rendered prompt.
type StoryRequest struct {
	Prompt            string
	MaxTokens         int
	Temperature       float64
	TopP              float64
	RepetitionPenalty float64
}

// Captioner produces a caption for an image. Implementations must decode
// deterministically: no sampling, fixed seed where the backend has one.
type Captioner interface {
	Name() string
	Caption(ctx context.Context, req CaptionRequest) (Result, error)
}

// Storyteller produces story text from a prompt.
type Storyteller interface {
	Name() string
	Generate(ctx context.Context, req StoryRequest) (Result, error)
}

// ErrUnrecognizedResponse is reported when a reply has none of the known shapes.
var ErrUnrecognizedResponse = errors.New("unrecognized response shape")

// truncateString truncates a string to maxLen, appending "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

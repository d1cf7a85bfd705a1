package chat

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHuggingFaceCaption(t *testing.T) {
	var got hfRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/microsoft/Florence-2-large" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer hf-token" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"generated_text": "<CAPTION>A dog running on a beach.</s>"}]`))
	}))
	defer server.Close()

	hf := NewHuggingFace(server.URL, "microsoft/Florence-2-large", "hf-token", server.Client())
	res, err := hf.Caption(context.Background(), CaptionRequest{
		TaskPrompt:   "<CAPTION>",
		Image:        []byte{0xff, 0xd8, 0xff},
		MIMEType:     "image/jpeg",
		MaxNewTokens: 64,
		NumBeams:     3,
	})
	if err != nil {
		t.Fatalf("Caption: %v", err)
	}
	if res.Err != nil {
		t.Fatalf("unexpected rejection: %v", res.Err)
	}
	if res.Text != "A dog running on a beach." {
		t.Errorf("Text = %q", res.Text)
	}

	if got.Inputs != base64.StdEncoding.EncodeToString([]byte{0xff, 0xd8, 0xff}) {
		t.Errorf("inputs = %q, want base64 image", got.Inputs)
	}
	if got.Parameters["prompt"] != "<CAPTION>" || got.Parameters["do_sample"] != false {
		t.Errorf("parameters = %v", got.Parameters)
	}
	if got.Parameters["max_new_tokens"] != float64(64) || got.Parameters["num_beams"] != float64(3) {
		t.Errorf("decoding parameters = %v", got.Parameters)
	}
	if !got.Options.WaitForModel {
		t.Error("wait_for_model not set")
	}
}

func TestHuggingFaceGenerate(t *testing.T) {
	var got hfRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`[{"generated_text": "Once upon a tide..."}]`))
	}))
	defer server.Close()

	hf := NewHuggingFace(server.URL, "meta-llama/Llama-3.1-8B-Instruct", "k", server.Client())
	res, err := hf.Generate(context.Background(), StoryRequest{
		Prompt:            "Write a story.",
		MaxTokens:         700,
		Temperature:       0.75,
		TopP:              0.9,
		RepetitionPenalty: 1.1,
	})
	if err != nil || res.Err != nil {
		t.Fatalf("Generate: err=%v rejection=%v", err, res.Err)
	}
	if res.Text != "Once upon a tide..." {
		t.Errorf("Text = %q", res.Text)
	}
	if got.Inputs != "Write a story." {
		t.Errorf("inputs = %q", got.Inputs)
	}
	for key, want := range map[string]any{
		"max_new_tokens":     float64(700),
		"temperature":        0.75,
		"top_p":              0.9,
		"repetition_penalty": 1.1,
		"return_full_text":   false,
	} {
		if got.Parameters[key] != want {
			t.Errorf("parameters[%s] = %v, want %v", key, got.Parameters[key], want)
		}
	}
}

func TestHuggingFaceErrorStatuses(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		wantRejection bool
		wantTransport bool
	}{
		{"bad request is a rejection", http.StatusBadRequest, true, false},
		{"unauthorized is a rejection", http.StatusUnauthorized, true, false},
		{"unavailable is transport", http.StatusServiceUnavailable, false, true},
		{"rate limited is transport", http.StatusTooManyRequests, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error": "nope"}`))
			}))
			defer server.Close()

			hf := NewHuggingFace(server.URL, "m", "k", server.Client())
			res, err := hf.Generate(context.Background(), StoryRequest{Prompt: "p"})
			if (res.Err != nil) != tt.wantRejection {
				t.Errorf("rejection = %v, want %v", res.Err, tt.wantRejection)
			}
			if (err != nil) != tt.wantTransport {
				t.Errorf("transport err = %v, want %v", err, tt.wantTransport)
			}
			if tt.wantTransport && !IsTransient(err) {
				t.Errorf("expected %v to be transient", err)
			}
		})
	}
}

func TestHuggingFaceSuccessWithErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error": "Input is too long"}`))
	}))
	defer server.Close()

	hf := NewHuggingFace(server.URL, "m", "k", server.Client())
	res, err := hf.Caption(context.Background(), CaptionRequest{TaskPrompt: "<CAPTION>"})
	if err != nil {
		t.Fatalf("transport error: %v", err)
	}
	if res.Err == nil || res.Err.Error() != "Input is too long" {
		t.Errorf("res.Err = %v", res.Err)
	}
}

package chat

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Keys tried, after the task directive, when a reply is a JSON object.
var textKeys = []string{"generated_text", "caption", "text", "content"}

// florenceTokens are special tokens Florence-style models leave in raw output.
var florenceTokens = strings.NewReplacer("</s>", "", "<s>", "", "<pad>", "")

// NormalizeCaption extracts caption text from a caption-service reply. The
// reply may be a list of objects ([{"generated_text": ...}]), a flat object
// keyed by the task directive ({"<CAPTION>": ...}) or by a generic text key,
// a bare JSON string, or an error object ({"error": ...}). Special tokens and
// an echoed task directive are removed.
func NormalizeCaption(body []byte, task string) Result {
	keys := textKeys
	if task != "" {
		keys = append([]string{task}, textKeys...)
	}
	res := normalize(body, keys)
	if res.Err != nil {
		return res
	}

	text := florenceTokens.Replace(res.Text)
	text = strings.TrimSpace(text)
	if task != "" {
		text = strings.TrimSpace(strings.TrimPrefix(text, task))
	}
	return Result{Text: text}
}

// NormalizeGenerated extracts generated text from a text-generation reply.
// It accepts the same shapes as NormalizeCaption.
func NormalizeGenerated(body []byte) Result {
	res := normalize(body, textKeys)
	if res.Err != nil {
		return res
	}
	return Result{Text: strings.TrimSpace(res.Text)}
}

func normalize(body []byte, keys []string) Result {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return Result{Err: fmt.Errorf("%w: %v", ErrUnrecognizedResponse, err)}
	}

	// A list reply carries one object (or string) per input; we send one input.
	if list, ok := raw.([]any); ok {
		if len(list) == 0 {
			return Result{Err: fmt.Errorf("%w: empty list", ErrUnrecognizedResponse)}
		}
		raw = list[0]
	}

	switch v := raw.(type) {
	case string:
		return Result{Text: v}
	case map[string]any:
		if msg, ok := v["error"]; ok {
			return Result{Err: errors.New(errorMessage(msg))}
		}
		for _, k := range keys {
			val, ok := v[k]
			if !ok {
				continue
			}
			text, ok := val.(string)
			if !ok {
				return Result{Err: fmt.Errorf("%w: %q is %T, not a string", ErrUnrecognizedResponse, k, val)}
			}
			return Result{Text: text}
		}
		return Result{Err: fmt.Errorf("%w: no text field", ErrUnrecognizedResponse)}
	default:
		return Result{Err: fmt.Errorf("%w: %T", ErrUnrecognizedResponse, raw)}
	}
}

func errorMessage(v any) string {
	switch m := v.(type) {
	case string:
		return m
	case map[string]any:
		if s, ok := m["message"].(string); ok {
			return s
		}
	case []any:
		parts := make([]string, 0, len(m))
		for _, p := range m {
			parts = append(parts, fmt.Sprint(p))
		}
		return strings.Join(parts, "; ")
	}
	return fmt.Sprint(v)
}

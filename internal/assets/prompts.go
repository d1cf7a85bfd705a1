// Package assets provides embedded static assets for the application.
//
// Prompt templates are stored as text files under prompts/ and embedded at
// compile time. They use text/template syntax.
package assets

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"
)

// StoryPromptTemplate is the default story prompt. It ends with the echo
// delimiter "Story:" so an echoed prompt can be cut off the reply.
//
//go:embed prompts/story.tmpl
var StoryPromptTemplate string

var defaultStoryTmpl = template.Must(template.New("story").Option("missingkey=error").Parse(StoryPromptTemplate))

// StoryPromptData holds the values substituted into a story prompt.
type StoryPromptData struct {
	Caption   string
	Theme     string
	WordLimit int
}

// ParseStoryPrompt parses src as a story prompt template. An empty src
// returns the embedded default.
func ParseStoryPrompt(src string) (*template.Template, error) {
	if src == "" {
		return defaultStoryTmpl, nil
	}
	tmpl, err := template.New("story").Option("missingkey=error").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("invalid story prompt template: %w", err)
	}
	return tmpl, nil
}

// RenderStoryPrompt executes tmpl with data.
func RenderStoryPrompt(tmpl *template.Template, data StoryPromptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render story prompt: %w", err)
	}
	return buf.String(), nil
}

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fpang/image-story/internal/chat"
	"github.com/fpang/image-story/internal/config"
	"github.com/fpang/image-story/internal/pipeline"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type stubCaptioner struct{}

func (stubCaptioner) Name() string { return "stub" }

func (stubCaptioner) Caption(ctx context.Context, req chat.CaptionRequest) (chat.Result, error) {
	return chat.Result{Text: "A lighthouse at dusk."}, nil
}

type stubTeller struct{}

func (stubTeller) Name() string { return "stub" }

func (stubTeller) Generate(ctx context.Context, req chat.StoryRequest) (chat.Result, error) {
	return chat.Result{Text: "The keeper lit the lamp one last time."}, nil
}

// testPipeline writes minimal settings and params documents under a temp
// root and returns a pipeline with stubbed inference.
func testPipeline(t *testing.T) (*pipeline.Pipeline, string) {
	t.Helper()
	root := t.TempDir()
	dir := func(name string) string { return filepath.ToSlash(filepath.Join(root, name)) }

	settings := fmt.Sprintf(`
data_ingestion:
  raw_data_dir: %q
  ingested_data_dir: %q
  allowed_extensions: [png, jpg]
  max_file_size: 1048576
image_captioning:
  captions_dir: %q
  provider: llama
  model_name: florence
story_generation:
  stories_dir: %q
  provider: llama
  model_name: llama-3
`, dir("raw"), dir("ingested"), dir("captions"), dir("stories"))
	params := `
data_ingestion:
  resize_shape: [256, 256]
image_captioning:
  task_prompt: "<CAPTION>"
  max_new_tokens: 64
story_generation:
  max_tokens: 500
  temperature: 0.7
  top_p: 0.9
`
	settingsPath := filepath.Join(root, "config.yaml")
	paramsPath := filepath.Join(root, "params.yaml")
	os.WriteFile(settingsPath, []byte(settings), 0o644)
	os.WriteFile(paramsPath, []byte(params), 0o644)

	p := pipeline.New(pipeline.Options{
		SettingsPath: settingsPath,
		ParamsPath:   paramsPath,
		NewCaptioner: func(ctx context.Context, svc config.Service, seed int, hc *http.Client) (chat.Captioner, error) {
			return stubCaptioner{}, nil
		},
		NewStoryteller: func(ctx context.Context, svc config.Service, hc *http.Client) (chat.Storyteller, error) {
			return stubTeller{}, nil
		},
	})
	return p, root
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.SetNRGBA(1, 1, color.NRGBA{200, 100, 50, 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func connect(t *testing.T, p *pipeline.Pipeline) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	ss, err := newServer(p).Connect(ctx, serverTransport, nil)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any, out any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if out != nil && !res.IsError {
		data, err := json.Marshal(res.StructuredContent)
		if err != nil {
			t.Fatalf("marshal structured content: %v", err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			t.Fatalf("decode %s output: %v", name, err)
		}
	}
	return res
}

func resultText(res *mcp.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	return strings.Join(parts, "\n")
}

func TestListTools(t *testing.T) {
	p, _ := testPipeline(t)
	cs := connect(t, p)

	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	got := strings.Join(names, ",")
	for _, want := range []string{"ingest_image", "caption_image", "generate_story", "run_pipeline"} {
		if !strings.Contains(got, want) {
			t.Errorf("tools = %s, missing %s", got, want)
		}
	}
}

func TestStageToolsChain(t *testing.T) {
	p, root := testPipeline(t)
	cs := connect(t, p)
	raw := filepath.Join(root, "harbor.png")
	writePNG(t, raw, 800, 400)

	var ing ingestOutput
	if res := callTool(t, cs, "ingest_image", map[string]any{"path": raw}, &ing); res.IsError {
		t.Fatalf("ingest_image failed: %s", resultText(res))
	}
	if filepath.Base(ing.IngestedPath) != "resized_harbor.png" || ing.Width != 256 || ing.Height != 128 {
		t.Errorf("ingest output = %+v", ing)
	}

	var capt captionOutput
	if res := callTool(t, cs, "caption_image", map[string]any{"ingested_path": ing.IngestedPath}, &capt); res.IsError {
		t.Fatalf("caption_image failed: %s", resultText(res))
	}
	if capt.Caption != "A lighthouse at dusk." || filepath.Base(capt.CaptionPath) != "resized_harbor_caption.txt" {
		t.Errorf("caption output = %+v", capt)
	}

	var st storyOutput
	args := map[string]any{"caption_path": capt.CaptionPath, "theme": "ghost", "word_limit": 150}
	if res := callTool(t, cs, "generate_story", args, &st); res.IsError {
		t.Fatalf("generate_story failed: %s", resultText(res))
	}
	if st.Theme != "ghost" || st.WordLimit != 150 || filepath.Base(st.StoryPath) != "resized_harbor_story.txt" {
		t.Errorf("story output = %+v", st)
	}
	data, err := os.ReadFile(st.StoryPath)
	if err != nil || string(data) != st.Story {
		t.Errorf("story file = %q, %v", data, err)
	}
}

func TestRunPipelineDefaults(t *testing.T) {
	p, root := testPipeline(t)
	cs := connect(t, p)
	raw := filepath.Join(root, "small.png")
	writePNG(t, raw, 40, 30)

	var out runOutput
	if res := callTool(t, cs, "run_pipeline", map[string]any{"path": raw}, &out); res.IsError {
		t.Fatalf("run_pipeline failed: %s", resultText(res))
	}
	if out.Caption != "A lighthouse at dusk." || out.Story == "" || out.StoryPath == "" {
		t.Errorf("run output = %+v", out)
	}
}

func TestToolErrors(t *testing.T) {
	p, root := testPipeline(t)
	cs := connect(t, p)
	notes := filepath.Join(root, "notes.txt")
	os.WriteFile(notes, []byte("hi"), 0o644)

	tests := []struct {
		name     string
		tool     string
		args     map[string]any
		wantText string
	}{
		{"unsupported file", "ingest_image", map[string]any{"path": notes}, "unsupported_file_type"},
		{"missing image", "caption_image", map[string]any{"ingested_path": filepath.Join(root, "nope.png")}, "artifact_not_found"},
		{"missing caption", "generate_story", map[string]any{"caption_path": filepath.Join(root, "nope_caption.txt")}, "artifact_not_found"},
		{"word limit too small", "generate_story", map[string]any{"caption_path": "x", "word_limit": 20}, "word limit"},
		{"word limit too large", "run_pipeline", map[string]any{"path": notes, "word_limit": 5000}, "word limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := callTool(t, cs, tt.tool, tt.args, nil)
			if !res.IsError {
				t.Fatalf("%s succeeded, want tool error", tt.tool)
			}
			if text := resultText(res); !strings.Contains(text, tt.wantText) {
				t.Errorf("error text = %q, want %q", text, tt.wantText)
			}
		})
	}
}

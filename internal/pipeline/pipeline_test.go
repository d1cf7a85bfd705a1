package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fpang/image-story/internal/chat"
	"github.com/fpang/image-story/internal/config"
	"github.com/fpang/image-story/internal/stageerr"
)

type fakeCaptioner struct{ text string }

func (f fakeCaptioner) Name() string { return "fake-captioner" }

func (f fakeCaptioner) Caption(ctx context.Context, req chat.CaptionRequest) (chat.Result, error) {
	return chat.Result{Text: f.text}, nil
}

type echoingTeller struct{}

func (echoingTeller) Name() string { return "fake-teller" }

// Generate echoes the prompt the way some hosted models do.
func (echoingTeller) Generate(ctx context.Context, req chat.StoryRequest) (chat.Result, error) {
	return chat.Result{Text: req.Prompt + " The waves kept the dog's secret."}, nil
}

type memPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (m *memPublisher) Publish(ctx context.Context, stage, localPath string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := stage + "/" + filepath.Base(localPath)
	m.keys = append(m.keys, key)
	return key, nil
}

type testEnv struct {
	root, settings, params string
}

func newTestEnv(t *testing.T, extraSettings string) testEnv {
	t.Helper()
	root := t.TempDir()
	dir := func(name string) string { return filepath.ToSlash(filepath.Join(root, "data", name)) }

	settings := fmt.Sprintf(`
data_ingestion:
  raw_data_dir: %q
  ingested_data_dir: %q
  allowed_extensions: [jpg, jpeg, png]
  max_file_size: 10485760
image_captioning:
  captions_dir: %q
  provider: huggingface
  model_name: microsoft/Florence-2-large
  api_key: ${PIPELINE_TEST_HF_TOKEN}
story_generation:
  stories_dir: %q
  provider: openai
  model_name: meta-llama/Llama-3-8b-chat-hf
  api_key: ${PIPELINE_TEST_TOGETHER_KEY}
%s`, dir("raw"), dir("ingested"), dir("captions"), dir("stories"), extraSettings)

	params := `
data_ingestion:
  resize_shape: [512, 512]
image_captioning:
  task_prompt: "<MORE_DETAILED_CAPTION>"
  max_new_tokens: 128
story_generation:
  max_tokens: 700
  temperature: 0.75
  top_p: 0.9
  repetition_penalty: 1.1
`
	env := testEnv{
		root:     root,
		settings: filepath.Join(root, "config.yaml"),
		params:   filepath.Join(root, "params.yaml"),
	}
	if err := os.WriteFile(env.settings, []byte(settings), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(env.params, []byte(params), 0o644); err != nil {
		t.Fatal(err)
	}
	return env
}

func (e testEnv) pipeline(pub Publisher) *Pipeline {
	return New(Options{
		SettingsPath: e.settings,
		ParamsPath:   e.params,
		NewCaptioner: func(ctx context.Context, svc config.Service, seed int, hc *http.Client) (chat.Captioner, error) {
			return fakeCaptioner{text: "A dog running on a beach."}, nil
		},
		NewStoryteller: func(ctx context.Context, svc config.Service, hc *http.Client) (chat.Storyteller, error) {
			return echoingTeller{}, nil
		},
		NewPublisher: func(ctx context.Context, cfg config.ArtifactConfig) (Publisher, error) {
			if pub == nil {
				return nil, errors.New("publisher requested without artifact store")
			}
			return pub, nil
		},
	})
}

func jpegBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y += 8 {
		for x := 0; x < w; x += 8 {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 90, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestRunUploadEndToEnd(t *testing.T) {
	env := newTestEnv(t, "")
	p := env.pipeline(nil)

	res, err := p.RunUpload(context.Background(), "photo.JPG", bytes.NewReader(jpegBytes(t, 2400, 1600)), "adventure", 400)
	if err != nil {
		t.Fatalf("RunUpload: %v", err)
	}

	if filepath.Base(res.Image.Path) != "resized_photo.JPG" {
		t.Errorf("ingested = %s", res.Image.Path)
	}
	if max(res.Image.Width, res.Image.Height) > 512 {
		t.Errorf("ingested image is %dx%d", res.Image.Width, res.Image.Height)
	}
	if filepath.Base(res.Caption.Path) != "resized_photo_caption.txt" || res.Caption.Text == "" {
		t.Errorf("caption = %+v", res.Caption)
	}
	if filepath.Base(res.Story.Path) != "resized_photo_story.txt" {
		t.Errorf("story path = %s", res.Story.Path)
	}

	data, err := os.ReadFile(res.Story.Path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "The waves kept the dog's secret." {
		t.Errorf("story file = %q", data)
	}
	if strings.Contains(string(data), "Image Description") {
		t.Error("story file holds the echoed prompt")
	}
	if len(res.Published) != 0 {
		t.Errorf("published without artifact store: %v", res.Published)
	}
}

func TestStagesRunIndependently(t *testing.T) {
	env := newTestEnv(t, "")
	p := env.pipeline(nil)
	ctx := context.Background()

	raw := filepath.Join(env.root, "incoming", "beach.jpg")
	os.MkdirAll(filepath.Dir(raw), 0o755)
	if err := os.WriteFile(raw, jpegBytes(t, 640, 480), 0o644); err != nil {
		t.Fatal(err)
	}

	img, err := p.Ingest(ctx, raw)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	capt, err := p.Caption(ctx, img.Path)
	if err != nil {
		t.Fatalf("Caption: %v", err)
	}
	st, err := p.Generate(ctx, capt.Path, "", 0)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if st.Theme != config.DefaultTheme || st.WordLimit != config.DefaultWordLimit {
		t.Errorf("defaults not applied: theme=%q limit=%d", st.Theme, st.WordLimit)
	}
}

func TestGenerateMissingCaption(t *testing.T) {
	env := newTestEnv(t, "")
	p := env.pipeline(nil)

	_, err := p.Generate(context.Background(), filepath.Join(env.root, "data", "captions", "ghost_caption.txt"), "mystery", 200)
	if !errors.Is(err, stageerr.ErrArtifactNotFound) {
		t.Fatalf("err = %v, want artifact not found", err)
	}
	if _, err := os.Stat(filepath.Join(env.root, "data", "stories")); !os.IsNotExist(err) {
		t.Error("stories dir created on failure")
	}
}

func TestRejectedUploadLeavesNoArtifacts(t *testing.T) {
	env := newTestEnv(t, "")
	p := env.pipeline(nil)

	_, err := p.RunUpload(context.Background(), "notes.txt", strings.NewReader("hello"), "", 0)
	if !errors.Is(err, stageerr.ErrUnsupportedFileType) {
		t.Fatalf("err = %v, want unsupported file type", err)
	}
	for _, d := range []string{"raw", "ingested", "captions", "stories"} {
		if _, err := os.Stat(filepath.Join(env.root, "data", d)); !os.IsNotExist(err) {
			t.Errorf("%s dir exists after rejection", d)
		}
	}
}

func TestRunPublishesEachStage(t *testing.T) {
	env := newTestEnv(t, "artifact_store:\n  s3_bucket: story-artifacts\n  s3_prefix: runs\n")
	pub := &memPublisher{}
	p := env.pipeline(pub)

	res, err := p.RunUpload(context.Background(), "cat.png", bytes.NewReader(pngBytes(t)), "comic", 150)
	if err != nil {
		t.Fatalf("RunUpload: %v", err)
	}
	want := []string{"ingested/resized_cat.png", "captions/resized_cat_caption.txt", "stories/resized_cat_story.txt"}
	if strings.Join(pub.keys, ",") != strings.Join(want, ",") {
		t.Errorf("published = %v, want %v", pub.keys, want)
	}
	if res.Published[StageStory] != want[2] {
		t.Errorf("Published = %v", res.Published)
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 64))
	img.SetNRGBA(10, 10, color.NRGBA{255, 0, 0, 128})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestMissingSettingsIsConfigurationError(t *testing.T) {
	p := New(Options{SettingsPath: filepath.Join(t.TempDir(), "absent.yaml"), ParamsPath: "also-absent.yaml"})
	_, err := p.Caption(context.Background(), "x.jpg")
	if !errors.Is(err, stageerr.ErrConfiguration) {
		t.Errorf("err = %v, want configuration error", err)
	}
}

func TestMissingCredentialStopsBeforeCaptioning(t *testing.T) {
	t.Setenv("PIPELINE_TEST_HF_TOKEN", "")
	env := newTestEnv(t, "")
	p := New(Options{SettingsPath: env.settings, ParamsPath: env.params})

	raw := filepath.Join(env.root, "dog.jpg")
	os.WriteFile(raw, jpegBytes(t, 32, 32), 0o644)

	_, err := p.Run(context.Background(), raw, "", 0)
	if !errors.Is(err, stageerr.ErrMissingCredential) {
		t.Fatalf("err = %v, want missing credential", err)
	}
	if _, err := os.Stat(filepath.Join(env.root, "data", "captions")); !os.IsNotExist(err) {
		t.Error("captions dir created without a credential")
	}
}

func TestStageMetrics(t *testing.T) {
	t.Setenv("AWS_LAMBDA_FUNCTION_NAME", "")
	env := newTestEnv(t, "")
	p := env.pipeline(nil)
	var buf bytes.Buffer
	p.opts.Metrics = &buf

	if _, err := p.RunUpload(context.Background(), "cat.png", bytes.NewReader(pngBytes(t)), "", 0); err != nil {
		t.Fatalf("RunUpload: %v", err)
	}
	_, err := p.Generate(context.Background(), filepath.Join(env.root, "missing_caption.txt"), "", 0)
	if err == nil {
		t.Fatal("expected missing caption error")
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d EMF lines, want 4:\n%s", len(lines), buf.String())
	}
	var stages []string
	for _, line := range lines {
		var doc map[string]any
		if err := json.Unmarshal([]byte(line), &doc); err != nil {
			t.Fatalf("invalid EMF line %q: %v", line, err)
		}
		stages = append(stages, doc["Stage"].(string))
	}
	if got := strings.Join(stages, ","); got != "ingest,caption,story,story" {
		t.Errorf("stages = %s", got)
	}
	var last map[string]any
	json.Unmarshal([]byte(lines[3]), &last)
	if last["Failures"] != float64(1) || last["kind"] != "artifact_not_found" {
		t.Errorf("failure record = %v", last)
	}
}

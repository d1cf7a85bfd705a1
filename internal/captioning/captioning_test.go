package captioning

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fpang/image-story/internal/chat"
	"github.com/fpang/image-story/internal/config"
	"github.com/fpang/image-story/internal/stageerr"
)

type fakeCaptioner struct {
	reply chat.Result
	err   error
	calls int
	got   chat.CaptionRequest
}

func (f *fakeCaptioner) Name() string { return "fake" }

func (f *fakeCaptioner) Caption(ctx context.Context, req chat.CaptionRequest) (chat.Result, error) {
	f.calls++
	f.got = req
	return f.reply, f.err
}

func setup(t *testing.T, fc *fakeCaptioner) (*Stage, string, string) {
	t.Helper()
	root := t.TempDir()
	img := filepath.Join(root, "ingested", "resized_photo.JPG")
	if err := os.MkdirAll(filepath.Dir(img), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(img, []byte{0xff, 0xd8, 0xff, 0xe0}, 0o644); err != nil {
		t.Fatal(err)
	}
	captions := filepath.Join(root, "captions")
	cfg := config.CaptioningConfig{
		IngestedDir:  filepath.Dir(img),
		CaptionsDir:  captions,
		TaskPrompt:   "<MORE_DETAILED_CAPTION>",
		MaxNewTokens: 128,
		NumBeams:     3,
	}
	stage := NewStage(cfg, fc).WithCallPolicy(chat.CallPolicy{Retries: 1})
	return stage, img, captions
}

func TestCaptionWritesSiblingArtifact(t *testing.T) {
	fc := &fakeCaptioner{reply: chat.Result{Text: " A dog running on a beach. "}}
	stage, img, captions := setup(t, fc)

	got, err := stage.Caption(context.Background(), img)
	if err != nil {
		t.Fatalf("Caption: %v", err)
	}
	if got.Text != "A dog running on a beach." {
		t.Errorf("Text = %q", got.Text)
	}
	if got.ImageStem != "resized_photo" {
		t.Errorf("ImageStem = %q", got.ImageStem)
	}
	want := filepath.Join(captions, "resized_photo_caption.txt")
	if got.Path != want {
		t.Errorf("Path = %q, want %q", got.Path, want)
	}
	data, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("caption file: %v", err)
	}
	if string(data) != "A dog running on a beach." {
		t.Errorf("file content = %q", data)
	}

	if fc.got.TaskPrompt != "<MORE_DETAILED_CAPTION>" || fc.got.MaxNewTokens != 128 || fc.got.NumBeams != 3 {
		t.Errorf("request = %+v", fc.got)
	}
	if fc.got.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q", fc.got.MIMEType)
	}
}

func TestCaptionIsIdempotent(t *testing.T) {
	fc := &fakeCaptioner{reply: chat.Result{Text: "A red kite over a field."}}
	stage, img, _ := setup(t, fc)

	first, err := stage.Caption(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	second, err := stage.Caption(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	if first.Text != second.Text || first.Path != second.Path {
		t.Errorf("captions differ: %+v vs %+v", first, second)
	}
}

func TestCaptionFailures(t *testing.T) {
	tests := []struct {
		name      string
		fc        *fakeCaptioner
		wantCalls int
	}{
		{"empty text", &fakeCaptioner{reply: chat.Result{Text: "   "}}, 1},
		{"rejection", &fakeCaptioner{reply: chat.Result{Err: errors.New("unsupported task")}}, 1},
		{"permanent transport", &fakeCaptioner{err: errors.New("bad gateway config")}, 1},
		{"transient then gives up", &fakeCaptioner{err: &chat.StatusError{StatusCode: 503}}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stage, img, captions := setup(t, tt.fc)
			_, err := stage.Caption(context.Background(), img)
			if !errors.Is(err, stageerr.ErrCaptioning) {
				t.Fatalf("err = %v, want captioning error", err)
			}
			if tt.fc.calls != tt.wantCalls {
				t.Errorf("calls = %d, want %d", tt.fc.calls, tt.wantCalls)
			}
			if _, statErr := os.Stat(captions); !os.IsNotExist(statErr) {
				t.Errorf("captions dir should not exist after failure")
			}
		})
	}
}

func TestCaptionMissingImage(t *testing.T) {
	fc := &fakeCaptioner{reply: chat.Result{Text: "x"}}
	stage, img, _ := setup(t, fc)

	_, err := stage.Caption(context.Background(), filepath.Join(filepath.Dir(img), "nope.jpg"))
	if !errors.Is(err, stageerr.ErrArtifactNotFound) {
		t.Errorf("err = %v, want artifact not found", err)
	}
	if fc.calls != 0 {
		t.Errorf("service called %d times for a missing image", fc.calls)
	}
}

func TestCaptionTimeoutIsCaptioningError(t *testing.T) {
	stage, img, _ := setup(t, &fakeCaptioner{})
	stage.captioner = blockingCaptioner{}
	stage.WithCallPolicy(chat.CallPolicy{Timeout: 10 * time.Millisecond})

	_, err := stage.Caption(context.Background(), img)
	if !errors.Is(err, stageerr.ErrCaptioning) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want captioning error wrapping deadline", err)
	}
}

type blockingCaptioner struct{}

func (blockingCaptioner) Name() string { return "blocking" }

func (blockingCaptioner) Caption(ctx context.Context, _ chat.CaptionRequest) (chat.Result, error) {
	<-ctx.Done()
	return chat.Result{}, ctx.Err()
}

func TestCaptionLabelsIngestedCopyAsJPEG(t *testing.T) {
	fc := &fakeCaptioner{reply: chat.Result{Text: "A cat on a windowsill."}}
	stage, img, _ := setup(t, fc)

	// Ingested copies keep the upload's extension but hold JPEG bytes.
	png := filepath.Join(filepath.Dir(img), "resized_cat.png")
	if err := os.WriteFile(png, []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F'}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := stage.Caption(context.Background(), png); err != nil {
		t.Fatalf("Caption: %v", err)
	}
	if fc.got.MIMEType != "image/jpeg" {
		t.Errorf("MIMEType = %q, want image/jpeg", fc.got.MIMEType)
	}
}

func TestCaptionResolvesBareNameInIngestedDir(t *testing.T) {
	fc := &fakeCaptioner{reply: chat.Result{Text: "A dog running on a beach."}}
	stage, _, captions := setup(t, fc)

	got, err := stage.Caption(context.Background(), "resized_photo.JPG")
	if err != nil {
		t.Fatalf("Caption: %v", err)
	}
	if got.Path != filepath.Join(captions, "resized_photo_caption.txt") {
		t.Errorf("Path = %q", got.Path)
	}
	if fc.calls != 1 {
		t.Errorf("calls = %d", fc.calls)
	}
}

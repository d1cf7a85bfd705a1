package filehandler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fpang/image-story/internal/config"
	"github.com/fpang/image-story/internal/stageerr"
	"github.com/rs/zerolog/log"
)

// IngestedPrefix is prepended to the original filename of every normalized image.
const IngestedPrefix = "resized_"

// IngestedImage describes a normalized image written to the ingested directory.
type IngestedImage struct {
	// SourceName is the original upload's filename.
	SourceName string
	// Path is the normalized file, <ingested dir>/resized_<SourceName>.
	Path string
	// Format is the decoder that read the upload ("png", "jpeg", ...).
	Format         string
	OriginalWidth  int
	OriginalHeight int
	Width          int
	Height         int
	SizeBytes      int
	// Metadata is nil when the upload carried no readable EXIF block.
	Metadata *ImageMetadata
}

// Ingester runs the ingestion stage against one IngestionConfig.
type Ingester struct {
	cfg config.IngestionConfig
}

// NewIngester returns an Ingester bound to cfg.
func NewIngester(cfg config.IngestionConfig) *Ingester {
	return &Ingester{cfg: cfg}
}

// Ingest validates the raw image at path and writes its normalized copy.
//
// Checks run in order and stop at the first failure: extension against the
// allow-list (UnsupportedFileType), byte size against the limit
// (FileTooLarge), then header, declared pixel count and full decode
// (InvalidImage). A missing
// source file is ArtifactNotFound. The ingested directory is untouched on
// any failure.
func (i *Ingester) Ingest(ctx context.Context, path string) (*IngestedImage, error) {
	name := filepath.Base(path)

	if !IsAllowed(name, i.cfg.AllowedExtensions) {
		return nil, stageerr.New(stageerr.KindUnsupportedFileType, path,
			fmt.Sprintf("extension %q is not allowed", filepath.Ext(name)), nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, stageerr.New(stageerr.KindArtifactNotFound, path, "raw image not found", err)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, stageerr.New(stageerr.KindInvalidImage, path, "path is a directory, not a file", nil)
	}
	if info.Size() > i.cfg.MaxFileSize {
		return nil, stageerr.New(stageerr.KindFileTooLarge, path,
			fmt.Sprintf("file is %d bytes, limit is %d", info.Size(), i.cfg.MaxFileSize), nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	// Header only; the full decode below may still fail on truncated data.
	hdr, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, stageerr.New(stageerr.KindInvalidImage, path, "not a decodable image", err)
	}
	if pixels := int64(hdr.Width) * int64(hdr.Height); i.cfg.MaxPixels > 0 && pixels > i.cfg.MaxPixels {
		return nil, stageerr.New(stageerr.KindInvalidImage, path,
			fmt.Sprintf("image declares %dx%d pixels, limit is %d", hdr.Width, hdr.Height, i.cfg.MaxPixels), nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, stageerr.New(stageerr.KindInvalidImage, path, "image data is corrupt", err)
	}

	start := time.Now()
	normalized := Normalize(img, i.cfg.MaxWidth, i.cfg.MaxHeight)

	var buf bytes.Buffer
	if err := EncodeJPEG(&buf, normalized, i.cfg.JPEGQuality); err != nil {
		return nil, fmt.Errorf("failed to encode normalized image: %w", err)
	}

	dst := filepath.Join(i.cfg.IngestedDir, IngestedPrefix+name)
	if err := WriteFileAtomic(dst, buf.Bytes(), 0o644); err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	result := &IngestedImage{
		SourceName:     name,
		Path:           dst,
		Format:         format,
		OriginalWidth:  bounds.Dx(),
		OriginalHeight: bounds.Dy(),
		Width:          normalized.Bounds().Dx(),
		Height:         normalized.Bounds().Dy(),
		SizeBytes:      buf.Len(),
	}

	if meta, err := ExtractImageMetadata(path); err != nil {
		log.Debug().Err(err).Str("path", path).Msg("No EXIF metadata, continuing without it")
	} else {
		result.Metadata = meta
	}

	log.Info().
		Str("source", name).
		Str("path", dst).
		Str("format", format).
		Int("orig_width", result.OriginalWidth).
		Int("orig_height", result.OriginalHeight).
		Int("new_width", result.Width).
		Int("new_height", result.Height).
		Int("output_size", result.SizeBytes).
		Dur("duration", time.Since(start)).
		Msg("Image ingested")

	return result, nil
}

// IngestReader stores an upload under the raw directory and ingests it.
// Used by front-ends that receive image bytes rather than a path.
func (i *Ingester) IngestReader(ctx context.Context, filename string, r io.Reader) (*IngestedImage, error) {
	if name := CleanFilename(filename); !IsAllowed(name, i.cfg.AllowedExtensions) {
		return nil, stageerr.New(stageerr.KindUnsupportedFileType, name,
			fmt.Sprintf("extension %q is not allowed", filepath.Ext(name)), nil)
	}
	rawPath, err := StoreUpload(i.cfg.RawDir, filename, r)
	if err != nil {
		return nil, err
	}
	return i.Ingest(ctx, rawPath)
}

package filehandler

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rs/zerolog/log"
)

// ImageMetadata holds the EXIF fields kept from a raw upload. Normalization
// re-encodes the image and drops EXIF, so this is the only record of them.
type ImageMetadata struct {
	Latitude  float64
	Longitude float64
	HasGPS    bool

	DateTaken time.Time
	HasDate   bool

	CameraMake  string
	CameraModel string
}

// ExtractImageMetadata reads EXIF metadata from an image file. Only the
// metadata block is read, not the pixel data.
func ExtractImageMetadata(filePath string) (*ImageMetadata, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	exifData, err := imagemeta.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF metadata: %w", err)
	}

	metadata := &ImageMetadata{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
	}

	gps := exifData.GPS
	if gps.Latitude() != 0 || gps.Longitude() != 0 {
		metadata.Latitude = gps.Latitude()
		metadata.Longitude = gps.Longitude()
		metadata.HasGPS = true
	}

	// DateTimeOriginal > CreateDate > ModifyDate
	for _, t := range []time.Time{exifData.DateTimeOriginal(), exifData.CreateDate(), exifData.ModifyDate()} {
		if !t.IsZero() {
			metadata.DateTaken = t
			metadata.HasDate = true
			break
		}
	}

	log.Debug().
		Str("path", filePath).
		Bool("has_gps", metadata.HasGPS).
		Bool("has_date", metadata.HasDate).
		Str("camera", metadata.Camera()).
		Msg("Image metadata extraction complete")

	return metadata, nil
}

// Camera returns "make model", or "" when neither is recorded.
func (m *ImageMetadata) Camera() string {
	return strings.TrimSpace(m.CameraMake + " " + m.CameraModel)
}

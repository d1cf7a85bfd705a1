// Package filehandler implements the ingestion stage: it accepts a raw
// upload, checks it against the configured allow-list and size limit,
// verifies it decodes as an image, and writes a normalized JPEG copy that
// the captioning stage can consume.
//
// Validation runs in a fixed order (extension, size, integrity) so the first
// failing check decides the reported error. Nothing is written to the
// ingested directory unless every check passes.
package filehandler

import (
	"net/http"
	"path/filepath"
	"strings"
)

// SupportedImageExtensions maps the extensions this package can decode to
// their MIME types. The configured allow-list may be narrower.
var SupportedImageExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// IsAllowed reports whether filename's extension is in allowed. Both sides
// are compared lower-cased with any leading dot removed, so "PNG", ".png"
// and "png" are equivalent. A name without an extension is never allowed.
func IsAllowed(filename string, allowed []string) bool {
	ext := normalizeExt(filepath.Ext(filename))
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if normalizeExt(a) == ext {
			return true
		}
	}
	return false
}

func normalizeExt(ext string) string {
	return strings.TrimLeft(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// GetMIMEType returns the MIME type for an image file. The content is
// sniffed first, since ingested copies are JPEG whatever their extension;
// the extension is the fallback for formats the sniffer does not know (TIFF).
func GetMIMEType(filename string, data []byte) string {
	sniffed := http.DetectContentType(data)
	if strings.HasPrefix(sniffed, "image/") {
		return sniffed
	}
	if mimeType, ok := SupportedImageExtensions[strings.ToLower(filepath.Ext(filename))]; ok {
		return mimeType
	}
	return sniffed
}

// Package stageerr defines the failure taxonomy shared by every pipeline stage.
//
// Each failure is an *Error carrying a Kind. Callers branch on the kind with
// errors.Is against the exported sentinels, or pull the full record out with
// errors.As:
//
//	if errors.Is(err, stageerr.ErrFileTooLarge) { ... }
package stageerr

import (
	"errors"
	"fmt"
)

// Kind categorizes a stage failure.
type Kind int

const (
	// KindUnknown is reported by KindOf for errors outside the taxonomy.
	KindUnknown Kind = iota
	// KindConfiguration: a settings/params document is missing, unparseable, or lacks a required key.
	KindConfiguration
	// KindUnsupportedFileType: the upload's extension is not in the allowed set.
	KindUnsupportedFileType
	// KindFileTooLarge: the upload exceeds the configured byte limit.
	KindFileTooLarge
	// KindInvalidImage: the upload is not a decodable image.
	KindInvalidImage
	// KindCaptioning: the caption service failed or returned nothing usable.
	KindCaptioning
	// KindStoryGeneration: the story service failed or returned nothing usable.
	KindStoryGeneration
	// KindArtifactNotFound: an upstream artifact (image or caption file) is missing or empty.
	KindArtifactNotFound
	// KindMissingCredential: an inference credential resolved to the empty string.
	KindMissingCredential
)

var kindNames = map[Kind]string{
	KindUnknown:             "unknown",
	KindConfiguration:       "configuration",
	KindUnsupportedFileType: "unsupported_file_type",
	KindFileTooLarge:        "file_too_large",
	KindInvalidImage:        "invalid_image",
	KindCaptioning:          "captioning",
	KindStoryGeneration:     "story_generation",
	KindArtifactNotFound:    "artifact_not_found",
	KindMissingCredential:   "missing_credential",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a stage failure. Path names the file involved, when there is one.
type Error struct {
	Kind    Kind
	Path    string
	Message string
	Err     error
}

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrConfiguration       = &Error{Kind: KindConfiguration}
	ErrUnsupportedFileType = &Error{Kind: KindUnsupportedFileType}
	ErrFileTooLarge        = &Error{Kind: KindFileTooLarge}
	ErrInvalidImage        = &Error{Kind: KindInvalidImage}
	ErrCaptioning          = &Error{Kind: KindCaptioning}
	ErrStoryGeneration     = &Error{Kind: KindStoryGeneration}
	ErrArtifactNotFound    = &Error{Kind: KindArtifactNotFound}
	ErrMissingCredential   = &Error{Kind: KindMissingCredential}
)

// New builds an *Error.
func New(kind Kind, path, message string, err error) *Error {
	return &Error{Kind: kind, Path: path, Message: message, Err: err}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Path != "" {
		msg = msg + " (" + e.Path + ")"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnknown
}

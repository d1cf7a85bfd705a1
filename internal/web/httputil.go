package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fpang/image-story/internal/stageerr"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func httpError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// errorResponse is the JSON body for a failed pipeline call.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func respondStageError(w http.ResponseWriter, err error) {
	respondJSON(w, statusForError(err), errorResponse{Error: err.Error(), Kind: stageerr.KindOf(err).String()})
}

// statusForError maps a stage failure to an HTTP status. Input problems are
// 4xx; upstream service failures are 502; anything else is a server fault.
func statusForError(err error) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	switch stageerr.KindOf(err) {
	case stageerr.KindUnsupportedFileType:
		return http.StatusUnsupportedMediaType
	case stageerr.KindFileTooLarge:
		return http.StatusRequestEntityTooLarge
	case stageerr.KindInvalidImage:
		return http.StatusUnprocessableEntity
	case stageerr.KindArtifactNotFound:
		return http.StatusNotFound
	case stageerr.KindCaptioning, stageerr.KindStoryGeneration:
		return http.StatusBadGateway
	case stageerr.KindMissingCredential, stageerr.KindConfiguration:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is the one-line explanation shown on the form page.
func userMessage(err error) string {
	switch stageerr.KindOf(err) {
	case stageerr.KindUnsupportedFileType:
		return "That file type is not supported. Upload an image in one of the accepted formats."
	case stageerr.KindFileTooLarge:
		return "That image is too large."
	case stageerr.KindInvalidImage:
		return "That file could not be read as an image."
	case stageerr.KindCaptioning:
		return "The image could not be described. Try again in a moment."
	case stageerr.KindStoryGeneration:
		return "The story could not be written. Try again in a moment."
	case stageerr.KindMissingCredential:
		return "The server is missing an inference credential."
	case stageerr.KindConfiguration:
		return "The server configuration is invalid."
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return "That image is too large."
	}
	return "Something went wrong."
}

package auth

import (
	"errors"
	"testing"

	"github.com/fpang/image-story/internal/stageerr"
)

func TestRequireCredential(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"present", "sk-123456", false},
		{"empty", "", true},
		{"whitespace", "   ", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := RequireCredential("together", tt.key)
			if (err != nil) != tt.wantErr {
				t.Fatalf("RequireCredential() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, stageerr.ErrMissingCredential) {
				t.Errorf("expected missing credential kind, got %v", err)
			}
		})
	}
}

func TestMask(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"abc", "****"},
		{"sk-abcdef1234", "****1234"},
	}
	for _, tt := range tests {
		if got := Mask(tt.in); got != tt.want {
			t.Errorf("Mask(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

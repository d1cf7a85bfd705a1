// Package auth checks inference credentials before they are used.
//
// Credentials reach the process through the settings document, usually as a
// ${VAR_NAME} placeholder. An unset variable resolves to the empty string
// without failing configuration; the check here turns that into an explicit
// MissingCredential error before any request leaves the process.
package auth

import (
	"fmt"
	"strings"

	"github.com/fpang/image-story/internal/stageerr"
	"github.com/rs/zerolog/log"
)

// RequireCredential returns a MissingCredential error when key is empty or
// whitespace. provider names the service in the message.
func RequireCredential(provider, key string) error {
	if strings.TrimSpace(key) != "" {
		log.Debug().Str("provider", provider).Str("key", Mask(key)).Msg("Credential present")
		return nil
	}
	log.Error().Str("provider", provider).Msg("No credential configured")
	return stageerr.New(stageerr.KindMissingCredential, "",
		fmt.Sprintf("no API key configured for %s; set the variable named in the settings document", provider), nil)
}

// Mask renders a credential for logs: the last four characters only.
func Mask(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	if len(key) <= 4 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}

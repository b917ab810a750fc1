// Package auth resolves the effective downstream token for one turn
// (spec.md §4.8). Generalizes tarsy's pkg/api/auth.go extractAuthor,
// which picks one of several header-supplied values; here the choice is
// gated by operating mode instead of header priority.
package auth

import (
	"errors"

	"github.com/buxiuxian/summer-project/pkg/config"
)

// ErrAuthMissing is returned when no usable token can be resolved.
var ErrAuthMissing = errors.New("auth: no usable token")

// minProductionTokenLen is the minimum length a production-mode
// request-supplied token must have (spec.md §4.8).
const minProductionTokenLen = 10

// Resolve implements spec.md §4.8's single operation: resolve the
// effective token for downstream calls. The token is opaque to the core.
func Resolve(mode config.Mode, requestToken, localToken string) (string, error) {
	switch mode {
	case config.ModeProduction:
		if len(requestToken) < minProductionTokenLen {
			return "", ErrAuthMissing
		}
		return requestToken, nil
	default: // ModeLocal
		if localToken != "" {
			return localToken, nil
		}
		if requestToken != "" {
			return requestToken, nil
		}
		return "", ErrAuthMissing
	}
}

// Package domain provides type-safe identifiers to prevent mixing up IDs at compile time.
package domain

import (
	"strings"

	dErrors "attest/pkg/domain-errors"
)

// Principal is an addressable identity holder, typically a cryptographic
// account identifier handed to us by the transport layer. It is kept opaque:
// the registry never interprets its contents, only uses it as a key.
type Principal string

// MaxPrincipalLen bounds principal identifiers so store keys stay sane.
const MaxPrincipalLen = 256

// ParsePrincipal validates an external identifier at the trust boundary
// (handlers, token claims). Internal code passes Principal values around
// directly.
func ParsePrincipal(s string) (Principal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal cannot be empty")
	}
	if len(s) > MaxPrincipalLen {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal exceeds maximum length")
	}
	if strings.ContainsAny(s, " \t\n") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "principal cannot contain whitespace")
	}
	return Principal(s), nil
}

func (p Principal) String() string { return string(p) }

// IsNil reports whether the principal is the zero value. Used for
// service-layer validation; parse functions reject empty input at the
// boundary, so a nil principal inside the core means a caller was never
// authenticated.
func (p Principal) IsNil() bool { return p == "" }

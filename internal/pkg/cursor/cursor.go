// Package cursor encodes sort-key values into opaque position markers.
//
// The encoding is unpadded URL-safe base64 over the UTF-8 bytes of the key.
// It is obfuscation, not a security boundary.
package cursor

import (
	"encoding/base64"
	"strings"
	"unicode/utf8"

	"github.com/simp-lee/hive/internal/domain"
)

// CodeInvalid is the error code returned for undecodable cursors.
const CodeInvalid = "invalid_cursor"

// Encode returns the cursor for a raw sort-key value.
func Encode(raw string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// Decode returns the raw sort-key value of c. Malformed input yields an
// input error, never an unexpected one. Padded input is accepted.
func Decode(c string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(c, "="))
	if err != nil || !utf8.Valid(b) {
		return "", domain.InputError(CodeInvalid, "Invalid cursor.")
	}
	return string(b), nil
}

package refresh

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
)

// MinSecretBytes is the floor on secret entropy, before encoding.
const MinSecretBytes = 48

// ErrMalformed is returned by Parse for anything that is not "<id>.<secret>".
var ErrMalformed = errors.New("malformed token")

// NewSecret reads n bytes from r and returns them base64url-encoded.
// n below MinSecretBytes is raised to MinSecretBytes.
func NewSecret(r io.Reader, n int) (string, error) {
	if n < MinSecretBytes {
		n = MinSecretBytes
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read token secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash is the only form of the secret that is ever persisted.
func Hash(secret string) [32]byte {
	return sha256.Sum256([]byte(secret))
}

// Matches compares secret against a stored hash in constant time.
func Matches(secret string, stored [32]byte) bool {
	sum := Hash(secret)
	return subtle.ConstantTimeCompare(sum[:], stored[:]) == 1
}

// Encode joins a row id and its secret into the bearer string.
func Encode(id, secret string) string {
	return id + "." + secret
}

// Parse splits token on the first '.'. Both halves must be non-empty.
func Parse(token string) (id, secret string, err error) {
	id, secret, ok := strings.Cut(token, ".")
	if !ok || id == "" || secret == "" {
		return "", "", ErrMalformed
	}
	return id, secret, nil
}

package password

import "errors"

// ErrUnknownHashFormat is returned when no configured hasher recognises a
// stored hash.
var ErrUnknownHashFormat = errors.New("unknown password hash format")

// Hasher produces and checks encoded password hashes. Verify must compare in
// constant time.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
	Handles(encoded string) bool
}

// Chain hashes with its first member and verifies with whichever member
// recognises the stored format, so rows written under a previous algorithm
// keep working after the default changes.
type Chain struct {
	hashers []Hasher
}

// NewChain returns a Chain. primary is used for all new hashes.
func NewChain(primary Hasher, fallbacks ...Hasher) *Chain {
	return &Chain{hashers: append([]Hasher{primary}, fallbacks...)}
}

func (c *Chain) Hash(password string) (string, error) {
	return c.hashers[0].Hash(password)
}

func (c *Chain) Verify(password, encoded string) (bool, error) {
	for _, h := range c.hashers {
		if h.Handles(encoded) {
			return h.Verify(password, encoded)
		}
	}
	return false, ErrUnknownHashFormat
}

func (c *Chain) Handles(encoded string) bool {
	for _, h := range c.hashers {
		if h.Handles(encoded) {
			return true
		}
	}
	return false
}

package twofactor

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
)

const (
	// BackupCodeLength is the number of hex characters in a backup code.
	BackupCodeLength = 8
	// DefaultBackupCodeCount is how many codes enrollment and regeneration issue.
	DefaultBackupCodeCount = 10
)

// GenerateBackupCodes returns n distinct uppercase hex codes read from r.
func GenerateBackupCodes(r io.Reader, n int) ([]string, error) {
	if n <= 0 {
		n = DefaultBackupCodeCount
	}
	seen := make(map[string]struct{}, n)
	codes := make([]string, 0, n)
	buf := make([]byte, BackupCodeLength/2)
	for len(codes) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read backup code: %w", err)
		}
		code := strings.ToUpper(hex.EncodeToString(buf))
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// IndexOf returns the position of code in codes using exact comparison, or -1.
// No case folding or trimming is applied.
func IndexOf(codes []string, code string) int {
	for i, c := range codes {
		if c == code {
			return i
		}
	}
	return -1
}

// Remove returns codes without the entry at i, leaving the input untouched.
func Remove(codes []string, i int) []string {
	out := make([]string, 0, len(codes)-1)
	out = append(out, codes[:i]...)
	return append(out, codes[i+1:]...)
}

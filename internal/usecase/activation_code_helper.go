package usecase

import (
	"crypto/rand"
	"io"
	"strings"
)

const (
	// A character set that avoids ambiguous characters like O/0, I/1.
	codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	codeGroups   = 4
	codeGroupLen = 4
	codeLength   = codeGroups * codeGroupLen
)

// CodeGenerator draws one random candidate code.
type CodeGenerator func() (string, error)

// generateActivationCode creates a secure, random, and human-readable activation code.
// Format: XXXX-XXXX-XXXX-XXXX
func generateActivationCode() (string, error) {
	buffer := make([]byte, codeLength)
	if _, err := io.ReadFull(rand.Reader, buffer); err != nil {
		return "", err
	}

	// len(codeAlphabet) divides 256, so the modulo keeps the distribution uniform.
	for i := 0; i < codeLength; i++ {
		buffer[i] = codeAlphabet[int(buffer[i])%len(codeAlphabet)]
	}

	var sb strings.Builder
	sb.Grow(codeLength + codeGroups - 1)
	for g := 0; g < codeGroups; g++ {
		if g > 0 {
			sb.WriteByte('-')
		}
		sb.Write(buffer[g*codeGroupLen : (g+1)*codeGroupLen])
	}
	return sb.String(), nil
}

// NormalizeCode upper-cases user input and restores the group separators,
// so "abcd efgh..." and "ABCD-EFGH-..." address the same code.
func NormalizeCode(raw string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(raw) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
		}
	}
	flat := sb.String()
	if len(flat) != codeLength {
		return flat
	}
	parts := make([]string, 0, codeGroups)
	for g := 0; g < codeGroups; g++ {
		parts = append(parts, flat[g*codeGroupLen:(g+1)*codeGroupLen])
	}
	return strings.Join(parts, "-")
}

// ValidCodeFormat reports whether code matches the generated layout.
func ValidCodeFormat(code string) bool {
	if len(code) != codeLength+codeGroups-1 {
		return false
	}
	for i, r := range code {
		if (i+1)%(codeGroupLen+1) == 0 {
			if r != '-' {
				return false
			}
			continue
		}
		if !strings.ContainsRune(codeAlphabet, r) {
			return false
		}
	}
	return true
}

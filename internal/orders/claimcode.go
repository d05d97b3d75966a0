package orders

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

const maxClaimCodeAttempts = 5

var claimCodePattern = regexp.MustCompile(`^[0-9A-F]{8}$`)

// NewClaimCode returns 8 uppercase hex chars from 4 random bytes.
func NewClaimCode() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("claim code: %w", err)
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}

func ValidClaimCode(code string) bool {
	return claimCodePattern.MatchString(code)
}

// ClaimCodesMatch compares trimmed codes ignoring case, in constant time.
func ClaimCodesMatch(stored, submitted string) bool {
	a := strings.ToUpper(strings.TrimSpace(stored))
	b := strings.ToUpper(strings.TrimSpace(submitted))
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// mintClaimCode draws codes until one is not held by another pending order.
func (s *Service) mintClaimCode(ctx context.Context, tx Tx) (string, error) {
	for i := 0; i < maxClaimCodeAttempts; i++ {
		code, err := s.codes()
		if err != nil {
			return "", err
		}
		if !ValidClaimCode(code) {
			return "", fmt.Errorf("claim code %q: bad format", code)
		}
		taken, err := tx.ClaimCodeInUse(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check claim code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrClaimCodeExhausted
}

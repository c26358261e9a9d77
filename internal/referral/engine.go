package referral

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrInvalidCode is returned when the code does not exist or has been deactivated.
	ErrInvalidCode = errors.New("referral: invalid or inactive code")
	// ErrExhausted is returned when the code has already been used max_uses times.
	ErrExhausted = errors.New("referral: code has reached maximum uses")
	// ErrExpired is returned when the code is past its expiry timestamp.
	ErrExpired = errors.New("referral: code has expired")
	// ErrMissingInput is returned when a caller omits the customer name or email.
	ErrMissingInput = errors.New("referral: customer name and email are required")
)

// Code is a customer's referral code together with its usage state. Codes are
// never deleted, only deactivated.
type Code struct {
	ID            uuid.UUID  `json:"id"`
	Code          string     `json:"code"`
	CustomerEmail string     `json:"customerEmail"`
	CustomerName  string     `json:"customerName"`
	CreditAmount  int64      `json:"creditAmount"`
	TimesUsed     int32      `json:"timesUsed"`
	MaxUses       int32      `json:"maxUses"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	Active        bool       `json:"isActive"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Validate checks redeemability at the provided instant. Checks short-circuit
// in a fixed order: existence/active, usage cap, expiry.
func (c Code) Validate(now time.Time) error {
	if !c.Active {
		return ErrInvalidCode
	}
	if c.TimesUsed >= c.MaxUses {
		return ErrExhausted
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return ErrExpired
	}
	return nil
}

// NewCodeString derives a shareable code from the customer name plus a random
// suffix. Uniqueness is not guaranteed here; the store's unique constraint and
// the issuer's retry loop own that.
func NewCodeString(customerName string) string {
	prefix := namePrefix(customerName)
	// The first six characters of a v4 UUID are plain hex.
	suffix := strings.ToUpper(uuid.NewString()[:6])
	return prefix + "-" + suffix
}

func namePrefix(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
			if b.Len() >= 4 {
				break
			}
		}
	}
	if b.Len() == 0 {
		return "HAUL"
	}
	return b.String()
}

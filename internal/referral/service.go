package referral

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Defaults for newly issued codes. Stored per code so future issuance can vary
// without touching historical rows.
const (
	DefaultCreditAmount int64 = 2_500
	DefaultMaxUses      int32 = 1
)

// Service issues and redeems referral codes.
type Service struct {
	Store        Store
	CreditAmount int64
	MaxUses      int32
	CodeTTL      time.Duration
	Now          func() time.Time
}

// NewService constructs a Service, falling back to program defaults for unset
// issuance parameters. A zero CodeTTL issues codes without expiry.
func NewService(store Store, creditAmount int64, maxUses int32, codeTTL time.Duration) (*Service, error) {
	if store == nil {
		return nil, errors.New("referral: store is required")
	}
	if creditAmount <= 0 {
		creditAmount = DefaultCreditAmount
	}
	if maxUses <= 0 {
		maxUses = DefaultMaxUses
	}
	return &Service{Store: store, CreditAmount: creditAmount, MaxUses: maxUses, CodeTTL: codeTTL}, nil
}

// issueAttempts bounds the retry loop on code collisions.
const issueAttempts = 5

// Issue generates and persists a unique referral code for the customer. The
// store's unique constraint arbitrates concurrent issuance; a collision simply
// retries with a fresh suffix.
func (s *Service) Issue(ctx context.Context, customerName, customerEmail string) (Code, error) {
	customerName = strings.TrimSpace(customerName)
	customerEmail = normalizeEmail(customerEmail)
	if customerName == "" || customerEmail == "" {
		return Code{}, ErrMissingInput
	}

	var expiresAt *time.Time
	if s.CodeTTL > 0 {
		t := s.now().Add(s.CodeTTL)
		expiresAt = &t
	}

	var lastErr error
	for i := 0; i < issueAttempts; i++ {
		c := Code{
			ID:            uuid.New(),
			Code:          NewCodeString(customerName),
			CustomerEmail: customerEmail,
			CustomerName:  customerName,
			CreditAmount:  s.CreditAmount,
			MaxUses:       s.MaxUses,
			ExpiresAt:     expiresAt,
			Active:        true,
		}
		err := s.Store.InsertCode(ctx, c)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, ErrCodeCollision) {
			return Code{}, err
		}
		lastErr = err
	}
	return Code{}, fmt.Errorf("issue referral code: %w", lastErr)
}

// Redeem applies a referral code for a new customer. On success the store has
// already granted both ledger credits and advanced the usage counter
// atomically.
func (s *Service) Redeem(ctx context.Context, code, newCustomerEmail, newCustomerName string) (Code, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	newCustomerEmail = normalizeEmail(newCustomerEmail)
	if code == "" {
		return Code{}, ErrInvalidCode
	}
	if newCustomerEmail == "" || strings.TrimSpace(newCustomerName) == "" {
		return Code{}, ErrMissingInput
	}
	return s.Store.Redeem(ctx, code, newCustomerEmail, s.now())
}

// ListCodes returns the customer's codes for the referral dashboard.
func (s *Service) ListCodes(ctx context.Context, customerEmail string) ([]Code, error) {
	return s.Store.ListCodesByEmail(ctx, normalizeEmail(customerEmail))
}

// Deactivate turns off a code without deleting its history.
func (s *Service) Deactivate(ctx context.Context, code string) error {
	return s.Store.DeactivateCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

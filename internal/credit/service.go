package credit

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMissingInput is returned when a caller omits the customer email or invoice id.
	ErrMissingInput = errors.New("credit: customer email and invoice id are required")
	// ErrNegativeAmount is returned for a negative requested amount.
	ErrNegativeAmount = errors.New("credit: requested amount cannot be negative")
)

// Service exposes ledger reads and the invoice applicator.
type Service struct {
	Store Store
}

// NewService constructs a Service.
func NewService(store Store) (*Service, error) {
	if store == nil {
		return nil, errors.New("credit: store is required")
	}
	return &Service{Store: store}, nil
}

// Summary pairs a customer's eligible entries with their total.
type Summary struct {
	Entries []Entry `json:"entries"`
	Total   int64   `json:"totalAvailable"`
}

// AvailableCredit lists the customer's eligible entries and their sum.
func (s *Service) AvailableCredit(ctx context.Context, email string) (Summary, error) {
	email = normalizeEmail(email)
	entries, err := s.Store.ListAvailable(ctx, email)
	if err != nil {
		return Summary{}, fmt.Errorf("available credit: %w", err)
	}
	var total int64
	for _, e := range entries {
		total += e.Remaining
	}
	if entries == nil {
		entries = []Entry{}
	}
	return Summary{Entries: entries, Total: total}, nil
}

// TotalAvailable returns the customer's remaining credit.
func (s *Service) TotalAvailable(ctx context.Context, email string) (int64, error) {
	return s.Store.TotalAvailable(ctx, normalizeEmail(email))
}

// ApplyToInvoice offsets the requested invoice amount with stored credit and
// returns how much was actually applied. A shortfall is a normal partial
// result; callers compare applied against requested.
func (s *Service) ApplyToInvoice(ctx context.Context, email, invoiceID string, requested int64) (int64, error) {
	email = normalizeEmail(email)
	invoiceID = strings.TrimSpace(invoiceID)
	if email == "" || invoiceID == "" {
		return 0, ErrMissingInput
	}
	if requested < 0 {
		return 0, ErrNegativeAmount
	}
	return s.Store.ApplyToInvoice(ctx, email, invoiceID, requested)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

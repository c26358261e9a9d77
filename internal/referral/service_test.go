package referral

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

// memStore implements Store in memory with the same atomicity guarantees the
// pg store provides per call.
type memStore struct {
	codes     map[string]*Code
	credits   []memCredit
	insertErr error
	collide   int
}

type memCredit struct {
	email  string
	amount int64
	source string
	code   string
}

func newMemStore() *memStore {
	return &memStore{codes: map[string]*Code{}}
}

func (m *memStore) InsertCode(_ context.Context, c Code) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	if m.collide > 0 {
		m.collide--
		return ErrCodeCollision
	}
	if _, ok := m.codes[c.Code]; ok {
		return ErrCodeCollision
	}
	cp := c
	m.codes[c.Code] = &cp
	return nil
}

func (m *memStore) GetCode(_ context.Context, code string) (Code, error) {
	if c, ok := m.codes[code]; ok {
		return *c, nil
	}
	return Code{}, ErrInvalidCode
}

func (m *memStore) ListCodesByEmail(_ context.Context, email string) ([]Code, error) {
	var out []Code
	for _, c := range m.codes {
		if c.CustomerEmail == email {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) DeactivateCode(_ context.Context, code string) error {
	c, ok := m.codes[code]
	if !ok {
		return ErrInvalidCode
	}
	c.Active = false
	return nil
}

func (m *memStore) Redeem(_ context.Context, code, redeemerEmail string, now time.Time) (Code, error) {
	c, ok := m.codes[code]
	if !ok {
		return Code{}, ErrInvalidCode
	}
	if err := c.Validate(now); err != nil {
		return Code{}, err
	}
	c.TimesUsed++
	m.credits = append(m.credits,
		memCredit{email: c.CustomerEmail, amount: c.CreditAmount, source: "referral_given", code: c.Code},
		memCredit{email: redeemerEmail, amount: c.CreditAmount, source: "referral_received", code: c.Code},
	)
	return *c, nil
}

func newTestService(t *testing.T, store Store) *Service {
	t.Helper()
	svc, err := NewService(store, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	return svc
}

func TestIssueDefaults(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)

	code, err := svc.Issue(context.Background(), "Jane Doe", "Jane@Example.com ")
	if err != nil {
		t.Fatal(err)
	}
	if code.CreditAmount != DefaultCreditAmount {
		t.Fatalf("credit amount = %d, want %d", code.CreditAmount, DefaultCreditAmount)
	}
	if code.MaxUses != DefaultMaxUses {
		t.Fatalf("max uses = %d, want %d", code.MaxUses, DefaultMaxUses)
	}
	if code.CustomerEmail != "jane@example.com" {
		t.Fatalf("email not normalized: %q", code.CustomerEmail)
	}
	if code.ExpiresAt != nil {
		t.Fatalf("expected no expiry by default, got %v", code.ExpiresAt)
	}
	if !strings.HasPrefix(code.Code, "JANE-") {
		t.Fatalf("unexpected code %q", code.Code)
	}
}

func TestIssueRetriesOnCollision(t *testing.T) {
	store := newMemStore()
	store.collide = 2
	svc := newTestService(t, store)

	code, err := svc.Issue(context.Background(), "Jane Doe", "jane@example.com")
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.codes[code.Code]; !ok {
		t.Fatalf("code %q not persisted", code.Code)
	}
}

func TestIssueGivesUpAfterRepeatedCollisions(t *testing.T) {
	store := newMemStore()
	store.collide = issueAttempts
	svc := newTestService(t, store)

	_, err := svc.Issue(context.Background(), "Jane Doe", "jane@example.com")
	if !errors.Is(err, ErrCodeCollision) {
		t.Fatalf("expected ErrCodeCollision, got %v", err)
	}
}

func TestIssueRequiresInput(t *testing.T) {
	svc := newTestService(t, newMemStore())
	if _, err := svc.Issue(context.Background(), "", "jane@example.com"); !errors.Is(err, ErrMissingInput) {
		t.Fatalf("expected ErrMissingInput, got %v", err)
	}
}

func TestRedeemGrantsBothSides(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	issued, err := svc.Issue(context.Background(), "Jane Doe", "jane@example.com")
	if err != nil {
		t.Fatal(err)
	}

	code, err := svc.Redeem(context.Background(), strings.ToLower(issued.Code), "New@Example.com", "New Customer")
	if err != nil {
		t.Fatal(err)
	}
	if code.TimesUsed != 1 {
		t.Fatalf("times used = %d, want 1", code.TimesUsed)
	}
	if len(store.credits) != 2 {
		t.Fatalf("credits = %d, want 2", len(store.credits))
	}
	given, received := store.credits[0], store.credits[1]
	if given.source != "referral_given" || given.email != "jane@example.com" {
		t.Fatalf("unexpected referrer credit: %+v", given)
	}
	if received.source != "referral_received" || received.email != "new@example.com" {
		t.Fatalf("unexpected redeemer credit: %+v", received)
	}
	if given.amount != issued.CreditAmount || received.amount != issued.CreditAmount {
		t.Fatalf("credit amounts %d/%d, want %d", given.amount, received.amount, issued.CreditAmount)
	}
}

func TestRedeemExhaustsAtMaxUses(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	svc.MaxUses = 2
	issued, err := svc.Issue(context.Background(), "Jane Doe", "jane@example.com")
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if _, err := svc.Redeem(context.Background(), issued.Code, "new@example.com", "New Customer"); err != nil {
			t.Fatalf("redemption %d: %v", i+1, err)
		}
	}
	_, err = svc.Redeem(context.Background(), issued.Code, "late@example.com", "Late Customer")
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestRedeemExpiredCode(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store)
	svc.CodeTTL = time.Hour
	issued, err := svc.Issue(context.Background(), "Jane Doe", "jane@example.com")
	if err != nil {
		t.Fatal(err)
	}

	svc.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = svc.Redeem(context.Background(), issued.Code, "new@example.com", "New Customer")
	if !errors.Is(err, ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}
}

func TestRedeemUnknownCode(t *testing.T) {
	svc := newTestService(t, newMemStore())
	_, err := svc.Redeem(context.Background(), "NOPE-000000", "new@example.com", "New Customer")
	if !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("expected ErrInvalidCode, got %v", err)
	}
}

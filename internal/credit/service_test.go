package credit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// fakeStore replays Consume against an in-memory slice so service and
// handler behavior can be tested without postgres.
type fakeStore struct {
	entries []Entry
	fail    bool

	lastEmail   string
	lastInvoice string
}

func (f *fakeStore) ListAvailable(_ context.Context, email string) ([]Entry, error) {
	if f.fail {
		return nil, errors.New("boom")
	}
	f.lastEmail = email
	var out []Entry
	for _, e := range f.entries {
		if e.CustomerEmail == email && e.Remaining > 0 {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeStore) TotalAvailable(ctx context.Context, email string) (int64, error) {
	entries, err := f.ListAvailable(ctx, email)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		total += e.Remaining
	}
	return total, nil
}

func (f *fakeStore) ApplyToInvoice(ctx context.Context, email, invoiceID string, requested int64) (int64, error) {
	entries, err := f.ListAvailable(ctx, email)
	if err != nil {
		return 0, err
	}
	f.lastInvoice = invoiceID
	applied, plan := Consume(entries, requested)
	for _, p := range plan {
		for i := range f.entries {
			if f.entries[i].ID == p.EntryID {
				f.entries[i].UsedAmount += p.Amount
				f.entries[i].Remaining -= p.Amount
				f.entries[i].InvoiceID = &invoiceID
			}
		}
	}
	return applied, nil
}

func seedEntry(email string, remaining int64, age time.Duration) Entry {
	return Entry{
		ID:            uuid.New(),
		CustomerEmail: email,
		Amount:        remaining,
		Source:        SourceReferralReceived,
		Remaining:     remaining,
		CreatedAt:     time.Now().Add(-age),
	}
}

func TestAvailableCreditSums(t *testing.T) {
	store := &fakeStore{entries: []Entry{
		seedEntry("dana@example.com", 2_500, 2*time.Hour),
		seedEntry("dana@example.com", 2_500, time.Hour),
		seedEntry("other@example.com", 9_000, time.Hour),
	}}
	svc, err := NewService(store)
	require.NoError(t, err)

	summary, err := svc.AvailableCredit(context.Background(), "  Dana@Example.COM ")
	require.NoError(t, err)
	require.Len(t, summary.Entries, 2)
	require.Equal(t, int64(5_000), summary.Total)
	require.Equal(t, "dana@example.com", store.lastEmail)
}

func TestAvailableCreditEmptyLedger(t *testing.T) {
	svc, err := NewService(&fakeStore{})
	require.NoError(t, err)

	summary, err := svc.AvailableCredit(context.Background(), "nobody@example.com")
	require.NoError(t, err)
	require.NotNil(t, summary.Entries)
	require.Empty(t, summary.Entries)
	require.Zero(t, summary.Total)
}

func TestApplyToInvoiceSplitsAcrossEntries(t *testing.T) {
	store := &fakeStore{entries: []Entry{
		seedEntry("dana@example.com", 2_500, 2*time.Hour),
		seedEntry("dana@example.com", 2_500, time.Hour),
	}}
	svc, err := NewService(store)
	require.NoError(t, err)

	applied, err := svc.ApplyToInvoice(context.Background(), "dana@example.com", "INV-100", 3_000)
	require.NoError(t, err)
	require.Equal(t, int64(3_000), applied)

	require.Equal(t, int64(0), store.entries[0].Remaining)
	require.Equal(t, int64(2_000), store.entries[1].Remaining)
	require.Equal(t, "INV-100", *store.entries[0].InvoiceID)

	total, err := svc.TotalAvailable(context.Background(), "dana@example.com")
	require.NoError(t, err)
	require.Equal(t, int64(2_000), total)
}

func TestApplyToInvoiceShortfall(t *testing.T) {
	store := &fakeStore{entries: []Entry{seedEntry("dana@example.com", 1_500, time.Hour)}}
	svc, err := NewService(store)
	require.NoError(t, err)

	applied, err := svc.ApplyToInvoice(context.Background(), "dana@example.com", "INV-101", 10_000)
	require.NoError(t, err)
	require.Equal(t, int64(1_500), applied)
}

func TestApplyToInvoiceValidation(t *testing.T) {
	svc, err := NewService(&fakeStore{})
	require.NoError(t, err)

	_, err = svc.ApplyToInvoice(context.Background(), "", "INV-1", 100)
	require.ErrorIs(t, err, ErrMissingInput)

	_, err = svc.ApplyToInvoice(context.Background(), "dana@example.com", "  ", 100)
	require.ErrorIs(t, err, ErrMissingInput)

	_, err = svc.ApplyToInvoice(context.Background(), "dana@example.com", "INV-1", -5)
	require.ErrorIs(t, err, ErrNegativeAmount)
}

func TestApplyHandler(t *testing.T) {
	store := &fakeStore{entries: []Entry{
		seedEntry("dana@example.com", 2_500, 2*time.Hour),
		seedEntry("dana@example.com", 2_500, time.Hour),
	}}
	svc, err := NewService(store)
	require.NoError(t, err)
	h := Handler{Svc: svc}

	body := `{"customerEmail":"dana@example.com","invoiceId":"INV-100","requestedAmount":3000}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/credits/apply", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Apply(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"appliedAmount":3000`)
	require.Contains(t, rec.Body.String(), `"shortfall":0`)
}

func TestApplyHandlerShortfall(t *testing.T) {
	store := &fakeStore{entries: []Entry{seedEntry("dana@example.com", 1_000, time.Hour)}}
	svc, err := NewService(store)
	require.NoError(t, err)
	h := Handler{Svc: svc}

	body := `{"customerEmail":"dana@example.com","invoiceId":"INV-7","requestedAmount":4000}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/credits/apply", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Apply(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"appliedAmount":1000`)
	require.Contains(t, rec.Body.String(), `"shortfall":3000`)
}

func TestApplyHandlerBadPayload(t *testing.T) {
	svc, err := NewService(&fakeStore{})
	require.NoError(t, err)
	h := Handler{Svc: svc}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/credits/apply", strings.NewReader(`{"invoiceId":"INV-1"`))
	rec := httptest.NewRecorder()
	h.Apply(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAvailableHandlerRequiresEmail(t *testing.T) {
	svc, err := NewService(&fakeStore{})
	require.NoError(t, err)
	h := Handler{Svc: svc}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits", nil)
	rec := httptest.NewRecorder()
	h.Available(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAvailableHandlerStoreDown(t *testing.T) {
	svc, err := NewService(&fakeStore{fail: true})
	require.NoError(t, err)
	h := Handler{Svc: svc}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/credits?email=dana@example.com", nil)
	rec := httptest.NewRecorder()
	h.Available(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

package credit

import (
	"time"

	"github.com/google/uuid"
)

// Credit sources recorded on ledger entries. Future sources (goodwill grants,
// promotions) land here without schema changes.
const (
	SourceReferralGiven    = "referral_given"
	SourceReferralReceived = "referral_received"
)

// Entry is one append-only grant in a customer's credit ledger. Entries are
// never deleted; remaining only moves toward zero as credit is applied.
type Entry struct {
	ID            uuid.UUID  `json:"id"`
	CustomerEmail string     `json:"customerEmail"`
	Amount        int64      `json:"creditAmount"`
	Source        string     `json:"creditSource"`
	ReferralCode  *string    `json:"referralCode,omitempty"`
	UsedAmount    int64      `json:"usedAmount"`
	Remaining     int64      `json:"remainingAmount"`
	InvoiceID     *string    `json:"invoiceId,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Application records how much of one entry an invoice consumed.
type Application struct {
	EntryID uuid.UUID
	Amount  int64
}

// Consume walks entries in the order given (callers supply FIFO order) and
// plans how to satisfy the requested amount. It never over-draws an entry and
// stops as soon as the request is covered. The returned applied total may fall
// short of requested; that is a partial application, not an error.
func Consume(entries []Entry, requested int64) (applied int64, plan []Application) {
	if requested <= 0 {
		return 0, nil
	}
	left := requested
	for _, e := range entries {
		if left == 0 {
			break
		}
		if e.Remaining <= 0 {
			continue
		}
		take := e.Remaining
		if take > left {
			take = left
		}
		plan = append(plan, Application{EntryID: e.ID, Amount: take})
		applied += take
		left -= take
	}
	return applied, plan
}

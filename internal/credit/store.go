package credit

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable indicates the ledger store dependency is not configured.
var ErrStoreUnavailable = errors.New("credit: store unavailable")

// Store persists the credit ledger. ApplyToInvoice is one method so the
// read-and-update walk cannot be split across transactions by a caller.
type Store interface {
	ListAvailable(ctx context.Context, email string) ([]Entry, error)
	TotalAvailable(ctx context.Context, email string) (int64, error)
	ApplyToInvoice(ctx context.Context, email, invoiceID string, requested int64) (int64, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const entryColumns = `id, customer_email, credit_amount, credit_source, referral_code, used_amount, remaining_amount, invoice_id, expires_at, created_at`

// eligible selects non-expired entries with credit left, oldest grant first.
// The (created_at, id) pair is an explicit, indexed ordering key so consumption
// order never depends on storage iteration order.
const eligible = `SELECT ` + entryColumns + ` FROM referral_credits
 WHERE customer_email = $1
   AND remaining_amount > 0
   AND (expires_at IS NULL OR expires_at > now())
 ORDER BY created_at, id`

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.CustomerEmail, &e.Amount, &e.Source, &e.ReferralCode, &e.UsedAmount, &e.Remaining, &e.InvoiceID, &e.ExpiresAt, &e.CreatedAt)
	return e, err
}

// ListAvailable returns entries with credit left in FIFO order.
func (s *pgStore) ListAvailable(ctx context.Context, email string) ([]Entry, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx, eligible, email)
	if err != nil {
		return nil, fmt.Errorf("list credits: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credit: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return entries, nil
}

// TotalAvailable sums remaining credit over eligible entries.
func (s *pgStore) TotalAvailable(ctx context.Context, email string) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	var total int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(remaining_amount), 0) FROM referral_credits
		 WHERE customer_email = $1
		   AND remaining_amount > 0
		   AND (expires_at IS NULL OR expires_at > now())`, email,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum credits: %w", err)
	}
	return total, nil
}

// ApplyToInvoice consumes eligible entries FIFO against the requested amount
// inside one transaction. Row locks on the selected entries serialize
// concurrent invoice payments for the same customer, so the same credit can
// never be spent twice.
func (s *pgStore) ApplyToInvoice(ctx context.Context, email, invoiceID string, requested int64) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrStoreUnavailable
	}
	if requested <= 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, eligible+` FOR UPDATE`, email)
	if err != nil {
		return 0, fmt.Errorf("lock credits: %w", err)
	}
	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan credit: %w", err)
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("rows error: %w", err)
	}

	applied, plan := Consume(entries, requested)
	for _, p := range plan {
		// The guard on remaining_amount keeps the entry non-negative even if
		// the snapshot were ever stale.
		tag, err := tx.Exec(ctx,
			`UPDATE referral_credits
			 SET used_amount = used_amount + $2,
			     remaining_amount = remaining_amount - $2,
			     invoice_id = $3
			 WHERE id = $1 AND remaining_amount >= $2`,
			p.EntryID, p.Amount, invoiceID,
		)
		if err != nil {
			return 0, fmt.Errorf("apply credit %s: %w", p.EntryID, err)
		}
		if tag.RowsAffected() == 0 {
			return 0, fmt.Errorf("apply credit %s: concurrent modification", p.EntryID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return applied, nil
}

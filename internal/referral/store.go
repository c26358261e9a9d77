package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrStoreUnavailable indicates the referral store dependency is not configured.
	ErrStoreUnavailable = errors.New("referral: store unavailable")
	// ErrCodeCollision is returned when an insert hits the unique code constraint.
	ErrCodeCollision = errors.New("referral: code already exists")
)

// Store persists referral codes and performs the atomic redemption write.
// Redeem is deliberately a single method so the counter increment and the two
// ledger inserts cannot be split across transactions by a caller.
type Store interface {
	InsertCode(ctx context.Context, c Code) error
	GetCode(ctx context.Context, code string) (Code, error)
	ListCodesByEmail(ctx context.Context, email string) ([]Code, error)
	DeactivateCode(ctx context.Context, code string) error
	Redeem(ctx context.Context, code string, redeemerEmail string, now time.Time) (Code, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const codeColumns = `id, code, customer_email, customer_name, credit_amount, times_used, max_uses, expires_at, is_active, created_at`

func scanCode(row pgx.Row) (Code, error) {
	var c Code
	err := row.Scan(&c.ID, &c.Code, &c.CustomerEmail, &c.CustomerName, &c.CreditAmount, &c.TimesUsed, &c.MaxUses, &c.ExpiresAt, &c.Active, &c.CreatedAt)
	return c, err
}

// InsertCode persists a freshly issued code. A unique violation on the code
// column surfaces as ErrCodeCollision so the issuer can retry with a new
// suffix.
func (s *pgStore) InsertCode(ctx context.Context, c Code) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO referral_codes (id, code, customer_email, customer_name, credit_amount, times_used, max_uses, expires_at, is_active)
		 VALUES ($1, $2, $3, $4, $5, 0, $6, $7, TRUE)`,
		c.ID, c.Code, c.CustomerEmail, c.CustomerName, c.CreditAmount, c.MaxUses, c.ExpiresAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrCodeCollision, c.Code)
		}
		return fmt.Errorf("insert referral code: %w", err)
	}
	return nil
}

// GetCode fetches a code row regardless of its active flag.
func (s *pgStore) GetCode(ctx context.Context, code string) (Code, error) {
	if s == nil || s.pool == nil {
		return Code{}, ErrStoreUnavailable
	}
	c, err := scanCode(s.pool.QueryRow(ctx,
		`SELECT `+codeColumns+` FROM referral_codes WHERE code = $1`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Code{}, ErrInvalidCode
		}
		return Code{}, fmt.Errorf("get referral code: %w", err)
	}
	return c, nil
}

// ListCodesByEmail returns the customer's codes, newest first.
func (s *pgStore) ListCodesByEmail(ctx context.Context, email string) ([]Code, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+codeColumns+` FROM referral_codes WHERE customer_email = $1 ORDER BY created_at DESC`, email)
	if err != nil {
		return nil, fmt.Errorf("list referral codes: %w", err)
	}
	defer rows.Close()

	var codes []Code
	for rows.Next() {
		c, err := scanCode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan referral code: %w", err)
		}
		codes = append(codes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return codes, nil
}

// DeactivateCode flips the active flag off. Codes are never deleted.
func (s *pgStore) DeactivateCode(ctx context.Context, code string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE referral_codes SET is_active = FALSE WHERE code = $1`, code)
	if err != nil {
		return fmt.Errorf("deactivate referral code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidCode
	}
	return nil
}

// Redeem performs the three-part redemption write as one transaction: a locked
// read and conditional counter increment on the code row, plus a ledger insert
// for the referrer and one for the redeemer. Any failure rolls the whole unit
// back, so no partial state is ever observable.
func (s *pgStore) Redeem(ctx context.Context, code string, redeemerEmail string, now time.Time) (Code, error) {
	if s == nil || s.pool == nil {
		return Code{}, ErrStoreUnavailable
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Code{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	c, err := scanCode(tx.QueryRow(ctx,
		`SELECT `+codeColumns+` FROM referral_codes WHERE code = $1 FOR UPDATE`, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Code{}, ErrInvalidCode
		}
		return Code{}, fmt.Errorf("lock referral code: %w", err)
	}
	if err := c.Validate(now); err != nil {
		return Code{}, err
	}

	// The row is locked, but the guard stays in the predicate anyway so the
	// increment can never pass the cap.
	tag, err := tx.Exec(ctx,
		`UPDATE referral_codes SET times_used = times_used + 1 WHERE id = $1 AND times_used < max_uses`, c.ID)
	if err != nil {
		return Code{}, fmt.Errorf("increment times_used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return Code{}, ErrExhausted
	}

	const insertCredit = `INSERT INTO referral_credits (customer_email, credit_amount, credit_source, referral_code, used_amount, remaining_amount)
		 VALUES ($1, $2, $3, $4, 0, $2)`
	if _, err := tx.Exec(ctx, insertCredit, c.CustomerEmail, c.CreditAmount, "referral_given", c.Code); err != nil {
		return Code{}, fmt.Errorf("insert referrer credit: %w", err)
	}
	if _, err := tx.Exec(ctx, insertCredit, redeemerEmail, c.CreditAmount, "referral_received", c.Code); err != nil {
		return Code{}, fmt.Errorf("insert redeemer credit: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Code{}, fmt.Errorf("commit tx: %w", err)
	}
	c.TimesUsed++
	return c, nil
}

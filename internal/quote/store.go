package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Quote request lifecycle states.
const (
	StatusPending   = "pending"
	StatusContacted = "contacted"
	StatusScheduled = "scheduled"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusExpired   = "expired"
)

// ValidStatus reports whether s is a known quote request status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusContacted, StatusScheduled, StatusCompleted, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

var (
	// ErrStoreUnavailable indicates the quote store dependency is not configured.
	ErrStoreUnavailable = errors.New("quote: store unavailable")
	// ErrNotFound indicates the requested quote does not exist.
	ErrNotFound = errors.New("quote: not found")
)

// Request is a persisted quote request. Items holds the priced cart lines as
// a JSON document; the store does not interpret it.
type Request struct {
	ID             uuid.UUID  `json:"id"`
	CustomerName   string     `json:"customerName"`
	CustomerEmail  string     `json:"customerEmail"`
	CustomerPhone  string     `json:"customerPhone,omitempty"`
	ServiceAddress string     `json:"serviceAddress"`
	Items          []byte     `json:"items"`
	Volume         int64      `json:"estimatedVolume"`
	EstimatedPrice int64      `json:"estimatedPrice"`
	LoadSize       string     `json:"loadSize"`
	Notes          string     `json:"notes,omitempty"`
	Status         string     `json:"status"`
	FollowupCount  int        `json:"followupCount"`
	LastFollowupAt *time.Time `json:"lastFollowupAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// Store persists quote requests.
type Store interface {
	Insert(ctx context.Context, q Request) error
	Get(ctx context.Context, id uuid.UUID) (Request, error)
	List(ctx context.Context, status string, limit, offset int) ([]Request, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	ListNeedingFollowup(ctx context.Context, olderThan time.Time, maxFollowups int) ([]Request, error)
	MarkFollowedUp(ctx context.Context, id uuid.UUID, at time.Time) error
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const requestColumns = `id, customer_name, customer_email, customer_phone, service_address, items, estimated_volume, estimated_price, load_size, notes, status, follow_up_count, last_follow_up_at, created_at, updated_at`

func scanRequest(row pgx.Row) (Request, error) {
	var q Request
	err := row.Scan(&q.ID, &q.CustomerName, &q.CustomerEmail, &q.CustomerPhone, &q.ServiceAddress, &q.Items, &q.Volume, &q.EstimatedPrice, &q.LoadSize, &q.Notes, &q.Status, &q.FollowupCount, &q.LastFollowupAt, &q.CreatedAt, &q.UpdatedAt)
	return q, err
}

func (s *pgStore) Insert(ctx context.Context, q Request) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quote_requests (id, customer_name, customer_email, customer_phone, service_address, items, estimated_volume, estimated_price, load_size, notes, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		q.ID, q.CustomerName, q.CustomerEmail, q.CustomerPhone, q.ServiceAddress, q.Items, q.Volume, q.EstimatedPrice, q.LoadSize, q.Notes, q.Status,
	)
	if err != nil {
		return fmt.Errorf("insert quote request: %w", err)
	}
	return nil
}

func (s *pgStore) Get(ctx context.Context, id uuid.UUID) (Request, error) {
	if s == nil || s.pool == nil {
		return Request{}, ErrStoreUnavailable
	}
	q, err := scanRequest(s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM quote_requests WHERE id = $1`, id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return Request{}, ErrNotFound
	}
	if err != nil {
		return Request{}, fmt.Errorf("get quote request: %w", err)
	}
	return q, nil
}

func (s *pgStore) List(ctx context.Context, status string, limit, offset int) ([]Request, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	var (
		rows pgx.Rows
		err  error
	)
	if status != "" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+requestColumns+` FROM quote_requests WHERE status = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
			status, limit, offset,
		)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+requestColumns+` FROM quote_requests ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
			limit, offset,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("list quote requests: %w", err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		q, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quote request: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (s *pgStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE quote_requests SET status = $2, updated_at = now() WHERE id = $1`, id, status,
	)
	if err != nil {
		return fmt.Errorf("update quote status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListNeedingFollowup returns pending quotes created before olderThan that
// have not exhausted the follow-up sequence.
func (s *pgStore) ListNeedingFollowup(ctx context.Context, olderThan time.Time, maxFollowups int) ([]Request, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+requestColumns+` FROM quote_requests
		 WHERE status = $1 AND created_at < $2 AND follow_up_count < $3
		 ORDER BY created_at`,
		StatusPending, olderThan, maxFollowups,
	)
	if err != nil {
		return nil, fmt.Errorf("list followup quotes: %w", err)
	}
	defer rows.Close()

	var out []Request
	for rows.Next() {
		q, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan quote request: %w", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (s *pgStore) MarkFollowedUp(ctx context.Context, id uuid.UUID, at time.Time) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE quote_requests
		 SET follow_up_count = follow_up_count + 1, last_follow_up_at = $2, updated_at = now()
		 WHERE id = $1`, id, at,
	)
	if err != nil {
		return fmt.Errorf("mark followed up: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

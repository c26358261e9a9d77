package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrStoreUnavailable indicates the catalog store dependency is not configured.
var ErrStoreUnavailable = errors.New("catalog: store unavailable")

// Item is a chargeable junk-removal item from the pricing catalog.
type Item struct {
	ID              uuid.UUID `json:"id"`
	Name            string    `json:"name"`
	Category        string    `json:"category"`
	BasePrice       int64     `json:"basePrice"`
	Volume          int64     `json:"volumeCubicFeet"`
	Weight          int64     `json:"weightLbs"`
	DisposalFee     int64     `json:"disposalFee"`
	SpecialHandling bool      `json:"specialHandling"`
	Active          bool      `json:"-"`
	CreatedAt       time.Time `json:"-"`
}

// Store provides read access to the persisted item catalog. The pricing core
// never writes catalog rows; their lifecycle belongs to the admin tooling.
type Store interface {
	ListActiveItems(ctx context.Context, category string) ([]Item, error)
	ListItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]Item, error)
}

// NewStore constructs a Store backed by a pgx connection pool.
func NewStore(pool *pgxpool.Pool) Store {
	return &pgStore{pool: pool}
}

type pgStore struct {
	pool *pgxpool.Pool
}

const itemColumns = `id, name, category, base_price, volume_cubic_feet, weight_lbs, disposal_fee, special_handling, is_active, created_at`

// ListActiveItems returns active catalog items, optionally filtered by
// category, ordered by category then name.
func (s *pgStore) ListActiveItems(ctx context.Context, category string) ([]Item, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	query := `SELECT ` + itemColumns + ` FROM pricing_items WHERE is_active`
	args := []any{}
	if category != "" {
		query += ` AND category = $1`
		args = append(args, category)
	}
	query += ` ORDER BY category, name`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list active items: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Category, &it.BasePrice, &it.Volume, &it.Weight, &it.DisposalFee, &it.SpecialHandling, &it.Active, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

// ListItemsByIDs fetches catalog rows for the given ids, active or not, so the
// caller can distinguish missing items from deactivated ones.
func (s *pgStore) ListItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]Item, error) {
	if s == nil || s.pool == nil {
		return nil, ErrStoreUnavailable
	}
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+itemColumns+` FROM pricing_items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("list items by ids: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		if err := rows.Scan(&it.ID, &it.Name, &it.Category, &it.BasePrice, &it.Volume, &it.Weight, &it.DisposalFee, &it.SpecialHandling, &it.Active, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return items, nil
}

package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Service serves catalog reads with a Redis read-through cache in front of the
// store. Only the unfiltered listing is cached; category listings are cheap
// indexed queries.
type Service struct {
	store Store
	cache *Cache
}

// NewService constructs a Service.
func NewService(store Store, cache *Cache) (*Service, error) {
	if store == nil {
		return nil, errors.New("catalog: store is required")
	}
	return &Service{store: store, cache: cache}, nil
}

// ListActiveItems returns active items ordered by category then name.
func (s *Service) ListActiveItems(ctx context.Context, category string) ([]Item, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	if category == "" {
		if cached, ok := s.cache.GetItems(ctx); ok {
			return cached, nil
		}
	}
	items, err := s.store.ListActiveItems(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list active items: %w", err)
	}
	if category == "" {
		_ = s.cache.SetItems(ctx, items)
	}
	return items, nil
}

// ListItemsByIDs resolves catalog rows for the given ids.
func (s *Service) ListItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]Item, error) {
	return s.store.ListItemsByIDs(ctx, ids)
}

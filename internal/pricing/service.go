package pricing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/haulpoint/backend-haul/internal/catalog"
)

var (
	// ErrUnknownItem is returned when a cart references an item id absent from the catalog.
	ErrUnknownItem = errors.New("pricing: unknown catalog item")
	// ErrInactiveItem is returned when a cart references a deactivated item.
	ErrInactiveItem = errors.New("pricing: catalog item is not active")
	// ErrInvalidQuantity is returned when a cart line carries a non-positive quantity.
	ErrInvalidQuantity = errors.New("pricing: quantity must be positive")
)

// CartLine references a catalog item with a requested quantity.
type CartLine struct {
	ItemID   uuid.UUID `json:"itemId"`
	Quantity int       `json:"quantity"`
}

// CatalogQuerier captures the catalog reads required by the calculator.
type CatalogQuerier interface {
	ListItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Item, error)
}

// Estimate pairs the resolved lines with their computed breakdown.
type Estimate struct {
	Items          []EstimateItem `json:"items"`
	Breakdown      Breakdown      `json:"breakdown"`
	LoadPercentage int            `json:"loadPercentage"`
}

// EstimateItem echoes a priced cart line back to the caller.
type EstimateItem struct {
	ItemID   uuid.UUID `json:"itemId"`
	Name     string    `json:"name"`
	Quantity int       `json:"quantity"`
	LineCost Money     `json:"lineCost"`
}

// Service resolves cart lines against the catalog and prices them.
type Service struct {
	Catalog            CatalogQuerier
	Tiers              []Tier
	SpecialHandlingFee Money
}

// NewService constructs a pricing Service with default tiers and surcharge
// where the config leaves them unset.
func NewService(q CatalogQuerier, tiers []Tier, specialFee Money) (*Service, error) {
	if q == nil {
		return nil, errors.New("pricing: catalog querier is required")
	}
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}
	if specialFee <= 0 {
		specialFee = DefaultSpecialHandlingFee
	}
	return &Service{Catalog: q, Tiers: tiers, SpecialHandlingFee: specialFee}, nil
}

// EstimateCart prices the given cart. The calculation itself is pure; only the
// catalog snapshot comes from the store.
func (s *Service) EstimateCart(ctx context.Context, cart []CartLine) (Estimate, error) {
	ids := make([]uuid.UUID, 0, len(cart))
	for _, ln := range cart {
		if ln.Quantity <= 0 {
			return Estimate{}, fmt.Errorf("item %s: %w", ln.ItemID, ErrInvalidQuantity)
		}
		ids = append(ids, ln.ItemID)
	}

	items, err := s.Catalog.ListItemsByIDs(ctx, ids)
	if err != nil {
		return Estimate{}, fmt.Errorf("resolve cart items: %w", err)
	}
	byID := make(map[uuid.UUID]catalog.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	lines := make([]Line, 0, len(cart))
	echo := make([]EstimateItem, 0, len(cart))
	for _, ln := range cart {
		it, ok := byID[ln.ItemID]
		if !ok {
			return Estimate{}, fmt.Errorf("item %s: %w", ln.ItemID, ErrUnknownItem)
		}
		if !it.Active {
			return Estimate{}, fmt.Errorf("item %s: %w", ln.ItemID, ErrInactiveItem)
		}
		lines = append(lines, Line{
			Qty:             ln.Quantity,
			UnitPrice:       it.BasePrice,
			DisposalFee:     it.DisposalFee,
			Volume:          it.Volume,
			Weight:          it.Weight,
			SpecialHandling: it.SpecialHandling,
		})
		echo = append(echo, EstimateItem{
			ItemID:   it.ID,
			Name:     it.Name,
			Quantity: ln.Quantity,
			LineCost: it.BasePrice * int64(ln.Quantity),
		})
	}

	breakdown := Compute(lines, s.Tiers, s.SpecialHandlingFee)
	return Estimate{
		Items:          echo,
		Breakdown:      breakdown,
		LoadPercentage: LoadPercentage(s.Tiers, breakdown.Volume),
	}, nil
}

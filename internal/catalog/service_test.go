package catalog

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	items []Item
	calls int
	err   error
}

func (s *stubStore) ListActiveItems(ctx context.Context, category string) ([]Item, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if category == "" {
		return s.items, nil
	}
	var out []Item
	for _, it := range s.items {
		if it.Category == category {
			out = append(out, it)
		}
	}
	return out, nil
}

func (s *stubStore) ListItemsByIDs(ctx context.Context, ids []uuid.UUID) ([]Item, error) {
	return s.items, nil
}

func testItems() []Item {
	return []Item{
		{ID: uuid.New(), Name: "Refrigerator", Category: "appliances", BasePrice: 8_500, Volume: 60, Weight: 250, DisposalFee: 1_500, Active: true},
		{ID: uuid.New(), Name: "Sofa", Category: "furniture", BasePrice: 7_500, Volume: 50, Weight: 120, Active: true},
	}
}

func TestListActiveItemsCached(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &stubStore{items: testItems()}
	svc, err := NewService(store, NewCache(client, time.Minute))
	require.NoError(t, err)

	first, err := svc.ListActiveItems(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, 1, store.calls)

	second, err := svc.ListActiveItems(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, second, 2)
	require.Equal(t, 1, store.calls, "second read should come from cache")
}

func TestListActiveItemsCategoryBypassesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &stubStore{items: testItems()}
	svc, err := NewService(store, NewCache(client, time.Minute))
	require.NoError(t, err)

	items, err := svc.ListActiveItems(context.Background(), "furniture")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "Sofa", items[0].Name)

	_, err = svc.ListActiveItems(context.Background(), "furniture")
	require.NoError(t, err)
	require.Equal(t, 2, store.calls)
}

func TestItemsHandler(t *testing.T) {
	store := &stubStore{items: testItems()}
	svc, err := NewService(store, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/items", nil)
	rec := httptest.NewRecorder()
	Handler{Svc: svc}.Items(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []Item `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
}

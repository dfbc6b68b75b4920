package orders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zenmode/internal/domain"
)

type mockFulfiller struct {
	result *domain.FulfillmentResult
	err    error
}

func (m *mockFulfiller) Fulfill(ctx context.Context, orderID string) (*domain.FulfillmentResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Get("/api/orders", h.HandleList)
	r.Get("/api/orders/{id}", h.HandleGet)
	r.Post("/api/orders/{id}/fulfill", h.HandleFulfill)
	return r
}

func TestHandleList_StatusFilter(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())
	router := newTestRouter(NewHandler(repo, nil, zerolog.Nop()))

	open := newTestOrder("0xuser1", time.Now().Add(24*time.Hour))
	filled := newTestOrder("0xuser2", time.Now().Add(24*time.Hour))
	require.NoError(t, repo.Create(open))
	require.NoError(t, repo.Create(filled))
	_, err := repo.MarkFilled(filled.ID, "0xtx")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/orders?status=filled", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var got []domain.Order
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, filled.ID, got[0].ID)

	req = httptest.NewRequest("GET", "/api/orders?status=bogus", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleList_Empty(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())
	router := newTestRouter(NewHandler(repo, nil, zerolog.Nop()))

	req := httptest.NewRequest("GET", "/api/orders", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestHandleGet(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())
	router := newTestRouter(NewHandler(repo, nil, zerolog.Nop()))

	order := newTestOrder("0xuser1", time.Now().Add(24*time.Hour))
	require.NoError(t, repo.Create(order))

	req := httptest.NewRequest("GET", "/api/orders/"+order.ID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var got domain.Order
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, order.ID, got.ID)

	req = httptest.NewRequest("GET", "/api/orders/missing", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleFulfill(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db, zerolog.Nop())

	tests := []struct {
		name       string
		fulfiller  Fulfiller
		wantStatus int
	}{
		{
			name: "success",
			fulfiller: &mockFulfiller{result: &domain.FulfillmentResult{
				OrderID: "o1", Status: domain.OrderStatusFilled, TxHash: "0xtx",
			}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "not found",
			fulfiller:  &mockFulfiller{err: domain.ErrNotFound},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "already resolved",
			fulfiller:  &mockFulfiller{err: domain.ErrAlreadyResolved},
			wantStatus: http.StatusConflict,
		},
		{
			name:       "expired",
			fulfiller:  &mockFulfiller{err: domain.ErrExpired},
			wantStatus: http.StatusGone,
		},
		{
			name:       "transient submission failure",
			fulfiller:  &mockFulfiller{err: domain.Transient("submit", context.DeadlineExceeded)},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "not configured",
			fulfiller:  nil,
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(NewHandler(repo, tt.fulfiller, zerolog.Nop()))

			req := httptest.NewRequest("POST", "/api/orders/o1/fulfill", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

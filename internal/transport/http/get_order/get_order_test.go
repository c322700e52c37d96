package getorder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kopichain/order-view-svc/internal/dal/interfaces/isnapshotrepo"
	"github.com/kopichain/order-view-svc/internal/service/models/chainstate"
	"github.com/kopichain/order-view-svc/internal/service/models/order"
	"github.com/kopichain/order-view-svc/internal/service/models/snapshot"
	"github.com/kopichain/order-view-svc/internal/service/models/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	orders  map[int64]order.Order
	loadErr error
}

func (s *fakeService) LoadOrders(_ context.Context, _ order.Role, _ string) ([]order.Order, error) {
	return nil, s.loadErr
}

func (s *fakeService) Get(_ order.Role, _ string, escrowID int64) (order.Order, bool) {
	o, ok := s.orders[escrowID]

	return o, ok
}

type fakeSnapshots struct {
	rows map[int64]snapshot.OrderSnapshot
}

func (s *fakeSnapshots) GetByEscrowID(_ context.Context, escrowID int64) (snapshot.OrderSnapshot, error) {
	row, ok := s.rows[escrowID]
	if !ok {
		return snapshot.OrderSnapshot{}, isnapshotrepo.ErrNotFound
	}

	return row, nil
}

func newRequest(target, escrowID string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, target, nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("escrowID", escrowID)

	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestGetOrderFromSession(t *testing.T) {
	svc := &fakeService{orders: map[int64]order.Order{
		7: {EscrowID: 7, Status: status.OnTheWay},
	}}

	w := httptest.NewRecorder()
	GetOrder(w, newRequest("/api/orders/7?role=buyer&address=0xabc", "7"), svc, &fakeSnapshots{})

	require.Equal(t, http.StatusOK, w.Code)

	var got order.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(7), got.EscrowID)
	assert.Equal(t, status.OnTheWay, got.Status)
}

func TestGetOrderServesSnapshotWhenChainUnavailable(t *testing.T) {
	buyer := "0x1111111111111111111111111111111111111111"
	svc := &fakeService{loadErr: errors.New("dial tcp: connection refused")}
	snaps := &fakeSnapshots{rows: map[int64]snapshot.OrderSnapshot{
		7: {EscrowID: 7, Buyer: buyer, RawShipping: chainstate.ShippingOnTheWay},
	}}

	w := httptest.NewRecorder()
	GetOrder(w, newRequest("/api/orders/7?role=buyer&address="+buyer, "7"), svc, snaps)

	require.Equal(t, http.StatusOK, w.Code)

	var got order.Order
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, int64(7), got.EscrowID)
	assert.Equal(t, status.OnTheWay, got.Status)
	assert.False(t, got.CanUpdate, "degraded view offers no actions")
}

func TestGetOrderSnapshotHiddenFromForeignBuyer(t *testing.T) {
	svc := &fakeService{loadErr: errors.New("dial tcp: connection refused")}
	snaps := &fakeSnapshots{rows: map[int64]snapshot.OrderSnapshot{
		7: {EscrowID: 7, Buyer: "0x1111111111111111111111111111111111111111"},
	}}

	w := httptest.NewRecorder()
	GetOrder(w, newRequest("/api/orders/7?role=buyer&address=0x2222222222222222222222222222222222222222", "7"), svc, snaps)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrderNotFoundAnywhere(t *testing.T) {
	svc := &fakeService{loadErr: errors.New("dial tcp: connection refused")}

	w := httptest.NewRecorder()
	GetOrder(w, newRequest("/api/orders/7?role=buyer&address=0xabc", "7"), svc, &fakeSnapshots{})

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetOrderRejectsBadEscrowID(t *testing.T) {
	w := httptest.NewRecorder()
	GetOrder(w, newRequest("/api/orders/x?role=buyer&address=0xabc", "x"), &fakeService{}, &fakeSnapshots{})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

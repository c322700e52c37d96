package getorder

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/schema"
	"github.com/kopichain/order-view-svc/internal/dal/interfaces/isnapshotrepo"
	"github.com/kopichain/order-view-svc/internal/service/models/order"
	"github.com/kopichain/order-view-svc/internal/service/models/snapshot"
)

type service interface {
	LoadOrders(ctx context.Context, role order.Role, viewer string) ([]order.Order, error)
	Get(role order.Role, viewer string, escrowID int64) (order.Order, bool)
}

type snapshotStore interface {
	GetByEscrowID(ctx context.Context, escrowID int64) (snapshot.OrderSnapshot, error)
}

type getOrderRequest struct {
	Role    string `schema:"role,required"`
	Address string `schema:"address,required"`
}

func GetOrder(w http.ResponseWriter, r *http.Request, service service, snapshots snapshotStore) {
	escrowID, err := strconv.ParseInt(chi.URLParam(r, "escrowID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid escrow id", http.StatusBadRequest)

		return
	}

	decoder := schema.NewDecoder()
	query := &getOrderRequest{}
	if err := decoder.Decode(query, r.URL.Query()); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding request", "error", err)

		return
	}

	role, err := order.ParseRole(query.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	o, ok := service.Get(role, query.Address, escrowID)
	if !ok {
		// The session may not be loaded yet, e.g. after a restart.
		if _, err := service.LoadOrders(r.Context(), role, query.Address); err != nil {
			slog.Error("Error loading orders, serving stored snapshot", "error", err)
			serveSnapshot(w, r, snapshots, role, query.Address, escrowID, err)

			return
		}
		if o, ok = service.Get(role, query.Address, escrowID); !ok {
			http.Error(w, "order not found", http.StatusNotFound)

			return
		}
	}

	if err := json.NewEncoder(w).Encode(o); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Error("Error sending response", "error", err)
	}
}

// serveSnapshot answers from the last persisted projection when the chain is
// unreachable. loadErr is the projection failure to report when no stored row
// can serve the viewer either.
func serveSnapshot(w http.ResponseWriter, r *http.Request, snapshots snapshotStore, role order.Role, viewer string, escrowID int64, loadErr error) {
	snap, err := snapshots.GetByEscrowID(r.Context(), escrowID)
	if err != nil {
		if errors.Is(err, isnapshotrepo.ErrNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)

			return
		}
		http.Error(w, loadErr.Error(), http.StatusInternalServerError)
		slog.Error("Error reading order snapshot", "error", err)

		return
	}

	if !snapshotVisible(snap, role, viewer) {
		http.Error(w, "order not found", http.StatusNotFound)

		return
	}

	if err := json.NewEncoder(w).Encode(snap.ToOrder(role)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Error("Error sending response", "error", err)
	}
}

// snapshotVisible guards the stored row against viewers it does not belong
// to. Logistics assignment is not persisted, so that role sees any row.
func snapshotVisible(snap snapshot.OrderSnapshot, role order.Role, viewer string) bool {
	switch role {
	case order.RoleBuyer:
		return strings.EqualFold(snap.Buyer, viewer)
	case order.RoleFarmer:
		return strings.EqualFold(snap.Seller, viewer)
	default:
		return true
	}
}

package listorders

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"github.com/gorilla/schema"
	"github.com/kopichain/order-view-svc/internal/service/models/order"
	"github.com/kopichain/order-view-svc/internal/service/models/snapshot"
)

type service interface {
	LoadOrders(ctx context.Context, role order.Role, viewer string) ([]order.Order, error)
}

type snapshotStore interface {
	ListByBuyer(ctx context.Context, buyer string) ([]snapshot.OrderSnapshot, error)
	ListBySeller(ctx context.Context, seller string) ([]snapshot.OrderSnapshot, error)
}

type listOrdersRequest struct {
	Role    string `schema:"role,required"`
	Address string `schema:"address,required"`
}

func ListOrders(w http.ResponseWriter, r *http.Request, service service, snapshots snapshotStore) {
	decoder := schema.NewDecoder()
	query := &listOrdersRequest{}
	err := decoder.Decode(query, r.URL.Query())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding request", "error", err)

		return
	}

	role, err := order.ParseRole(query.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	orders, err := service.LoadOrders(r.Context(), role, query.Address)
	if err != nil {
		slog.Error("Error loading orders, serving stored snapshots", "error", err)
		orders, err = snapshotOrders(r.Context(), snapshots, role, query.Address, err)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)

			return
		}
	}

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].EscrowID < orders[j].EscrowID
	})

	if err := json.NewEncoder(w).Encode(orders); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Error("Error sending response", "error", err)
	}
}

// snapshotOrders serves the last persisted projections when the chain is
// unreachable. Logistics assignment is not persisted, so only the buyer and
// farmer lists degrade to the store; logistics keeps the load error.
func snapshotOrders(ctx context.Context, snapshots snapshotStore, role order.Role, viewer string, loadErr error) ([]order.Order, error) {
	var snaps []snapshot.OrderSnapshot
	var err error
	switch role {
	case order.RoleBuyer:
		snaps, err = snapshots.ListByBuyer(ctx, viewer)
	case order.RoleFarmer:
		snaps, err = snapshots.ListBySeller(ctx, viewer)
	default:
		return nil, loadErr
	}
	if err != nil {
		return nil, err
	}

	orders := make([]order.Order, 0, len(snaps))
	for _, snap := range snaps {
		orders = append(orders, snap.ToOrder(role))
	}

	return orders, nil
}

package isnapshotrepo

import (
	"context"
	"errors"

	"github.com/kopichain/order-view-svc/internal/service/models/snapshot"
)

// ErrNotFound is returned when no snapshot exists for the requested escrow.
var ErrNotFound = errors.New("order snapshot not found")

// ISnapshotRepository defines the interface for order snapshot operations.
type ISnapshotRepository interface {
	// Upsert inserts or replaces the snapshot keyed by escrow id.
	Upsert(ctx context.Context, snap snapshot.OrderSnapshot) error

	// GetByEscrowID retrieves one snapshot.
	GetByEscrowID(ctx context.Context, escrowID int64) (snapshot.OrderSnapshot, error)

	// ListByBuyer retrieves all snapshots for one buyer address.
	ListByBuyer(ctx context.Context, buyer string) ([]snapshot.OrderSnapshot, error)

	// ListBySeller retrieves all snapshots for one seller address.
	ListBySeller(ctx context.Context, seller string) ([]snapshot.OrderSnapshot, error)
}

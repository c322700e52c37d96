package ichain

import (
	"context"

	"github.com/kopichain/order-view-svc/internal/service/models/chainstate"
)

// Reader is the read side of the deployed contracts. Every call is a single
// eth_call or log filter against the configured RPC node.
type Reader interface {
	// PurchaseEvents returns all Purchased logs, optionally filtered by the
	// indexed buyer address (empty string means every buyer).
	PurchaseEvents(ctx context.Context, buyer string) ([]chainstate.PurchaseEvent, error)

	// ListingEvents returns all ListingCreated logs.
	ListingEvents(ctx context.Context) ([]chainstate.ListingCreatedEvent, error)

	// Listing reads the current Marketplace state of one listing.
	Listing(ctx context.Context, listingID int64) (chainstate.ListingSnapshot, error)

	// Escrow reads the current Escrow state of one purchase.
	Escrow(ctx context.Context, escrowID int64) (chainstate.EscrowSnapshot, error)

	// Shipping reads the per-escrow shipping assignment and raw status code.
	Shipping(ctx context.Context, escrowID int64) (chainstate.ShippingRecord, error)

	// BatchStatus reads the token-wide production code.
	BatchStatus(ctx context.Context, tokenID int64) (uint8, error)

	// TokenURI reads the token's own metadata pointer.
	TokenURI(ctx context.Context, tokenID int64) (string, error)

	// Profile reads a UserProfile entry.
	Profile(ctx context.Context, addr string) (chainstate.ProfileRecord, error)
}

// Writer is the transaction side of the deployed contracts. Every method
// returns only after the transaction is mined; a reverted transaction is an
// error.
type Writer interface {
	ConfirmReceived(ctx context.Context, escrowID int64) error
	MarkShipped(ctx context.Context, escrowID int64) error
	LogisticsMarkOnTheWay(ctx context.Context, escrowID int64) error
	LogisticsMarkArrived(ctx context.Context, escrowID int64) error
	UpdateBatchStatus(ctx context.Context, tokenID int64, code uint8) error
}

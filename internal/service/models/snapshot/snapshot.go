package snapshot

import (
	"time"

	"github.com/kopichain/order-view-svc/internal/service/models/chainstate"
	"github.com/kopichain/order-view-svc/internal/service/models/order"
	"github.com/kopichain/order-view-svc/internal/service/models/status"
)

// OrderSnapshot is the persisted projection of one purchase. Raw chain flags
// are stored alongside the resolved metadata so both role ladders can be
// re-derived on read without touching the RPC node.
type OrderSnapshot struct {
	EscrowID  int64
	ListingID int64
	TokenID   int64
	Buyer     string
	Seller    string
	Quantity  int64
	PriceEth  float64

	Name     string
	Origin   string
	Process  string
	ImageURL string

	Shipped        bool
	Released       bool
	RawShipping    uint8
	ProductionCode uint8

	UpdatedAt time.Time
}

// ShipmentStatus derives the buyer/logistics ladder status from the stored
// raw state.
func (s OrderSnapshot) ShipmentStatus() status.Status {
	return status.FromShipping(s.RawShipping, s.Released)
}

// ProductionStatus derives the farmer ladder status from the stored raw state.
func (s OrderSnapshot) ProductionStatus() status.Status {
	return status.FromProduction(s.ProductionCode, s.Shipped, s.Released)
}

// ToOrder rebuilds the role view from the stored row. The row carries no
// viewer context, so the degraded view is read-only: no actions are offered
// until a live projection pass succeeds again.
func (s OrderSnapshot) ToOrder(role order.Role) order.Order {
	o := order.Order{
		EscrowID:     s.EscrowID,
		ListingID:    s.ListingID,
		TokenID:      s.TokenID,
		Buyer:        s.Buyer,
		Seller:       s.Seller,
		Quantity:     s.Quantity,
		PriceEth:     s.PriceEth,
		Name:         s.Name,
		Origin:       s.Origin,
		Process:      s.Process,
		ImageURL:     s.ImageURL,
		Released:     s.Released,
		Shipped:      s.Shipped,
		NextStatuses: []status.Status{},
	}

	if role == order.RoleFarmer {
		o.Status = s.ProductionStatus()
		o.BuyerName = chainstate.ShortAddress(s.Buyer)
	} else {
		o.Status = s.ShipmentStatus()
	}

	return o
}

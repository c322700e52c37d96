package chainstate

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

// Shipping status codes as stored in the Escrow contract.
const (
	ShippingNone     uint8 = 0
	ShippingAssigned uint8 = 1
	ShippingOnTheWay uint8 = 2
	ShippingArrived  uint8 = 3
)

// Batch production codes as stored in the BatchNFT contract. The code is
// global per token: every order of the same token shares it.
const (
	ProductionHarvested uint8 = 1
	ProductionRoasted   uint8 = 2
)

// ZeroAddress is the unset address value used by the contracts.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

var addressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ErrMalformedEvent is returned when a raw event is missing required fields.
var ErrMalformedEvent = errors.New("malformed purchase event")

// PurchaseEvent is one Purchased log from the Marketplace contract.
type PurchaseEvent struct {
	ListingID   int64  `json:"listingId"`
	EscrowID    int64  `json:"escrowId"`
	TokenID     int64  `json:"tokenId"`
	Buyer       string `json:"buyer"`
	Quantity    int64  `json:"quantity"`
	BlockNumber uint64 `json:"blockNumber"`
	TxHash      string `json:"txHash"`
}

// Validate checks the fields every downstream stage relies on.
func (e PurchaseEvent) Validate() error {
	if e.ListingID < 0 || e.EscrowID < 0 || e.TokenID < 0 {
		return fmt.Errorf("%w: negative id", ErrMalformedEvent)
	}
	if e.Quantity <= 0 {
		return fmt.Errorf("%w: quantity %d", ErrMalformedEvent, e.Quantity)
	}
	if !addressRe.MatchString(e.Buyer) {
		return fmt.Errorf("%w: buyer %q", ErrMalformedEvent, e.Buyer)
	}

	return nil
}

// ListingCreatedEvent is one ListingCreated log from the Marketplace contract.
type ListingCreatedEvent struct {
	ListingID   int64
	Seller      string
	BlockNumber uint64
}

// ListingSnapshot is the current Marketplace state of one listing.
type ListingSnapshot struct {
	ListingID int64
	Seller    string
	PriceWei  *big.Int
	Active    bool
	TokenID   int64
	URI       string
	Stock     int64
}

// EscrowSnapshot is the current Escrow state of one purchase.
type EscrowSnapshot struct {
	EscrowID int64
	Buyer    string
	Seller   string
	TokenID  int64
	Shipped  bool
	Released bool
}

// ShippingRecord is the per-escrow shipping assignment. Logistics is the zero
// address until a logistics actor claims the shipment.
type ShippingRecord struct {
	Logistics string
	RawStatus uint8
}

// Unassigned reports whether no logistics actor has claimed the shipment yet.
func (s ShippingRecord) Unassigned() bool {
	return s.Logistics == "" || strings.EqualFold(s.Logistics, ZeroAddress)
}

// AssignedTo reports whether the shipment is claimable by addr: either nobody
// claimed it yet or addr is the recorded logistics address.
func (s ShippingRecord) AssignedTo(addr string) bool {
	return s.Unassigned() || strings.EqualFold(s.Logistics, addr)
}

// ProfileRecord is one UserProfile contract entry.
type ProfileRecord struct {
	Role       uint8
	Username   string
	Registered bool
}

var wei = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))

// WeiToEth converts an integer wei amount to a display ETH value. The
// conversion happens exactly once, at this boundary.
func WeiToEth(amount *big.Int) float64 {
	if amount == nil {
		return 0
	}

	eth, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), wei).Float64()

	return eth
}

// ShortAddress renders an address in the 0x1234…abcd display form.
func ShortAddress(addr string) string {
	if len(addr) < 10 {
		return addr
	}

	return addr[:6] + "..." + addr[len(addr)-4:]
}

package order

import (
	"errors"

	"github.com/kopichain/order-view-svc/internal/service/models/status"
)

// Role is the marketplace role a projection pass is run for.
type Role string

const (
	RoleBuyer     Role = "buyer"
	RoleFarmer    Role = "farmer"
	RoleLogistics Role = "logistics"
)

// ErrUnknownRole is returned when a request names a role the projector does
// not serve.
var ErrUnknownRole = errors.New("unknown role")

// ParseRole validates a role string from the transport layer.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleBuyer, RoleFarmer, RoleLogistics:
		return Role(s), nil
	default:
		return "", ErrUnknownRole
	}
}

// Order is one projected purchase: immutable chain identity plus the display
// fields derived for the requesting role. It is rebuilt on every projection
// pass and only patched in memory after a confirmed transition.
type Order struct {
	EscrowID  int64  `json:"escrowId"`
	ListingID int64  `json:"listingId"`
	TokenID   int64  `json:"tokenId"`
	Buyer     string `json:"buyer"`
	BuyerName string `json:"buyerName,omitempty"`
	Seller    string `json:"seller"`
	Quantity  int64  `json:"quantity"`
	PriceEth  float64 `json:"priceEth"`

	Name     string `json:"name"`
	Origin   string `json:"origin"`
	Process  string `json:"process"`
	ImageURL string `json:"imageUrl"`

	// Batch timeline dates as recorded in the token metadata, empty when
	// the metadata does not carry them.
	HarvestedAt string `json:"harvestedAt,omitempty"`
	RoastedAt   string `json:"roastedAt,omitempty"`
	PackedAt    string `json:"packedAt,omitempty"`

	Status   status.Status `json:"status"`
	Released bool          `json:"released"`
	Shipped  bool          `json:"shipped"`

	// CanUpdate and NextStatuses describe the actions available to the
	// viewer the projection was run for.
	CanUpdate    bool            `json:"canUpdate"`
	NextStatuses []status.Status `json:"nextStatuses"`
}

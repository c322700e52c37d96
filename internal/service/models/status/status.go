package status

import (
	"github.com/kopichain/order-view-svc/internal/service/models/chainstate"
)

// Status is the display status of an order. Buyer and logistics views use the
// shipment ladder (Awaiting Shipment -> On The Way -> Arrived); the farmer
// view uses the production ladder (Harvested -> Roasted -> Packed).
type Status string

const (
	AwaitingShipment Status = "Awaiting Shipment"
	OnTheWay         Status = "On The Way"
	Arrived          Status = "Arrived"

	Harvested Status = "Harvested"
	Roasted   Status = "Roasted"
	Packed    Status = "Packed"
)

var ranks = map[Status]int{
	AwaitingShipment: 0,
	OnTheWay:         1,
	Arrived:          2,
	Harvested:        0,
	Roasted:          1,
	Packed:           2,
}

// FromShipping derives the shipment-ladder status from the raw shipping code.
// A released escrow always reads as Arrived, whatever the raw code says.
func FromShipping(raw uint8, released bool) Status {
	if released {
		return Arrived
	}

	switch raw {
	case chainstate.ShippingArrived:
		return Arrived
	case chainstate.ShippingOnTheWay:
		return OnTheWay
	default:
		return AwaitingShipment
	}
}

// FromProduction derives the production-ladder status for a farmer order. The
// per-order escrow flags win over the token-wide production code: a shipped or
// released escrow is Packed no matter what stage the batch is in.
func FromProduction(code uint8, shipped, released bool) Status {
	if released || shipped {
		return Packed
	}
	if code >= chainstate.ProductionRoasted {
		return Roasted
	}

	return Harvested
}

// Monotone returns next unless it would move the order to an earlier ladder
// stage, in which case prev is kept. Status never regresses within a session.
func Monotone(prev, next Status) Status {
	if prev == "" {
		return next
	}
	if ranks[next] < ranks[prev] {
		return prev
	}

	return next
}

var logisticsTransitions = map[Status][]Status{
	AwaitingShipment: {OnTheWay, Arrived},
	OnTheWay:         {Arrived},
	Arrived:          {},
}

// LogisticsOptions returns the statuses a logistics actor can drive an order
// to from the current one. Arrived is terminal.
func LogisticsOptions(s Status) []Status {
	return logisticsTransitions[s]
}

// LogisticsReachable reports whether target is one user-initiated action away
// from current for the logistics role.
func LogisticsReachable(current, target Status) bool {
	for _, s := range logisticsTransitions[current] {
		if s == target {
			return true
		}
	}

	return false
}

// FarmerNext returns the single action available to a farmer at the current
// production stage. Packed is terminal.
func FarmerNext(s Status) (Status, bool) {
	switch s {
	case Harvested:
		return Roasted, true
	case Roasted:
		return Packed, true
	default:
		return "", false
	}
}

// BuyerCanConfirm reports whether the buyer may confirm receipt: only once the
// order arrived and the escrow has not released yet. Confirming again after
// release is never offered.
func BuyerCanConfirm(s Status, released bool) bool {
	return s == Arrived && !released
}

package status

import (
	"testing"

	"github.com/kopichain/order-view-svc/internal/service/models/chainstate"
	"github.com/stretchr/testify/assert"
)

func TestFromShipping(t *testing.T) {
	tests := []struct {
		name     string
		raw      uint8
		released bool
		want     Status
	}{
		{"no record", chainstate.ShippingNone, false, AwaitingShipment},
		{"assigned only", chainstate.ShippingAssigned, false, AwaitingShipment},
		{"in transit", chainstate.ShippingOnTheWay, false, OnTheWay},
		{"arrived", chainstate.ShippingArrived, false, Arrived},
		{"released overrides raw code", chainstate.ShippingAssigned, true, Arrived},
		{"released without record", chainstate.ShippingNone, true, Arrived},
		{"unknown future code", 7, false, AwaitingShipment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromShipping(tt.raw, tt.released))
		})
	}
}

func TestFromProduction(t *testing.T) {
	tests := []struct {
		name     string
		code     uint8
		shipped  bool
		released bool
		want     Status
	}{
		{"fresh batch", 0, false, false, Harvested},
		{"harvested", chainstate.ProductionHarvested, false, false, Harvested},
		{"roasted", chainstate.ProductionRoasted, false, false, Roasted},
		{"beyond roasted", 3, false, false, Roasted},
		{"shipped wins over code", chainstate.ProductionHarvested, true, false, Packed},
		{"released wins over code", 0, false, true, Packed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromProduction(tt.code, tt.shipped, tt.released))
		})
	}
}

func TestMonotone(t *testing.T) {
	assert.Equal(t, OnTheWay, Monotone(OnTheWay, AwaitingShipment), "never step back")
	assert.Equal(t, Arrived, Monotone(OnTheWay, Arrived))
	assert.Equal(t, Packed, Monotone(Packed, Harvested))
	assert.Equal(t, Roasted, Monotone(Harvested, Roasted))
	assert.Equal(t, OnTheWay, Monotone("", OnTheWay), "no previous stage")
}

func TestLogisticsReachable(t *testing.T) {
	assert.True(t, LogisticsReachable(AwaitingShipment, OnTheWay))
	assert.True(t, LogisticsReachable(AwaitingShipment, Arrived))
	assert.True(t, LogisticsReachable(OnTheWay, Arrived))

	assert.False(t, LogisticsReachable(OnTheWay, OnTheWay))
	assert.False(t, LogisticsReachable(Arrived, OnTheWay))
	assert.False(t, LogisticsReachable(Arrived, Arrived))
	assert.False(t, LogisticsReachable(OnTheWay, AwaitingShipment))
}

func TestFarmerNext(t *testing.T) {
	next, ok := FarmerNext(Harvested)
	assert.True(t, ok)
	assert.Equal(t, Roasted, next)

	next, ok = FarmerNext(Roasted)
	assert.True(t, ok)
	assert.Equal(t, Packed, next)

	_, ok = FarmerNext(Packed)
	assert.False(t, ok)
}

func TestBuyerCanConfirm(t *testing.T) {
	assert.True(t, BuyerCanConfirm(Arrived, false))
	assert.False(t, BuyerCanConfirm(Arrived, true))
	assert.False(t, BuyerCanConfirm(OnTheWay, false))
}

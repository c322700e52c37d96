package projector

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/kopichain/order-view-svc/internal/dal/ipfs"
	"github.com/kopichain/order-view-svc/internal/service/models/chainstate"
	"github.com/kopichain/order-view-svc/internal/service/models/order"
	"github.com/kopichain/order-view-svc/internal/service/models/snapshot"
	"github.com/kopichain/order-view-svc/internal/service/models/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	buyerAddr     = "0x1111111111111111111111111111111111111111"
	farmerAddr    = "0x2222222222222222222222222222222222222222"
	logisticsAddr = "0x3333333333333333333333333333333333333333"
	otherFarmer   = "0x4444444444444444444444444444444444444444"
)

type fakeReader struct {
	events        []chainstate.PurchaseEvent
	listingEvents []chainstate.ListingCreatedEvent
	listings      map[int64]chainstate.ListingSnapshot
	escrows       map[int64]chainstate.EscrowSnapshot
	shipping      map[int64]chainstate.ShippingRecord
	batch         map[int64]uint8
	profiles      map[string]chainstate.ProfileRecord
}

func (f *fakeReader) PurchaseEvents(_ context.Context, buyer string) ([]chainstate.PurchaseEvent, error) {
	if buyer == "" {
		return f.events, nil
	}

	var out []chainstate.PurchaseEvent
	for _, ev := range f.events {
		if strings.EqualFold(ev.Buyer, buyer) {
			out = append(out, ev)
		}
	}

	return out, nil
}

func (f *fakeReader) ListingEvents(_ context.Context) ([]chainstate.ListingCreatedEvent, error) {
	return f.listingEvents, nil
}

func (f *fakeReader) Listing(_ context.Context, listingID int64) (chainstate.ListingSnapshot, error) {
	lst, ok := f.listings[listingID]
	if !ok {
		return chainstate.ListingSnapshot{}, fmt.Errorf("no listing %d", listingID)
	}

	return lst, nil
}

func (f *fakeReader) Escrow(_ context.Context, escrowID int64) (chainstate.EscrowSnapshot, error) {
	esc, ok := f.escrows[escrowID]
	if !ok {
		return chainstate.EscrowSnapshot{}, fmt.Errorf("no escrow %d", escrowID)
	}

	return esc, nil
}

func (f *fakeReader) Shipping(_ context.Context, escrowID int64) (chainstate.ShippingRecord, error) {
	rec, ok := f.shipping[escrowID]
	if !ok {
		return chainstate.ShippingRecord{}, fmt.Errorf("no shipping record %d", escrowID)
	}

	return rec, nil
}

func (f *fakeReader) BatchStatus(_ context.Context, tokenID int64) (uint8, error) {
	return f.batch[tokenID], nil
}

func (f *fakeReader) TokenURI(_ context.Context, tokenID int64) (string, error) {
	return fmt.Sprintf("ipfs://token-%d", tokenID), nil
}

func (f *fakeReader) Profile(_ context.Context, addr string) (chainstate.ProfileRecord, error) {
	p, ok := f.profiles[strings.ToLower(addr)]
	if !ok {
		return chainstate.ProfileRecord{}, fmt.Errorf("no profile for %s", addr)
	}

	return p, nil
}

type staticResolver struct{}

func (staticResolver) Resolve(_ context.Context, _ string, tokenID int64) ipfs.BatchMetadata {
	return ipfs.BatchMetadata{
		Name:    fmt.Sprintf("Batch #%d", tokenID),
		Origin:  "Gayo Highlands",
		Process: "Washed",
	}
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		listings:  make(map[int64]chainstate.ListingSnapshot),
		escrows:   make(map[int64]chainstate.EscrowSnapshot),
		shipping:  make(map[int64]chainstate.ShippingRecord),
		batch:     make(map[int64]uint8),
		profiles:  make(map[string]chainstate.ProfileRecord),
	}
}

func newProjector(reader *fakeReader) *Projector {
	return MustNewProjector(WithReader(reader), WithResolver(staticResolver{}))
}

func addPurchase(f *fakeReader, escrowID, listingID, tokenID int64, seller string) {
	f.events = append(f.events, chainstate.PurchaseEvent{
		ListingID: listingID,
		EscrowID:  escrowID,
		TokenID:   tokenID,
		Buyer:     buyerAddr,
		Quantity:  2,
		TxHash:    fmt.Sprintf("0xtx%d", escrowID),
	})
	f.listings[listingID] = chainstate.ListingSnapshot{
		ListingID: listingID,
		Seller:    seller,
		Active:    true,
		TokenID:   tokenID,
		URI:       fmt.Sprintf("ipfs://batch-%d", tokenID),
		Stock:     10,
	}
	f.escrows[escrowID] = chainstate.EscrowSnapshot{
		EscrowID: escrowID,
		Buyer:    buyerAddr,
		Seller:   seller,
		TokenID:  tokenID,
	}
}

func TestLoadOrdersBuyerShipmentLadder(t *testing.T) {
	reader := newFakeReader()
	addPurchase(reader, 1, 1, 100, farmerAddr)
	reader.shipping[1] = chainstate.ShippingRecord{Logistics: logisticsAddr, RawStatus: chainstate.ShippingOnTheWay}

	p := newProjector(reader)

	orders, err := p.LoadOrders(context.Background(), order.RoleBuyer, buyerAddr)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	assert.Equal(t, status.OnTheWay, orders[0].Status)
	assert.Equal(t, "Batch #100", orders[0].Name)
	assert.Equal(t, "Gayo Highlands", orders[0].Origin)
	assert.False(t, orders[0].CanUpdate)
	assert.Empty(t, orders[0].NextStatuses)
}

func TestLoadOrdersReleasedForcesArrived(t *testing.T) {
	reader := newFakeReader()
	addPurchase(reader, 1, 1, 100, farmerAddr)
	reader.shipping[1] = chainstate.ShippingRecord{Logistics: logisticsAddr, RawStatus: chainstate.ShippingAssigned}
	esc := reader.escrows[1]
	esc.Released = true
	reader.escrows[1] = esc

	p := newProjector(reader)

	orders, err := p.LoadOrders(context.Background(), order.RoleBuyer, buyerAddr)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	assert.Equal(t, status.Arrived, orders[0].Status)
	assert.True(t, orders[0].Released)
	assert.False(t, orders[0].CanUpdate, "released escrow must not offer confirmation again")
}

func TestLoadOrdersBuyerCanConfirmOnArrival(t *testing.T) {
	reader := newFakeReader()
	addPurchase(reader, 1, 1, 100, farmerAddr)
	reader.shipping[1] = chainstate.ShippingRecord{Logistics: logisticsAddr, RawStatus: chainstate.ShippingArrived}

	p := newProjector(reader)

	orders, err := p.LoadOrders(context.Background(), order.RoleBuyer, buyerAddr)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	assert.Equal(t, status.Arrived, orders[0].Status)
	assert.True(t, orders[0].CanUpdate)
}

func TestLoadOrdersMissingShippingDefaultsToEarliestStage(t *testing.T) {
	reader := newFakeReader()
	addPurchase(reader, 1, 1, 100, farmerAddr)

	p := newProjector(reader)

	orders, err := p.LoadOrders(context.Background(), order.RoleBuyer, buyerAddr)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, status.AwaitingShipment, orders[0].Status)
}

func TestLoadOrdersSkipsUnreadableListing(t *testing.T) {
	reader := newFakeReader()
	addPurchase(reader, 1, 1, 100, farmerAddr)
	addPurchase(reader, 2, 2, 200, farmerAddr)
	delete(reader.listings, 2)

	p := newProjector(reader)

	orders, err := p.LoadOrders(context.Background(), order.RoleBuyer, buyerAddr)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, int64(1), orders[0].EscrowID)
}

func TestLoadOrdersSkipsMalformedEvent(t *testing.T) {
	reader := newFakeReader()
	addPurchase(reader, 1, 1, 100, farmerAddr)
	reader.events = append(reader.events, chainstate.PurchaseEvent{
		ListingID: 1, EscrowID: 9, TokenID: 100, Buyer: buyerAddr, Quantity: 0,
	})

	p := newProjector(reader)

	orders, err := p.LoadOrders(context.Background(), order.RoleBuyer, buyerAddr)
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func TestLoadOrdersFarmerFiltersBySeller(t *testing.T) {
	reader := newFakeReader()
	addPurchase(reader, 1, 1, 100, farmerAddr)
	addPurchase(reader, 2, 2, 200, otherFarmer)
	reader.profiles[buyerAddr] = chainstate.ProfileRecord{Role: 1, Username: "kopi-fan", Registered: true}

	p := newProjector(reader)

	orders, err := p.LoadOrders(context.Background(), order.RoleFarmer, strings.ToUpper(farmerAddr))
	require.NoError(t, err)
	require.Len(t, orders, 1, "seller comparison must be case-insensitive")

	assert.Equal(t, int64(1), orders[0].EscrowID)
	assert.Equal(t, "kopi-fan", orders[0].BuyerName)
	assert.Equal(t, status.Harvested, orders[0].Status)
	assert.True(t, orders[0].CanUpdate)
	assert.Equal(t, []status.Status{status.Roasted}, orders[0].NextStatuses)
}

func TestLoadOrdersFarmerUnregisteredBuyerFallsBackToShortAddress(t *testing.T) {
	reader := newFakeReader()
	addPurchase(reader, 1, 1, 100, farmerAddr)

	p := newProjector(reader)

	orders, err := p.LoadOrders(context.Background(), order.RoleFarmer, farmerAddr)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, chainstate.ShortAddress(buyerAddr), orders[0].BuyerName)
}

func TestLoadOrdersFarmerShippedEscrowIsPacked(t *testing.T) {
	reader := newFakeReader()
	addPurchase(reader, 1, 1, 100, farmerAddr)
	esc := reader.escrows[1]
	esc.Shipped = true
	reader.escrows[1] = esc
	reader.batch[100] = chainstate.ProductionHarvested

	p := newProjector(reader)

	orders, err := p.LoadOrders(context.Background(), order.RoleFarmer, farmerAddr)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	assert.Equal(t, status.Packed, orders[0].Status)
	assert.False(t, orders[0].CanUpdate)
}

func TestLogisticsClaimSemantics(t *testing.T) {
	reader := newFakeReader()
	addPurchase(reader, 1, 1, 100, farmerAddr)
	addPurchase(reader, 2, 2, 200, farmerAddr)
	reader.shipping[1] = chainstate.ShippingRecord{Logistics: chainstate.ZeroAddress}
	reader.shipping[2] = chainstate.ShippingRecord{Logistics: otherFarmer, RawStatus: chainstate.ShippingOnTheWay}

	p := newProjector(reader)

	orders, err := p.LoadOrders(context.Background(), order.RoleLogistics, logisticsAddr)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	byID := map[int64]order.Order{}
	for _, o := range orders {
		byID[o.EscrowID] = o
	}

	assert.True(t, byID[1].CanUpdate, "unclaimed shipment is open to any logistics actor")
	assert.Equal(t, []status.Status{status.OnTheWay, status.Arrived}, byID[1].NextStatuses)

	assert.False(t, byID[2].CanUpdate, "shipment claimed by someone else is read-only")
	assert.Empty(t, byID[2].NextStatuses)
}

func TestApplyProductionPropagatesAcrossSharedToken(t *testing.T) {
	reader := newFakeReader()
	addPurchase(reader, 1, 1, 100, farmerAddr)
	addPurchase(reader, 2, 2, 100, farmerAddr)
	addPurchase(reader, 3, 3, 100, farmerAddr)
	esc := reader.escrows[3]
	esc.Shipped = true
	reader.escrows[3] = esc

	p := newProjector(reader)

	_, err := p.LoadOrders(context.Background(), order.RoleFarmer, farmerAddr)
	require.NoError(t, err)

	p.ApplyProduction(100, chainstate.ProductionRoasted)

	orders, ok := p.Orders(order.RoleFarmer, farmerAddr)
	require.True(t, ok)
	require.Len(t, orders, 3)

	for _, o := range orders {
		switch o.EscrowID {
		case 3:
			assert.Equal(t, status.Packed, o.Status, "shipped escrow stays terminal")
		default:
			assert.Equal(t, status.Roasted, o.Status)
			assert.Equal(t, []status.Status{status.Packed}, o.NextStatuses)
		}
	}
}

func TestApplyShipmentDropsStalePatch(t *testing.T) {
	reader := newFakeReader()
	addPurchase(reader, 1, 1, 100, farmerAddr)
	reader.shipping[1] = chainstate.ShippingRecord{Logistics: logisticsAddr}

	p := newProjector(reader)

	_, err := p.LoadOrders(context.Background(), order.RoleLogistics, logisticsAddr)
	require.NoError(t, err)
	stale := p.Generation(order.RoleLogistics, logisticsAddr)

	_, err = p.LoadOrders(context.Background(), order.RoleLogistics, logisticsAddr)
	require.NoError(t, err)

	assert.False(t, p.ApplyShipment(order.RoleLogistics, logisticsAddr, stale, 1, status.OnTheWay, false))

	fresh := p.Generation(order.RoleLogistics, logisticsAddr)
	assert.True(t, p.ApplyShipment(order.RoleLogistics, logisticsAddr, fresh, 1, status.OnTheWay, false))

	o, ok := p.Get(order.RoleLogistics, logisticsAddr, 1)
	require.True(t, ok)
	assert.Equal(t, status.OnTheWay, o.Status)
	assert.Equal(t, []status.Status{status.Arrived}, o.NextStatuses)
}

func TestReloadNeverRegressesStatus(t *testing.T) {
	reader := newFakeReader()
	addPurchase(reader, 1, 1, 100, farmerAddr)
	reader.shipping[1] = chainstate.ShippingRecord{Logistics: logisticsAddr, RawStatus: chainstate.ShippingOnTheWay}

	p := newProjector(reader)

	_, err := p.LoadOrders(context.Background(), order.RoleBuyer, buyerAddr)
	require.NoError(t, err)

	// A lagging RPC node can answer a reload with older state.
	reader.shipping[1] = chainstate.ShippingRecord{Logistics: logisticsAddr, RawStatus: chainstate.ShippingAssigned}

	orders, err := p.LoadOrders(context.Background(), order.RoleBuyer, buyerAddr)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, status.OnTheWay, orders[0].Status)
}

func TestProjectListingsDeduplicates(t *testing.T) {
	reader := newFakeReader()
	addPurchase(reader, 1, 1, 100, farmerAddr)
	addPurchase(reader, 2, 2, 200, otherFarmer)
	reader.listingEvents = []chainstate.ListingCreatedEvent{
		{ListingID: 1, Seller: farmerAddr},
		{ListingID: 1, Seller: farmerAddr},
		{ListingID: 2, Seller: otherFarmer},
	}
	reader.profiles[farmerAddr] = chainstate.ProfileRecord{Role: 2, Username: "gayo-coop", Registered: true}

	p := newProjector(reader)

	listings, err := p.ProjectListings(context.Background())
	require.NoError(t, err)
	require.Len(t, listings, 2)

	byID := map[int64]string{}
	for _, l := range listings {
		byID[l.ListingID] = l.SellerName
	}
	assert.Equal(t, "gayo-coop", byID[1])
	assert.Equal(t, chainstate.ShortAddress(otherFarmer), byID[2])
}

type captureSink struct {
	snaps []snapshot.OrderSnapshot
}

func (s *captureSink) Upsert(_ context.Context, snap snapshot.OrderSnapshot) error {
	s.snaps = append(s.snaps, snap)

	return nil
}

func TestLoadOrdersPersistsSnapshots(t *testing.T) {
	reader := newFakeReader()
	addPurchase(reader, 1, 1, 100, farmerAddr)
	reader.shipping[1] = chainstate.ShippingRecord{Logistics: logisticsAddr, RawStatus: chainstate.ShippingOnTheWay}
	reader.batch[100] = chainstate.ProductionRoasted

	sink := &captureSink{}
	p := MustNewProjector(WithReader(reader), WithResolver(staticResolver{}), WithSink(sink))

	_, err := p.LoadOrders(context.Background(), order.RoleBuyer, buyerAddr)
	require.NoError(t, err)

	require.Len(t, sink.snaps, 1)
	assert.Equal(t, int64(1), sink.snaps[0].EscrowID)
	assert.Equal(t, chainstate.ShippingOnTheWay, sink.snaps[0].RawShipping)
	assert.Equal(t, chainstate.ProductionRoasted, sink.snaps[0].ProductionCode)
}

func TestProjectEventBuildsSnapshot(t *testing.T) {
	reader := newFakeReader()
	addPurchase(reader, 1, 1, 100, farmerAddr)
	reader.shipping[1] = chainstate.ShippingRecord{Logistics: logisticsAddr, RawStatus: chainstate.ShippingOnTheWay}
	reader.batch[100] = chainstate.ProductionRoasted

	p := newProjector(reader)

	snap, err := p.ProjectEvent(context.Background(), reader.events[0])
	require.NoError(t, err)

	assert.Equal(t, int64(1), snap.EscrowID)
	assert.Equal(t, "Batch #100", snap.Name)
	assert.Equal(t, chainstate.ShippingOnTheWay, snap.RawShipping)
	assert.Equal(t, chainstate.ProductionRoasted, snap.ProductionCode)
	assert.Equal(t, status.OnTheWay, snap.ShipmentStatus())
	assert.Equal(t, status.Roasted, snap.ProductionStatus())
}

func TestProjectEventRejectsMalformed(t *testing.T) {
	p := newProjector(newFakeReader())

	_, err := p.ProjectEvent(context.Background(), chainstate.PurchaseEvent{Quantity: 0, Buyer: buyerAddr})
	require.ErrorIs(t, err, chainstate.ErrMalformedEvent)
}

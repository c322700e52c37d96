package projector

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kopichain/order-view-svc/internal/dal/interfaces/ichain"
	"github.com/kopichain/order-view-svc/internal/dal/ipfs"
	"github.com/kopichain/order-view-svc/internal/service/models/chainstate"
	"github.com/kopichain/order-view-svc/internal/service/models/listing"
	"github.com/kopichain/order-view-svc/internal/service/models/order"
	"github.com/kopichain/order-view-svc/internal/service/models/snapshot"
	"github.com/kopichain/order-view-svc/internal/service/models/status"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

// resolver resolves a metadata pointer to a display record.
type resolver interface {
	Resolve(ctx context.Context, pointer string, tokenID int64) ipfs.BatchMetadata
}

// sink receives the raw snapshot of every successfully projected order. A
// failed store never fails the projection pass.
type sink interface {
	Upsert(ctx context.Context, snap snapshot.OrderSnapshot) error
}

type sessionKey struct {
	role   order.Role
	viewer string
}

// session is one role's last loaded order list. The generation counter guards
// optimistic patches against concurrent reloads: a patch computed before a
// reload finished is dropped instead of overwriting the fresher list.
type session struct {
	generation uint64
	orders     []order.Order
}

// Projector builds role-specific order views from raw chain state. Each
// projection pass fetches a fresh snapshot; the in-memory session is only
// mutated by confirmed transition patches.
type Projector struct {
	reader   ichain.Reader
	resolver resolver
	sink     sink
	limit    int

	mu         sync.RWMutex
	sessions   map[sessionKey]*session
	production map[int64]uint8
}

// option is a function that configures the Projector.
type option func(*Projector)

// MustNewProjector creates a new Projector.
func MustNewProjector(opts ...option) *Projector {
	limit := viper.GetInt("projector.concurrency")
	if limit == 0 {
		limit = 8
	}

	p := &Projector{
		limit:      limit,
		sessions:   make(map[sessionKey]*session),
		production: make(map[int64]uint8),
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.reader == nil {
		panic("projector requires a chain reader")
	}
	if p.resolver == nil {
		panic("projector requires a metadata resolver")
	}

	return p
}

// WithReader sets the chain reader for the Projector.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithReader(reader ichain.Reader) option {
	return func(p *Projector) {
		p.reader = reader
	}
}

// WithResolver sets the metadata resolver for the Projector.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithResolver(r resolver) option {
	return func(p *Projector) {
		p.resolver = r
	}
}

// WithSink sets an optional snapshot store that receives every projected
// order.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithSink(s sink) option {
	return func(p *Projector) {
		p.sink = s
	}
}

func key(role order.Role, viewer string) sessionKey {
	return sessionKey{role: role, viewer: strings.ToLower(viewer)}
}

// LoadOrders runs a full projection pass for one role and viewer address and
// swaps the result into that viewer's session. Independent events are
// enriched concurrently; the reads within one event stay sequential.
func (p *Projector) LoadOrders(ctx context.Context, role order.Role, viewer string) ([]order.Order, error) {
	ctx, span := otel.Tracer("order-view-svc").Start(ctx, "Projector.LoadOrders")
	defer span.End()

	buyerFilter := ""
	if role == order.RoleBuyer {
		buyerFilter = viewer
	}

	events, err := p.reader.PurchaseEvents(ctx, buyerFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to load purchase events: %w", err)
	}

	results := make([]*order.Order, len(events))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)
	for i, ev := range events {
		i, ev := i, ev
		g.Go(func() error {
			if err := ev.Validate(); err != nil {
				slog.Warn("skipping malformed purchase event", "tx", ev.TxHash, "error", err)

				return nil
			}
			if o, ok := p.projectOne(gctx, role, viewer, ev); ok {
				results[i] = &o
			}

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	// The view may be gone by now; leave the old session untouched.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	orders := make([]order.Order, 0, len(results))
	for _, o := range results {
		if o != nil {
			orders = append(orders, *o)
		}
	}

	return p.swap(role, viewer, orders), nil
}

// projectOne enriches one purchase event into an order. A failed listing or
// escrow read drops the event; every later failure only degrades the record.
func (p *Projector) projectOne(ctx context.Context, role order.Role, viewer string, ev chainstate.PurchaseEvent) (order.Order, bool) {
	lst, err := p.reader.Listing(ctx, ev.ListingID)
	if err != nil {
		slog.Warn("skipping order with unreadable listing", "listing_id", ev.ListingID, "error", err)

		return order.Order{}, false
	}

	if role == order.RoleFarmer && !strings.EqualFold(lst.Seller, viewer) {
		return order.Order{}, false
	}

	esc, err := p.reader.Escrow(ctx, ev.EscrowID)
	if err != nil {
		slog.Warn("skipping order with unreadable escrow", "escrow_id", ev.EscrowID, "error", err)

		return order.Order{}, false
	}

	uri := lst.URI
	if uri == "" {
		if tokenURI, err := p.reader.TokenURI(ctx, ev.TokenID); err == nil {
			uri = tokenURI
		}
	}
	meta := p.resolver.Resolve(ctx, uri, ev.TokenID)

	rec, err := p.reader.Shipping(ctx, ev.EscrowID)
	if err != nil {
		// No shipping record yet: earliest stage.
		rec = chainstate.ShippingRecord{}
	}
	code := p.productionCode(ctx, ev.TokenID)

	p.store(ctx, snapshot.OrderSnapshot{
		EscrowID:       ev.EscrowID,
		ListingID:      ev.ListingID,
		TokenID:        ev.TokenID,
		Buyer:          ev.Buyer,
		Seller:         lst.Seller,
		Quantity:       ev.Quantity,
		PriceEth:       chainstate.WeiToEth(lst.PriceWei),
		Name:           meta.Name,
		Origin:         meta.Origin,
		Process:        meta.Process,
		ImageURL:       meta.ImageURL,
		Shipped:        esc.Shipped,
		Released:       esc.Released,
		RawShipping:    rec.RawStatus,
		ProductionCode: code,
		UpdatedAt:      time.Now().UTC(),
	})

	o := order.Order{
		EscrowID:    ev.EscrowID,
		ListingID:   ev.ListingID,
		TokenID:     ev.TokenID,
		Buyer:       ev.Buyer,
		Seller:      lst.Seller,
		Quantity:    ev.Quantity,
		PriceEth:    chainstate.WeiToEth(lst.PriceWei),
		Name:        meta.Name,
		Origin:      meta.Origin,
		Process:     meta.Process,
		ImageURL:    meta.ImageURL,
		HarvestedAt: meta.Harvested,
		RoastedAt:   meta.Roasted,
		PackedAt:    meta.Packed,
		Released:    esc.Released,
		Shipped:     esc.Shipped,
	}

	switch role {
	case order.RoleFarmer:
		o.Status = status.FromProduction(code, esc.Shipped, esc.Released)
		o.BuyerName = p.buyerName(ctx, ev.Buyer)
		if next, ok := status.FarmerNext(o.Status); ok {
			o.CanUpdate = true
			o.NextStatuses = []status.Status{next}
		} else {
			o.NextStatuses = []status.Status{}
		}
	default:
		o.Status = status.FromShipping(rec.RawStatus, esc.Released)
		if esc.Released && rec.RawStatus < chainstate.ShippingOnTheWay {
			slog.Warn("escrow released before shipment was in transit",
				"escrow_id", ev.EscrowID, "raw_status", rec.RawStatus)
		}
		if role == order.RoleLogistics {
			o.CanUpdate = rec.AssignedTo(viewer)
			if o.CanUpdate {
				o.NextStatuses = status.LogisticsOptions(o.Status)
			} else {
				o.NextStatuses = []status.Status{}
			}
		} else {
			o.CanUpdate = status.BuyerCanConfirm(o.Status, esc.Released)
			o.NextStatuses = []status.Status{}
		}
	}

	return o, true
}

// store hands the snapshot to the configured sink, if any. Persistence is
// best effort here; the session stays authoritative for freshness.
func (p *Projector) store(ctx context.Context, snap snapshot.OrderSnapshot) {
	if p.sink == nil {
		return
	}
	if err := p.sink.Upsert(ctx, snap); err != nil {
		slog.Warn("failed to store order snapshot", "escrow_id", snap.EscrowID, "error", err)
	}
}

// productionCode returns the token-wide production code, reading it from the
// chain once and caching it in the shared keyed table. Unreadable records
// read as the earliest stage.
func (p *Projector) productionCode(ctx context.Context, tokenID int64) uint8 {
	p.mu.RLock()
	code, ok := p.production[tokenID]
	p.mu.RUnlock()
	if ok {
		return code
	}

	code, err := p.reader.BatchStatus(ctx, tokenID)
	if err != nil {
		return 0
	}

	p.mu.Lock()
	if cached, ok := p.production[tokenID]; !ok || code > cached {
		p.production[tokenID] = code
	} else {
		code = cached
	}
	p.mu.Unlock()

	return code
}

func (p *Projector) buyerName(ctx context.Context, buyer string) string {
	profile, err := p.reader.Profile(ctx, buyer)
	if err == nil && profile.Registered && profile.Username != "" {
		return profile.Username
	}

	return chainstate.ShortAddress(buyer)
}

// swap installs a freshly projected list into the viewer's session. Derived
// status never regresses against the previous session entry for the same
// escrow.
func (p *Projector) swap(role order.Role, viewer string, orders []order.Order) []order.Order {
	k := key(role, viewer)

	p.mu.Lock()
	defer p.mu.Unlock()

	if prev, ok := p.sessions[k]; ok {
		prevByID := make(map[int64]status.Status, len(prev.orders))
		for _, o := range prev.orders {
			prevByID[o.EscrowID] = o.Status
		}
		for i := range orders {
			if prevStatus, ok := prevByID[orders[i].EscrowID]; ok {
				orders[i].Status = status.Monotone(prevStatus, orders[i].Status)
			}
		}
	}

	s := &session{orders: orders}
	if prev, ok := p.sessions[k]; ok {
		s.generation = prev.generation + 1
	}
	p.sessions[k] = s

	return append([]order.Order{}, orders...)
}

// Orders returns the viewer's current session content without touching the
// chain.
func (p *Projector) Orders(role order.Role, viewer string) ([]order.Order, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.sessions[key(role, viewer)]
	if !ok {
		return nil, false
	}

	return append([]order.Order{}, s.orders...), true
}

// Get returns one order from the viewer's current session.
func (p *Projector) Get(role order.Role, viewer string, escrowID int64) (order.Order, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s, ok := p.sessions[key(role, viewer)]
	if !ok {
		return order.Order{}, false
	}
	for _, o := range s.orders {
		if o.EscrowID == escrowID {
			return o, true
		}
	}

	return order.Order{}, false
}

// Generation returns the viewer's session generation, used to detect that a
// reload finished between reading an order and patching it.
func (p *Projector) Generation(role order.Role, viewer string) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if s, ok := p.sessions[key(role, viewer)]; ok {
		return s.generation
	}

	return 0
}

// ApplyShipment patches one order after a confirmed shipment transition. The
// patch is dropped when the session was reloaded since generation was read.
func (p *Projector) ApplyShipment(role order.Role, viewer string, generation uint64, escrowID int64, st status.Status, released bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[key(role, viewer)]
	if !ok || s.generation != generation {
		return false
	}

	for i := range s.orders {
		if s.orders[i].EscrowID != escrowID {
			continue
		}
		s.orders[i].Status = status.Monotone(s.orders[i].Status, st)
		if released {
			s.orders[i].Released = true
			s.orders[i].CanUpdate = false
		}
		if role == order.RoleLogistics {
			s.orders[i].NextStatuses = status.LogisticsOptions(s.orders[i].Status)
		}

		return true
	}

	return false
}

// ApplyProduction records a confirmed production-code advance. The code is
// token-wide, so every in-memory farmer order of the same token moves with it
// unless its escrow already reached Packed.
func (p *Projector) ApplyProduction(tokenID int64, code uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cached, ok := p.production[tokenID]; !ok || code > cached {
		p.production[tokenID] = code
	}

	for k, s := range p.sessions {
		if k.role != order.RoleFarmer {
			continue
		}
		for i := range s.orders {
			o := &s.orders[i]
			if o.TokenID != tokenID {
				continue
			}
			o.Status = status.Monotone(o.Status, status.FromProduction(code, o.Shipped, o.Released))
			if next, ok := status.FarmerNext(o.Status); ok {
				o.CanUpdate = true
				o.NextStatuses = []status.Status{next}
			} else {
				o.CanUpdate = false
				o.NextStatuses = []status.Status{}
			}
		}
	}
}

// ApplyPacked patches one farmer order after its escrow was marked shipped.
func (p *Projector) ApplyPacked(viewer string, generation uint64, escrowID int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[key(order.RoleFarmer, viewer)]
	if !ok || s.generation != generation {
		return false
	}

	for i := range s.orders {
		if s.orders[i].EscrowID != escrowID {
			continue
		}
		s.orders[i].Status = status.Monotone(s.orders[i].Status, status.Packed)
		s.orders[i].Shipped = true
		s.orders[i].CanUpdate = false
		s.orders[i].NextStatuses = []status.Status{}

		return true
	}

	return false
}

// ProjectListings builds the marketplace catalog view from ListingCreated
// events, deduplicated by listing id.
func (p *Projector) ProjectListings(ctx context.Context) ([]listing.Listing, error) {
	ctx, span := otel.Tracer("order-view-svc").Start(ctx, "Projector.ProjectListings")
	defer span.End()

	events, err := p.reader.ListingEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load listing events: %w", err)
	}

	seen := make(map[int64]bool, len(events))
	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		if !seen[ev.ListingID] {
			seen[ev.ListingID] = true
			ids = append(ids, ev.ListingID)
		}
	}

	results := make([]*listing.Listing, len(ids))

	var nameMu sync.Mutex
	sellerNames := make(map[string]string)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.limit)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			lst, err := p.reader.Listing(gctx, id)
			if err != nil {
				slog.Warn("skipping unreadable listing", "listing_id", id, "error", err)

				return nil
			}

			uri := lst.URI
			if uri == "" {
				if tokenURI, err := p.reader.TokenURI(gctx, lst.TokenID); err == nil {
					uri = tokenURI
				}
			}
			meta := p.resolver.Resolve(gctx, uri, lst.TokenID)

			sellerKey := strings.ToLower(lst.Seller)
			nameMu.Lock()
			sellerName, ok := sellerNames[sellerKey]
			nameMu.Unlock()
			if !ok {
				sellerName = p.buyerName(gctx, lst.Seller)
				nameMu.Lock()
				sellerNames[sellerKey] = sellerName
				nameMu.Unlock()
			}

			results[i] = &listing.Listing{
				ListingID:  lst.ListingID,
				Seller:     lst.Seller,
				SellerName: sellerName,
				PriceEth:   chainstate.WeiToEth(lst.PriceWei),
				Active:     lst.Active,
				TokenID:    lst.TokenID,
				Stock:      lst.Stock,
				Name:       meta.Name,
				Origin:     meta.Origin,
				Process:    meta.Process,
				ImageURL:   meta.ImageURL,
			}

			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	listings := make([]listing.Listing, 0, len(results))
	for _, l := range results {
		if l != nil {
			listings = append(listings, *l)
		}
	}

	return listings, nil
}

// ProjectEvent enriches one purchase event into a persistable snapshot. It is
// used by the inbox worker; unreadable listing or escrow state is an error so
// the message can be retried.
func (p *Projector) ProjectEvent(ctx context.Context, ev chainstate.PurchaseEvent) (snapshot.OrderSnapshot, error) {
	if err := ev.Validate(); err != nil {
		return snapshot.OrderSnapshot{}, err
	}

	lst, err := p.reader.Listing(ctx, ev.ListingID)
	if err != nil {
		return snapshot.OrderSnapshot{}, fmt.Errorf("failed to read listing %d: %w", ev.ListingID, err)
	}
	esc, err := p.reader.Escrow(ctx, ev.EscrowID)
	if err != nil {
		return snapshot.OrderSnapshot{}, fmt.Errorf("failed to read escrow %d: %w", ev.EscrowID, err)
	}

	uri := lst.URI
	if uri == "" {
		if tokenURI, err := p.reader.TokenURI(ctx, ev.TokenID); err == nil {
			uri = tokenURI
		}
	}
	meta := p.resolver.Resolve(ctx, uri, ev.TokenID)

	rec, err := p.reader.Shipping(ctx, ev.EscrowID)
	if err != nil {
		rec = chainstate.ShippingRecord{}
	}

	return snapshot.OrderSnapshot{
		EscrowID:       ev.EscrowID,
		ListingID:      ev.ListingID,
		TokenID:        ev.TokenID,
		Buyer:          ev.Buyer,
		Seller:         lst.Seller,
		Quantity:       ev.Quantity,
		PriceEth:       chainstate.WeiToEth(lst.PriceWei),
		Name:           meta.Name,
		Origin:         meta.Origin,
		Process:        meta.Process,
		ImageURL:       meta.ImageURL,
		Shipped:        esc.Shipped,
		Released:       esc.Released,
		RawShipping:    rec.RawStatus,
		ProductionCode: p.productionCode(ctx, ev.TokenID),
		UpdatedAt:      time.Now().UTC(),
	}, nil
}

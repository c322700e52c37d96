package postgresrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/kopichain/order-view-svc/internal/dal/interfaces/isnapshotrepo"
	"github.com/kopichain/order-view-svc/internal/service/models/snapshot"
)

// DBTX is the subset of database/sql shared by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SnapshotDal represents the order snapshot data access layer model.
type SnapshotDal struct {
	EscrowID       int64     `db:"escrow_id"`
	ListingID      int64     `db:"listing_id"`
	TokenID        int64     `db:"token_id"`
	Buyer          string    `db:"buyer"`
	Seller         string    `db:"seller"`
	Quantity       int64     `db:"quantity"`
	PriceEth       float64   `db:"price_eth"`
	Name           string    `db:"name"`
	Origin         string    `db:"origin"`
	Process        string    `db:"process"`
	ImageURL       string    `db:"image_url"`
	Shipped        bool      `db:"shipped"`
	Released       bool      `db:"released"`
	RawShipping    int16     `db:"raw_shipping"`
	ProductionCode int16     `db:"production_code"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// ToModel converts SnapshotDal to the service layer OrderSnapshot model.
func (d *SnapshotDal) ToModel() snapshot.OrderSnapshot {
	return snapshot.OrderSnapshot{
		EscrowID:       d.EscrowID,
		ListingID:      d.ListingID,
		TokenID:        d.TokenID,
		Buyer:          d.Buyer,
		Seller:         d.Seller,
		Quantity:       d.Quantity,
		PriceEth:       d.PriceEth,
		Name:           d.Name,
		Origin:         d.Origin,
		Process:        d.Process,
		ImageURL:       d.ImageURL,
		Shipped:        d.Shipped,
		Released:       d.Released,
		RawShipping:    uint8(d.RawShipping),
		ProductionCode: uint8(d.ProductionCode),
		UpdatedAt:      d.UpdatedAt,
	}
}

// SnapshotDalFromModel converts the service layer model to SnapshotDal.
func SnapshotDalFromModel(s snapshot.OrderSnapshot) *SnapshotDal {
	return &SnapshotDal{
		EscrowID:       s.EscrowID,
		ListingID:      s.ListingID,
		TokenID:        s.TokenID,
		Buyer:          strings.ToLower(s.Buyer),
		Seller:         strings.ToLower(s.Seller),
		Quantity:       s.Quantity,
		PriceEth:       s.PriceEth,
		Name:           s.Name,
		Origin:         s.Origin,
		Process:        s.Process,
		ImageURL:       s.ImageURL,
		Shipped:        s.Shipped,
		Released:       s.Released,
		RawShipping:    int16(s.RawShipping),
		ProductionCode: int16(s.ProductionCode),
		UpdatedAt:      s.UpdatedAt,
	}
}

// SnapshotRepository implements the snapshot repository for PostgreSQL.
type SnapshotRepository struct {
	db DBTX
}

// NewSnapshotRepository creates a new snapshot repository bound to db, which
// may be a connection pool or an open transaction.
func NewSnapshotRepository(db DBTX) *SnapshotRepository {
	return &SnapshotRepository{
		db: db,
	}
}

var snapshotColumns = []string{
	"escrow_id",
	"listing_id",
	"token_id",
	"buyer",
	"seller",
	"quantity",
	"price_eth",
	"name",
	"origin",
	"process",
	"image_url",
	"shipped",
	"released",
	"raw_shipping",
	"production_code",
	"updated_at",
}

// Upsert inserts or replaces the snapshot keyed by escrow id. Raw chain flags
// only ever move forward, so the newer row wins unconditionally.
func (r *SnapshotRepository) Upsert(ctx context.Context, snap snapshot.OrderSnapshot) error {
	d := SnapshotDalFromModel(snap)

	query, args, err := sq.Insert("order_snapshots").
		Columns(snapshotColumns...).
		Values(
			d.EscrowID,
			d.ListingID,
			d.TokenID,
			d.Buyer,
			d.Seller,
			d.Quantity,
			d.PriceEth,
			d.Name,
			d.Origin,
			d.Process,
			d.ImageURL,
			d.Shipped,
			d.Released,
			d.RawShipping,
			d.ProductionCode,
			d.UpdatedAt,
		).
		Suffix(`ON CONFLICT (escrow_id) DO UPDATE SET
			listing_id = EXCLUDED.listing_id,
			token_id = EXCLUDED.token_id,
			buyer = EXCLUDED.buyer,
			seller = EXCLUDED.seller,
			quantity = EXCLUDED.quantity,
			price_eth = EXCLUDED.price_eth,
			name = EXCLUDED.name,
			origin = EXCLUDED.origin,
			process = EXCLUDED.process,
			image_url = EXCLUDED.image_url,
			shipped = EXCLUDED.shipped,
			released = EXCLUDED.released,
			raw_shipping = EXCLUDED.raw_shipping,
			production_code = EXCLUDED.production_code,
			updated_at = EXCLUDED.updated_at`).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build upsert query: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert order snapshot: %w", err)
	}

	return nil
}

// GetByEscrowID retrieves one snapshot.
func (r *SnapshotRepository) GetByEscrowID(ctx context.Context, escrowID int64) (snapshot.OrderSnapshot, error) {
	query, args, err := sq.Select(snapshotColumns...).
		From("order_snapshots").
		Where(sq.Eq{"escrow_id": escrowID}).
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return snapshot.OrderSnapshot{}, fmt.Errorf("failed to build select query: %w", err)
	}

	var d SnapshotDal
	if err := scanSnapshot(r.db.QueryRowContext(ctx, query, args...), &d); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return snapshot.OrderSnapshot{}, isnapshotrepo.ErrNotFound
		}

		return snapshot.OrderSnapshot{}, fmt.Errorf("failed to get order snapshot: %w", err)
	}

	return d.ToModel(), nil
}

// ListByBuyer retrieves all snapshots for one buyer address.
func (r *SnapshotRepository) ListByBuyer(ctx context.Context, buyer string) ([]snapshot.OrderSnapshot, error) {
	return r.list(ctx, sq.Eq{"buyer": strings.ToLower(buyer)})
}

// ListBySeller retrieves all snapshots for one seller address.
func (r *SnapshotRepository) ListBySeller(ctx context.Context, seller string) ([]snapshot.OrderSnapshot, error) {
	return r.list(ctx, sq.Eq{"seller": strings.ToLower(seller)})
}

func (r *SnapshotRepository) list(ctx context.Context, pred any) ([]snapshot.OrderSnapshot, error) {
	query, args, err := sq.Select(snapshotColumns...).
		From("order_snapshots").
		Where(pred).
		OrderBy("escrow_id ASC").
		PlaceholderFormat(sq.Dollar).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query order snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []snapshot.OrderSnapshot
	for rows.Next() {
		var d SnapshotDal
		if err := scanSnapshot(rows, &d); err != nil {
			return nil, fmt.Errorf("failed to scan order snapshot: %w", err)
		}
		snaps = append(snaps, d.ToModel())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating order snapshots: %w", err)
	}

	return snaps, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner, d *SnapshotDal) error {
	return row.Scan(
		&d.EscrowID,
		&d.ListingID,
		&d.TokenID,
		&d.Buyer,
		&d.Seller,
		&d.Quantity,
		&d.PriceEth,
		&d.Name,
		&d.Origin,
		&d.Process,
		&d.ImageURL,
		&d.Shipped,
		&d.Released,
		&d.RawShipping,
		&d.ProductionCode,
		&d.UpdatedAt,
	)
}

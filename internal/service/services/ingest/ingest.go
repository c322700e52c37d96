package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kopichain/order-view-svc/internal/dal/interfaces/iinboxrepo"
	"github.com/kopichain/order-view-svc/internal/dal/interfaces/isnapshotrepo"
	"github.com/kopichain/order-view-svc/internal/dal/postgres"
	"github.com/kopichain/order-view-svc/internal/dal/uow"
	"github.com/kopichain/order-view-svc/internal/service/models/chainstate"
	"github.com/kopichain/order-view-svc/internal/service/models/snapshot"
	"go.opentelemetry.io/otel"
)

// projector enriches a raw purchase event into a persistable snapshot.
type projector interface {
	ProjectEvent(ctx context.Context, ev chainstate.PurchaseEvent) (snapshot.OrderSnapshot, error)
}

type unitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	SnapshotRepository() isnapshotrepo.ISnapshotRepository
	InboxRepository() iinboxrepo.IInboxRepository
}

// IngestService persists projected order snapshots for relayed purchase
// events.
type IngestService struct {
	pgClient  *postgres.Client
	projector projector
}

// option is a function that configures the IngestService.
type option func(*IngestService)

// MustNewIngestService creates a new IngestService.
func MustNewIngestService(opts ...option) *IngestService {
	s := &IngestService{}
	for _, opt := range opts {
		opt(s)
	}

	if s.pgClient == nil {
		panic("ingest service requires a postgres client")
	}
	if s.projector == nil {
		panic("ingest service requires a projector")
	}

	return s
}

// WithPostgresClient sets the Postgres client for the IngestService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithPostgresClient(pgClient *postgres.Client) option {
	return func(s *IngestService) {
		s.pgClient = pgClient
	}
}

// WithProjector sets the projector for the IngestService.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithProjector(p projector) option {
	return func(s *IngestService) {
		s.projector = p
	}
}

func (s *IngestService) newUOW() unitOfWork {
	return uow.NewUnitOfWork(s.pgClient)
}

// ProcessEvent projects one purchase event and stores the snapshot. The
// snapshot upsert and the inbox row removal commit together, so a crash
// between them cannot lose or double-apply the message.
func (s *IngestService) ProcessEvent(
	ctx context.Context,
	inboxID int64,
	ev chainstate.PurchaseEvent,
) error {
	ctx, span := otel.Tracer("order-view-svc").Start(ctx, "Ingest.ProcessEvent")
	defer span.End()

	snap, err := s.projector.ProjectEvent(ctx, ev)
	if err != nil {
		return fmt.Errorf("failed to project purchase event: %w", err)
	}

	u := s.newUOW()
	if err := u.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := u.SnapshotRepository().Upsert(ctx, snap); err != nil {
		_ = u.Rollback()

		return err
	}
	if inboxID != 0 {
		if err := u.InboxRepository().Delete(ctx, inboxID); err != nil {
			_ = u.Rollback()

			return err
		}
	}

	if err := u.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	slog.Info("Purchase event projected",
		"escrow_id", snap.EscrowID,
		"token_id", snap.TokenID,
		"buyer", snap.Buyer)

	return nil
}

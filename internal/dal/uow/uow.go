package uow

import (
	"context"
	"database/sql"

	"github.com/kopichain/order-view-svc/internal/dal/interfaces/iinboxrepo"
	"github.com/kopichain/order-view-svc/internal/dal/interfaces/isnapshotrepo"
	"github.com/kopichain/order-view-svc/internal/dal/postgres"
	inboxrepo "github.com/kopichain/order-view-svc/internal/dal/repositories/inbox/postgres"
	snapshotrepo "github.com/kopichain/order-view-svc/internal/dal/repositories/snapshot/postgres"
)

type unitOfWork struct {
	db           *sql.DB
	tx           *sql.Tx
	snapshotRepo isnapshotrepo.ISnapshotRepository
	inboxRepo    iinboxrepo.IInboxRepository
}

func (u *unitOfWork) SnapshotRepository() isnapshotrepo.ISnapshotRepository {
	return u.snapshotRepo
}

func (u *unitOfWork) InboxRepository() iinboxrepo.IInboxRepository {
	return u.inboxRepo
}

func NewUnitOfWork(db *postgres.Client) *unitOfWork {
	return &unitOfWork{
		db:           db.DB(),
		snapshotRepo: snapshotrepo.NewSnapshotRepository(db.DB()),
		inboxRepo:    inboxrepo.NewInboxRepository(db.DB()),
	}
}

func (u *unitOfWork) Begin(ctx context.Context) error {
	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	u.tx = tx
	u.snapshotRepo = snapshotrepo.NewSnapshotRepository(tx)
	u.inboxRepo = inboxrepo.NewInboxRepository(tx)

	return nil
}

func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return nil
	}

	return u.tx.Commit()
}

func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}

	return u.tx.Rollback()
}

package inbox

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/kopichain/order-view-svc/internal/dal/interfaces/iinboxrepo"
	"github.com/kopichain/order-view-svc/internal/service/models/chainstate"
	inboxmodel "github.com/kopichain/order-view-svc/internal/service/models/inbox"
)

// service represents the service layer interface.
type service interface {
	ProcessEvent(ctx context.Context, inboxID int64, ev chainstate.PurchaseEvent) error
}

// Worker processes messages from the inbox table.
type Worker struct {
	inboxRepo    iinboxrepo.IInboxRepository
	service      service
	pollInterval time.Duration
	batchSize    int
	stopCh       chan struct{}
}

// NewWorker creates a new inbox worker.
func NewWorker(
	inboxRepo iinboxrepo.IInboxRepository,
	service service,
	pollInterval time.Duration,
	batchSize int,
) *Worker {
	return &Worker{
		inboxRepo:    inboxRepo,
		service:      service,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		stopCh:       make(chan struct{}),
	}
}

// Start begins processing messages from the inbox.
func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	slog.Info("Inbox worker started", "poll_interval", w.pollInterval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Inbox worker shutting down")

			return
		case <-w.stopCh:
			slog.Info("Inbox worker stopped")

			return
		case <-ticker.C:
			w.processMessages(ctx)
		}
	}
}

// Stop stops the worker.
func (w *Worker) Stop() {
	close(w.stopCh)
}

// processMessages retrieves and processes pending messages from the inbox.
func (w *Worker) processMessages(ctx context.Context) {
	messages, err := w.inboxRepo.GetPendingMessages(ctx, w.batchSize)
	if err != nil {
		slog.Error("Failed to get pending messages from inbox", "error", err)

		return
	}

	if len(messages) == 0 {
		return
	}

	slog.Info("Processing inbox messages", "count", len(messages))

	for _, msg := range messages {
		var ev chainstate.PurchaseEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			slog.Error("Failed to unmarshal purchase event from inbox", "error", err, "inbox_id", msg.ID)
			w.scheduleRetryOrDrop(ctx, msg, err)

			continue
		}

		// ProcessEvent deletes the inbox row in its own transaction on
		// success, so only the failure path is handled here.
		if err := w.service.ProcessEvent(ctx, msg.ID, ev); err != nil {
			newRetryCount := msg.RetryCount + 1
			backoffSeconds := math.Pow(2, float64(newRetryCount)) * 30 // 60s, 120s, 240s, etc.
			nextRetryAt := time.Now().Add(time.Duration(backoffSeconds) * time.Second)

			slog.Warn("Failed to process message from inbox, will retry",
				"inbox_id", msg.ID,
				"retry_count", newRetryCount,
				"next_retry", nextRetryAt,
				"error", err,
			)

			if err := w.inboxRepo.UpdateRetry(ctx, msg.ID, newRetryCount, err.Error(), nextRetryAt); err != nil {
				slog.Error("Failed to update retry information", "inbox_id", msg.ID, "error", err)
			}

			continue
		}

		slog.Info("Message successfully processed and removed from inbox",
			"inbox_id", msg.ID,
			"message_id", msg.MessageID,
			"escrow_id", ev.EscrowID,
		)
	}
}

// scheduleRetryOrDrop increments the retry counter, deleting the message once
// it is out of attempts. A payload that does not even unmarshal will never
// succeed, but keeping it a few rounds leaves a trace in the table for
// debugging before it disappears.
func (w *Worker) scheduleRetryOrDrop(ctx context.Context, msg inboxmodel.Message, cause error) {
	newRetryCount := msg.RetryCount + 1
	if newRetryCount >= msg.MaxRetries {
		slog.Warn("Max retries reached for malformed message, deleting",
			"inbox_id", msg.ID,
			"message_id", msg.MessageID,
		)
		if err := w.inboxRepo.Delete(ctx, msg.ID); err != nil {
			slog.Error("Failed to delete message from inbox", "inbox_id", msg.ID, "error", err)
		}

		return
	}

	backoffSeconds := math.Pow(2, float64(newRetryCount)) * 30
	nextRetryAt := time.Now().Add(time.Duration(backoffSeconds) * time.Second)
	if err := w.inboxRepo.UpdateRetry(ctx, msg.ID, newRetryCount, cause.Error(), nextRetryAt); err != nil {
		slog.Error("Failed to update retry information", "inbox_id", msg.ID, "error", err)
	}
}

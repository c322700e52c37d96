package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kopichain/order-view-svc/internal/dal/ethereum"
	"github.com/kopichain/order-view-svc/internal/dal/ipfs"
	"github.com/kopichain/order-view-svc/internal/dal/postgres"
	"github.com/kopichain/order-view-svc/internal/dal/rabbitmq"
	inboxrepo "github.com/kopichain/order-view-svc/internal/dal/repositories/inbox/postgres"
	snapshotrepo "github.com/kopichain/order-view-svc/internal/dal/repositories/snapshot/postgres"
	"github.com/kopichain/order-view-svc/internal/otel"
	"github.com/kopichain/order-view-svc/internal/service/services/ingest"
	"github.com/kopichain/order-view-svc/internal/service/services/projector"
	"github.com/kopichain/order-view-svc/internal/service/services/transition"
	"github.com/kopichain/order-view-svc/internal/transport/consumer"
	httptransport "github.com/kopichain/order-view-svc/internal/transport/http"
	inboxworker "github.com/kopichain/order-view-svc/internal/worker/inbox"
	"github.com/spf13/viper"
)

// App represents the application.
type App struct {
	httpTransport  *httptransport.HTTPTransport
	consumerTransp *consumer.Consumer
	inboxWorker    *inboxworker.Worker
	ethClient      *ethereum.Client
	rabbitMqClient *rabbitmq.Client
	postgresClient *postgres.Client
	otelController *otel.OtelController
}

// MustNewApp creates a new application.
func MustNewApp() *App {
	otelController := otel.MustInitOtel()
	ethClient := ethereum.MustNewClient()
	postgresClient := postgres.MustNewClient()
	rabbitMqClient := rabbitmq.MustNewClient()

	resolver := ipfs.NewResolver()
	snapshotRepository := snapshotrepo.NewSnapshotRepository(postgresClient.DB())

	projectorSvc := projector.MustNewProjector(
		projector.WithReader(ethClient),
		projector.WithResolver(resolver),
		projector.WithSink(snapshotRepository),
	)

	transitionSvc := transition.MustNewService(
		transition.WithWriter(ethClient),
		transition.WithReader(ethClient),
		transition.WithProjector(projectorSvc),
	)

	ingestSvc := ingest.MustNewIngestService(
		ingest.WithPostgresClient(postgresClient),
		ingest.WithProjector(projectorSvc),
	)

	inboxRepository := inboxrepo.NewInboxRepository(postgresClient.DB())
	consumerTransp := consumer.NewConsumer(rabbitMqClient, inboxRepository)

	pollInterval := viper.GetDuration("worker.poll_interval")
	if pollInterval == 0 {
		pollInterval = 10 * time.Second
	}
	batchSize := viper.GetInt("worker.batch_size")
	if batchSize == 0 {
		batchSize = 20
	}
	inboxWorker := inboxworker.NewWorker(inboxRepository, ingestSvc, pollInterval, batchSize)

	httpTransport := httptransport.NewHTTPTransport(projectorSvc, transitionSvc, snapshotRepository)
	httpTransport.RegisterRoutes()

	return &App{
		httpTransport:  httpTransport,
		consumerTransp: consumerTransp,
		inboxWorker:    inboxWorker,
		ethClient:      ethClient,
		rabbitMqClient: rabbitMqClient,
		postgresClient: postgresClient,
		otelController: otelController,
	}
}

// Run starts the application.
// Tracks interrupt signal to gracefully shut down the application.
func (a *App) Run() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		slog.Info("Starting HTTP transport")
		if err := a.httpTransport.Run(); err != nil {
			slog.Error("HTTP transport error", "error", err)
		}
	}()

	go func() {
		slog.Info("Starting consumer")
		if err := a.consumerTransp.Run(ctx); err != nil {
			slog.Error("Consumer error", "error", err)
		}
	}()

	go func() {
		slog.Info("Starting inbox worker")
		a.inboxWorker.Start(ctx)
	}()

	<-stop
	slog.Info("Shutdown signal received")
	cancel()

	a.gracefulShutdown()
}

// gracefulShutdown performs graceful shutdown of all application components.
func (a *App) gracefulShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.httpTransport.Shutdown(ctx); err != nil {
		slog.Error("HTTP transport shutdown error", "error", err)
	} else {
		slog.Info("HTTP transport stopped gracefully")
	}

	a.inboxWorker.Stop()
	slog.Info("Inbox worker stopped gracefully")

	if err := a.consumerTransp.Shutdown(); err != nil {
		slog.Error("Consumer shutdown error", "error", err)
	} else {
		slog.Info("Consumer stopped gracefully")
	}

	if err := a.rabbitMqClient.Close(); err != nil {
		slog.Error("RabbitMQ connection close error", "error", err)
	} else {
		slog.Info("RabbitMQ connection closed gracefully")
	}

	if err := a.postgresClient.Close(); err != nil {
		slog.Error("Postgres close error", "error", err)
	}

	a.ethClient.Close()

	if err := a.otelController.Shutdown(); err != nil {
		slog.Error("Otel trace provider connection close error", "error", err)
	} else {
		slog.Info("Otel trace provider connection closed gracefully")
	}

	select {
	case <-ctx.Done():
		slog.Warn("Shutdown timeout exceeded")
	default:
		slog.Info("Application shutdown complete")
	}
}

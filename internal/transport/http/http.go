package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kopichain/order-view-svc/internal/service/models/listing"
	"github.com/kopichain/order-view-svc/internal/service/models/order"
	"github.com/kopichain/order-view-svc/internal/service/models/snapshot"
	"github.com/kopichain/order-view-svc/internal/service/services/transition"
	drivetransition "github.com/kopichain/order-view-svc/internal/transport/http/drive_transition"
	getorder "github.com/kopichain/order-view-svc/internal/transport/http/get_order"
	listlistings "github.com/kopichain/order-view-svc/internal/transport/http/list_listings"
	listorders "github.com/kopichain/order-view-svc/internal/transport/http/list_orders"
	"github.com/kopichain/order-view-svc/pkg/http/middleware/trace"
	"github.com/kopichain/order-view-svc/pkg/logger"
	"github.com/spf13/viper"
)

type orderService interface {
	LoadOrders(ctx context.Context, role order.Role, viewer string) ([]order.Order, error)
	Get(role order.Role, viewer string, escrowID int64) (order.Order, bool)
	ProjectListings(ctx context.Context) ([]listing.Listing, error)
}

type transitionService interface {
	Drive(ctx context.Context, req transition.Request) (transition.Result, error)
}

// snapshotStore is the persisted-projection fallback the read handlers serve
// from when a live projection pass fails.
type snapshotStore interface {
	GetByEscrowID(ctx context.Context, escrowID int64) (snapshot.OrderSnapshot, error)
	ListByBuyer(ctx context.Context, buyer string) ([]snapshot.OrderSnapshot, error)
	ListBySeller(ctx context.Context, seller string) ([]snapshot.OrderSnapshot, error)
}

type HTTPTransport struct {
	server        *http.Server
	router        *chi.Mux
	orderSvc      orderService
	transitionSvc transitionService
	snapshots     snapshotStore
}

func NewHTTPTransport(orderSvc orderService, transitionSvc transitionService, snapshots snapshotStore) *HTTPTransport {
	router := newRouter()
	server := newServer(router)

	return &HTTPTransport{
		server:        server,
		router:        router,
		orderSvc:      orderSvc,
		transitionSvc: transitionSvc,
		snapshots:     snapshots,
	}
}

func (h *HTTPTransport) Run() error {
	return h.server.ListenAndServe()
}

func (h *HTTPTransport) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// RegisterRoutes registers the routes for the HTTPTransport.
func (h *HTTPTransport) RegisterRoutes() {
	h.router.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	h.router.Route("/api", func(r chi.Router) {
		r.Get("/orders", h.listOrders)
		r.Get("/orders/{escrowID}", h.getOrder)
		r.Post("/orders/{escrowID}/transition", h.driveTransition)
		r.Get("/listings", h.listListings)
	})
}

func (h *HTTPTransport) listOrders(w http.ResponseWriter, r *http.Request) {
	listorders.ListOrders(w, r, h.orderSvc, h.snapshots)
}

func (h *HTTPTransport) getOrder(w http.ResponseWriter, r *http.Request) {
	getorder.GetOrder(w, r, h.orderSvc, h.snapshots)
}

func (h *HTTPTransport) driveTransition(w http.ResponseWriter, r *http.Request) {
	drivetransition.DriveTransition(w, r, h.transitionSvc)
}

func (h *HTTPTransport) listListings(w http.ResponseWriter, r *http.Request) {
	listlistings.ListListings(w, r, h.orderSvc)
}

func newRouter() *chi.Mux {
	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(logger.NewLoggerMiddleware(slog.Default()))
	router.Use(trace.NewTraceMiddleware)

	allowedOrigins := viper.GetStringSlice("server.http.cors.allowed_origins")
	allowedMethods := viper.GetStringSlice("server.http.cors.allowed_methods")
	allowedHeaders := viper.GetStringSlice("server.http.cors.allowed_headers")
	exposedHeaders := viper.GetStringSlice("server.http.cors.exposed_headers")
	allowCredentials := viper.GetBool("server.http.cors.allow_credentials")
	maxAge := viper.GetInt("server.http.cors.max_age")

	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   allowedMethods,
		AllowedHeaders:   allowedHeaders,
		ExposedHeaders:   exposedHeaders,
		AllowCredentials: allowCredentials,
		MaxAge:           maxAge,
	})

	router.Use(c.Handler)

	return router
}

func newServer(router http.Handler) *http.Server {
	return &http.Server{
		Addr:    "0.0.0.0:" + viper.GetString("server.http.port"),
		Handler: router,
	}
}

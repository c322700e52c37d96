package listlistings

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"

	"github.com/kopichain/order-view-svc/internal/service/models/listing"
)

type service interface {
	ProjectListings(ctx context.Context) ([]listing.Listing, error)
}

func ListListings(w http.ResponseWriter, r *http.Request, service service) {
	listings, err := service.ProjectListings(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Error("Error loading listings", "error", err)

		return
	}

	sort.Slice(listings, func(i, j int) bool {
		return listings[i].ListingID < listings[j].ListingID
	})

	if err := json.NewEncoder(w).Encode(listings); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Error("Error sending response", "error", err)
	}
}

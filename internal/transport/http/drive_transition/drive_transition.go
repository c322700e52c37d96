package drivetransition

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/kopichain/order-view-svc/internal/service/models/order"
	"github.com/kopichain/order-view-svc/internal/service/models/status"
	"github.com/kopichain/order-view-svc/internal/service/services/transition"
)

type service interface {
	Drive(ctx context.Context, req transition.Request) (transition.Result, error)
}

type driveTransitionRequest struct {
	Role    string `json:"role"`
	Address string `json:"address"`
	Target  string `json:"target"`
}

func DriveTransition(w http.ResponseWriter, r *http.Request, service service) {
	escrowID, err := strconv.ParseInt(chi.URLParam(r, "escrowID"), 10, 64)
	if err != nil {
		http.Error(w, "invalid escrow id", http.StatusBadRequest)

		return
	}

	var body driveTransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		slog.Error("Error decoding request", "error", err)

		return
	}

	role, err := order.ParseRole(body.Role)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	result, err := service.Drive(r.Context(), transition.Request{
		Role:     role,
		Viewer:   body.Address,
		EscrowID: escrowID,
		Target:   status.Status(body.Target),
	})
	if err != nil {
		switch {
		case errors.Is(err, transition.ErrUnknownOrder):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, transition.ErrNotAllowed):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			slog.Error("Error driving transition", "error", err, "escrow_id", escrowID)
		}

		return
	}

	if err := json.NewEncoder(w).Encode(result); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		slog.Error("Error sending response", "error", err)
	}
}

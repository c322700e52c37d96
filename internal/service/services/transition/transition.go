package transition

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kopichain/order-view-svc/internal/dal/interfaces/ichain"
	"github.com/kopichain/order-view-svc/internal/service/models/chainstate"
	"github.com/kopichain/order-view-svc/internal/service/models/order"
	"github.com/kopichain/order-view-svc/internal/service/models/status"
	"go.opentelemetry.io/otel"
)

var (
	// ErrUnknownOrder is returned when the escrow is not in the viewer's
	// loaded session.
	ErrUnknownOrder = errors.New("order not loaded for this viewer")

	// ErrNotAllowed is returned when the requested transition is not one of
	// the actions the policy offers the viewer right now.
	ErrNotAllowed = errors.New("transition not allowed")
)

// projector is the in-memory session the service reads current state from and
// patches after confirmed writes.
type projector interface {
	Get(role order.Role, viewer string, escrowID int64) (order.Order, bool)
	Generation(role order.Role, viewer string) uint64
	ApplyShipment(role order.Role, viewer string, generation uint64, escrowID int64, st status.Status, released bool) bool
	ApplyPacked(viewer string, generation uint64, escrowID int64) bool
	ApplyProduction(tokenID int64, code uint8)
}

// Request asks to drive one order toward a target status on behalf of a
// viewer. Buyers have a single action, so their Target is ignored.
type Request struct {
	Role     order.Role
	Viewer   string
	EscrowID int64
	Target   status.Status
}

// StepOutcome is the result of one contract write within a transition.
type StepOutcome struct {
	ID      string        `json:"id"`
	Action  string        `json:"action"`
	Target  status.Status `json:"target"`
	OK      bool          `json:"ok"`
	Skipped bool          `json:"skipped,omitempty"`
	Failure *Failure      `json:"failure,omitempty"`
}

// Result is the full outcome of one transition request. A multi-step
// transition reports every attempted step; Status is the display status the
// order actually reached, which on partial failure is the intermediate stage.
type Result struct {
	SagaID    string        `json:"sagaId"`
	Steps     []StepOutcome `json:"steps"`
	Status    status.Status `json:"status"`
	Completed bool          `json:"completed"`
}

// Service validates transition requests against the per-role policy and
// drives the corresponding contract writes.
type Service struct {
	writer    ichain.Writer
	reader    ichain.Reader
	projector projector
}

// option is a function that configures the Service.
type option func(*Service)

// MustNewService creates a new transition Service.
func MustNewService(opts ...option) *Service {
	s := &Service{}
	for _, opt := range opts {
		opt(s)
	}

	if s.writer == nil {
		panic("transition service requires a chain writer")
	}
	if s.reader == nil {
		panic("transition service requires a chain reader")
	}
	if s.projector == nil {
		panic("transition service requires a projector")
	}

	return s
}

// WithWriter sets the chain writer for the Service.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithWriter(w ichain.Writer) option {
	return func(s *Service) {
		s.writer = w
	}
}

// WithReader sets the chain reader for the Service.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithReader(r ichain.Reader) option {
	return func(s *Service) {
		s.reader = r
	}
}

// WithProjector sets the order session source for the Service.
//
//goland:noinspection GoExportedFuncWithUnexportedType
func WithProjector(p projector) option {
	return func(s *Service) {
		s.projector = p
	}
}

// Drive executes one transition request. Policy violations come back as
// errors; failed contract writes come back as a Result carrying the
// categorized failure, because a failed write still leaves the order in a
// well-defined stage the caller must display.
func (s *Service) Drive(ctx context.Context, req Request) (Result, error) {
	ctx, span := otel.Tracer("order-view-svc").Start(ctx, "Transition.Drive")
	defer span.End()

	o, ok := s.projector.Get(req.Role, req.Viewer, req.EscrowID)
	if !ok {
		return Result{}, ErrUnknownOrder
	}
	generation := s.projector.Generation(req.Role, req.Viewer)

	switch req.Role {
	case order.RoleBuyer:
		return s.driveBuyer(ctx, req, o, generation)
	case order.RoleLogistics:
		return s.driveLogistics(ctx, req, o, generation)
	case order.RoleFarmer:
		return s.driveFarmer(ctx, req, o, generation)
	default:
		return Result{}, order.ErrUnknownRole
	}
}

func (s *Service) driveBuyer(ctx context.Context, req Request, o order.Order, generation uint64) (Result, error) {
	if !status.BuyerCanConfirm(o.Status, o.Released) {
		return Result{}, fmt.Errorf("%w: confirm requires an arrived, unreleased order", ErrNotAllowed)
	}

	result := Result{SagaID: uuid.NewString()}

	step := s.runStep(ctx, "confirmReceived", status.Arrived, func() error {
		return s.writer.ConfirmReceived(ctx, req.EscrowID)
	})
	result.Steps = append(result.Steps, step)
	result.Status = o.Status

	if step.OK {
		// Confirmation releases the escrow.
		s.projector.ApplyShipment(req.Role, req.Viewer, generation, req.EscrowID, status.Arrived, true)
		result.Completed = true
	}

	return result, nil
}

func (s *Service) driveLogistics(ctx context.Context, req Request, o order.Order, generation uint64) (Result, error) {
	if !o.CanUpdate {
		return Result{}, fmt.Errorf("%w: shipment is claimed by another logistics actor", ErrNotAllowed)
	}
	if !status.LogisticsReachable(o.Status, req.Target) {
		return Result{}, fmt.Errorf("%w: %s is not reachable from %s", ErrNotAllowed, req.Target, o.Status)
	}

	result := Result{SagaID: uuid.NewString(), Status: o.Status}

	// The jump from Awaiting Shipment straight to Arrived has to pass
	// through On The Way on chain, one transaction per hop.
	if o.Status == status.AwaitingShipment {
		step := s.runStep(ctx, "logisticsMarkOnTheWay", status.OnTheWay, func() error {
			return s.writer.LogisticsMarkOnTheWay(ctx, req.EscrowID)
		})
		result.Steps = append(result.Steps, step)
		if !step.OK {
			return result, nil
		}
		result.Status = status.OnTheWay
		s.projector.ApplyShipment(req.Role, req.Viewer, generation, req.EscrowID, status.OnTheWay, false)

		if req.Target == status.OnTheWay {
			result.Completed = true

			return result, nil
		}
	}

	step := s.runStep(ctx, "logisticsMarkArrived", status.Arrived, func() error {
		return s.writer.LogisticsMarkArrived(ctx, req.EscrowID)
	})
	result.Steps = append(result.Steps, step)
	if !step.OK {
		// The first hop already landed; the order stays On The Way.
		return result, nil
	}

	result.Status = status.Arrived
	result.Completed = true
	s.projector.ApplyShipment(req.Role, req.Viewer, generation, req.EscrowID, status.Arrived, false)

	return result, nil
}

func (s *Service) driveFarmer(ctx context.Context, req Request, o order.Order, generation uint64) (Result, error) {
	next, ok := status.FarmerNext(o.Status)
	if !ok || next != req.Target {
		return Result{}, fmt.Errorf("%w: %s is not the next production stage after %s", ErrNotAllowed, req.Target, o.Status)
	}

	result := Result{SagaID: uuid.NewString(), Status: o.Status}

	switch req.Target {
	case status.Roasted:
		// The production code is token-wide. Another order of the same
		// batch may have advanced it already; writing again would revert.
		code, err := s.reader.BatchStatus(ctx, o.TokenID)
		if err == nil && code >= chainstate.ProductionRoasted {
			result.Steps = append(result.Steps, StepOutcome{
				ID:      uuid.NewString(),
				Action:  "updateBatchStatus",
				Target:  status.Roasted,
				OK:      true,
				Skipped: true,
			})
			result.Status = status.Roasted
			result.Completed = true
			s.projector.ApplyProduction(o.TokenID, code)

			return result, nil
		}

		step := s.runStep(ctx, "updateBatchStatus", status.Roasted, func() error {
			return s.writer.UpdateBatchStatus(ctx, o.TokenID, chainstate.ProductionRoasted)
		})
		result.Steps = append(result.Steps, step)
		if step.OK {
			result.Status = status.Roasted
			result.Completed = true
			s.projector.ApplyProduction(o.TokenID, chainstate.ProductionRoasted)
		}

		return result, nil

	default:
		// Packed is per escrow, not per token.
		step := s.runStep(ctx, "markShipped", status.Packed, func() error {
			return s.writer.MarkShipped(ctx, req.EscrowID)
		})
		result.Steps = append(result.Steps, step)
		if step.OK {
			result.Status = status.Packed
			result.Completed = true
			s.projector.ApplyPacked(req.Viewer, generation, req.EscrowID)
		}

		return result, nil
	}
}

func (s *Service) runStep(ctx context.Context, action string, target status.Status, write func() error) StepOutcome {
	step := StepOutcome{
		ID:     uuid.NewString(),
		Action: action,
		Target: target,
	}

	if err := write(); err != nil {
		failure := Categorize(err)
		step.Failure = &failure
		slog.Error("transition step failed",
			"action", action, "category", failure.Category, "error", err)

		return step
	}

	step.OK = true

	return step
}

package payment

import (
	"context"
	"log/slog"

	"github.com/fanmate/platform/internal"
	"github.com/fanmate/platform/internal/application"
	"github.com/fanmate/platform/internal/core/events"
	"github.com/fanmate/platform/internal/gateway"
	"github.com/fanmate/platform/internal/intent"
	"github.com/fanmate/platform/pkg/logger"

	applicationmodel "github.com/fanmate/platform/internal/core/datamodel/application"
	gatewaytypes "github.com/fanmate/platform/internal/core/datamodel/gateway"
	intentmodel "github.com/fanmate/platform/internal/core/datamodel/intent"
	settlementmodel "github.com/fanmate/platform/internal/core/datamodel/settlement"
)

// IntentEngine is the slice of the intent engine the orchestrator drives.
type IntentEngine interface {
	PrepareIntent(ctx context.Context, params intent.PrepareParams) (*intent.PrepareResult, error)
	ResolveIntentForConfirm(ctx context.Context, params intent.ConfirmParams, applicantID int64) (*intentmodel.PaymentIntent, error)
	MarkConfirmed(ctx context.Context, record *intentmodel.PaymentIntent, paymentKey string) error
	MarkApplicationCreated(ctx context.Context, record *intentmodel.PaymentIntent) error
	CompensateAfterApplicationFailure(ctx context.Context, intentID int64, cause error) error
	CancelIntent(ctx context.Context, intentID, userID int64, reason string) error
}

// Materializer writes the paid application.
type Materializer interface {
	CreateOrGetPaid(ctx context.Context, params application.CreateParams) (*applicationmodel.PartyApplication, error)
	GetByOrderID(ctx context.Context, orderID string) (*applicationmodel.PartyApplication, error)
}

// SettlementLinker links a paid application to its settlement transaction.
type SettlementLinker interface {
	LinkOnConfirm(ctx context.Context, app *applicationmodel.PartyApplication, record *intentmodel.PaymentIntent, paymentKey string) (*settlementmodel.SettlementTransaction, error)
}

// GatewayConfirmer is the confirm side of the gateway client.
type GatewayConfirmer interface {
	Confirm(ctx context.Context, paymentKey, orderID string, amount int64) (*gatewaytypes.ConfirmResponse, error)
}

// Service orchestrates the confirm flow. It owns the ordering guarantees:
// money never moves before an intent exists, an application never exists
// without a confirmed charge behind it, and a retry of any step lands on the
// same application.
type Service struct {
	engine     IntentEngine
	gateway    GatewayConfirmer
	apps       Materializer
	settlement SettlementLinker
	eventBus   *events.EventBus
	logger     *slog.Logger
}

func NewService(
	engine IntentEngine,
	gatewayClient GatewayConfirmer,
	apps Materializer,
	settlementLinker SettlementLinker,
	eventBus *events.EventBus,
	logger *slog.Logger,
) *Service {
	return &Service{
		engine:     engine,
		gateway:    gatewayClient,
		apps:       apps,
		settlement: settlementLinker,
		eventBus:   eventBus,
		logger:     logger,
	}
}

// Prepare records the intent and returns the client's payment parameters.
func (s *Service) Prepare(ctx context.Context, req PrepareRequest, applicantID int64) (*intent.PrepareResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return s.engine.PrepareIntent(ctx, intent.PrepareParams{
		PartyID:     req.PartyID,
		ApplicantID: applicantID,
		FlowType:    req.FlowTypeOrDefault(),
	})
}

// Confirm runs the full confirmation flow for one payment attempt. Every step
// is safe to re-run: retries of a finished order return the existing
// application instead of touching the gateway again.
func (s *Service) Confirm(ctx context.Context, req ConfirmRequest, applicantID int64) (*ApplicationResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Fast idempotency path: the application already exists for this order.
	if req.OrderID != "" {
		if existing, err := s.findCompatibleApplication(ctx, req, applicantID); err != nil {
			confirmTotal.WithLabelValues("fail").Inc()
			return nil, err
		} else if existing != nil {
			confirmTotal.WithLabelValues("retry").Inc()
			s.logger.Info("confirm replayed for finished order",
				"order_id", req.OrderID,
				"application_id", existing.ID)
			return newApplicationResponse(existing), nil
		}
	}

	record, err := s.engine.ResolveIntentForConfirm(ctx, req.toParams(), applicantID)
	if err != nil {
		confirmTotal.WithLabelValues("fail").Inc()
		return nil, err
	}
	ctx = logger.WithPayment(ctx, record.ID, record.OrderID)

	// The resolved intent's orderId may differ from the request's when the
	// client confirmed by intentId; check for its application too.
	if existing, err := s.apps.GetByOrderID(ctx, record.OrderID); err != nil {
		confirmTotal.WithLabelValues("fail").Inc()
		return nil, internal.NewInternalError("failed to check existing application", err)
	} else if existing != nil {
		s.healFinishedIntent(ctx, record, existing)
		confirmTotal.WithLabelValues("retry").Inc()
		return newApplicationResponse(existing), nil
	}

	gwResp, err := s.confirmOnGateway(ctx, record, req.PaymentKey)
	if err != nil {
		confirmTotal.WithLabelValues("fail").Inc()
		return nil, err
	}

	if err := s.engine.MarkConfirmed(ctx, record, gwResp.PaymentKey); err != nil {
		confirmTotal.WithLabelValues("fail").Inc()
		return nil, err
	}

	app, err := s.apps.CreateOrGetPaid(ctx, application.CreateParams{
		PartyID:     record.PartyID,
		ApplicantID: record.ApplicantID,
		OrderID:     record.OrderID,
		PaymentKey:  gwResp.PaymentKey,
		Amount:      record.ExpectedAmount,
		PaymentType: record.PaymentType,
		Message:     req.Message,
	})
	if err != nil {
		confirmTotal.WithLabelValues("fail").Inc()
		logger.From(ctx).Error("application materialization failed after payment",
			"error", err,
			"amount", record.ExpectedAmount)
		if compErr := s.engine.CompensateAfterApplicationFailure(ctx, record.ID, err); compErr != nil {
			logger.From(ctx).Error("compensation did not finish, intent parked for reconciler",
				"error", compErr)
		}
		return nil, err
	}

	// Settlement linking must never fail a confirmed payment.
	if _, linkErr := s.settlement.LinkOnConfirm(ctx, app, record, gwResp.PaymentKey); linkErr != nil {
		logger.From(ctx).Error("settlement linking failed, payment unaffected",
			"error", linkErr,
			"application_id", app.ID)
	}

	if err := s.engine.MarkApplicationCreated(ctx, record); err != nil {
		// The application exists and the money is right; the reconciler will
		// finish the intent. Do not fail the confirm.
		logger.From(ctx).Error("failed to finish intent after materialization",
			"error", err)
	}

	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.NewPaymentConfirmedEvent(
			record.ID, record.OrderID, record.PartyID, record.ApplicantID,
			app.ID, record.ExpectedAmount, gwResp.PaymentKey))
	}

	confirmTotal.WithLabelValues("success").Inc()
	logger.From(ctx).Info("payment confirmed",
		"application_id", app.ID,
		"amount", record.ExpectedAmount,
		"payment_type", record.PaymentType)
	return newApplicationResponse(app), nil
}

// Cancel is the user-driven intent cancel.
func (s *Service) Cancel(ctx context.Context, intentID, userID int64, req CancelRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	return s.engine.CancelIntent(ctx, intentID, userID, req.Reason)
}

// findCompatibleApplication returns the existing application for the request's
// orderId after checking the retry is really re-sending the same purchase.
func (s *Service) findCompatibleApplication(ctx context.Context, req ConfirmRequest, applicantID int64) (*applicationmodel.PartyApplication, error) {
	app, err := s.apps.GetByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, internal.NewInternalError("failed to check existing application", err)
	}
	if app == nil {
		return nil, nil
	}

	if app.ApplicantID != applicantID {
		return nil, internal.ErrUnauthorizedAccess
	}
	if req.PartyID != nil && *req.PartyID != app.PartyID {
		return nil, internal.NewConflictError("orderId belongs to a different party", internal.ErrCodePaymentConflict)
	}
	if req.Amount != nil && *req.Amount != app.DepositAmount {
		return nil, internal.NewConflictError("amount does not match the completed payment", internal.ErrCodeAmountMismatch)
	}
	if req.FlowType != "" && intentmodel.PaymentTypeFor(intentmodel.FlowType(req.FlowType)) != app.PaymentType {
		return nil, internal.NewConflictError("paymentType does not match the completed payment", internal.ErrCodePaymentConflict)
	}
	if req.PaymentKey != "" && app.PaymentKey != "" && req.PaymentKey != app.PaymentKey {
		return nil, internal.NewConflictError("paymentKey does not match the completed payment", internal.ErrCodePaymentConflict)
	}
	return app, nil
}

// confirmOnGateway charges the client's payment key, or synthesizes a DONE
// response when the intent was already confirmed by an earlier attempt.
func (s *Service) confirmOnGateway(ctx context.Context, record *intentmodel.PaymentIntent, clientPaymentKey string) (*gatewaytypes.ConfirmResponse, error) {
	if record.Status == intentmodel.StatusConfirmed {
		logger.From(ctx).Info("gateway call skipped: intent already confirmed")
		return &gatewaytypes.ConfirmResponse{
			PaymentKey:  record.PaymentKeyValue(),
			OrderID:     record.OrderID,
			Status:      gatewaytypes.StatusDone,
			TotalAmount: record.ExpectedAmount,
		}, nil
	}

	resp, err := s.gateway.Confirm(ctx, clientPaymentKey, record.OrderID, record.ExpectedAmount)
	if err != nil {
		if gwErr, ok := gateway.AsGatewayError(err); ok {
			logger.From(ctx).Warn("gateway rejected confirmation",
				"gateway_code", gwErr.Code,
				"gateway_status", gwErr.StatusCode)
			return nil, internal.NewGatewayRejectedError(gwErr.Message).WithCause(err)
		}
		logger.From(ctx).Error("gateway unreachable, confirm outcome unknown",
			"error", err)
		return nil, internal.NewGatewayUnavailableError("payment gateway is unavailable, retry the confirmation", err)
	}

	if !resp.IsDone() {
		return nil, internal.NewGatewayRejectedError("gateway did not complete the payment")
	}
	if resp.TotalAmount != record.ExpectedAmount {
		logger.From(ctx).Error("gateway charged an unexpected amount",
			"expected", record.ExpectedAmount,
			"charged", resp.TotalAmount)
		return nil, internal.NewConflictError("charged amount does not match the payment intent", internal.ErrCodeAmountMismatch)
	}
	return resp, nil
}

// healFinishedIntent pushes an intent whose application turned out to exist
// to its terminal success state. Best-effort; retries land here again.
func (s *Service) healFinishedIntent(ctx context.Context, record *intentmodel.PaymentIntent, app *applicationmodel.PartyApplication) {
	if record.Status == intentmodel.StatusApplicationCreated {
		return
	}
	if err := s.engine.MarkConfirmed(ctx, record, app.PaymentKey); err != nil {
		logger.From(ctx).Warn("failed to heal intent to confirmed", "error", err)
		return
	}
	if err := s.engine.MarkApplicationCreated(ctx, record); err != nil {
		logger.From(ctx).Warn("failed to heal intent to finished", "error", err)
	}
}

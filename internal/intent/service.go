package intent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fanmate/platform/internal"
	"github.com/fanmate/platform/internal/core/events"

	intentmodel "github.com/fanmate/platform/internal/core/datamodel/intent"
)

// Service is the payment intent engine. It owns the intent ledger: every
// purchase attempt is recorded here before money moves, and every state
// transition funnels through the conditional updates of the repository so
// concurrent retries converge instead of double-charging.
type Service struct {
	repo     Repository
	apps     ApplicationFinder
	gateway  GatewayCanceler
	pricer   Pricer
	eventBus *events.EventBus
	config   internal.PaymentConfig
	logger   *slog.Logger

	now func() time.Time
}

func NewService(
	repo Repository,
	apps ApplicationFinder,
	gateway GatewayCanceler,
	pricer Pricer,
	eventBus *events.EventBus,
	config internal.PaymentConfig,
	logger *slog.Logger,
) *Service {
	config.ApplyDefaults()
	return &Service{
		repo:     repo,
		apps:     apps,
		gateway:  gateway,
		pricer:   pricer,
		eventBus: eventBus,
		config:   config,
		logger:   logger,
		now:      time.Now,
	}
}

// PrepareIntent prices the purchase server-side and records a PREPARED intent
// before the client is handed anything to pay with.
func (s *Service) PrepareIntent(ctx context.Context, params PrepareParams) (*PrepareResult, error) {
	quote, err := s.pricer.QuoteForParty(params.PartyID, params.FlowType)
	if err != nil {
		return nil, err
	}

	if active, err := s.apps.HasActiveApplication(params.PartyID, params.ApplicantID); err != nil {
		s.logger.Error("failed to check existing application", "error", err, "party_id", params.PartyID)
		return nil, internal.NewInternalError("failed to prepare payment", err)
	} else if active {
		return nil, internal.NewConflictError("an application for this party already exists", internal.ErrCodeInvalidPartyState)
	}

	if pending, err := s.apps.CountPendingForApplicant(params.ApplicantID); err != nil {
		s.logger.Error("failed to count pending applications", "error", err, "applicant_id", params.ApplicantID)
		return nil, internal.NewInternalError("failed to prepare payment", err)
	} else if pending >= s.config.MaxPendingApplications {
		return nil, internal.NewConflictError("too many pending applications", internal.ErrCodeInvalidPartyState)
	}

	now := s.now()
	expiresAt := now.Add(s.config.IntentTTL)
	record := &intentmodel.PaymentIntent{
		OrderID:        s.newOrderID(params.PartyID, params.ApplicantID),
		PartyID:        params.PartyID,
		ApplicantID:    params.ApplicantID,
		ExpectedAmount: quote.Amount,
		Currency:       quote.Currency,
		FlowType:       quote.FlowType,
		PaymentType:    quote.PaymentType,
		Mode:           intentmodel.ModePrepared,
		Status:         intentmodel.StatusPrepared,
		ExpiresAt:      &expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Create(record); err != nil {
		s.logger.Error("failed to persist payment intent", "error", err, "order_id", record.OrderID)
		return nil, internal.NewInternalError("failed to prepare payment", err)
	}

	s.logger.Info("payment intent prepared",
		"intent_id", record.ID,
		"order_id", record.OrderID,
		"party_id", params.PartyID,
		"applicant_id", params.ApplicantID,
		"amount", quote.Amount,
		"flow_type", quote.FlowType)

	return &PrepareResult{
		IntentID:    record.ID,
		OrderID:     record.OrderID,
		Amount:      record.ExpectedAmount,
		Currency:    record.Currency,
		OrderName:   quote.OrderName,
		FlowType:    record.FlowType,
		PaymentType: record.PaymentType,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// ResolveIntentForConfirm loads and validates the intent a confirm request
// refers to. The stored row is the source of truth for amount and payment
// key; the request is only ever cross-checked against it.
func (s *Service) ResolveIntentForConfirm(ctx context.Context, params ConfirmParams, applicantID int64) (*intentmodel.PaymentIntent, error) {
	var resolved *intentmodel.PaymentIntent

	err := s.repo.Transaction(func(repo Repository) error {
		record, err := s.lookup(repo, params)
		if err != nil {
			return err
		}

		if record == nil {
			record, err = s.createLegacyIntent(repo, params, applicantID)
			if err != nil {
				return err
			}
		}

		if record.ApplicantID != applicantID {
			s.logger.Warn("confirm attempted by non-owner",
				"intent_id", record.ID,
				"owner_id", record.ApplicantID,
				"caller_id", applicantID)
			return ErrUnauthorizedAccess
		}

		if err := s.crossCheck(record, params); err != nil {
			return err
		}

		if record.Status == intentmodel.StatusPrepared && record.IsExpired(s.now()) {
			if _, err := repo.MarkExpired(record.ID); err != nil {
				return internal.NewInternalError("failed to expire payment intent", err)
			}
			s.logger.Warn("confirm rejected: intent expired", "intent_id", record.ID, "order_id", record.OrderID)
			return ErrIntentExpired
		}

		if record.IsTerminal() {
			return ErrIntentTerminated
		}

		if record.Status == intentmodel.StatusPrepared && record.Mode == intentmodel.ModePrepared {
			if err := s.checkPriceDrift(record); err != nil {
				return err
			}
		}

		resolved = record
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

func (s *Service) lookup(repo Repository, params ConfirmParams) (*intentmodel.PaymentIntent, error) {
	if params.IntentID != nil {
		record, err := repo.GetByIDForUpdate(*params.IntentID)
		if err != nil {
			if appErr, ok := internal.IsAppError(err); ok && appErr.Code == internal.ErrCodeIntentNotFound {
				return nil, ErrIntentNotFound
			}
			return nil, err
		}
		return record, nil
	}

	record, err := repo.GetByOrderIDForUpdate(params.OrderID)
	if err != nil {
		if appErr, ok := internal.IsAppError(err); ok && appErr.Code == internal.ErrCodeIntentNotFound {
			// Pre-intent clients confirm without preparing; the caller may
			// still create a legacy-mode intent.
			return nil, nil
		}
		return nil, err
	}
	return record, nil
}

// createLegacyIntent records an intent for a confirm that arrived without a
// prepare step. The amount still comes from server-side pricing, never from
// the request.
func (s *Service) createLegacyIntent(repo Repository, params ConfirmParams, applicantID int64) (*intentmodel.PaymentIntent, error) {
	if params.PartyID == nil || params.OrderID == "" {
		return nil, ErrIntentNotFound
	}

	flowType := params.FlowType
	if flowType == "" {
		flowType = intentmodel.FlowDeposit
	}

	quote, err := s.pricer.QuoteForParty(*params.PartyID, flowType)
	if err != nil {
		return nil, err
	}

	now := s.now()
	record := &intentmodel.PaymentIntent{
		OrderID:        params.OrderID,
		PartyID:        *params.PartyID,
		ApplicantID:    applicantID,
		ExpectedAmount: quote.Amount,
		Currency:       quote.Currency,
		FlowType:       quote.FlowType,
		PaymentType:    quote.PaymentType,
		Mode:           intentmodel.ModeLegacy,
		Status:         intentmodel.StatusPrepared,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := repo.Create(record); err != nil {
		// A concurrent confirm for the same orderId may have created it first.
		if existing, lookupErr := repo.GetByOrderIDForUpdate(params.OrderID); lookupErr == nil {
			return existing, nil
		}
		s.logger.Error("failed to create legacy intent", "error", err, "order_id", params.OrderID)
		return nil, internal.NewInternalError("failed to record payment intent", err)
	}

	s.logger.Info("legacy payment intent created",
		"intent_id", record.ID,
		"order_id", record.OrderID,
		"party_id", record.PartyID,
		"amount", record.ExpectedAmount)
	return record, nil
}

func (s *Service) crossCheck(record *intentmodel.PaymentIntent, params ConfirmParams) error {
	if params.OrderID != "" && params.OrderID != record.OrderID {
		return internal.NewConflictError("orderId does not match the payment intent", internal.ErrCodePaymentConflict)
	}
	if params.PartyID != nil && *params.PartyID != record.PartyID {
		return internal.NewConflictError("partyId does not match the payment intent", internal.ErrCodePaymentConflict)
	}
	if params.FlowType != "" && params.FlowType != record.FlowType {
		s.logger.Warn("confirm flow type mismatch",
			"intent_id", record.ID,
			"expected", record.FlowType,
			"got", params.FlowType)
		return internal.NewConflictError("flowType does not match the payment intent", internal.ErrCodePaymentConflict)
	}
	if params.Amount != nil && *params.Amount != record.ExpectedAmount {
		s.logger.Warn("confirm amount mismatch",
			"intent_id", record.ID,
			"expected", record.ExpectedAmount,
			"got", *params.Amount)
		return internal.NewConflictError("amount does not match the payment intent", internal.ErrCodeAmountMismatch)
	}
	if stored := record.PaymentKeyValue(); stored != "" && params.PaymentKey != "" && stored != params.PaymentKey {
		// A different key for the same order is a second payment attempt,
		// never a silent override.
		return internal.NewConflictError("paymentKey does not match the one recorded for this order", internal.ErrCodePaymentConflict)
	}
	return nil
}

func (s *Service) checkPriceDrift(record *intentmodel.PaymentIntent) error {
	quote, err := s.pricer.QuoteForParty(record.PartyID, record.FlowType)
	if err != nil {
		return err
	}
	if quote.Amount != record.ExpectedAmount {
		s.logger.Warn("party price changed between prepare and confirm",
			"intent_id", record.ID,
			"prepared_amount", record.ExpectedAmount,
			"current_amount", quote.Amount)
		return internal.NewConflictError("party price changed, prepare the payment again", internal.ErrCodeAmountMismatch)
	}
	return nil
}

// MarkConfirmed moves PREPARED to CONFIRMED and records the gateway key.
// Calling it again for a later state is a successful no-op.
func (s *Service) MarkConfirmed(ctx context.Context, record *intentmodel.PaymentIntent, paymentKey string) error {
	switch record.Status {
	case intentmodel.StatusConfirmed, intentmodel.StatusApplicationCreated:
		return nil
	}

	moved, err := s.repo.MarkConfirmed(record.ID, paymentKey)
	if err != nil {
		return internal.NewInternalError("failed to mark intent confirmed", err)
	}
	if !moved {
		return s.verifyReached(record.ID, intentmodel.StatusConfirmed, intentmodel.StatusApplicationCreated)
	}

	record.Status = intentmodel.StatusConfirmed
	record.PaymentKey = &paymentKey
	now := s.now()
	record.ConfirmedAt = &now

	s.logger.Info("payment intent confirmed",
		"intent_id", record.ID,
		"order_id", record.OrderID,
		"payment_key", paymentKey)
	return nil
}

// MarkApplicationCreated finishes a CONFIRMED intent. Idempotent beyond.
func (s *Service) MarkApplicationCreated(ctx context.Context, record *intentmodel.PaymentIntent) error {
	if record.Status == intentmodel.StatusApplicationCreated {
		return nil
	}

	moved, err := s.repo.MarkApplicationCreated(record.ID)
	if err != nil {
		return internal.NewInternalError("failed to mark intent finished", err)
	}
	if !moved {
		return s.verifyReached(record.ID, intentmodel.StatusApplicationCreated)
	}

	record.Status = intentmodel.StatusApplicationCreated
	s.logger.Info("payment intent finished", "intent_id", record.ID, "order_id", record.OrderID)
	return nil
}

// verifyReached re-reads after a conditional transition reported no rows and
// treats the op as done when a concurrent caller already moved the intent to
// an acceptable state.
func (s *Service) verifyReached(intentID int64, acceptable ...intentmodel.Status) error {
	record, err := s.repo.GetByID(intentID)
	if err != nil {
		return internal.NewInternalError("failed to verify intent state", err)
	}
	for _, status := range acceptable {
		if record.Status == status {
			return nil
		}
	}
	return internal.NewConflictError(
		fmt.Sprintf("intent is in state %s and cannot complete this transition", record.Status),
		internal.ErrCodePaymentConflict)
}

// CompensateAfterApplicationFailure is invoked when money moved but the
// application write failed. It records the failure and tries to give the
// money back; anything it cannot finish is parked in CANCEL_FAILED for the
// reconciler.
func (s *Service) CompensateAfterApplicationFailure(ctx context.Context, intentID int64, cause error) error {
	record, err := s.repo.GetByID(intentID)
	if err != nil {
		return err
	}

	// The application may have been written by a concurrent retry after the
	// failure we are compensating. Money and application both exist: finish
	// the intent instead of refunding a successful purchase.
	if app, err := s.apps.FindByOrderID(record.OrderID); err == nil && app != nil {
		s.logger.Info("compensation skipped: application exists for order",
			"intent_id", record.ID,
			"order_id", record.OrderID,
			"application_id", app.ID)
		_, err := s.repo.HealToApplicationCreated(record.ID, record.PaymentKeyValue())
		return err
	}

	failureCode := "APPLICATION_CREATE_FAILED"
	failureMessage := cause.Error()

	moved, err := s.repo.MarkCancelRequested(record.ID, failureCode, failureMessage)
	if err != nil {
		return internal.NewInternalError("failed to flag intent for compensation", err)
	}
	if !moved {
		// Already compensating or finished; nothing more to record here.
		s.logger.Warn("compensation flag skipped: intent not in a compensatable state",
			"intent_id", record.ID,
			"status", record.Status)
		return nil
	}

	compensationRequestedTotal.Inc()
	s.logger.Error("payment compensation requested",
		"intent_id", record.ID,
		"order_id", record.OrderID,
		"amount", record.ExpectedAmount,
		"cause", failureMessage)

	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.NewCompensationRequestedEvent(
			record.ID, record.OrderID, record.ExpectedAmount, failureCode))
	}

	return s.cancelOnGateway(ctx, record, "application creation failed after payment")
}

// cancelOnGateway refunds the charge and settles the intent's final state.
func (s *Service) cancelOnGateway(ctx context.Context, record *intentmodel.PaymentIntent, reason string) error {
	paymentKey := record.PaymentKeyValue()
	if paymentKey == "" {
		// Never charged, nothing to refund.
		_, err := s.repo.MarkCanceled(record.ID)
		if err == nil {
			compensationTotal.WithLabelValues("success").Inc()
		}
		return err
	}

	_, err := s.gateway.Cancel(ctx, paymentKey, reason, record.ExpectedAmount)
	if err != nil && !isAlreadyCanceled(err) {
		compensationTotal.WithLabelValues("fail").Inc()
		s.logger.Error("gateway cancel failed, intent parked for reconciliation",
			"intent_id", record.ID,
			"order_id", record.OrderID,
			"payment_key", paymentKey,
			"error", err)
		if _, markErr := s.repo.MarkCancelFailed(record.ID, "GATEWAY_CANCEL_FAILED", err.Error()); markErr != nil {
			return markErr
		}
		return internal.NewInternalError("failed to cancel payment on gateway", err)
	}

	if _, err := s.repo.MarkCanceled(record.ID); err != nil {
		return internal.NewInternalError("failed to mark intent canceled", err)
	}
	compensationTotal.WithLabelValues("success").Inc()
	s.logger.Info("payment refunded",
		"intent_id", record.ID,
		"order_id", record.OrderID,
		"amount", record.ExpectedAmount)
	return nil
}

// CancelIntent is the user-driven cancel. PREPARED intents cancel locally;
// confirmed ones are refunded through the gateway first.
func (s *Service) CancelIntent(ctx context.Context, intentID, userID int64, reason string) error {
	record, err := s.repo.GetByID(intentID)
	if err != nil {
		return err
	}

	if record.ApplicantID != userID {
		return ErrUnauthorizedAccess
	}

	switch record.Status {
	case intentmodel.StatusCanceled:
		return nil
	case intentmodel.StatusPrepared:
		if _, err := s.repo.MarkCanceled(record.ID); err != nil {
			return internal.NewInternalError("failed to cancel payment intent", err)
		}
		s.logger.Info("payment intent canceled before payment", "intent_id", record.ID, "order_id", record.OrderID)
		return nil
	case intentmodel.StatusConfirmed, intentmodel.StatusApplicationCreated:
		if reason == "" {
			reason = "canceled by applicant"
		}
		return s.cancelOnGateway(ctx, record, reason)
	default:
		return ErrIntentTerminated
	}
}

// ReconcileResult summarizes one reconciliation sweep.
type ReconcileResult struct {
	Scanned  int
	Healed   int
	Canceled int
	Failed   int
}

// ReconcileStuckIntents drains intents that stalled mid-flight: CONFIRMED
// without an application past the grace window, and compensations that never
// finished. Runs from the reconciler command, not the request path.
func (s *Service) ReconcileStuckIntents(ctx context.Context, limit int) (*ReconcileResult, error) {
	cutoff := s.now().Add(-s.config.ReconcileGracePeriod)
	stuck, err := s.repo.FindStuck([]intentmodel.Status{
		intentmodel.StatusConfirmed,
		intentmodel.StatusCancelRequested,
		intentmodel.StatusCancelFailed,
	}, cutoff, limit)
	if err != nil {
		return nil, internal.NewInternalError("failed to scan for stuck intents", err)
	}

	result := &ReconcileResult{Scanned: len(stuck)}
	for _, record := range stuck {
		if err := s.reconcileOne(ctx, record, result); err != nil {
			s.logger.Error("failed to reconcile intent",
				"intent_id", record.ID,
				"order_id", record.OrderID,
				"status", record.Status,
				"error", err)
			result.Failed++
		}
	}

	s.logger.Info("reconciliation sweep finished",
		"scanned", result.Scanned,
		"healed", result.Healed,
		"canceled", result.Canceled,
		"failed", result.Failed)
	return result, nil
}

func (s *Service) reconcileOne(ctx context.Context, record *intentmodel.PaymentIntent, result *ReconcileResult) error {
	app, err := s.apps.FindByOrderID(record.OrderID)
	if err != nil {
		return err
	}
	if app != nil {
		if _, err := s.repo.HealToApplicationCreated(record.ID, record.PaymentKeyValue()); err != nil {
			return err
		}
		result.Healed++
		s.logger.Info("stuck intent healed: application exists",
			"intent_id", record.ID,
			"order_id", record.OrderID,
			"application_id", app.ID)
		return nil
	}

	if err := s.cancelOnGateway(ctx, record, "reconciliation of stalled payment"); err != nil {
		return err
	}
	result.Canceled++
	return nil
}

func (s *Service) newOrderID(partyID, applicantID int64) string {
	suffix := uuid.NewString()[:8]
	return fmt.Sprintf("MATE-%d-%d-%d-%s", partyID, applicantID, s.now().UnixMilli(), suffix)
}

func isAlreadyCanceled(err error) bool {
	type alreadyCanceled interface{ AlreadyCanceled() bool }
	if ac, ok := err.(alreadyCanceled); ok {
		return ac.AlreadyCanceled()
	}
	return false
}

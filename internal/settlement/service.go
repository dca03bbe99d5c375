package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	applicationmodel "github.com/fanmate/platform/internal/core/datamodel/application"
	intentmodel "github.com/fanmate/platform/internal/core/datamodel/intent"
	settlementmodel "github.com/fanmate/platform/internal/core/datamodel/settlement"
	"github.com/fanmate/platform/internal/core/events"
)

// Service links every paid application to a settlement transaction. Nothing
// in here may fail a payment: callers isolate linker errors and the payout
// path swallows its own.
type Service struct {
	repo     Repository
	parties  PartyReader
	payout   PayoutRequester
	eventBus *events.EventBus
	logger   *slog.Logger
}

func NewService(repo Repository, parties PartyReader, payout PayoutRequester, eventBus *events.EventBus, logger *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		parties:  parties,
		payout:   payout,
		eventBus: eventBus,
		logger:   logger,
	}
}

// LinkOnConfirm records the settlement transaction for a paid application and,
// when the application is already approved, asks for the payout. Create-or-get
// by orderId; a concurrent confirm's row is reused.
func (s *Service) LinkOnConfirm(ctx context.Context, app *applicationmodel.PartyApplication, record *intentmodel.PaymentIntent, paymentKey string) (*settlementmodel.SettlementTransaction, error) {
	tx, err := s.createOrGet(app, record, paymentKey)
	if err != nil {
		return nil, err
	}

	if app.IsApproved {
		s.RequestPayoutOnApproval(ctx, tx)
	}
	return tx, nil
}

func (s *Service) createOrGet(app *applicationmodel.PartyApplication, record *intentmodel.PaymentIntent, paymentKey string) (*settlementmodel.SettlementTransaction, error) {
	p, err := s.parties.GetByID(record.PartyID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	tx := &settlementmodel.SettlementTransaction{
		PartyID:          record.PartyID,
		ApplicationID:    app.ID,
		BuyerUserID:      record.ApplicantID,
		SellerUserID:     p.HostID,
		FlowType:         record.FlowType,
		OrderID:          record.OrderID,
		PaymentKey:       paymentKey,
		GrossAmount:      record.ExpectedAmount,
		NetAmount:        record.ExpectedAmount,
		PaymentStatus:    settlementmodel.PaymentPaid,
		SettlementStatus: settlementmodel.SettlementPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Create(tx); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			existing, lookupErr := s.repo.FindByOrderID(record.OrderID)
			if lookupErr == nil && existing != nil {
				return existing, nil
			}
			if lookupErr != nil {
				return nil, lookupErr
			}
		}
		return nil, err
	}

	s.logger.Info("settlement transaction linked",
		"transaction_id", tx.ID,
		"application_id", app.ID,
		"order_id", record.OrderID,
		"gross_amount", tx.GrossAmount)
	return tx, nil
}

// RequestPayoutOnApproval flips PENDING to REQUESTED and hands the settlement
// to the payout subsystem. Payout errors mark the row FAILED and are
// swallowed; payment success never depends on payout plumbing.
func (s *Service) RequestPayoutOnApproval(ctx context.Context, tx *settlementmodel.SettlementTransaction) {
	moved, err := s.repo.MarkRequested(tx.ID)
	if err != nil {
		payoutTotal.WithLabelValues("fail").Inc()
		s.logger.Error("failed to mark settlement requested", "error", err, "transaction_id", tx.ID)
		return
	}
	if !moved {
		// Another caller already requested it.
		return
	}
	tx.SettlementStatus = settlementmodel.SettlementRequested

	if err := s.payout.RequestPayout(ctx, tx); err != nil {
		payoutTotal.WithLabelValues("fail").Inc()
		s.logger.Error("payout request failed",
			"error", err,
			"transaction_id", tx.ID,
			"order_id", tx.OrderID,
			"net_amount", tx.NetAmount)
		if markErr := s.repo.MarkFailed(tx.ID); markErr != nil {
			s.logger.Error("failed to mark settlement failed", "error", markErr, "transaction_id", tx.ID)
		}
		return
	}

	payoutTotal.WithLabelValues("success").Inc()
	if s.eventBus != nil {
		s.eventBus.Publish(ctx, events.NewSettlementRequestedEvent(
			tx.ID, tx.ApplicationID, tx.OrderID, tx.NetAmount))
	}
	s.logger.Info("payout requested",
		"transaction_id", tx.ID,
		"order_id", tx.OrderID,
		"seller_user_id", tx.SellerUserID,
		"net_amount", tx.NetAmount)
}

// RecordRefund reflects a gateway cancel on the settlement ledger.
func (s *Service) RecordRefund(ctx context.Context, orderID string, refundAmount int64) error {
	return s.repo.MarkRefunded(orderID, refundAmount)
}

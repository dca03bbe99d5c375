package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	apperrors "github.com/fanmate/platform/internal"
	applicationmodel "github.com/fanmate/platform/internal/core/datamodel/application"
	intentmodel "github.com/fanmate/platform/internal/core/datamodel/intent"
)

// Service materializes paid applications. It is the convergence point of
// concurrent confirms: whichever caller wins the order_id unique index, every
// caller walks away with the same row.
type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// CreateOrGetPaid inserts the paid application for an order, or returns the
// existing one when a concurrent retry already inserted it. Full purchases
// auto-approve and take their party seat in the same transaction.
func (s *Service) CreateOrGetPaid(ctx context.Context, params CreateParams) (*applicationmodel.PartyApplication, error) {
	now := time.Now()
	app := &applicationmodel.PartyApplication{
		PartyID:       params.PartyID,
		ApplicantID:   params.ApplicantID,
		Message:       params.Message,
		DepositAmount: params.Amount,
		PaymentType:   params.PaymentType,
		OrderID:       params.OrderID,
		PaymentKey:    params.PaymentKey,
		IsPaid:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if params.PaymentType == intentmodel.PaymentFull {
		app.IsApproved = true
		app.ApprovedAt = &now
	}

	err := s.repo.Transaction(func(repo Repository) error {
		if err := repo.Create(app); err != nil {
			return err
		}
		if app.IsApproved {
			if err := repo.TakePartySeat(params.PartyID); err != nil {
				s.logger.Error("failed to take party seat for full purchase",
					"error", err,
					"party_id", params.PartyID,
					"order_id", params.OrderID)
				return err
			}
		}
		return nil
	})
	if err == nil {
		s.logger.Info("application materialized",
			"application_id", app.ID,
			"party_id", params.PartyID,
			"applicant_id", params.ApplicantID,
			"order_id", params.OrderID,
			"payment_type", params.PaymentType)
		return app, nil
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		existing, lookupErr := s.repo.FindByOrderID(params.OrderID)
		if lookupErr != nil {
			return nil, apperrors.NewMaterializationError("failed to load application after duplicate insert", lookupErr)
		}
		if existing != nil {
			s.logger.Info("application already materialized by concurrent confirm",
				"application_id", existing.ID,
				"order_id", params.OrderID)
			return existing, nil
		}
	}

	return nil, apperrors.NewMaterializationError("failed to materialize application", err)
}

// GetByOrderID is the read used by the orchestrator's fast idempotency path.
func (s *Service) GetByOrderID(ctx context.Context, orderID string) (*applicationmodel.PartyApplication, error) {
	return s.repo.FindByOrderID(orderID)
}

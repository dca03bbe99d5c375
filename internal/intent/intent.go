package intent

import (
	"context"
	"time"

	errors "github.com/fanmate/platform/internal"
	applicationmodel "github.com/fanmate/platform/internal/core/datamodel/application"
	gatewaytypes "github.com/fanmate/platform/internal/core/datamodel/gateway"
	intentmodel "github.com/fanmate/platform/internal/core/datamodel/intent"
)

// Repository defines the data access methods for payment intents. Transition
// methods are conditional updates: they report false when the row was not in
// the expected source state, and callers re-read to decide whether that is an
// idempotent no-op or a conflict.
type Repository interface {
	Create(intent *intentmodel.PaymentIntent) error
	GetByID(id int64) (*intentmodel.PaymentIntent, error)
	GetByOrderID(orderID string) (*intentmodel.PaymentIntent, error)
	GetByIDForUpdate(id int64) (*intentmodel.PaymentIntent, error)
	GetByOrderIDForUpdate(orderID string) (*intentmodel.PaymentIntent, error)

	MarkConfirmed(id int64, paymentKey string) (bool, error)
	MarkApplicationCreated(id int64) (bool, error)
	MarkCancelRequested(id int64, failureCode, failureMessage string) (bool, error)
	MarkCanceled(id int64) (bool, error)
	MarkCancelFailed(id int64, failureCode, failureMessage string) (bool, error)
	MarkExpired(id int64) (bool, error)

	// HealToApplicationCreated force-finishes an intent whose application turned
	// out to exist after all. Valid from CONFIRMED, CANCEL_REQUESTED and
	// CANCEL_FAILED.
	HealToApplicationCreated(id int64, paymentKey string) (bool, error)

	FindStuck(statuses []intentmodel.Status, olderThan time.Time, limit int) ([]*intentmodel.PaymentIntent, error)

	// Transaction runs fn against a repository bound to one database
	// transaction.
	Transaction(fn func(Repository) error) error
}

// ApplicationFinder is the narrow application lookup the engine needs for
// healing and prepare preconditions. Missing rows return (nil, nil).
type ApplicationFinder interface {
	FindByOrderID(orderID string) (*applicationmodel.PartyApplication, error)
	HasActiveApplication(partyID, applicantID int64) (bool, error)
	CountPendingForApplicant(applicantID int64) (int64, error)
}

// GatewayCanceler is the slice of the gateway client used by compensation.
type GatewayCanceler interface {
	Cancel(ctx context.Context, paymentKey, reason string, amount int64) (*gatewaytypes.CancelResponse, error)
}

// Pricer computes the server-side amount for a party and flow.
type Pricer interface {
	QuoteForParty(partyID int64, flowType intentmodel.FlowType) (*intentmodel.Quote, error)
}

var (
	ErrIntentNotFound     = errors.ErrIntentNotFound
	ErrUnauthorizedAccess = errors.ErrUnauthorizedAccess
	ErrIntentExpired      = errors.ErrIntentExpired
	ErrIntentTerminated   = errors.ErrIntentTerminated
)

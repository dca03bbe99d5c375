package application

import (
	applicationmodel "github.com/fanmate/platform/internal/core/datamodel/application"
	intentmodel "github.com/fanmate/platform/internal/core/datamodel/intent"
)

// Repository defines the data access methods for party applications.
// FindByOrderID returns (nil, nil) when no row exists; the unique index on
// order_id makes Create fail with gorm.ErrDuplicatedKey for race losers.
// TakePartySeat lives here rather than in the party repository so an
// auto-approved insert and its seat count move in one transaction.
type Repository interface {
	Create(app *applicationmodel.PartyApplication) error
	GetByID(id int64) (*applicationmodel.PartyApplication, error)
	FindByOrderID(orderID string) (*applicationmodel.PartyApplication, error)
	HasActiveApplication(partyID, applicantID int64) (bool, error)
	CountPendingForApplicant(applicantID int64) (int64, error)
	TakePartySeat(partyID int64) error
	Transaction(fn func(Repository) error) error
}

// CreateParams carries everything needed to materialize a paid application.
type CreateParams struct {
	PartyID     int64
	ApplicantID int64
	OrderID     string
	PaymentKey  string
	Amount      int64
	PaymentType intentmodel.PaymentType
	Message     string
}

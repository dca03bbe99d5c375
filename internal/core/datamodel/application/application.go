package application

import (
	"time"

	"github.com/fanmate/platform/internal/core/datamodel/intent"
)

// PartyApplication is the business effect of a successful payment: a paid seat
// in a party. The unique index on order_id is the last line of defense against
// concurrent confirm races creating two applications for one charge.
type PartyApplication struct {
	ID            int64              `gorm:"primaryKey"`
	PartyID       int64              `gorm:"column:party_id;not null"`
	ApplicantID   int64              `gorm:"column:applicant_id;not null"`
	Message       string             `gorm:"column:message;size:500"`
	DepositAmount int64              `gorm:"column:deposit_amount;not null"`
	PaymentType   intent.PaymentType `gorm:"column:payment_type;not null;size:20"`
	OrderID       string             `gorm:"column:order_id;not null;uniqueIndex;size:100"`
	PaymentKey    string             `gorm:"column:payment_key;not null;size:200"`
	IsPaid        bool               `gorm:"column:is_paid;not null;default:false"`
	IsApproved    bool               `gorm:"column:is_approved;not null;default:false"`
	IsRejected    bool               `gorm:"column:is_rejected;not null;default:false"`
	ApprovedAt    *time.Time         `gorm:"column:approved_at"`
	RejectedAt    *time.Time         `gorm:"column:rejected_at"`
	CreatedAt     time.Time          `gorm:"column:created_at"`
	UpdatedAt     time.Time          `gorm:"column:updated_at"`
}

func (PartyApplication) TableName() string {
	return "party_applications"
}

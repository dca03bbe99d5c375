package settlement

import (
	"time"

	"github.com/fanmate/platform/internal/core/datamodel/intent"
)

type PaymentStatus string

const (
	PaymentPaid            PaymentStatus = "PAID"
	PaymentRefundRequested PaymentStatus = "REFUND_REQUESTED"
	PaymentCanceled        PaymentStatus = "CANCELED"
	PaymentRefundFailed    PaymentStatus = "REFUND_FAILED"
)

type SettlementStatus string

const (
	SettlementPending   SettlementStatus = "PENDING"
	SettlementRequested SettlementStatus = "REQUESTED"
	SettlementCompleted SettlementStatus = "COMPLETED"
	SettlementFailed    SettlementStatus = "FAILED"
	SettlementSkipped   SettlementStatus = "SKIPPED"
)

// SettlementTransaction tracks payout eligibility for one paid application.
// Created once per application on confirm; mutated by the settlement linker
// and later by the payout subsystem.
type SettlementTransaction struct {
	ID               int64            `gorm:"primaryKey"`
	PartyID          int64            `gorm:"column:party_id;not null"`
	ApplicationID    int64            `gorm:"column:application_id;not null"`
	BuyerUserID      int64            `gorm:"column:buyer_user_id;not null"`
	SellerUserID     int64            `gorm:"column:seller_user_id;not null"`
	FlowType         intent.FlowType  `gorm:"column:flow_type;not null;size:30"`
	OrderID          string           `gorm:"column:order_id;not null;uniqueIndex;size:100"`
	PaymentKey       string           `gorm:"column:payment_key;not null;uniqueIndex;size:200"`
	GrossAmount      int64            `gorm:"column:gross_amount;not null"`
	FeeAmount        int64            `gorm:"column:fee_amount;not null;default:0"`
	RefundAmount     int64            `gorm:"column:refund_amount;not null;default:0"`
	NetAmount        int64            `gorm:"column:net_amount;not null"`
	PaymentStatus    PaymentStatus    `gorm:"column:payment_status;not null;size:30"`
	SettlementStatus SettlementStatus `gorm:"column:settlement_status;not null;size:30"`
	CreatedAt        time.Time        `gorm:"column:created_at"`
	UpdatedAt        time.Time        `gorm:"column:updated_at"`
}

func (SettlementTransaction) TableName() string {
	return "settlement_transactions"
}

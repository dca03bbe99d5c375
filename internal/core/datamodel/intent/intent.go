package intent

import (
	"time"
)

// Status is the lifecycle marker of a payment intent. Transitions are
// one-directional; ApplicationCreated is never reverted.
type Status string

const (
	StatusPrepared           Status = "PREPARED"
	StatusConfirmed          Status = "CONFIRMED"
	StatusApplicationCreated Status = "APPLICATION_CREATED"
	StatusCancelRequested    Status = "CANCEL_REQUESTED"
	StatusCanceled           Status = "CANCELED"
	StatusCancelFailed       Status = "CANCEL_FAILED"
	StatusExpired            Status = "EXPIRED"
)

// Mode records whether the intent was created through the prepare endpoint or
// lazily for a pre-intent client still sending confirm directly.
type Mode string

const (
	ModePrepared Mode = "PREPARED"
	ModeLegacy   Mode = "LEGACY"
)

// FlowType selects the purchase flow used to price an intent.
type FlowType string

const (
	FlowDeposit     FlowType = "DEPOSIT"
	FlowSellingFull FlowType = "SELLING_FULL"
)

// PaymentType is the application-facing classification derived from FlowType.
type PaymentType string

const (
	PaymentDeposit PaymentType = "DEPOSIT"
	PaymentFull    PaymentType = "FULL"
)

// PaymentTypeFor maps a flow type onto the payment type stored on the intent
// and carried into the application.
func PaymentTypeFor(flowType FlowType) PaymentType {
	if flowType == FlowSellingFull {
		return PaymentFull
	}
	return PaymentDeposit
}

// Quote is the server-side price for joining a party through a given flow.
// Clients never supply amounts; every intent is priced through one of these.
type Quote struct {
	Amount      int64
	Currency    string
	FlowType    FlowType
	PaymentType PaymentType
	OrderName   string
}

// PaymentIntent is one attempted purchase. Rows are never deleted; they are
// the idempotency ledger for every retry of a given order id.
type PaymentIntent struct {
	ID             int64      `gorm:"primaryKey"`
	OrderID        string     `gorm:"column:order_id;not null;uniqueIndex;size:100"`
	PartyID        int64      `gorm:"column:party_id;not null"`
	ApplicantID    int64      `gorm:"column:applicant_id;not null"`
	ExpectedAmount int64      `gorm:"column:expected_amount;not null"`
	Currency       string     `gorm:"column:currency;not null;size:10;default:KRW"`
	FlowType       FlowType   `gorm:"column:flow_type;not null;size:30"`
	PaymentType    PaymentType `gorm:"column:payment_type;not null;size:20"`
	Mode           Mode       `gorm:"column:pay_mode;not null;size:20"`
	Status         Status     `gorm:"column:status;not null;size:30"`
	PaymentKey     *string    `gorm:"column:payment_key;size:200"`
	FailureCode    *string    `gorm:"column:failure_code;size:100"`
	FailureMessage *string    `gorm:"column:failure_message;size:1000"`
	ExpiresAt      *time.Time `gorm:"column:expires_at"`
	ConfirmedAt    *time.Time `gorm:"column:confirmed_at"`
	CanceledAt     *time.Time `gorm:"column:canceled_at"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	UpdatedAt      time.Time  `gorm:"column:updated_at"`
}

func (PaymentIntent) TableName() string {
	return "payment_intents"
}

// IsTerminal reports whether the intent can no longer move toward a paid
// application.
func (p *PaymentIntent) IsTerminal() bool {
	switch p.Status {
	case StatusCanceled, StatusCancelRequested, StatusCancelFailed, StatusExpired:
		return true
	}
	return false
}

// IsExpired reports whether the intent's prepare TTL has elapsed.
func (p *PaymentIntent) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// PaymentKeyValue returns the stored gateway key, or "" while unset.
func (p *PaymentIntent) PaymentKeyValue() string {
	if p.PaymentKey == nil {
		return ""
	}
	return *p.PaymentKey
}

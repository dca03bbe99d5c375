package intent

import (
	intentmodel "github.com/fanmate/platform/internal/core/datamodel/intent"
)

// PrepareParams is the engine-level input for creating a prepared intent.
type PrepareParams struct {
	PartyID     int64
	ApplicantID int64
	FlowType    intentmodel.FlowType
}

// ConfirmParams is everything the client sent with a confirm request, after
// transport-level validation. Optional fields are cross-checked against the
// stored intent when present.
type ConfirmParams struct {
	IntentID   *int64
	OrderID    string
	PaymentKey string
	Amount     *int64
	PartyID    *int64
	FlowType   intentmodel.FlowType
	Message    string
}

// PrepareResult is what the prepare endpoint returns to the client.
type PrepareResult struct {
	IntentID    int64                   `json:"intentId"`
	OrderID     string                  `json:"orderId"`
	Amount      int64                   `json:"amount"`
	Currency    string                  `json:"currency"`
	OrderName   string                  `json:"orderName"`
	FlowType    intentmodel.FlowType    `json:"flowType"`
	PaymentType intentmodel.PaymentType `json:"paymentType"`
	ExpiresAt   string                  `json:"expiresAt"`
}

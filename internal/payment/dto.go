package payment

import (
	"time"

	errors "github.com/fanmate/platform/internal"
	"github.com/fanmate/platform/internal/core/common/validation"
	applicationmodel "github.com/fanmate/platform/internal/core/datamodel/application"
	intentmodel "github.com/fanmate/platform/internal/core/datamodel/intent"
	"github.com/fanmate/platform/internal/intent"
)

// PrepareRequest starts a payment: the client names the party and flow, the
// server answers with the amount and orderId to pay with.
type PrepareRequest struct {
	PartyID  int64  `json:"partyId"`
	FlowType string `json:"flowType"`
}

func (dto PrepareRequest) Validate() error {
	validator := validation.NewValidator()
	validator.Field("partyId", dto.PartyID).Required()
	validator.Field("flowType", dto.FlowType).
		OneOf(string(intentmodel.FlowDeposit), string(intentmodel.FlowSellingFull))

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// FlowTypeOrDefault maps the optional request field onto a flow type.
func (dto PrepareRequest) FlowTypeOrDefault() intentmodel.FlowType {
	if dto.FlowType == "" {
		return intentmodel.FlowDeposit
	}
	return intentmodel.FlowType(dto.FlowType)
}

// ConfirmRequest is what the client sends after the gateway widget succeeds.
// Amount and partyId are cross-checked against the stored intent when present;
// they are never trusted as the price.
type ConfirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	IntentID   *int64 `json:"intentId,omitempty"`
	Amount     *int64 `json:"amount,omitempty"`
	PartyID    *int64 `json:"partyId,omitempty"`
	FlowType   string `json:"flowType,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (dto ConfirmRequest) Validate() error {
	validator := validation.NewValidator()
	validator.Field("paymentKey", dto.PaymentKey).Required().MaxLength(200)
	validator.Field("orderId", dto.OrderID).MaxLength(100)
	validator.Field("message", dto.Message).MaxLength(500)
	validator.Field("flowType", dto.FlowType).
		OneOf(string(intentmodel.FlowDeposit), string(intentmodel.FlowSellingFull))

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	if dto.OrderID == "" && dto.IntentID == nil {
		return errors.NewValidationFieldError("orderId", "orderId or intentId is required", errors.ErrCodeValidationFailed)
	}
	if dto.Amount != nil && *dto.Amount <= 0 {
		return errors.NewValidationFieldError("amount", "amount must be greater than 0", errors.ErrCodeInvalidAmount)
	}
	return nil
}

func (dto ConfirmRequest) toParams() intent.ConfirmParams {
	return intent.ConfirmParams{
		IntentID:   dto.IntentID,
		OrderID:    dto.OrderID,
		PaymentKey: dto.PaymentKey,
		Amount:     dto.Amount,
		PartyID:    dto.PartyID,
		FlowType:   intentmodel.FlowType(dto.FlowType),
		Message:    dto.Message,
	}
}

// CancelRequest is the body of a user-driven intent cancel.
type CancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (dto CancelRequest) Validate() error {
	validator := validation.NewValidator()
	validator.Field("reason", dto.Reason).MaxLength(500)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// ApplicationResponse is the confirm result: the paid application, whether it
// was created by this call or an earlier retry.
type ApplicationResponse struct {
	ApplicationID int64                   `json:"applicationId"`
	PartyID       int64                   `json:"partyId"`
	ApplicantID   int64                   `json:"applicantId"`
	OrderID       string                  `json:"orderId"`
	PaymentKey    string                  `json:"paymentKey"`
	Amount        int64                   `json:"amount"`
	PaymentType   intentmodel.PaymentType `json:"paymentType"`
	IsApproved    bool                    `json:"isApproved"`
	PaidAt        time.Time               `json:"paidAt"`
}

func newApplicationResponse(app *applicationmodel.PartyApplication) *ApplicationResponse {
	return &ApplicationResponse{
		ApplicationID: app.ID,
		PartyID:       app.PartyID,
		ApplicantID:   app.ApplicantID,
		OrderID:       app.OrderID,
		PaymentKey:    app.PaymentKey,
		Amount:        app.DepositAmount,
		PaymentType:   app.PaymentType,
		IsApproved:    app.IsApproved,
		PaidAt:        app.CreatedAt,
	}
}

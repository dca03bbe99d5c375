package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypePaymentConfirmed      = "payment.confirmed"
	EventTypeCompensationRequested = "payment.compensation_requested"
	EventTypeSettlementRequested   = "settlement.requested"
)

type PaymentConfirmedEvent struct {
	BaseEvent
	IntentID      int64  `json:"intent_id"`
	OrderID       string `json:"order_id"`
	PartyID       int64  `json:"party_id"`
	ApplicantID   int64  `json:"applicant_id"`
	ApplicationID int64  `json:"application_id"`
	Amount        int64  `json:"amount"`
	PaymentKey    string `json:"payment_key"`
}

func NewPaymentConfirmedEvent(intentID int64, orderID string, partyID, applicantID, applicationID, amount int64, paymentKey string) *PaymentConfirmedEvent {
	return &PaymentConfirmedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePaymentConfirmed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"intent_id":      intentID,
				"order_id":       orderID,
				"party_id":       partyID,
				"applicant_id":   applicantID,
				"application_id": applicationID,
				"amount":         amount,
				"payment_key":    paymentKey,
			},
		},
		IntentID:      intentID,
		OrderID:       orderID,
		PartyID:       partyID,
		ApplicantID:   applicantID,
		ApplicationID: applicationID,
		Amount:        amount,
		PaymentKey:    paymentKey,
	}
}

type CompensationRequestedEvent struct {
	BaseEvent
	IntentID    int64  `json:"intent_id"`
	OrderID     string `json:"order_id"`
	Amount      int64  `json:"amount"`
	FailureCode string `json:"failure_code"`
}

func NewCompensationRequestedEvent(intentID int64, orderID string, amount int64, failureCode string) *CompensationRequestedEvent {
	return &CompensationRequestedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeCompensationRequested,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"intent_id":    intentID,
				"order_id":     orderID,
				"amount":       amount,
				"failure_code": failureCode,
			},
		},
		IntentID:    intentID,
		OrderID:     orderID,
		Amount:      amount,
		FailureCode: failureCode,
	}
}

type SettlementRequestedEvent struct {
	BaseEvent
	TransactionID int64  `json:"transaction_id"`
	ApplicationID int64  `json:"application_id"`
	OrderID       string `json:"order_id"`
	NetAmount     int64  `json:"net_amount"`
}

func NewSettlementRequestedEvent(transactionID, applicationID int64, orderID string, netAmount int64) *SettlementRequestedEvent {
	return &SettlementRequestedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeSettlementRequested,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"transaction_id": transactionID,
				"application_id": applicationID,
				"order_id":       orderID,
				"net_amount":     netAmount,
			},
		},
		TransactionID: transactionID,
		ApplicationID: applicationID,
		OrderID:       orderID,
		NetAmount:     netAmount,
	}
}

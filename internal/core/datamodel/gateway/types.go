package gateway

// StatusDone is the only gateway status that counts as a completed charge.
const StatusDone = "DONE"

// ConfirmRequest is the payload sent to the gateway confirm endpoint. The
// amount is always the server-computed expected amount, never client input.
type ConfirmRequest struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Amount     int64  `json:"amount"`
}

// ConfirmResponse is the normalized result of a gateway confirmation.
type ConfirmResponse struct {
	PaymentKey  string `json:"paymentKey"`
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"totalAmount"`
	Method      string `json:"method,omitempty"`
}

func (r *ConfirmResponse) IsDone() bool {
	return r != nil && r.Status == StatusDone
}

type CancelRequest struct {
	CancelReason string `json:"cancelReason"`
	CancelAmount int64  `json:"cancelAmount"`
}

type CancelResponse struct {
	PaymentKey string `json:"paymentKey"`
	OrderID    string `json:"orderId"`
	Status     string `json:"status"`
}

// ErrorResponse is the gateway's error body: {"code": "...", "message": "..."}.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

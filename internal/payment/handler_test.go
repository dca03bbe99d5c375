package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"

	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/fanmate/platform/internal"
	gatewaytypes "github.com/fanmate/platform/internal/core/datamodel/gateway"
	intentmodel "github.com/fanmate/platform/internal/core/datamodel/intent"
	"github.com/fanmate/platform/internal/core/events"
	"github.com/fanmate/platform/internal/gateway"
	"github.com/fanmate/platform/internal/intent"
	"github.com/fanmate/platform/internal/payment"
)

func requestWithUser(method, target string, body []byte, userID int64) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(internal.ContextWithUserID(req.Context(), userID))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

var _ = Describe("PaymentHandler", func() {
	var (
		handler      *payment.Handler
		engine       *mockIntentEngine
		materializer *mockMaterializer
		confirmer    *mockGatewayConfirmer
		recorder     *httptest.ResponseRecorder
	)

	BeforeEach(func() {
		engine = &mockIntentEngine{
			record: &intentmodel.PaymentIntent{
				ID:             1,
				OrderID:        "ord-1",
				PartyID:        1,
				ApplicantID:    42,
				ExpectedAmount: 15000,
				Currency:       "KRW",
				FlowType:       intentmodel.FlowDeposit,
				PaymentType:    intentmodel.PaymentDeposit,
				Mode:           intentmodel.ModePrepared,
				Status:         intentmodel.StatusPrepared,
			},
		}
		materializer = newMockMaterializer()
		confirmer = &mockGatewayConfirmer{}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service := payment.NewService(engine, confirmer, materializer, &mockSettlementLinker{},
			events.NewEventBus(logger), logger)
		handler = payment.NewHandler(service, logger)
		recorder = httptest.NewRecorder()
	})

	Describe("PreparePayment", func() {
		It("should return 401 without an authenticated user", func() {
			req := httptest.NewRequest("POST", "/api/v1/payments/prepare", bytes.NewBufferString(`{"partyId":1}`))

			handler.PreparePayment(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusUnauthorized))
		})

		It("should return 400 on a malformed body", func() {
			req := requestWithUser("POST", "/api/v1/payments/prepare", []byte("{not json"), 42)

			handler.PreparePayment(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})

		It("should return the payment parameters with 201", func() {
			engine.prepareResult = &intent.PrepareResult{
				IntentID:  1,
				OrderID:   "MATE-1-42-1700000000000-abcd1234",
				Amount:    15000,
				Currency:  "KRW",
				OrderName: "Jamsil direct viewing party",
			}
			req := requestWithUser("POST", "/api/v1/payments/prepare", []byte(`{"partyId":1,"flowType":"DEPOSIT"}`), 42)

			handler.PreparePayment(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusCreated))
			var resp map[string]interface{}
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["orderId"]).To(Equal("MATE-1-42-1700000000000-abcd1234"))
			Expect(resp["amount"]).To(Equal(float64(15000)))
		})
	})

	Describe("ConfirmPayment", func() {
		It("should return the application with 200", func() {
			req := requestWithUser("POST", "/api/v1/payments/confirm",
				[]byte(`{"paymentKey":"pk-1","orderId":"ord-1"}`), 42)

			handler.ConfirmPayment(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			var resp map[string]interface{}
			Expect(json.Unmarshal(recorder.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["orderId"]).To(Equal("ord-1"))
			Expect(resp["amount"]).To(Equal(float64(15000)))
			Expect(resp["paymentKey"]).To(Equal("pk-1"))
		})

		It("should map a gateway refusal to 402", func() {
			confirmer.confirmError = &gateway.Error{StatusCode: 400, Code: "INVALID_CARD", Message: "card declined"}
			req := requestWithUser("POST", "/api/v1/payments/confirm",
				[]byte(`{"paymentKey":"pk-1","orderId":"ord-1"}`), 42)

			handler.ConfirmPayment(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusPaymentRequired))
		})

		It("should map an amount mismatch to 409", func() {
			confirmer.response = &gatewaytypes.ConfirmResponse{
				PaymentKey: "pk-1", OrderID: "ord-1", Status: gatewaytypes.StatusDone, TotalAmount: 4000,
			}
			req := requestWithUser("POST", "/api/v1/payments/confirm",
				[]byte(`{"paymentKey":"pk-1","orderId":"ord-1"}`), 42)

			handler.ConfirmPayment(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusConflict))
		})

		It("should return 400 when the payment key is missing", func() {
			req := requestWithUser("POST", "/api/v1/payments/confirm",
				[]byte(`{"orderId":"ord-1"}`), 42)

			handler.ConfirmPayment(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("CancelPayment", func() {
		It("should cancel by intent id", func() {
			req := requestWithUser("POST", "/api/v1/payments/1/cancel", []byte(`{"reason":"changed plans"}`), 42)
			req = withURLParam(req, "intentID", "1")

			handler.CancelPayment(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
			Expect(engine.cancelCalls).To(Equal([]int64{1}))
		})

		It("should accept an empty body", func() {
			req := requestWithUser("POST", "/api/v1/payments/1/cancel", nil, 42)
			req = withURLParam(req, "intentID", "1")

			handler.CancelPayment(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusOK))
		})

		It("should reject a non-numeric intent id", func() {
			req := requestWithUser("POST", "/api/v1/payments/abc/cancel", nil, 42)
			req = withURLParam(req, "intentID", "abc")

			handler.CancelPayment(recorder, req)

			Expect(recorder.Code).To(Equal(http.StatusBadRequest))
		})
	})
})

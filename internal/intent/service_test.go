package intent_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	apperrors "github.com/fanmate/platform/internal"
	applicationmodel "github.com/fanmate/platform/internal/core/datamodel/application"
	gatewaytypes "github.com/fanmate/platform/internal/core/datamodel/gateway"
	intentmodel "github.com/fanmate/platform/internal/core/datamodel/intent"
	"github.com/fanmate/platform/internal/core/events"
	"github.com/fanmate/platform/internal/gateway"
	"github.com/fanmate/platform/internal/intent"
)

func TestIntentEngine(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Intent Engine Suite")
}

// Mock intent repository with the same conditional-transition semantics as
// the postgres implementation: a mark succeeds only from its source states.
type mockIntentRepository struct {
	intents     map[int64]*intentmodel.PaymentIntent
	byOrderID   map[string]int64
	nextID      int64
	createError error
	getError    error
	markError   error
}

func newMockIntentRepository() *mockIntentRepository {
	return &mockIntentRepository{
		intents:   make(map[int64]*intentmodel.PaymentIntent),
		byOrderID: make(map[string]int64),
		nextID:    1,
	}
}

func (m *mockIntentRepository) seed(record *intentmodel.PaymentIntent) *intentmodel.PaymentIntent {
	if record.ID == 0 {
		record.ID = m.nextID
		m.nextID++
	} else if record.ID >= m.nextID {
		m.nextID = record.ID + 1
	}
	m.intents[record.ID] = record
	m.byOrderID[record.OrderID] = record.ID
	return record
}

func (m *mockIntentRepository) Create(record *intentmodel.PaymentIntent) error {
	if m.createError != nil {
		return m.createError
	}
	if _, exists := m.byOrderID[record.OrderID]; exists {
		return errors.New("duplicated key not allowed")
	}
	record.ID = m.nextID
	m.nextID++
	stored := *record
	m.intents[record.ID] = &stored
	m.byOrderID[record.OrderID] = record.ID
	return nil
}

func (m *mockIntentRepository) GetByID(id int64) (*intentmodel.PaymentIntent, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	record, exists := m.intents[id]
	if !exists {
		return nil, apperrors.ErrIntentNotFound
	}
	copied := *record
	return &copied, nil
}

func (m *mockIntentRepository) GetByOrderID(orderID string) (*intentmodel.PaymentIntent, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	id, exists := m.byOrderID[orderID]
	if !exists {
		return nil, apperrors.ErrIntentNotFound
	}
	return m.GetByID(id)
}

func (m *mockIntentRepository) GetByIDForUpdate(id int64) (*intentmodel.PaymentIntent, error) {
	return m.GetByID(id)
}

func (m *mockIntentRepository) GetByOrderIDForUpdate(orderID string) (*intentmodel.PaymentIntent, error) {
	return m.GetByOrderID(orderID)
}

func (m *mockIntentRepository) transition(id int64, from []intentmodel.Status, mutate func(*intentmodel.PaymentIntent)) (bool, error) {
	if m.markError != nil {
		return false, m.markError
	}
	record, exists := m.intents[id]
	if !exists {
		return false, nil
	}
	for _, status := range from {
		if record.Status == status {
			mutate(record)
			record.UpdatedAt = time.Now()
			return true, nil
		}
	}
	return false, nil
}

func (m *mockIntentRepository) MarkConfirmed(id int64, paymentKey string) (bool, error) {
	return m.transition(id, []intentmodel.Status{intentmodel.StatusPrepared}, func(r *intentmodel.PaymentIntent) {
		r.Status = intentmodel.StatusConfirmed
		r.PaymentKey = &paymentKey
		now := time.Now()
		r.ConfirmedAt = &now
	})
}

func (m *mockIntentRepository) MarkApplicationCreated(id int64) (bool, error) {
	return m.transition(id, []intentmodel.Status{intentmodel.StatusConfirmed}, func(r *intentmodel.PaymentIntent) {
		r.Status = intentmodel.StatusApplicationCreated
	})
}

func (m *mockIntentRepository) MarkCancelRequested(id int64, failureCode, failureMessage string) (bool, error) {
	return m.transition(id, []intentmodel.Status{intentmodel.StatusPrepared, intentmodel.StatusConfirmed}, func(r *intentmodel.PaymentIntent) {
		r.Status = intentmodel.StatusCancelRequested
		r.FailureCode = &failureCode
		r.FailureMessage = &failureMessage
	})
}

func (m *mockIntentRepository) MarkCanceled(id int64) (bool, error) {
	return m.transition(id, []intentmodel.Status{
		intentmodel.StatusPrepared,
		intentmodel.StatusConfirmed,
		intentmodel.StatusCancelRequested,
		intentmodel.StatusCancelFailed,
		intentmodel.StatusApplicationCreated,
	}, func(r *intentmodel.PaymentIntent) {
		r.Status = intentmodel.StatusCanceled
		now := time.Now()
		r.CanceledAt = &now
	})
}

func (m *mockIntentRepository) MarkCancelFailed(id int64, failureCode, failureMessage string) (bool, error) {
	return m.transition(id, []intentmodel.Status{intentmodel.StatusCancelRequested, intentmodel.StatusConfirmed}, func(r *intentmodel.PaymentIntent) {
		r.Status = intentmodel.StatusCancelFailed
		r.FailureCode = &failureCode
		r.FailureMessage = &failureMessage
	})
}

func (m *mockIntentRepository) MarkExpired(id int64) (bool, error) {
	return m.transition(id, []intentmodel.Status{intentmodel.StatusPrepared}, func(r *intentmodel.PaymentIntent) {
		r.Status = intentmodel.StatusExpired
	})
}

func (m *mockIntentRepository) HealToApplicationCreated(id int64, paymentKey string) (bool, error) {
	return m.transition(id, []intentmodel.Status{
		intentmodel.StatusConfirmed,
		intentmodel.StatusCancelRequested,
		intentmodel.StatusCancelFailed,
	}, func(r *intentmodel.PaymentIntent) {
		r.Status = intentmodel.StatusApplicationCreated
		if paymentKey != "" {
			r.PaymentKey = &paymentKey
		}
	})
}

func (m *mockIntentRepository) FindStuck(statuses []intentmodel.Status, olderThan time.Time, limit int) ([]*intentmodel.PaymentIntent, error) {
	if m.getError != nil {
		return nil, m.getError
	}
	var stuck []*intentmodel.PaymentIntent
	for _, record := range m.intents {
		for _, status := range statuses {
			if record.Status == status && record.UpdatedAt.Before(olderThan) {
				copied := *record
				stuck = append(stuck, &copied)
			}
		}
		if len(stuck) >= limit {
			break
		}
	}
	return stuck, nil
}

func (m *mockIntentRepository) Transaction(fn func(intent.Repository) error) error {
	return fn(m)
}

func (m *mockIntentRepository) statusOf(id int64) intentmodel.Status {
	return m.intents[id].Status
}

type mockApplicationFinder struct {
	appsByOrderID map[string]*applicationmodel.PartyApplication
	hasActive     bool
	pendingCount  int64
	findError     error
}

func newMockApplicationFinder() *mockApplicationFinder {
	return &mockApplicationFinder{
		appsByOrderID: make(map[string]*applicationmodel.PartyApplication),
	}
}

func (m *mockApplicationFinder) FindByOrderID(orderID string) (*applicationmodel.PartyApplication, error) {
	if m.findError != nil {
		return nil, m.findError
	}
	return m.appsByOrderID[orderID], nil
}

func (m *mockApplicationFinder) HasActiveApplication(partyID, applicantID int64) (bool, error) {
	if m.findError != nil {
		return false, m.findError
	}
	return m.hasActive, nil
}

func (m *mockApplicationFinder) CountPendingForApplicant(applicantID int64) (int64, error) {
	if m.findError != nil {
		return 0, m.findError
	}
	return m.pendingCount, nil
}

type cancelCall struct {
	paymentKey string
	reason     string
	amount     int64
}

type mockGatewayCanceler struct {
	calls       []cancelCall
	cancelError error
}

func (m *mockGatewayCanceler) Cancel(ctx context.Context, paymentKey, reason string, amount int64) (*gatewaytypes.CancelResponse, error) {
	m.calls = append(m.calls, cancelCall{paymentKey: paymentKey, reason: reason, amount: amount})
	if m.cancelError != nil {
		return nil, m.cancelError
	}
	return &gatewaytypes.CancelResponse{PaymentKey: paymentKey, Status: "CANCELED"}, nil
}

type mockPricer struct {
	quote      *intentmodel.Quote
	quoteError error
	calls      int
}

func (m *mockPricer) QuoteForParty(partyID int64, flowType intentmodel.FlowType) (*intentmodel.Quote, error) {
	m.calls++
	if m.quoteError != nil {
		return nil, m.quoteError
	}
	quote := *m.quote
	return &quote, nil
}

var _ = Describe("IntentService", func() {
	var (
		service  *intent.Service
		repo     *mockIntentRepository
		apps     *mockApplicationFinder
		canceler *mockGatewayCanceler
		pricer   *mockPricer
		logger   *slog.Logger
		ctx      context.Context
	)

	BeforeEach(func() {
		repo = newMockIntentRepository()
		apps = newMockApplicationFinder()
		canceler = &mockGatewayCanceler{}
		pricer = &mockPricer{
			quote: &intentmodel.Quote{
				Amount:      15000,
				Currency:    "KRW",
				FlowType:    intentmodel.FlowDeposit,
				PaymentType: intentmodel.PaymentDeposit,
				OrderName:   "Jamsil direct viewing party",
			},
		}
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		ctx = context.Background()

		service = intent.NewService(
			repo, apps, canceler, pricer,
			events.NewEventBus(logger),
			apperrors.PaymentConfig{},
			logger,
		)
	})

	seedIntent := func(status intentmodel.Status, mutate ...func(*intentmodel.PaymentIntent)) *intentmodel.PaymentIntent {
		record := &intentmodel.PaymentIntent{
			OrderID:        "MATE-1-42-1700000000000-abcd1234",
			PartyID:        1,
			ApplicantID:    42,
			ExpectedAmount: 15000,
			Currency:       "KRW",
			FlowType:       intentmodel.FlowDeposit,
			PaymentType:    intentmodel.PaymentDeposit,
			Mode:           intentmodel.ModePrepared,
			Status:         status,
			CreatedAt:      time.Now(),
			UpdatedAt:      time.Now(),
		}
		for _, fn := range mutate {
			fn(record)
		}
		return repo.seed(record)
	}

	Describe("PrepareIntent", func() {
		It("should record a prepared intent priced server-side", func() {
			// When
			result, err := service.PrepareIntent(ctx, intent.PrepareParams{
				PartyID:     1,
				ApplicantID: 42,
				FlowType:    intentmodel.FlowDeposit,
			})

			// Then
			Expect(err).ToNot(HaveOccurred())
			Expect(result.IntentID).To(BeNumerically(">", 0))
			Expect(result.Amount).To(Equal(int64(15000)))
			Expect(result.Currency).To(Equal("KRW"))
			Expect(result.OrderName).To(Equal("Jamsil direct viewing party"))
			Expect(result.OrderID).To(HavePrefix("MATE-1-42-"))

			stored, err := repo.GetByID(result.IntentID)
			Expect(err).ToNot(HaveOccurred())
			Expect(stored.Status).To(Equal(intentmodel.StatusPrepared))
			Expect(stored.Mode).To(Equal(intentmodel.ModePrepared))
			Expect(stored.ExpiresAt).ToNot(BeNil())
			Expect(*stored.ExpiresAt).To(BeTemporally("~", time.Now().Add(30*time.Minute), 5*time.Second))
		})

		It("should generate a distinct order id per prepare", func() {
			first, err := service.PrepareIntent(ctx, intent.PrepareParams{PartyID: 1, ApplicantID: 42, FlowType: intentmodel.FlowDeposit})
			Expect(err).ToNot(HaveOccurred())
			second, err := service.PrepareIntent(ctx, intent.PrepareParams{PartyID: 1, ApplicantID: 42, FlowType: intentmodel.FlowDeposit})
			Expect(err).ToNot(HaveOccurred())

			Expect(first.OrderID).ToNot(Equal(second.OrderID))
		})

		Context("when the applicant already has an application for the party", func() {
			It("should reject with a conflict", func() {
				apps.hasActive = true

				_, err := service.PrepareIntent(ctx, intent.PrepareParams{PartyID: 1, ApplicantID: 42, FlowType: intentmodel.FlowDeposit})

				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.StatusCode).To(Equal(409))
			})
		})

		Context("when the applicant is at the pending cap", func() {
			It("should reject with a conflict", func() {
				apps.pendingCount = 10

				_, err := service.PrepareIntent(ctx, intent.PrepareParams{PartyID: 1, ApplicantID: 42, FlowType: intentmodel.FlowDeposit})

				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.StatusCode).To(Equal(409))
			})
		})

		Context("when pricing fails", func() {
			It("should propagate the pricing error", func() {
				pricer.quoteError = apperrors.ErrPartyFull

				_, err := service.PrepareIntent(ctx, intent.PrepareParams{PartyID: 1, ApplicantID: 42, FlowType: intentmodel.FlowDeposit})

				Expect(err).To(Equal(apperrors.ErrPartyFull))
			})
		})
	})

	Describe("ResolveIntentForConfirm", func() {
		It("should resolve a prepared intent by id", func() {
			record := seedIntent(intentmodel.StatusPrepared)

			resolved, err := service.ResolveIntentForConfirm(ctx, intent.ConfirmParams{
				IntentID:   &record.ID,
				PaymentKey: "pk-1",
			}, 42)

			Expect(err).ToNot(HaveOccurred())
			Expect(resolved.ID).To(Equal(record.ID))
			Expect(resolved.ExpectedAmount).To(Equal(int64(15000)))
		})

		It("should resolve a prepared intent by order id", func() {
			record := seedIntent(intentmodel.StatusPrepared)

			resolved, err := service.ResolveIntentForConfirm(ctx, intent.ConfirmParams{
				OrderID:    record.OrderID,
				PaymentKey: "pk-1",
			}, 42)

			Expect(err).ToNot(HaveOccurred())
			Expect(resolved.ID).To(Equal(record.ID))
		})

		Context("when no intent exists for the order id", func() {
			It("should create a legacy intent priced server-side when a party is given", func() {
				partyID := int64(7)

				resolved, err := service.ResolveIntentForConfirm(ctx, intent.ConfirmParams{
					OrderID:    "legacy-ord-1",
					PaymentKey: "pk-1",
					PartyID:    &partyID,
				}, 42)

				Expect(err).ToNot(HaveOccurred())
				Expect(resolved.Mode).To(Equal(intentmodel.ModeLegacy))
				Expect(resolved.PartyID).To(Equal(partyID))
				Expect(resolved.ExpectedAmount).To(Equal(int64(15000)))
				Expect(resolved.ApplicantID).To(Equal(int64(42)))
			})

			It("should reject when no party id accompanies the unknown order", func() {
				_, err := service.ResolveIntentForConfirm(ctx, intent.ConfirmParams{
					OrderID:    "legacy-ord-1",
					PaymentKey: "pk-1",
				}, 42)

				Expect(err).To(Equal(apperrors.ErrIntentNotFound))
			})

			It("should ignore the client amount when creating a legacy intent", func() {
				partyID := int64(7)
				clientAmount := int64(15000)

				resolved, err := service.ResolveIntentForConfirm(ctx, intent.ConfirmParams{
					OrderID:    "legacy-ord-2",
					PaymentKey: "pk-1",
					PartyID:    &partyID,
					Amount:     &clientAmount,
				}, 42)

				Expect(err).ToNot(HaveOccurred())
				Expect(resolved.ExpectedAmount).To(Equal(pricer.quote.Amount))
			})
		})

		Context("when the caller does not own the intent", func() {
			It("should reject with forbidden", func() {
				record := seedIntent(intentmodel.StatusPrepared)

				_, err := service.ResolveIntentForConfirm(ctx, intent.ConfirmParams{
					IntentID:   &record.ID,
					PaymentKey: "pk-1",
				}, 99)

				Expect(err).To(Equal(apperrors.ErrUnauthorizedAccess))
			})
		})

		Context("when the request disagrees with the stored intent", func() {
			It("should reject an amount mismatch", func() {
				record := seedIntent(intentmodel.StatusPrepared)
				wrongAmount := int64(999)

				_, err := service.ResolveIntentForConfirm(ctx, intent.ConfirmParams{
					IntentID:   &record.ID,
					PaymentKey: "pk-1",
					Amount:     &wrongAmount,
				}, 42)

				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodeAmountMismatch))
			})

			It("should reject a party mismatch", func() {
				record := seedIntent(intentmodel.StatusPrepared)
				wrongParty := int64(2)

				_, err := service.ResolveIntentForConfirm(ctx, intent.ConfirmParams{
					IntentID:   &record.ID,
					PaymentKey: "pk-1",
					PartyID:    &wrongParty,
				}, 42)

				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodePaymentConflict))
			})

			It("should reject a flow type mismatch", func() {
				record := seedIntent(intentmodel.StatusPrepared)

				_, err := service.ResolveIntentForConfirm(ctx, intent.ConfirmParams{
					IntentID:   &record.ID,
					PaymentKey: "pk-1",
					FlowType:   intentmodel.FlowSellingFull,
				}, 42)

				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodePaymentConflict))
				Expect(repo.statusOf(record.ID)).To(Equal(intentmodel.StatusPrepared))
			})

			It("should accept a confirm that restates the prepared flow type", func() {
				record := seedIntent(intentmodel.StatusPrepared)

				resolved, err := service.ResolveIntentForConfirm(ctx, intent.ConfirmParams{
					IntentID:   &record.ID,
					PaymentKey: "pk-1",
					FlowType:   intentmodel.FlowDeposit,
				}, 42)

				Expect(err).ToNot(HaveOccurred())
				Expect(resolved.FlowType).To(Equal(intentmodel.FlowDeposit))
			})

			It("should reject a different payment key for an already keyed intent", func() {
				storedKey := "pk-original"
				record := seedIntent(intentmodel.StatusConfirmed, func(r *intentmodel.PaymentIntent) {
					r.PaymentKey = &storedKey
				})

				_, err := service.ResolveIntentForConfirm(ctx, intent.ConfirmParams{
					IntentID:   &record.ID,
					PaymentKey: "pk-other",
				}, 42)

				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodePaymentConflict))
			})
		})

		Context("when the intent expired before the confirm arrived", func() {
			It("should expire the row and reject", func() {
				past := time.Now().Add(-time.Minute)
				record := seedIntent(intentmodel.StatusPrepared, func(r *intentmodel.PaymentIntent) {
					r.ExpiresAt = &past
				})

				_, err := service.ResolveIntentForConfirm(ctx, intent.ConfirmParams{
					IntentID:   &record.ID,
					PaymentKey: "pk-1",
				}, 42)

				Expect(err).To(Equal(apperrors.ErrIntentExpired))
				Expect(repo.statusOf(record.ID)).To(Equal(intentmodel.StatusExpired))
			})
		})

		Context("when the intent is already terminated", func() {
			It("should reject a canceled intent", func() {
				record := seedIntent(intentmodel.StatusCanceled)

				_, err := service.ResolveIntentForConfirm(ctx, intent.ConfirmParams{
					IntentID:   &record.ID,
					PaymentKey: "pk-1",
				}, 42)

				Expect(err).To(Equal(apperrors.ErrIntentTerminated))
			})
		})

		Context("when the party price drifted since prepare", func() {
			It("should reject the stale prepared intent", func() {
				record := seedIntent(intentmodel.StatusPrepared)
				pricer.quote.Amount = 20000

				_, err := service.ResolveIntentForConfirm(ctx, intent.ConfirmParams{
					IntentID:   &record.ID,
					PaymentKey: "pk-1",
				}, 42)

				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.Code).To(Equal(apperrors.ErrCodeAmountMismatch))
			})

			It("should not reprice an already confirmed intent", func() {
				storedKey := "pk-1"
				record := seedIntent(intentmodel.StatusConfirmed, func(r *intentmodel.PaymentIntent) {
					r.PaymentKey = &storedKey
				})
				pricer.quote.Amount = 20000

				resolved, err := service.ResolveIntentForConfirm(ctx, intent.ConfirmParams{
					IntentID:   &record.ID,
					PaymentKey: "pk-1",
				}, 42)

				Expect(err).ToNot(HaveOccurred())
				Expect(resolved.ExpectedAmount).To(Equal(int64(15000)))
			})
		})
	})

	Describe("MarkConfirmed", func() {
		It("should move a prepared intent to confirmed with the gateway key", func() {
			record := seedIntent(intentmodel.StatusPrepared)

			err := service.MarkConfirmed(ctx, record, "pk-1")

			Expect(err).ToNot(HaveOccurred())
			Expect(record.Status).To(Equal(intentmodel.StatusConfirmed))
			Expect(record.PaymentKeyValue()).To(Equal("pk-1"))
			Expect(repo.statusOf(record.ID)).To(Equal(intentmodel.StatusConfirmed))
		})

		It("should be a no-op when already confirmed", func() {
			storedKey := "pk-1"
			record := seedIntent(intentmodel.StatusConfirmed, func(r *intentmodel.PaymentIntent) {
				r.PaymentKey = &storedKey
			})

			err := service.MarkConfirmed(ctx, record, "pk-1")

			Expect(err).ToNot(HaveOccurred())
			Expect(repo.statusOf(record.ID)).To(Equal(intentmodel.StatusConfirmed))
		})

		Context("when a concurrent caller already moved the row", func() {
			It("should accept the transition when the row reached confirmed", func() {
				record := seedIntent(intentmodel.StatusPrepared)
				// Simulate the race: the row moved after this caller read it.
				_, err := repo.MarkConfirmed(record.ID, "pk-1")
				Expect(err).ToNot(HaveOccurred())

				err = service.MarkConfirmed(ctx, record, "pk-1")

				Expect(err).ToNot(HaveOccurred())
			})

			It("should report a conflict when the row was canceled underneath", func() {
				record := seedIntent(intentmodel.StatusPrepared)
				_, err := repo.MarkCanceled(record.ID)
				Expect(err).ToNot(HaveOccurred())

				err = service.MarkConfirmed(ctx, record, "pk-1")

				appErr, ok := apperrors.IsAppError(err)
				Expect(ok).To(BeTrue())
				Expect(appErr.StatusCode).To(Equal(409))
			})
		})
	})

	Describe("MarkApplicationCreated", func() {
		It("should finish a confirmed intent", func() {
			record := seedIntent(intentmodel.StatusConfirmed)

			err := service.MarkApplicationCreated(ctx, record)

			Expect(err).ToNot(HaveOccurred())
			Expect(repo.statusOf(record.ID)).To(Equal(intentmodel.StatusApplicationCreated))
		})

		It("should be a no-op when already finished", func() {
			record := seedIntent(intentmodel.StatusApplicationCreated)

			err := service.MarkApplicationCreated(ctx, record)

			Expect(err).ToNot(HaveOccurred())
		})
	})

	Describe("CompensateAfterApplicationFailure", func() {
		It("should heal the intent when the application exists after all", func() {
			storedKey := "pk-1"
			record := seedIntent(intentmodel.StatusConfirmed, func(r *intentmodel.PaymentIntent) {
				r.PaymentKey = &storedKey
			})
			apps.appsByOrderID[record.OrderID] = &applicationmodel.PartyApplication{ID: 5, OrderID: record.OrderID}

			err := service.CompensateAfterApplicationFailure(ctx, record.ID, errors.New("insert timeout"))

			Expect(err).ToNot(HaveOccurred())
			Expect(repo.statusOf(record.ID)).To(Equal(intentmodel.StatusApplicationCreated))
			Expect(canceler.calls).To(BeEmpty())
		})

		It("should refund through the gateway and cancel the intent", func() {
			storedKey := "pk-1"
			record := seedIntent(intentmodel.StatusConfirmed, func(r *intentmodel.PaymentIntent) {
				r.PaymentKey = &storedKey
			})

			err := service.CompensateAfterApplicationFailure(ctx, record.ID, errors.New("insert timeout"))

			Expect(err).ToNot(HaveOccurred())
			Expect(repo.statusOf(record.ID)).To(Equal(intentmodel.StatusCanceled))
			Expect(canceler.calls).To(HaveLen(1))
			Expect(canceler.calls[0].paymentKey).To(Equal("pk-1"))
			Expect(canceler.calls[0].amount).To(Equal(int64(15000)))
		})

		It("should record the failure cause on the intent", func() {
			storedKey := "pk-1"
			record := seedIntent(intentmodel.StatusConfirmed, func(r *intentmodel.PaymentIntent) {
				r.PaymentKey = &storedKey
			})

			err := service.CompensateAfterApplicationFailure(ctx, record.ID, errors.New("insert timeout"))

			Expect(err).ToNot(HaveOccurred())
			stored := repo.intents[record.ID]
			Expect(stored.FailureCode).ToNot(BeNil())
			Expect(*stored.FailureCode).To(Equal("APPLICATION_CREATE_FAILED"))
			Expect(*stored.FailureMessage).To(ContainSubstring("insert timeout"))
		})

		It("should cancel locally when the intent was never charged", func() {
			record := seedIntent(intentmodel.StatusConfirmed)

			err := service.CompensateAfterApplicationFailure(ctx, record.ID, errors.New("insert timeout"))

			Expect(err).ToNot(HaveOccurred())
			Expect(repo.statusOf(record.ID)).To(Equal(intentmodel.StatusCanceled))
			Expect(canceler.calls).To(BeEmpty())
		})

		It("should park the intent in cancel failed when the refund fails", func() {
			storedKey := "pk-1"
			record := seedIntent(intentmodel.StatusConfirmed, func(r *intentmodel.PaymentIntent) {
				r.PaymentKey = &storedKey
			})
			canceler.cancelError = errors.New("gateway timeout")

			err := service.CompensateAfterApplicationFailure(ctx, record.ID, errors.New("insert timeout"))

			Expect(err).To(HaveOccurred())
			Expect(repo.statusOf(record.ID)).To(Equal(intentmodel.StatusCancelFailed))
		})

		It("should treat an already canceled payment as refunded", func() {
			storedKey := "pk-1"
			record := seedIntent(intentmodel.StatusConfirmed, func(r *intentmodel.PaymentIntent) {
				r.PaymentKey = &storedKey
			})
			canceler.cancelError = &gateway.Error{
				StatusCode: 409,
				Code:       "ALREADY_CANCELED_PAYMENT",
				Message:    "already canceled",
			}

			err := service.CompensateAfterApplicationFailure(ctx, record.ID, errors.New("insert timeout"))

			Expect(err).ToNot(HaveOccurred())
			Expect(repo.statusOf(record.ID)).To(Equal(intentmodel.StatusCanceled))
		})

		It("should skip when the intent is not in a compensatable state", func() {
			record := seedIntent(intentmodel.StatusCanceled)

			err := service.CompensateAfterApplicationFailure(ctx, record.ID, errors.New("insert timeout"))

			Expect(err).ToNot(HaveOccurred())
			Expect(repo.statusOf(record.ID)).To(Equal(intentmodel.StatusCanceled))
			Expect(canceler.calls).To(BeEmpty())
		})
	})

	Describe("CancelIntent", func() {
		It("should reject a caller who does not own the intent", func() {
			record := seedIntent(intentmodel.StatusPrepared)

			err := service.CancelIntent(ctx, record.ID, 99, "changed my mind")

			Expect(err).To(Equal(apperrors.ErrUnauthorizedAccess))
		})

		It("should be a no-op on an already canceled intent", func() {
			record := seedIntent(intentmodel.StatusCanceled)

			err := service.CancelIntent(ctx, record.ID, 42, "")

			Expect(err).ToNot(HaveOccurred())
			Expect(canceler.calls).To(BeEmpty())
		})

		It("should cancel a prepared intent without touching the gateway", func() {
			record := seedIntent(intentmodel.StatusPrepared)

			err := service.CancelIntent(ctx, record.ID, 42, "")

			Expect(err).ToNot(HaveOccurred())
			Expect(repo.statusOf(record.ID)).To(Equal(intentmodel.StatusCanceled))
			Expect(canceler.calls).To(BeEmpty())
		})

		It("should refund a confirmed intent through the gateway", func() {
			storedKey := "pk-1"
			record := seedIntent(intentmodel.StatusConfirmed, func(r *intentmodel.PaymentIntent) {
				r.PaymentKey = &storedKey
			})

			err := service.CancelIntent(ctx, record.ID, 42, "changed my mind")

			Expect(err).ToNot(HaveOccurred())
			Expect(repo.statusOf(record.ID)).To(Equal(intentmodel.StatusCanceled))
			Expect(canceler.calls).To(HaveLen(1))
			Expect(canceler.calls[0].reason).To(Equal("changed my mind"))
		})

		It("should reject an expired intent", func() {
			record := seedIntent(intentmodel.StatusExpired)

			err := service.CancelIntent(ctx, record.ID, 42, "")

			Expect(err).To(Equal(apperrors.ErrIntentTerminated))
		})
	})

	Describe("ReconcileStuckIntents", func() {
		stale := func(r *intentmodel.PaymentIntent) {
			r.UpdatedAt = time.Now().Add(-time.Hour)
		}

		It("should heal a stalled confirmed intent whose application exists", func() {
			storedKey := "pk-1"
			record := seedIntent(intentmodel.StatusConfirmed, stale, func(r *intentmodel.PaymentIntent) {
				r.PaymentKey = &storedKey
			})
			apps.appsByOrderID[record.OrderID] = &applicationmodel.PartyApplication{ID: 5, OrderID: record.OrderID}

			result, err := service.ReconcileStuckIntents(ctx, 50)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Scanned).To(Equal(1))
			Expect(result.Healed).To(Equal(1))
			Expect(repo.statusOf(record.ID)).To(Equal(intentmodel.StatusApplicationCreated))
		})

		It("should refund a stalled confirmed intent without an application", func() {
			storedKey := "pk-1"
			record := seedIntent(intentmodel.StatusConfirmed, stale, func(r *intentmodel.PaymentIntent) {
				r.PaymentKey = &storedKey
			})

			result, err := service.ReconcileStuckIntents(ctx, 50)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Canceled).To(Equal(1))
			Expect(repo.statusOf(record.ID)).To(Equal(intentmodel.StatusCanceled))
			Expect(canceler.calls).To(HaveLen(1))
		})

		It("should retry a previously failed compensation", func() {
			storedKey := "pk-1"
			record := seedIntent(intentmodel.StatusCancelFailed, stale, func(r *intentmodel.PaymentIntent) {
				r.PaymentKey = &storedKey
			})

			result, err := service.ReconcileStuckIntents(ctx, 50)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Canceled).To(Equal(1))
			Expect(repo.statusOf(record.ID)).To(Equal(intentmodel.StatusCanceled))
		})

		It("should count intents that still cannot be refunded", func() {
			storedKey := "pk-1"
			seedIntent(intentmodel.StatusConfirmed, stale, func(r *intentmodel.PaymentIntent) {
				r.PaymentKey = &storedKey
			})
			canceler.cancelError = errors.New("gateway down")

			result, err := service.ReconcileStuckIntents(ctx, 50)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Failed).To(Equal(1))
			Expect(result.Canceled).To(Equal(0))
		})

		It("should leave recently updated intents alone", func() {
			seedIntent(intentmodel.StatusConfirmed)

			result, err := service.ReconcileStuckIntents(ctx, 50)

			Expect(err).ToNot(HaveOccurred())
			Expect(result.Scanned).To(Equal(0))
		})
	})
})

var _ = Describe("order id format", func() {
	It("should carry party, applicant and a random suffix", func() {
		repo := newMockIntentRepository()
		apps := newMockApplicationFinder()
		pricer := &mockPricer{quote: &intentmodel.Quote{Amount: 15000, Currency: "KRW", FlowType: intentmodel.FlowDeposit, PaymentType: intentmodel.PaymentDeposit}}
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		service := intent.NewService(repo, apps, &mockGatewayCanceler{}, pricer, events.NewEventBus(logger), apperrors.PaymentConfig{}, logger)

		result, err := service.PrepareIntent(context.Background(), intent.PrepareParams{PartyID: 12, ApplicantID: 34, FlowType: intentmodel.FlowDeposit})

		Expect(err).ToNot(HaveOccurred())
		parts := strings.Split(result.OrderID, "-")
		Expect(len(parts)).To(Equal(5))
		Expect(parts[0]).To(Equal("MATE"))
		Expect(parts[1]).To(Equal("12"))
		Expect(parts[2]).To(Equal("34"))
		Expect(parts[4]).To(HaveLen(8))
	})
})

package party

import (
	"fmt"
	"log/slog"

	errors "github.com/fanmate/platform/internal"
	intentmodel "github.com/fanmate/platform/internal/core/datamodel/intent"
	partymodel "github.com/fanmate/platform/internal/core/datamodel/party"
)

// PricingService computes the expected amount for a party and flow type.
// Every intent is priced through here; client-sent amounts are only ever
// cross-checked, never trusted.
type PricingService struct {
	repo          Repository
	depositAmount int64
	logger        *slog.Logger
}

func NewPricingService(repo Repository, depositAmount int64, logger *slog.Logger) *PricingService {
	return &PricingService{
		repo:          repo,
		depositAmount: depositAmount,
		logger:        logger,
	}
}

// QuoteForParty prices a purchase and checks the party can accept it. For the
// deposit flow the buyer pays ticket price plus the platform deposit; for a
// full sale the buyer pays the listed price.
func (s *PricingService) QuoteForParty(partyID int64, flowType intentmodel.FlowType) (*intentmodel.Quote, error) {
	p, err := s.repo.GetByID(partyID)
	if err != nil {
		s.logger.Error("failed to load party for pricing", "error", err, "party_id", partyID)
		return nil, ErrPartyNotFound
	}
	return s.quote(p, flowType)
}

func (s *PricingService) quote(p *partymodel.Party, flowType intentmodel.FlowType) (*intentmodel.Quote, error) {
	switch flowType {
	case intentmodel.FlowDeposit:
		if p.Status != partymodel.StatusRecruiting {
			s.logger.Warn("deposit flow rejected: party not recruiting",
				"party_id", p.ID,
				"status", p.Status)
			return nil, ErrInvalidPartyState
		}
		if p.IsFull() {
			return nil, ErrPartyFull
		}
		if p.TicketPrice == nil || *p.TicketPrice < 0 {
			return nil, errors.NewValidationError("party has no ticket price", errors.ErrCodeInvalidAmount)
		}
		return &intentmodel.Quote{
			Amount:      *p.TicketPrice + s.depositAmount,
			Currency:    "KRW",
			FlowType:    flowType,
			PaymentType: intentmodel.PaymentTypeFor(flowType),
			OrderName:   s.orderName(p),
		}, nil

	case intentmodel.FlowSellingFull:
		if p.Status != partymodel.StatusSelling {
			s.logger.Warn("full purchase rejected: party not selling",
				"party_id", p.ID,
				"status", p.Status)
			return nil, ErrInvalidPartyState
		}
		if p.Price == nil || *p.Price <= 0 {
			return nil, errors.NewValidationError("party has no selling price", errors.ErrCodeInvalidAmount)
		}
		return &intentmodel.Quote{
			Amount:      *p.Price,
			Currency:    "KRW",
			FlowType:    flowType,
			PaymentType: intentmodel.PaymentTypeFor(flowType),
			OrderName:   s.orderName(p),
		}, nil

	default:
		return nil, errors.NewValidationError(fmt.Sprintf("unknown flow type: %s", flowType), errors.ErrCodeValidationFailed)
	}
}

func (s *PricingService) orderName(p *partymodel.Party) string {
	if p.Stadium != "" {
		return fmt.Sprintf("%s direct viewing party", p.Stadium)
	}
	return p.Title
}

package settlement

import (
	"context"

	partymodel "github.com/fanmate/platform/internal/core/datamodel/party"
	settlementmodel "github.com/fanmate/platform/internal/core/datamodel/settlement"
)

// Repository defines the data access methods for settlement transactions.
// FindByOrderID returns (nil, nil) when no row exists.
type Repository interface {
	Create(tx *settlementmodel.SettlementTransaction) error
	FindByOrderID(orderID string) (*settlementmodel.SettlementTransaction, error)
	MarkRequested(id int64) (bool, error)
	MarkFailed(id int64) error
	MarkRefunded(orderID string, refundAmount int64) error
}

// PartyReader resolves the seller side of a settlement.
type PartyReader interface {
	GetByID(id int64) (*partymodel.Party, error)
}

// PayoutRequester hands an eligible settlement to the payout subsystem.
type PayoutRequester interface {
	RequestPayout(ctx context.Context, tx *settlementmodel.SettlementTransaction) error
}

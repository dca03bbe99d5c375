package settlement

import (
	"context"
	"log/slog"

	settlementmodel "github.com/fanmate/platform/internal/core/datamodel/settlement"
)

// LoggingPayoutRequester records payout requests without moving money. The
// production payout rail plugs in behind the PayoutRequester interface.
type LoggingPayoutRequester struct {
	logger *slog.Logger
}

func NewLoggingPayoutRequester(logger *slog.Logger) *LoggingPayoutRequester {
	return &LoggingPayoutRequester{logger: logger}
}

func (r *LoggingPayoutRequester) RequestPayout(ctx context.Context, tx *settlementmodel.SettlementTransaction) error {
	r.logger.Info("payout request recorded",
		"transaction_id", tx.ID,
		"order_id", tx.OrderID,
		"seller_user_id", tx.SellerUserID,
		"net_amount", tx.NetAmount)
	return nil
}

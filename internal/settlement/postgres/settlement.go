package postgres

import (
	"time"

	"gorm.io/gorm"

	settlementmodel "github.com/fanmate/platform/internal/core/datamodel/settlement"
	"github.com/fanmate/platform/internal/settlement"
)

// SettlementRepository implements the settlement.Repository interface using GORM
type SettlementRepository struct {
	db *gorm.DB
}

func NewSettlementRepository(db *gorm.DB) settlement.Repository {
	return &SettlementRepository{db: db}
}

func (r *SettlementRepository) Create(tx *settlementmodel.SettlementTransaction) error {
	return r.db.Create(tx).Error
}

func (r *SettlementRepository) FindByOrderID(orderID string) (*settlementmodel.SettlementTransaction, error) {
	var tx settlementmodel.SettlementTransaction
	err := r.db.Where("order_id = ?", orderID).First(&tx).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &tx, nil
}

func (r *SettlementRepository) MarkRequested(id int64) (bool, error) {
	result := r.db.Model(&settlementmodel.SettlementTransaction{}).
		Where("id = ? AND settlement_status = ?", id, settlementmodel.SettlementPending).
		Updates(map[string]interface{}{
			"settlement_status": settlementmodel.SettlementRequested,
			"updated_at":        time.Now(),
		})
	return result.RowsAffected > 0, result.Error
}

func (r *SettlementRepository) MarkFailed(id int64) error {
	return r.db.Model(&settlementmodel.SettlementTransaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"settlement_status": settlementmodel.SettlementFailed,
			"updated_at":        time.Now(),
		}).Error
}

func (r *SettlementRepository) MarkRefunded(orderID string, refundAmount int64) error {
	return r.db.Model(&settlementmodel.SettlementTransaction{}).
		Where("order_id = ?", orderID).
		Updates(map[string]interface{}{
			"payment_status":    settlementmodel.PaymentCanceled,
			"refund_amount":     refundAmount,
			"net_amount":        gorm.Expr("gross_amount - fee_amount - ?", refundAmount),
			"settlement_status": settlementmodel.SettlementSkipped,
			"updated_at":        time.Now(),
		}).Error
}

package postgres

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	intentmodel "github.com/fanmate/platform/internal/core/datamodel/intent"
	"github.com/fanmate/platform/internal/intent"
)

// IntentRepository implements the intent.Repository interface using GORM.
// Transitions are conditional single-statement updates so concurrent callers
// race on the database row, not on application state.
type IntentRepository struct {
	db *gorm.DB
}

func NewIntentRepository(db *gorm.DB) intent.Repository {
	return &IntentRepository{db: db}
}

func (r *IntentRepository) Create(record *intentmodel.PaymentIntent) error {
	return r.db.Create(record).Error
}

func (r *IntentRepository) GetByID(id int64) (*intentmodel.PaymentIntent, error) {
	var record intentmodel.PaymentIntent
	err := r.db.Where("id = ?", id).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, intent.ErrIntentNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *IntentRepository) GetByOrderID(orderID string) (*intentmodel.PaymentIntent, error) {
	var record intentmodel.PaymentIntent
	err := r.db.Where("order_id = ?", orderID).First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, intent.ErrIntentNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *IntentRepository) GetByIDForUpdate(id int64) (*intentmodel.PaymentIntent, error) {
	var record intentmodel.PaymentIntent
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, intent.ErrIntentNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *IntentRepository) GetByOrderIDForUpdate(orderID string) (*intentmodel.PaymentIntent, error) {
	var record intentmodel.PaymentIntent
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("order_id = ?", orderID).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, intent.ErrIntentNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *IntentRepository) MarkConfirmed(id int64, paymentKey string) (bool, error) {
	now := time.Now()
	result := r.db.Model(&intentmodel.PaymentIntent{}).
		Where("id = ? AND status = ?", id, intentmodel.StatusPrepared).
		Updates(map[string]interface{}{
			"status":       intentmodel.StatusConfirmed,
			"payment_key":  paymentKey,
			"confirmed_at": now,
			"updated_at":   now,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *IntentRepository) MarkApplicationCreated(id int64) (bool, error) {
	result := r.db.Model(&intentmodel.PaymentIntent{}).
		Where("id = ? AND status = ?", id, intentmodel.StatusConfirmed).
		Updates(map[string]interface{}{
			"status":     intentmodel.StatusApplicationCreated,
			"updated_at": time.Now(),
		})
	return result.RowsAffected > 0, result.Error
}

func (r *IntentRepository) MarkCancelRequested(id int64, failureCode, failureMessage string) (bool, error) {
	result := r.db.Model(&intentmodel.PaymentIntent{}).
		Where("id = ? AND status IN ?", id, []intentmodel.Status{
			intentmodel.StatusPrepared,
			intentmodel.StatusConfirmed,
		}).
		Updates(map[string]interface{}{
			"status":          intentmodel.StatusCancelRequested,
			"failure_code":    failureCode,
			"failure_message": failureMessage,
			"updated_at":      time.Now(),
		})
	return result.RowsAffected > 0, result.Error
}

func (r *IntentRepository) MarkCanceled(id int64) (bool, error) {
	now := time.Now()
	result := r.db.Model(&intentmodel.PaymentIntent{}).
		Where("id = ? AND status IN ?", id, []intentmodel.Status{
			intentmodel.StatusPrepared,
			intentmodel.StatusConfirmed,
			intentmodel.StatusApplicationCreated,
			intentmodel.StatusCancelRequested,
			intentmodel.StatusCancelFailed,
		}).
		Updates(map[string]interface{}{
			"status":      intentmodel.StatusCanceled,
			"canceled_at": now,
			"updated_at":  now,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *IntentRepository) MarkCancelFailed(id int64, failureCode, failureMessage string) (bool, error) {
	result := r.db.Model(&intentmodel.PaymentIntent{}).
		Where("id = ? AND status IN ?", id, []intentmodel.Status{
			intentmodel.StatusCancelRequested,
			intentmodel.StatusConfirmed,
		}).
		Updates(map[string]interface{}{
			"status":          intentmodel.StatusCancelFailed,
			"failure_code":    failureCode,
			"failure_message": failureMessage,
			"updated_at":      time.Now(),
		})
	return result.RowsAffected > 0, result.Error
}

func (r *IntentRepository) MarkExpired(id int64) (bool, error) {
	result := r.db.Model(&intentmodel.PaymentIntent{}).
		Where("id = ? AND status = ?", id, intentmodel.StatusPrepared).
		Updates(map[string]interface{}{
			"status":     intentmodel.StatusExpired,
			"updated_at": time.Now(),
		})
	return result.RowsAffected > 0, result.Error
}

func (r *IntentRepository) HealToApplicationCreated(id int64, paymentKey string) (bool, error) {
	updates := map[string]interface{}{
		"status":     intentmodel.StatusApplicationCreated,
		"updated_at": time.Now(),
	}
	if paymentKey != "" {
		updates["payment_key"] = paymentKey
	}
	result := r.db.Model(&intentmodel.PaymentIntent{}).
		Where("id = ? AND status IN ?", id, []intentmodel.Status{
			intentmodel.StatusConfirmed,
			intentmodel.StatusCancelRequested,
			intentmodel.StatusCancelFailed,
		}).
		Updates(updates)
	return result.RowsAffected > 0, result.Error
}

func (r *IntentRepository) FindStuck(statuses []intentmodel.Status, olderThan time.Time, limit int) ([]*intentmodel.PaymentIntent, error) {
	var records []*intentmodel.PaymentIntent
	err := r.db.Where("status IN ? AND updated_at < ?", statuses, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Find(&records).Error
	return records, err
}

func (r *IntentRepository) Transaction(fn func(intent.Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&IntentRepository{db: tx})
	})
}

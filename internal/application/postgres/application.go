package postgres

import (
	"time"

	"gorm.io/gorm"

	apperrors "github.com/fanmate/platform/internal"
	"github.com/fanmate/platform/internal/application"
	applicationmodel "github.com/fanmate/platform/internal/core/datamodel/application"
	partymodel "github.com/fanmate/platform/internal/core/datamodel/party"
)

// ApplicationRepository implements the application.Repository interface using
// GORM. Requires the gorm postgres/sqlite driver's translated errors so a
// unique violation comes back as gorm.ErrDuplicatedKey.
type ApplicationRepository struct {
	db *gorm.DB
}

func NewApplicationRepository(db *gorm.DB) application.Repository {
	return &ApplicationRepository{db: db}
}

func (r *ApplicationRepository) Create(app *applicationmodel.PartyApplication) error {
	return r.db.Create(app).Error
}

func (r *ApplicationRepository) GetByID(id int64) (*applicationmodel.PartyApplication, error) {
	var app applicationmodel.PartyApplication
	err := r.db.Where("id = ?", id).First(&app).Error
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *ApplicationRepository) FindByOrderID(orderID string) (*applicationmodel.PartyApplication, error) {
	var app applicationmodel.PartyApplication
	err := r.db.Where("order_id = ?", orderID).First(&app).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &app, nil
}

func (r *ApplicationRepository) HasActiveApplication(partyID, applicantID int64) (bool, error) {
	var count int64
	err := r.db.Model(&applicationmodel.PartyApplication{}).
		Where("party_id = ? AND applicant_id = ? AND is_rejected = ?", partyID, applicantID, false).
		Count(&count).Error
	return count > 0, err
}

func (r *ApplicationRepository) CountPendingForApplicant(applicantID int64) (int64, error) {
	var count int64
	err := r.db.Model(&applicationmodel.PartyApplication{}).
		Where("applicant_id = ? AND is_approved = ? AND is_rejected = ?", applicantID, false, false).
		Count(&count).Error
	return count, err
}

// TakePartySeat claims one participant slot, guarded against overfilling at
// the database level.
func (r *ApplicationRepository) TakePartySeat(partyID int64) error {
	result := r.db.Model(&partymodel.Party{}).
		Where("id = ? AND current_participants < max_participants", partyID).
		Updates(map[string]interface{}{
			"current_participants": gorm.Expr("current_participants + 1"),
			"updated_at":           time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return apperrors.ErrPartyFull
	}
	return nil
}

func (r *ApplicationRepository) Transaction(fn func(application.Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&ApplicationRepository{db: tx})
	})
}

package postgres

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	partymodel "github.com/fanmate/platform/internal/core/datamodel/party"
	"github.com/fanmate/platform/internal/party"
)

// PartyRepository implements the party.Repository interface using GORM
type PartyRepository struct {
	db *gorm.DB
}

func NewPartyRepository(db *gorm.DB) party.Repository {
	return &PartyRepository{db: db}
}

func (r *PartyRepository) GetByID(id int64) (*partymodel.Party, error) {
	var p partymodel.Party
	err := r.db.Where("id = ?", id).First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, party.ErrPartyNotFound
		}
		return nil, err
	}
	return &p, nil
}

// GetByIDForUpdate loads the party under a row lock. Callers must be inside a
// transaction; participant counting depends on it.
func (r *PartyRepository) GetByIDForUpdate(id int64) (*partymodel.Party, error) {
	var p partymodel.Party
	err := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, party.ErrPartyNotFound
		}
		return nil, err
	}
	return &p, nil
}

// IncrementParticipants adds one participant, guarded against overfilling at
// the database level.
func (r *PartyRepository) IncrementParticipants(id int64) error {
	result := r.db.Model(&partymodel.Party{}).
		Where("id = ? AND current_participants < max_participants", id).
		Updates(map[string]interface{}{
			"current_participants": gorm.Expr("current_participants + 1"),
			"updated_at":           time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return party.ErrPartyFull
	}
	return nil
}

func (r *PartyRepository) UpdateStatus(id int64, status string) error {
	return r.db.Model(&partymodel.Party{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error
}

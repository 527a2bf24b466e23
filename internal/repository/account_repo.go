package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ksred/botfleet-control-plane/internal/domain"
)

// GormAccountRepository is grounded on settlement.Database's wrapper
// shape: a struct holding *gorm.DB, one method per operation.
type GormAccountRepository struct {
	db *gorm.DB
}

func NewGormAccountRepository(db *gorm.DB) *GormAccountRepository {
	return &GormAccountRepository{db: db}
}

func (r *GormAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *GormAccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("account", id.String())
	}
	if err != nil {
		return nil, Transient(err)
	}
	return &account, nil
}

func (r *GormAccountRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Account, error) {
	var account domain.Account
	err := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("account", externalID)
	}
	if err != nil {
		return nil, Transient(err)
	}
	return &account, nil
}

func (r *GormAccountRepository) UpdateSubscription(ctx context.Context, id uuid.UUID, tier domain.Tier, maxBots int) error {
	result := r.db.WithContext(ctx).Model(&domain.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"tier":     tier,
			"max_bots": maxBots,
		})
	if result.Error != nil {
		return Transient(result.Error)
	}
	if result.RowsAffected == 0 {
		return NotFound("account", id.String())
	}
	return nil
}

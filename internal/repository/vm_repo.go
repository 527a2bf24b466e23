package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ksred/botfleet-control-plane/internal/domain"
)

// GormVMRepository tracks cached VM records. Destroyed rows are
// retained for audit; BotID is nulled, not the row deleted, when the
// owning bot is removed.
type GormVMRepository struct {
	db *gorm.DB
}

func NewGormVMRepository(db *gorm.DB) *GormVMRepository {
	return &GormVMRepository{db: db}
}

func (r *GormVMRepository) Create(ctx context.Context, vm *domain.VMRecord) error {
	return r.db.WithContext(ctx).Create(vm).Error
}

func (r *GormVMRepository) GetByID(ctx context.Context, id int64) (*domain.VMRecord, error) {
	var vm domain.VMRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&vm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("vm_record", "")
	}
	if err != nil {
		return nil, Transient(err)
	}
	return &vm, nil
}

func (r *GormVMRepository) AssignToBot(ctx context.Context, vmID int64, botID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&domain.VMRecord{}).
		Where("id = ?", vmID).
		Update("bot_id", botID)
	if result.Error != nil {
		return Transient(result.Error)
	}
	if result.RowsAffected == 0 {
		return NotFound("vm_record", "")
	}
	return nil
}

func (r *GormVMRepository) UpdateStatus(ctx context.Context, vmID int64, status domain.VMStatus) error {
	result := r.db.WithContext(ctx).Model(&domain.VMRecord{}).
		Where("id = ?", vmID).
		Update("status", status)
	if result.Error != nil {
		return Transient(result.Error)
	}
	if result.RowsAffected == 0 {
		return NotFound("vm_record", "")
	}
	return nil
}

func (r *GormVMRepository) UpdateIP(ctx context.Context, vmID int64, ip string) error {
	result := r.db.WithContext(ctx).Model(&domain.VMRecord{}).
		Where("id = ?", vmID).
		Update("ip_address", ip)
	if result.Error != nil {
		return Transient(result.Error)
	}
	if result.RowsAffected == 0 {
		return NotFound("vm_record", "")
	}
	return nil
}

func (r *GormVMRepository) MarkDestroyed(ctx context.Context, vmID int64, now time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.VMRecord{}).
		Where("id = ?", vmID).
		Updates(map[string]interface{}{
			"status":       domain.VMDestroyed,
			"destroyed_at": now,
		})
	if result.Error != nil {
		return Transient(result.Error)
	}
	if result.RowsAffected == 0 {
		return NotFound("vm_record", "")
	}
	return nil
}

package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ksred/botfleet-control-plane/internal/domain"
)

// GormBotRepository is grounded on settlement.Database / trading.Database's
// RowsAffected-checked update pattern for every single-row write.
type GormBotRepository struct {
	db *gorm.DB
}

func NewGormBotRepository(db *gorm.DB) *GormBotRepository {
	return &GormBotRepository{db: db}
}

// HashRegistrationToken computes the sha256:<hex> digest stored in place
// of the raw token. Grounded on original_source's
// hash_registration_token.
func HashRegistrationToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "sha256:" + hex.EncodeToString(sum[:])
}

func (r *GormBotRepository) Create(ctx context.Context, bot *domain.Bot) error {
	return r.db.WithContext(ctx).Create(bot).Error
}

func (r *GormBotRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Bot, error) {
	var bot domain.Bot
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&bot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("bot", id.String())
	}
	if err != nil {
		return nil, Transient(err)
	}
	return &bot, nil
}

// GetByTokenDigest accepts a match on either the stored digest or,
// during the legacy migration window, a raw plaintext token in the same
// column — mirroring original_source's "registration_token = $2 OR
// registration_token = $3" lookup. Since the digest column is uniquely
// indexed, the token alone identifies the bot; no id is required. On a
// plaintext match the row is rewritten to the digest before returning.
func (r *GormBotRepository) GetByTokenDigest(ctx context.Context, rawToken string, digest string) (*domain.Bot, error) {
	var bot domain.Bot
	err := r.db.WithContext(ctx).
		Where("registration_token_digest = ? OR registration_token_digest = ?", digest, rawToken).
		First(&bot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("bot", "by token")
	}
	if err != nil {
		return nil, Transient(err)
	}

	if bot.RegistrationTokenDigest == rawToken {
		if err := r.db.WithContext(ctx).Model(&domain.Bot{}).
			Where("id = ? AND registration_token_digest = ?", bot.ID, rawToken).
			Update("registration_token_digest", digest).Error; err != nil {
			return nil, Transient(err)
		}
		bot.RegistrationTokenDigest = digest
	}
	return &bot, nil
}

func (r *GormBotRepository) ListByAccount(ctx context.Context, accountID uuid.UUID, page Pagination) ([]domain.Bot, error) {
	page = page.Normalized()
	var bots []domain.Bot
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at DESC").
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&bots).Error
	if err != nil {
		return nil, Transient(err)
	}
	return bots, nil
}

func (r *GormBotRepository) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.Bot{}).
		Where("account_id = ? AND status != ?", accountID, domain.BotDestroyed).
		Count(&count).Error
	if err != nil {
		return 0, Transient(err)
	}
	return count, nil
}

func (r *GormBotRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BotStatus) error {
	result := r.db.WithContext(ctx).Model(&domain.Bot{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return Transient(result.Error)
	}
	if result.RowsAffected == 0 {
		return NotFound("bot", id.String())
	}
	return nil
}

// CompareAndSetStatus is the stale sweep's only safe way to demote a
// bot: the WHERE clause pins the transition to the status observed at
// ListStale time, so a heartbeat, pause, or redeploy that lands between
// the SELECT and this UPDATE wins the race instead of being clobbered.
func (r *GormBotRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to domain.BotStatus) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.Bot{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return false, Transient(result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormBotRepository) UpdateVMHandle(ctx context.Context, id uuid.UUID, vmHandle *int64) error {
	result := r.db.WithContext(ctx).Model(&domain.Bot{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"vm_handle":  vmHandle,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return Transient(result.Error)
	}
	if result.RowsAffected == 0 {
		return NotFound("bot", id.String())
	}
	return nil
}

func (r *GormBotRepository) UpdateDesiredConfig(ctx context.Context, id uuid.UUID, configID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&domain.Bot{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"desired_config_version_id": configID,
			"updated_at":                time.Now(),
		})
	if result.Error != nil {
		return Transient(result.Error)
	}
	if result.RowsAffected == 0 {
		return NotFound("bot", id.String())
	}
	return nil
}

func (r *GormBotRepository) UpdateAppliedConfig(ctx context.Context, id uuid.UUID, configID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&domain.Bot{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"applied_config_version_id": configID,
			"updated_at":                time.Now(),
		})
	if result.Error != nil {
		return Transient(result.Error)
	}
	if result.RowsAffected == 0 {
		return NotFound("bot", id.String())
	}
	return nil
}

func (r *GormBotRepository) RecordHeartbeat(ctx context.Context, id uuid.UUID, now time.Time) error {
	result := r.db.WithContext(ctx).Model(&domain.Bot{}).
		Where("id = ? AND status != ?", id, domain.BotDestroyed).
		Updates(map[string]interface{}{
			"last_heartbeat_at": now,
			"updated_at":        now,
		})
	if result.Error != nil {
		return Transient(result.Error)
	}
	if result.RowsAffected == 0 {
		return NotFound("bot", id.String())
	}
	return nil
}

// ListStale returns up to limit bots with status=online whose
// last_heartbeat_at is NULL or older than threshold, oldest first, so a
// bounded sweep makes progress on the worst offenders across ticks.
func (r *GormBotRepository) ListStale(ctx context.Context, threshold time.Time, limit int) ([]domain.Bot, error) {
	var bots []domain.Bot
	err := r.db.WithContext(ctx).
		Where("status = ? AND (last_heartbeat_at IS NULL OR last_heartbeat_at < ?)", domain.BotOnline, threshold).
		Order("last_heartbeat_at ASC NULLS FIRST").
		Limit(limit).
		Find(&bots).Error
	if err != nil {
		return nil, Transient(err)
	}
	return bots, nil
}

// HardDelete is a rollback-path-only operation: it removes the row
// entirely rather than soft-deleting, used when a partial create must
// be undone before the bot ever became visible.
func (r *GormBotRepository) HardDelete(ctx context.Context, id uuid.UUID) error {
	if err := r.db.WithContext(ctx).Model(&domain.VMRecord{}).
		Where("bot_id = ?", id).Update("bot_id", nil).Error; err != nil {
		return Transient(err)
	}
	result := r.db.WithContext(ctx).Unscoped().Where("id = ?", id).Delete(&domain.Bot{})
	if result.Error != nil {
		return Transient(result.Error)
	}
	if result.RowsAffected == 0 {
		return NotFound("bot", id.String())
	}
	return nil
}

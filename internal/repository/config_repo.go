package repository

import (
	"context"
	"errors"
	"hash/fnv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ksred/botfleet-control-plane/internal/domain"
)

// GormConfigRepository implements the monotonic, gap-free per-bot
// version sequence via a Postgres transaction-scoped advisory lock
// (pg_advisory_xact_lock) held for the duration of one transaction. Grounded on the Postgres-function
// call in original_source's get_next_config_version_atomic, re-expressed
// as inline SQL the way internal/repository/migrations does it
// (db.Exec calls, not stored procedures).
type GormConfigRepository struct {
	db *gorm.DB
}

func NewGormConfigRepository(db *gorm.DB) *GormConfigRepository {
	return &GormConfigRepository{db: db}
}

func (r *GormConfigRepository) Create(ctx context.Context, cfg *domain.ConfigVersion) error {
	return r.db.WithContext(ctx).Create(cfg).Error
}

func (r *GormConfigRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.ConfigVersion, error) {
	var cfg domain.ConfigVersion
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("config_version", id.String())
	}
	if err != nil {
		return nil, Transient(err)
	}
	return &cfg, nil
}

func (r *GormConfigRepository) GetLatestForBot(ctx context.Context, botID uuid.UUID) (*domain.ConfigVersion, error) {
	var cfg domain.ConfigVersion
	err := r.db.WithContext(ctx).
		Where("bot_id = ?", botID).
		Order("version DESC").
		First(&cfg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NotFound("config_version", botID.String())
	}
	if err != nil {
		return nil, Transient(err)
	}
	return &cfg, nil
}

func (r *GormConfigRepository) ListByBot(ctx context.Context, botID uuid.UUID) ([]domain.ConfigVersion, error) {
	var cfgs []domain.ConfigVersion
	err := r.db.WithContext(ctx).
		Where("bot_id = ?", botID).
		Order("version ASC").
		Find(&cfgs).Error
	if err != nil {
		return nil, Transient(err)
	}
	return cfgs, nil
}

// advisoryLockKey hashes the bot id to a stable int64 for
// pg_advisory_xact_lock, which takes a bigint key.
func advisoryLockKey(botID uuid.UUID) int64 {
	h := fnv.New64a()
	_, _ = h.Write(botID[:])
	return int64(h.Sum64())
}

func (r *GormConfigRepository) NextVersionAtomic(ctx context.Context, botID uuid.UUID) (int, error) {
	if err := r.db.WithContext(ctx).Exec("SELECT pg_advisory_xact_lock(?)", advisoryLockKey(botID)).Error; err != nil {
		return 0, Transient(err)
	}
	var maxVersion *int
	if err := r.db.WithContext(ctx).
		Model(&domain.ConfigVersion{}).
		Select("MAX(version)").
		Where("bot_id = ?", botID).
		Scan(&maxVersion).Error; err != nil {
		return 0, Transient(err)
	}
	if maxVersion == nil {
		return 1, nil
	}
	return *maxVersion + 1, nil
}

// WithTx runs fn inside a single transaction so NextVersionAtomic's
// advisory lock and the subsequent Create share one transaction scope —
// the advisory lock is released automatically at commit/rollback.
func (r *GormConfigRepository) WithTx(ctx context.Context, fn func(tx ConfigRepository) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormConfigRepository{db: tx})
	})
}

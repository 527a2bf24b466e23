package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ksred/botfleet-control-plane/internal/domain"
)

// GormCounterRepository implements the atomic quota gate with a single
// conditional UPDATE ... WHERE current_count < max_count RETURNING.
// Grounded in shape on the Postgres function call in
// original_source/src/infrastructure/repository.rs's increment_bot_counter,
// expressed here as a direct SQL statement rather than a stored
// procedure, since ksred-klear-api keeps its raw SQL inline in Go
// (internal/database/migrations) rather than in server-side functions.
type GormCounterRepository struct {
	db *gorm.DB
}

func NewGormCounterRepository(db *gorm.DB) *GormCounterRepository {
	return &GormCounterRepository{db: db}
}

func (r *GormCounterRepository) Create(ctx context.Context, counter *domain.AccountBotCounter) error {
	return r.db.WithContext(ctx).Create(counter).Error
}

type counterRow struct {
	CurrentCount int
	MaxCount     int
}

func (r *GormCounterRepository) TryIncrement(ctx context.Context, accountID uuid.UUID) (CounterResult, error) {
	var row counterRow
	tx := r.db.WithContext(ctx).Raw(`
		UPDATE account_bot_counters
		SET current_count = current_count + 1, updated_at = now()
		WHERE account_id = ? AND current_count < max_count
		RETURNING current_count, max_count
	`, accountID).Scan(&row)
	if tx.Error != nil {
		return CounterResult{}, Transient(tx.Error)
	}
	if tx.RowsAffected > 0 {
		return CounterResult{Success: true, CurrentCount: row.CurrentCount, MaxCount: row.MaxCount}, nil
	}

	// Either the account has no counter row, or it is already at limit;
	// a plain read distinguishes the two.
	var existing domain.AccountBotCounter
	err := r.db.WithContext(ctx).Where("account_id = ?", accountID).First(&existing).Error
	if err == gorm.ErrRecordNotFound {
		return CounterResult{NoSuchAccount: true}, nil
	}
	if err != nil {
		return CounterResult{}, Transient(err)
	}
	return CounterResult{Success: false, CurrentCount: existing.CurrentCount, MaxCount: existing.MaxCount}, nil
}

func (r *GormCounterRepository) UpdateMaxCount(ctx context.Context, accountID uuid.UUID, maxCount int) error {
	result := r.db.WithContext(ctx).Model(&domain.AccountBotCounter{}).
		Where("account_id = ?", accountID).
		Updates(map[string]interface{}{
			"max_count":  maxCount,
			"updated_at": gorm.Expr("now()"),
		})
	if result.Error != nil {
		return Transient(result.Error)
	}
	if result.RowsAffected == 0 {
		return NotFound("account_bot_counter", accountID.String())
	}
	return nil
}

func (r *GormCounterRepository) Decrement(ctx context.Context, accountID uuid.UUID) error {
	result := r.db.WithContext(ctx).Exec(`
		UPDATE account_bot_counters
		SET current_count = GREATEST(current_count - 1, 0), updated_at = now()
		WHERE account_id = ?
	`, accountID)
	if result.Error != nil {
		return Transient(result.Error)
	}
	if result.RowsAffected == 0 {
		return NotFound("account_bot_counter", accountID.String())
	}
	return nil
}

// Package repository implements the Persistence Contracts: typed
// repositories with affected-row verification and the two atomic
// primitives (quota counter, config version sequence) the rest of the
// core depends on. Grounded on ksred-klear-api's internal/settlement
// and internal/trading database wrappers (gorm.io/gorm, explicit
// RowsAffected checks).
package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ksred/botfleet-control-plane/internal/domain"
)

// Pagination bounds a listing: limit in 1..1000 (Normalized applies the
// default of 100), offset >= 0, ordered by created_at DESC.
type Pagination struct {
	Limit  int
	Offset int
}

func (p Pagination) Normalized() Pagination {
	if p.Limit <= 0 {
		p.Limit = 100
	}
	if p.Limit > 1000 {
		p.Limit = 1000
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// AccountRepository manages Account rows.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Account, error)
	UpdateSubscription(ctx context.Context, id uuid.UUID, tier domain.Tier, maxBots int) error
}

// CounterResult is the outcome of a try_increment call.
type CounterResult struct {
	Success      bool
	CurrentCount int
	MaxCount     int
	NoSuchAccount bool
}

// CounterRepository is the atomic quota gate.
type CounterRepository interface {
	// TryIncrement performs a single conditional UPDATE ... WHERE
	// current_count < max_count RETURNING. If the row is not returned,
	// it reads the row separately to distinguish "at limit" from
	// "no such counter".
	TryIncrement(ctx context.Context, accountID uuid.UUID) (CounterResult, error)
	// Decrement clamps at zero. Used strictly by compensation paths and
	// destroy.
	Decrement(ctx context.Context, accountID uuid.UUID) error
	Create(ctx context.Context, counter *domain.AccountBotCounter) error
	// UpdateMaxCount changes the ceiling a subsequent TryIncrement is
	// checked against. Used by subscription tier changes; never touches
	// current_count.
	UpdateMaxCount(ctx context.Context, accountID uuid.UUID, maxCount int) error
}

// BotRepository manages Bot rows.
type BotRepository interface {
	Create(ctx context.Context, bot *domain.Bot) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Bot, error)
	// GetByTokenDigest authenticates a bot-agent request by its bearer
	// token alone (the digest is unique per bot): it accepts a match on
	// either the stored digest or, during the legacy migration window, a
	// raw plaintext token stored in the same column. On a plaintext
	// match it rewrites the row to store the digest.
	GetByTokenDigest(ctx context.Context, rawToken string, digest string) (*domain.Bot, error)
	ListByAccount(ctx context.Context, accountID uuid.UUID, page Pagination) ([]domain.Bot, error)
	CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BotStatus) error
	// CompareAndSetStatus updates status only if the row's current
	// status equals from, in a single statement. matched is false (with
	// a nil error) when the row no longer has that status — the caller
	// lost a race against a concurrent transition and must not force the
	// update anyway.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to domain.BotStatus) (matched bool, err error)
	UpdateVMHandle(ctx context.Context, id uuid.UUID, vmHandle *int64) error
	UpdateDesiredConfig(ctx context.Context, id uuid.UUID, configID uuid.UUID) error
	UpdateAppliedConfig(ctx context.Context, id uuid.UUID, configID uuid.UUID) error
	RecordHeartbeat(ctx context.Context, id uuid.UUID, now time.Time) error
	// ListStale returns up to limit bots with status=online whose
	// last_heartbeat_at is NULL or older than threshold, ordered by
	// last_heartbeat_at ascending (oldest first) so a bounded sweep
	// makes progress on the worst offenders.
	ListStale(ctx context.Context, threshold time.Time, limit int) ([]domain.Bot, error)
	HardDelete(ctx context.Context, id uuid.UUID) error
}

// ConfigRepository manages ConfigVersion rows and the monotonic version
// sequence.
type ConfigRepository interface {
	Create(ctx context.Context, cfg *domain.ConfigVersion) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ConfigVersion, error)
	GetLatestForBot(ctx context.Context, botID uuid.UUID) (*domain.ConfigVersion, error)
	ListByBot(ctx context.Context, botID uuid.UUID) ([]domain.ConfigVersion, error)
	// NextVersionAtomic holds a per-bot advisory lock for the duration of
	// the enclosing transaction, reads max(version) for botID, and
	// returns max+1. Callable only from within the transaction that will
	// insert the new version row.
	NextVersionAtomic(ctx context.Context, botID uuid.UUID) (int, error)
	// WithTx runs fn inside a single database transaction and returns a
	// ConfigRepository bound to it, so NextVersionAtomic and the
	// subsequent Create share the same advisory lock scope.
	WithTx(ctx context.Context, fn func(tx ConfigRepository) error) error
}

// VMRepository manages VM records.
type VMRepository interface {
	Create(ctx context.Context, vm *domain.VMRecord) error
	GetByID(ctx context.Context, id int64) (*domain.VMRecord, error)
	AssignToBot(ctx context.Context, vmID int64, botID uuid.UUID) error
	UpdateStatus(ctx context.Context, vmID int64, status domain.VMStatus) error
	UpdateIP(ctx context.Context, vmID int64, ip string) error
	MarkDestroyed(ctx context.Context, vmID int64, now time.Time) error
}

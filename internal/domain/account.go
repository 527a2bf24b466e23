package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tier is an account's subscription tier. Unknown labels must be
// rejected by callers rather than defaulted.
type Tier string

const (
	TierFree  Tier = "free"
	TierBasic Tier = "basic"
	TierPro   Tier = "pro"
)

// MaxBotsForTier derives the quota a tier grants. Subscription changes
// cascade to Account.MaxBots and AccountBotCounter.MaxCount.
func MaxBotsForTier(t Tier) (int, bool) {
	switch t {
	case TierFree:
		return 1, true
	case TierBasic:
		return 5, true
	case TierPro:
		return 25, true
	default:
		return 0, false
	}
}

// Account is a billing tenant. It is immutable except for subscription
// tier changes, which cascade to MaxBots (and from there to its Counter).
type Account struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalID string    `gorm:"uniqueIndex;not null" json:"external_id"`
	Tier       Tier      `gorm:"type:varchar(16);not null" json:"tier"`
	MaxBots    int       `gorm:"not null" json:"max_bots"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AccountBotCounter is the single-row atomic quota gate for an account.
// Invariant: 0 <= CurrentCount <= MaxCount at every observable point
// outside of the increment statement itself.
type AccountBotCounter struct {
	AccountID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"account_id"`
	CurrentCount int       `gorm:"not null;default:0" json:"current_count"`
	MaxCount     int       `gorm:"not null" json:"max_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}

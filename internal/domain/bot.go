package domain

import (
	"time"

	"github.com/google/uuid"
)

// BotStatus is the bot lifecycle state machine: pending -> provisioning
// -> online <-> paused, any non-terminal state -> error, destroyed is
// terminal.
type BotStatus string

const (
	BotPending      BotStatus = "pending"
	BotProvisioning BotStatus = "provisioning"
	BotOnline       BotStatus = "online"
	BotPaused       BotStatus = "paused"
	BotError        BotStatus = "error"
	BotDestroyed    BotStatus = "destroyed"
)

// CanTransitionTo reports whether the state machine permits moving from
// s to next. destroyed is terminal; error is reachable from anywhere
// except destroyed; re-entry from error is only via redeploy (handled
// at the coordinator layer, not here, since it also requires a fresh
// VM and config version).
func (s BotStatus) CanTransitionTo(next BotStatus) bool {
	if s == BotDestroyed {
		return false
	}
	if next == BotError {
		return true
	}
	switch s {
	case BotPending:
		return next == BotProvisioning || next == BotDestroyed
	case BotProvisioning:
		return next == BotOnline || next == BotDestroyed
	case BotOnline:
		return next == BotPaused || next == BotDestroyed
	case BotPaused:
		return next == BotOnline || next == BotDestroyed
	case BotError:
		return next == BotProvisioning || next == BotDestroyed
	default:
		return false
	}
}

// Persona is a bot's behavioral preset. Unknown labels must be rejected.
type Persona string

const (
	PersonaBeginner  Persona = "beginner"
	PersonaTweaker   Persona = "tweaker"
	PersonaQuantLite Persona = "quant_lite"
)

func ValidPersona(p Persona) bool {
	switch p {
	case PersonaBeginner, PersonaTweaker, PersonaQuantLite:
		return true
	default:
		return false
	}
}

// Bot is a single-tenant worker: at most one VM, an append-only config
// history, and a live heartbeat.
type Bot struct {
	ID                      uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AccountID               uuid.UUID  `gorm:"type:uuid;index;not null" json:"account_id"`
	Name                    string     `gorm:"not null" json:"name"`
	Persona                 Persona    `gorm:"type:varchar(32);not null" json:"persona"`
	Status                  BotStatus  `gorm:"type:varchar(16);not null;index" json:"status"`
	VMHandle                *int64     `gorm:"index" json:"vm_handle,omitempty"`
	DesiredConfigVersionID  *uuid.UUID `gorm:"type:uuid" json:"desired_config_version_id,omitempty"`
	AppliedConfigVersionID  *uuid.UUID `gorm:"type:uuid" json:"applied_config_version_id,omitempty"`
	RegistrationTokenDigest string     `gorm:"uniqueIndex;not null" json:"-"`
	CreatedAt               time.Time  `json:"created_at"`
	UpdatedAt               time.Time  `json:"updated_at"`
	LastHeartbeatAt         *time.Time `json:"last_heartbeat_at,omitempty"`
}

// MaxBotNameLength is the code-point (not byte) cap on a sanitized bot
// name.
const MaxBotNameLength = 64

// SanitizeBotName keeps ASCII alphanumerics and hyphens and replaces
// every other rune with an underscore, then truncates to
// MaxBotNameLength code points — never a byte slice, so a multi-byte
// rune is never split. Underscores are not valid in a DNS label, so the
// result is not a strict DNS label whenever a rune was replaced.
func SanitizeBotName(name string) string {
	runes := []rune(name)
	out := make([]rune, 0, len(runes))
	for _, r := range runes {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) > MaxBotNameLength {
		out = out[:MaxBotNameLength]
	}
	return string(out)
}

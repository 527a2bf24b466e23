package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AssetFocus selects the instrument universe a bot trades.
type AssetFocus string

const (
	AssetFocusMajors AssetFocus = "majors"
	AssetFocusMemes  AssetFocus = "memes"
	AssetFocusCustom AssetFocus = "custom"
)

// AlgorithmMode selects the bot's trading algorithm family.
type AlgorithmMode string

const (
	AlgorithmTrend         AlgorithmMode = "trend"
	AlgorithmMeanReversion AlgorithmMode = "mean_reversion"
	AlgorithmBreakout      AlgorithmMode = "breakout"
)

// StrictnessLevel gates how conservatively the bot's risk checks fire.
type StrictnessLevel string

const (
	StrictnessLow    StrictnessLevel = "low"
	StrictnessMedium StrictnessLevel = "medium"
	StrictnessHigh   StrictnessLevel = "high"
)

func ValidAssetFocus(a AssetFocus) bool {
	switch a {
	case AssetFocusMajors, AssetFocusMemes, AssetFocusCustom:
		return true
	default:
		return false
	}
}

func ValidAlgorithm(a AlgorithmMode) bool {
	switch a {
	case AlgorithmTrend, AlgorithmMeanReversion, AlgorithmBreakout:
		return true
	default:
		return false
	}
}

func ValidStrictness(s StrictnessLevel) bool {
	switch s {
	case StrictnessLow, StrictnessMedium, StrictnessHigh:
		return true
	default:
		return false
	}
}

// SignalKnobs fine-tune the quant_lite persona. Auto-populated by the
// coordinator when Persona == PersonaQuantLite and left unset otherwise.
type SignalKnobs struct {
	VolumeConfirmation bool `json:"volume_confirmation"`
	VolatilityBrake    bool `json:"volatility_brake"`
	LiquidityFilter    bool `json:"liquidity_filter"`
	CorrelationBrake   bool `json:"correlation_brake"`
}

// TradingConfig is an opaque-to-the-core structured blob; the core never
// interprets its fields beyond what validation requires.
type TradingConfig struct {
	AssetFocus    AssetFocus      `json:"asset_focus"`
	CustomSymbols []string        `json:"custom_symbols,omitempty"`
	Algorithm     AlgorithmMode   `json:"algorithm"`
	Strictness    StrictnessLevel `json:"strictness"`
	PaperMode     bool            `json:"paper_mode"`
	SignalKnobs   *SignalKnobs    `json:"signal_knobs,omitempty"`
}

// RiskConfig bounds a bot's exposure. All percentages are in [0, 100].
type RiskConfig struct {
	MaxPositionSizePct float64 `json:"max_position_size_pct"`
	MaxDailyLossPct    float64 `json:"max_daily_loss_pct"`
	MaxDrawdownPct     float64 `json:"max_drawdown_pct"`
	MaxTradesPerDay    int     `json:"max_trades_per_day"`
}

// Validate returns the validation messages for out-of-range fields, or
// nil if risk is well formed. Boundary values 0 and 100 are accepted.
func (r RiskConfig) Validate() []string {
	var msgs []string
	if r.MaxPositionSizePct < 0 || r.MaxPositionSizePct > 100 {
		msgs = append(msgs, "risk.max_position_size_pct must be in [0, 100]")
	}
	if r.MaxDailyLossPct < 0 || r.MaxDailyLossPct > 100 {
		msgs = append(msgs, "risk.max_daily_loss_pct must be in [0, 100]")
	}
	if r.MaxDrawdownPct < 0 || r.MaxDrawdownPct > 100 {
		msgs = append(msgs, "risk.max_drawdown_pct must be in [0, 100]")
	}
	if r.MaxTradesPerDay < 0 {
		msgs = append(msgs, "risk.max_trades_per_day must be >= 0")
	}
	return msgs
}

// BotSecrets is the cleartext form of per-bot credentials, never
// persisted and never logged.
type BotSecrets struct {
	LLMProvider string
	LLMAPIKey   string
}

// ConfigVersion is an immutable, append-only configuration snapshot.
// Invariant: for any BotID the set of Version values is exactly
// {1..N}, dense, monotonically assigned by next_version_atomic.
//
// TradingConfig and RiskConfig are json.RawMessage rather than []byte
// so they marshal as nested JSON objects in admin responses instead of
// base64. EncryptedSecrets never leaves the process in a response.
type ConfigVersion struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	BotID               uuid.UUID       `gorm:"type:uuid;index;not null;uniqueIndex:idx_bot_version" json:"bot_id"`
	Version             int             `gorm:"not null;uniqueIndex:idx_bot_version" json:"version"`
	TradingConfig       json.RawMessage `gorm:"type:jsonb;not null" json:"trading_config"`
	RiskConfig          json.RawMessage `gorm:"type:jsonb;not null" json:"risk_config"`
	EncryptedSecrets    []byte          `gorm:"type:bytea;not null" json:"-"`
	SecretProviderLabel string          `gorm:"not null" json:"secret_provider_label"`
	CreatedAt           time.Time       `json:"created_at"`
}

package coordinator

import (
	"fmt"

	"github.com/ksred/botfleet-control-plane/internal/domain"
	"github.com/ksred/botfleet-control-plane/internal/repository"
)

// CreateBotInput is the Provisioning Coordinator's single entry point
// payload.
type CreateBotInput struct {
	AccountID           string
	Name                string
	Persona             domain.Persona
	Trading             domain.TradingConfig
	Risk                domain.RiskConfig
	SecretProviderLabel string
	SecretMaterial      domain.BotSecrets
}

// ValidationError carries the full list of validation messages so the
// HTTP shell can report everything wrong with a request in one response.
// It is repository.ValidationError under the hood so apiresponse.Handle
// has a single case covering both the coordinator and the reconciler.
type ValidationError = repository.ValidationError

// Validate runs input validation first: out-of-range risk fields and
// unknown enum labels are collected, never silently defaulted.
func Validate(in CreateBotInput) error {
	var msgs []string

	msgs = append(msgs, in.Risk.Validate()...)

	if !domain.ValidPersona(in.Persona) {
		msgs = append(msgs, fmt.Sprintf("unknown persona: %q", in.Persona))
	}
	if !domain.ValidAssetFocus(in.Trading.AssetFocus) {
		msgs = append(msgs, fmt.Sprintf("unknown asset_focus: %q", in.Trading.AssetFocus))
	}
	if !domain.ValidAlgorithm(in.Trading.Algorithm) {
		msgs = append(msgs, fmt.Sprintf("unknown algorithm: %q", in.Trading.Algorithm))
	}
	if !domain.ValidStrictness(in.Trading.Strictness) {
		msgs = append(msgs, fmt.Sprintf("unknown strictness: %q", in.Trading.Strictness))
	}
	if in.Name == "" {
		msgs = append(msgs, "name must not be empty")
	}

	if len(msgs) > 0 {
		return &ValidationError{Messages: msgs}
	}
	return nil
}

// ApplyPersonaDefaults auto-populates SignalKnobs when the persona is
// quant_lite and the caller did not supply any, mirroring
// original_source's http.rs create_bot handler behavior.
func ApplyPersonaDefaults(persona domain.Persona, trading *domain.TradingConfig) {
	if persona == domain.PersonaQuantLite && trading.SignalKnobs == nil {
		trading.SignalKnobs = &domain.SignalKnobs{
			VolumeConfirmation: true,
			VolatilityBrake:    true,
			LiquidityFilter:    true,
			CorrelationBrake:   true,
		}
	}
}

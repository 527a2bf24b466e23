// Package reconciler implements the Lifecycle Reconciler: config
// version assignment for existing bots, acknowledgement, heartbeat
// ingestion, and the periodic stale sweep. Its sweep worker is grounded
// in shape on ksred-klear-api/internal/settlement/processor.go's
// ticker/ctx.Done() loop.
package reconciler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/ksred/botfleet-control-plane/internal/clock"
	"github.com/ksred/botfleet-control-plane/internal/domain"
	"github.com/ksred/botfleet-control-plane/internal/iaas"
	"github.com/ksred/botfleet-control-plane/internal/repository"
	"github.com/ksred/botfleet-control-plane/internal/secretcipher"
)

type Reconciler struct {
	bots     repository.BotRepository
	configs  repository.ConfigRepository
	vms      repository.VMRepository
	provider iaas.Provider
	cipher   *secretcipher.Cipher
	clock    clock.Clock
}

func New(
	bots repository.BotRepository,
	configs repository.ConfigRepository,
	vms repository.VMRepository,
	provider iaas.Provider,
	cipher *secretcipher.Cipher,
	clk clock.Clock,
) *Reconciler {
	return &Reconciler{bots: bots, configs: configs, vms: vms, provider: provider, cipher: cipher, clock: clk}
}

// CreateConfigInput mirrors coordinator.CreateBotInput's trading/risk/
// secret fields, scoped to an existing bot.
type CreateConfigInput struct {
	BotID               uuid.UUID
	Trading             domain.TradingConfig
	Risk                domain.RiskConfig
	SecretProviderLabel string
	SecretMaterial      domain.BotSecrets
}

// CreateConfig validates inputs, encrypts secrets, assigns the next
// dense version for the bot, and points bot.desired_config_version at
// it. Two concurrent callers on the same bot obtain different versions
// and both succeed, guaranteed by NextVersionAtomic's advisory lock.
func (r *Reconciler) CreateConfig(ctx context.Context, in CreateConfigInput) (*domain.ConfigVersion, error) {
	if msgs := in.Risk.Validate(); len(msgs) > 0 {
		return nil, &repository.ValidationError{Messages: msgs}
	}
	bot, err := r.bots.GetByID(ctx, in.BotID)
	if err != nil {
		return nil, err
	}
	if bot.Status == domain.BotDestroyed {
		return nil, repository.InvariantViolation("cannot create config for a destroyed bot")
	}

	plaintext, err := json.Marshal(in.SecretMaterial)
	if err != nil {
		return nil, fmt.Errorf("marshaling secrets: %w", err)
	}
	encrypted, err := r.cipher.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypting secrets: %w", err)
	}

	tradingJSON, err := json.Marshal(in.Trading)
	if err != nil {
		return nil, fmt.Errorf("marshaling trading config: %w", err)
	}
	riskJSON, err := json.Marshal(in.Risk)
	if err != nil {
		return nil, fmt.Errorf("marshaling risk config: %w", err)
	}

	var created domain.ConfigVersion
	err = r.configs.WithTx(ctx, func(tx repository.ConfigRepository) error {
		version, err := tx.NextVersionAtomic(ctx, in.BotID)
		if err != nil {
			return err
		}
		created = domain.ConfigVersion{
			ID:                  uuid.New(),
			BotID:               in.BotID,
			Version:             version,
			TradingConfig:       tradingJSON,
			RiskConfig:          riskJSON,
			EncryptedSecrets:    encrypted,
			SecretProviderLabel: in.SecretProviderLabel,
			CreatedAt:           r.clock.Now(),
		}
		if err := tx.Create(ctx, &created); err != nil {
			return err
		}
		return r.bots.UpdateDesiredConfig(ctx, in.BotID, created.ID)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// AcknowledgeConfig resolves: missing config/bot -> NotFound; config_id
// != bot.desired -> Conflict (superseded ack); otherwise set applied
// (desired already equals config_id) and, if the bot was still provisioning/pending,
// promote it to online.
func (r *Reconciler) AcknowledgeConfig(ctx context.Context, botID, configID uuid.UUID) error {
	cfg, err := r.configs.GetByID(ctx, configID)
	if err != nil {
		return err
	}
	if cfg.BotID != botID {
		return repository.NotFound("config_version", configID.String())
	}

	bot, err := r.bots.GetByID(ctx, botID)
	if err != nil {
		return err
	}
	if bot.DesiredConfigVersionID == nil || *bot.DesiredConfigVersionID != configID {
		return repository.Conflict("acknowledged config is not the currently desired version")
	}

	if err := r.bots.UpdateAppliedConfig(ctx, botID, configID); err != nil {
		return err
	}

	if bot.Status == domain.BotProvisioning || bot.Status == domain.BotPending {
		if err := r.bots.UpdateStatus(ctx, botID, domain.BotOnline); err != nil {
			return err
		}
	}
	return nil
}

// DesiredConfig is the decrypted payload served to an authenticated
// guest. Secrets are decrypted here and never logged.
type DesiredConfig struct {
	ID      uuid.UUID
	Version int
	Trading domain.TradingConfig
	Risk    domain.RiskConfig
	Secrets domain.BotSecrets
}

// GetDesiredConfig returns the ConfigVersion pointed to by
// desired_config_version, decrypting its secrets. Returns NotFound if
// unset or missing.
func (r *Reconciler) GetDesiredConfig(ctx context.Context, botID uuid.UUID) (*DesiredConfig, error) {
	bot, err := r.bots.GetByID(ctx, botID)
	if err != nil {
		return nil, err
	}
	if bot.DesiredConfigVersionID == nil {
		return nil, repository.NotFound("config_version", "desired")
	}

	cfg, err := r.configs.GetByID(ctx, *bot.DesiredConfigVersionID)
	if err != nil {
		return nil, err
	}

	plaintext, err := r.cipher.Decrypt(cfg.EncryptedSecrets)
	if err != nil {
		return nil, err
	}
	var secrets domain.BotSecrets
	if err := json.Unmarshal(plaintext, &secrets); err != nil {
		return nil, fmt.Errorf("unmarshaling secrets: %w", err)
	}

	var trading domain.TradingConfig
	var risk domain.RiskConfig
	if err := json.Unmarshal(cfg.TradingConfig, &trading); err != nil {
		return nil, fmt.Errorf("unmarshaling trading config: %w", err)
	}
	if err := json.Unmarshal(cfg.RiskConfig, &risk); err != nil {
		return nil, fmt.Errorf("unmarshaling risk config: %w", err)
	}

	return &DesiredConfig{ID: cfg.ID, Version: cfg.Version, Trading: trading, Risk: risk, Secrets: secrets}, nil
}

// RecordHeartbeat updates last_heartbeat_at; rejected for destroyed
// bots by the repository's own status guard.
func (r *Reconciler) RecordHeartbeat(ctx context.Context, botID uuid.UUID) error {
	return r.bots.RecordHeartbeat(ctx, botID, r.clock.Now())
}

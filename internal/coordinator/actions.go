package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/ksred/botfleet-control-plane/internal/domain"
	"github.com/ksred/botfleet-control-plane/internal/iaas"
	"github.com/ksred/botfleet-control-plane/internal/repository"
)

func unmarshalConfigPair(cfg *domain.ConfigVersion, trading *domain.TradingConfig, risk *domain.RiskConfig) error {
	if err := json.Unmarshal(cfg.TradingConfig, trading); err != nil {
		return fmt.Errorf("unmarshaling trading config: %w", err)
	}
	if err := json.Unmarshal(cfg.RiskConfig, risk); err != nil {
		return fmt.Errorf("unmarshaling risk config: %w", err)
	}
	return nil
}

func asRateLimited(err error) (*iaas.RateLimitedError, bool) {
	var rle *iaas.RateLimitedError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}

// compensationRetryDelays is the fixed 100/200/400ms schedule
// original_source's retry_with_backoff uses for post-action DB
// compensation, as distinct from the IaaS adapter's own error-class
// driven retry policy in internal/iaas.
var compensationRetryDelays = []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond}

func retryCompensation(ctx context.Context, operation string, fn func() error) error {
	logger := log.With().Str("component", "provisioning_coordinator").Str("operation", operation).Logger()

	var lastErr error
	for attempt, delay := range compensationRetryDelays {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		logger.Warn().Err(lastErr).Int("attempt", attempt+1).Msg("retrying compensation step")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	lastErr = fn()
	return lastErr
}

// Pause requires the bot to be online; powers off the VM and
// transitions to paused.
func (co *Coordinator) Pause(ctx context.Context, botID uuid.UUID) error {
	bot, err := co.bots.GetByID(ctx, botID)
	if err != nil {
		return err
	}
	if bot.Status != domain.BotOnline {
		return repository.InvariantViolation(fmt.Sprintf("pause requires status online, got %s", bot.Status))
	}
	if bot.VMHandle == nil {
		return repository.InvariantViolation("bot has no vm_handle")
	}
	if err := co.provider.PowerOff(ctx, *bot.VMHandle); err != nil {
		return err
	}
	return co.bots.UpdateStatus(ctx, botID, domain.BotPaused)
}

// Resume requires the bot to be paused; it first reads live VM state
// and only transitions to online if the VM is verifiably resumable.
// No bot transitions to online without that verification.
func (co *Coordinator) Resume(ctx context.Context, botID uuid.UUID) error {
	bot, err := co.bots.GetByID(ctx, botID)
	if err != nil {
		return err
	}
	if bot.Status != domain.BotPaused {
		return repository.InvariantViolation(fmt.Sprintf("resume requires status paused, got %s", bot.Status))
	}
	if bot.VMHandle == nil {
		return repository.InvariantViolation("bot has no vm_handle")
	}

	vm, err := co.provider.GetVM(ctx, *bot.VMHandle)
	if err != nil {
		if errors.Is(err, iaas.ErrNotFound) {
			return repository.InvariantViolation("vm no longer exists")
		}
		return err
	}

	switch vm.Status {
	case "off":
		if err := co.provider.PowerOn(ctx, *bot.VMHandle); err != nil {
			return err
		}
	case "active":
		// no-op: already running
	case "new":
		return repository.InvariantViolation("vm is still being created")
	default:
		return repository.InvariantViolation(fmt.Sprintf("vm in unresumable state: %s", vm.Status))
	}

	return co.bots.UpdateStatus(ctx, botID, domain.BotOnline)
}

// Destroy is idempotent: destroy_vm (404 = success), mark the VM record
// destroyed, set the bot destroyed, decrement the counter exactly once.
// DB failures after a successful VM destruction are retried with
// bounded backoff; persistent failure is surfaced for operator repair.
func (co *Coordinator) Destroy(ctx context.Context, botID uuid.UUID) error {
	bot, err := co.bots.GetByID(ctx, botID)
	if err != nil {
		return err
	}
	if bot.Status == domain.BotDestroyed {
		return nil
	}

	if bot.VMHandle != nil {
		if err := co.provider.DestroyVM(ctx, *bot.VMHandle); err != nil {
			return err
		}
		if err := retryCompensation(ctx, "mark_vm_destroyed", func() error {
			return co.vms.MarkDestroyed(ctx, *bot.VMHandle, co.clock.Now())
		}); err != nil {
			return err
		}
	}

	if err := retryCompensation(ctx, "mark_bot_destroyed", func() error {
		return co.bots.UpdateStatus(ctx, botID, domain.BotDestroyed)
	}); err != nil {
		return err
	}

	if err := retryCompensation(ctx, "decrement_counter", func() error {
		return co.counters.Decrement(ctx, bot.AccountID)
	}); err != nil {
		return err
	}

	return nil
}

// Redeploy destroys the current VM without decrementing the counter,
// then spawns a fresh VM reusing the same bot id and appending a new
// ConfigVersion rather than resetting to version 1.
func (co *Coordinator) Redeploy(ctx context.Context, botID uuid.UUID) error {
	bot, err := co.bots.GetByID(ctx, botID)
	if err != nil {
		return err
	}

	if bot.VMHandle != nil {
		if err := co.provider.DestroyVM(ctx, *bot.VMHandle); err != nil {
			return err
		}
		if err := retryCompensation(ctx, "mark_vm_destroyed", func() error {
			return co.vms.MarkDestroyed(ctx, *bot.VMHandle, co.clock.Now())
		}); err != nil {
			return err
		}
		if err := co.bots.UpdateVMHandle(ctx, botID, nil); err != nil {
			return err
		}
		bot.VMHandle = nil
	}

	latest, err := co.configs.GetLatestForBot(ctx, botID)
	if err != nil {
		return err
	}

	token, err := generateRegistrationToken()
	if err != nil {
		return err
	}

	var trading domain.TradingConfig
	var risk domain.RiskConfig
	if err := unmarshalConfigPair(latest, &trading, &risk); err != nil {
		return err
	}

	in := CreateBotInput{
		AccountID:           bot.AccountID.String(),
		Name:                bot.Name,
		Persona:             bot.Persona,
		Trading:             trading,
		Risk:                risk,
		SecretProviderLabel: latest.SecretProviderLabel,
	}

	if err := co.configs.WithTx(ctx, func(tx repository.ConfigRepository) error {
		version, err := tx.NextVersionAtomic(ctx, botID)
		if err != nil {
			return err
		}
		cfg := &domain.ConfigVersion{
			ID:                  uuid.New(),
			BotID:               botID,
			Version:             version,
			TradingConfig:       latest.TradingConfig,
			RiskConfig:          latest.RiskConfig,
			EncryptedSecrets:    latest.EncryptedSecrets,
			SecretProviderLabel: latest.SecretProviderLabel,
			CreatedAt:           co.clock.Now(),
		}
		if err := tx.Create(ctx, cfg); err != nil {
			return err
		}
		bot.DesiredConfigVersionID = &cfg.ID
		return co.bots.UpdateDesiredConfig(ctx, botID, cfg.ID)
	}); err != nil {
		return err
	}

	return co.spawnBot(ctx, bot, token, in)
}

// Package coordinator implements the Provisioning Coordinator:
// atomic quota reservation, compensating VM lifecycle orchestration,
// user-data assembly, and the pause/resume/redeploy/destroy actions.
// Orchestration and compensation ordering are grounded step-for-step on
// original_source/src/application/provisioning.rs's create_bot /
// create_bot_internal / spawn_bot / destroy_bot / redeploy_bot.
package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ksred/botfleet-control-plane/internal/clock"
	"github.com/ksred/botfleet-control-plane/internal/domain"
	"github.com/ksred/botfleet-control-plane/internal/iaas"
	"github.com/ksred/botfleet-control-plane/internal/repository"
	"github.com/ksred/botfleet-control-plane/internal/secretcipher"
)

// Config carries the provisioning knobs the coordinator itself needs
// (as opposed to process bootstrap-only options like database_url).
type Config struct {
	ControlPlaneURL string
	VMRegion        string
	VMSize          string
	VMImage         string
	Customizer      GuestCustomizer
}

// Coordinator wires concrete repository/IaaS/cipher implementations
// behind the capability interfaces they declare, so tests can swap in
// fakes without touching orchestration logic.
type Coordinator struct {
	accounts repository.AccountRepository
	counters repository.CounterRepository
	bots     repository.BotRepository
	configs  repository.ConfigRepository
	vms      repository.VMRepository
	provider iaas.Provider
	cipher   *secretcipher.Cipher
	clock    clock.Clock
	cfg      Config
}

func New(
	accounts repository.AccountRepository,
	counters repository.CounterRepository,
	bots repository.BotRepository,
	configs repository.ConfigRepository,
	vms repository.VMRepository,
	provider iaas.Provider,
	cipher *secretcipher.Cipher,
	clk clock.Clock,
	cfg Config,
) *Coordinator {
	return &Coordinator{
		accounts: accounts,
		counters: counters,
		bots:     bots,
		configs:  configs,
		vms:      vms,
		provider: provider,
		cipher:   cipher,
		clock:    clk,
		cfg:      cfg,
	}
}

// QuotaExceededError is returned when an account is at its bot limit.
type QuotaExceededError struct {
	CurrentCount, MaxCount int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("account at bot limit: %d/%d", e.CurrentCount, e.MaxCount)
}

func generateRegistrationToken() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// CreateBot runs the happy-path orchestration: reserve quota, persist a
// pending bot, encrypt and insert config version 1, assemble user-data,
// create the VM, link it to the bot.
// Any failure from step 2 onward compensates in reverse order.
func (co *Coordinator) CreateBot(ctx context.Context, in CreateBotInput) (*domain.Bot, error) {
	if err := Validate(in); err != nil {
		return nil, err
	}

	accountID, err := uuid.Parse(in.AccountID)
	if err != nil {
		return nil, &ValidationError{Messages: []string{"account_id must be a valid uuid"}}
	}

	logger := log.With().Str("component", "provisioning_coordinator").Str("account_id", accountID.String()).Logger()

	counterResult, err := co.counters.TryIncrement(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if counterResult.NoSuchAccount {
		return nil, repository.NotFound("account", accountID.String())
	}
	if !counterResult.Success {
		return nil, &QuotaExceededError{CurrentCount: counterResult.CurrentCount, MaxCount: counterResult.MaxCount}
	}

	bot, err := co.createBotInternal(ctx, accountID, in)
	if err != nil {
		// Any error from here on must undo the quota reservation: for
		// any create failure, including RateLimited, there is no
		// special-case bypass that leaks quota or state.
		if decErr := co.counters.Decrement(ctx, accountID); decErr != nil {
			logger.Error().Err(decErr).Msg("failed to decrement counter during compensation")
		}
		return nil, err
	}

	logger.Info().Str("bot_id", bot.ID.String()).Msg("bot created")
	return bot, nil
}

// createBotInternal performs steps 2-5 of the orchestration. On any
// failure it hard-deletes the partial bot row (and, if the VM was
// already created, destroys it) before returning — the caller
// (CreateBot) is responsible only for the counter decrement.
func (co *Coordinator) createBotInternal(ctx context.Context, accountID uuid.UUID, in CreateBotInput) (*domain.Bot, error) {
	logger := log.With().Str("component", "provisioning_coordinator").Str("account_id", accountID.String()).Logger()

	token, err := generateRegistrationToken()
	if err != nil {
		return nil, fmt.Errorf("generating registration token: %w", err)
	}

	sanitizedName := domain.SanitizeBotName(in.Name)
	now := co.clock.Now()
	bot := &domain.Bot{
		ID:                      uuid.New(),
		AccountID:               accountID,
		Name:                    sanitizedName,
		Persona:                 in.Persona,
		Status:                  domain.BotPending,
		RegistrationTokenDigest: repository.HashRegistrationToken(token),
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	if err := co.bots.Create(ctx, bot); err != nil {
		return nil, err
	}

	ApplyPersonaDefaults(in.Persona, &in.Trading)
	if err := co.createInitialConfig(ctx, bot, in); err != nil {
		co.hardDeleteBot(ctx, bot.ID, logger)
		return nil, err
	}

	if err := co.spawnBot(ctx, bot, token, in); err != nil {
		co.hardDeleteBot(ctx, bot.ID, logger)
		return nil, err
	}

	return bot, nil
}

// hardDeleteBot is the rollback path for any failure after the pending
// bot row has been inserted but before the orchestration completed —
// the row never becomes visible as a real bot.
func (co *Coordinator) hardDeleteBot(ctx context.Context, botID uuid.UUID, logger zerolog.Logger) {
	if err := co.bots.HardDelete(ctx, botID); err != nil {
		logger.Error().Err(err).Str("bot_id", botID.String()).Msg("failed to hard-delete partial bot row")
	}
}

func (co *Coordinator) createInitialConfig(ctx context.Context, bot *domain.Bot, in CreateBotInput) error {
	encryptedSecrets, err := co.encryptSecrets(in.SecretMaterial)
	if err != nil {
		return err
	}

	tradingJSON, err := json.Marshal(in.Trading)
	if err != nil {
		return fmt.Errorf("marshaling trading config: %w", err)
	}
	riskJSON, err := json.Marshal(in.Risk)
	if err != nil {
		return fmt.Errorf("marshaling risk config: %w", err)
	}

	return co.configs.WithTx(ctx, func(tx repository.ConfigRepository) error {
		version, err := tx.NextVersionAtomic(ctx, bot.ID)
		if err != nil {
			return err
		}
		cfg := &domain.ConfigVersion{
			ID:                  uuid.New(),
			BotID:               bot.ID,
			Version:             version,
			TradingConfig:       tradingJSON,
			RiskConfig:          riskJSON,
			EncryptedSecrets:    encryptedSecrets,
			SecretProviderLabel: in.SecretProviderLabel,
			CreatedAt:           co.clock.Now(),
		}
		if err := tx.Create(ctx, cfg); err != nil {
			return err
		}
		if err := co.bots.UpdateDesiredConfig(ctx, bot.ID, cfg.ID); err != nil {
			return err
		}
		bot.DesiredConfigVersionID = &cfg.ID
		return nil
	})
}

func (co *Coordinator) encryptSecrets(secrets domain.BotSecrets) ([]byte, error) {
	plaintext, err := json.Marshal(secrets)
	if err != nil {
		return nil, fmt.Errorf("marshaling secrets: %w", err)
	}
	ciphertext, err := co.cipher.Encrypt(plaintext)
	if err != nil {
		return nil, fmt.Errorf("encrypting secrets: %w", err)
	}
	return ciphertext, nil
}

// spawnBot transitions the bot to provisioning, assembles user-data,
// calls iaas.CreateVM, and on success persists the VM record and links
// it to the bot. If VM creation succeeds but persistence subsequently
// fails, it destroys the VM as compensation before returning — the
// originating error is preserved, not masked.
func (co *Coordinator) spawnBot(ctx context.Context, bot *domain.Bot, registrationToken string, in CreateBotInput) error {
	logger := log.With().Str("component", "provisioning_coordinator").Str("bot_id", bot.ID.String()).Logger()

	if err := co.bots.UpdateStatus(ctx, bot.ID, domain.BotProvisioning); err != nil {
		return err
	}
	bot.Status = domain.BotProvisioning

	dropletName := fmt.Sprintf("botfleet-%s", bot.ID.String()[:8])
	configJSON, err := json.Marshal(struct {
		Version int                  `json:"version"`
		Trading domain.TradingConfig `json:"trading_config"`
		Risk    domain.RiskConfig    `json:"risk_config"`
	}{Version: 1, Trading: in.Trading, Risk: in.Risk})
	if err != nil {
		return fmt.Errorf("marshaling bot config for user-data: %w", err)
	}

	userData := assembleUserData(userDataParams{
		BotID:             bot.ID,
		RegistrationToken: registrationToken,
		ControlPlaneURL:   co.cfg.ControlPlaneURL,
		BotConfigJSON:     string(configJSON),
		Customizer:        co.cfg.Customizer,
	})

	vm, err := co.provider.CreateVM(ctx, iaas.CreateRequest{
		Name:     dropletName,
		Region:   co.cfg.VMRegion,
		Size:     co.cfg.VMSize,
		Image:    co.cfg.VMImage,
		UserData: userData,
		Tags:     []string{"botfleet"},
	})
	if err != nil {
		if err2 := co.bots.UpdateStatus(ctx, bot.ID, statusAfterCreateFailure(err)); err2 != nil {
			logger.Error().Err(err2).Msg("failed to record create_vm failure status")
		}
		return err
	}

	if err := co.persistVM(ctx, bot, vm); err != nil {
		logger.Error().Err(err).Int64("vm_id", vm.ID).Msg("FAILED TO CLEANUP: persisting VM record failed, destroying VM")
		if destroyErr := co.provider.DestroyVM(ctx, vm.ID); destroyErr != nil {
			logger.Error().Err(destroyErr).Int64("vm_id", vm.ID).Msg("FAILED TO CLEANUP: droplet may be orphaned")
		}
		if err2 := co.bots.UpdateStatus(ctx, bot.ID, domain.BotError); err2 != nil {
			logger.Error().Err(err2).Msg("failed to mark bot error after persist failure")
		}
		return err
	}

	if err := co.bots.UpdateStatus(ctx, bot.ID, domain.BotProvisioning); err != nil {
		return err
	}
	return nil
}

// statusAfterCreateFailure distinguishes a rate-limited create (the bot
// may be retried later by an operator via redeploy, so it is left
// pending rather than error) from any other create failure (error).
func statusAfterCreateFailure(err error) domain.BotStatus {
	if _, ok := asRateLimited(err); ok {
		return domain.BotPending
	}
	return domain.BotError
}

func (co *Coordinator) persistVM(ctx context.Context, bot *domain.Bot, vm iaas.VM) error {
	record := &domain.VMRecord{
		ID:     vm.ID,
		Name:   vm.Name,
		Region: co.cfg.VMRegion,
		Size:   co.cfg.VMSize,
		Image:  co.cfg.VMImage,
		Status: domain.VMNew,
	}
	if vm.IPAddress != "" {
		record.IPAddress = &vm.IPAddress
	}
	if err := co.vms.Create(ctx, record); err != nil {
		return err
	}
	if err := co.vms.AssignToBot(ctx, vm.ID, bot.ID); err != nil {
		return err
	}
	if err := co.bots.UpdateVMHandle(ctx, bot.ID, &vm.ID); err != nil {
		return err
	}
	bot.VMHandle = &vm.ID
	return nil
}

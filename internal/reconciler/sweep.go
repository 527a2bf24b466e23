package reconciler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ksred/botfleet-control-plane/internal/domain"
	"github.com/ksred/botfleet-control-plane/internal/iaas"
)

// SweepBatchSize bounds how many stale bots one sweep pass transitions
// before yielding back to the ticker — otherwise a long outage followed
// by a flood of simultaneously-stale bots turns one tick into an
// unbounded scan.
const SweepBatchSize = 500

// StaleSweeper runs the periodic task that demotes bots whose
// last_heartbeat_at is missing or older than the threshold. Grounded in
// shape on settlement.Processor's ticker/ctx.Done() loop and
// per-component zerolog logger.
type StaleSweeper struct {
	r         *Reconciler
	interval  time.Duration
	threshold time.Duration
}

func NewStaleSweeper(r *Reconciler, interval, threshold time.Duration) *StaleSweeper {
	return &StaleSweeper{r: r, interval: interval, threshold: threshold}
}

// Start runs the sweep loop until ctx is cancelled, mirroring
// settlement.Processor.Start's ticker + select shape.
func (s *StaleSweeper) Start(ctx context.Context) {
	logger := log.With().Str("component", "stale_sweeper").Logger()
	logger.Info().Dur("interval", s.interval).Dur("threshold", s.threshold).Msg("starting stale sweeper")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("shutting down stale sweeper")
			return
		case <-ticker.C:
			if err := s.sweepOnce(ctx, logger); err != nil {
				logger.Error().Err(err).Msg("stale sweep failed")
			}
		}
	}
}

// sweepOnce pages through list_stale in batches of SweepBatchSize until
// a page comes back short, transitioning each returned bot online ->
// error via an atomic status-guarded update so the sweep is safe to run
// from one or many workers concurrently.
func (s *StaleSweeper) sweepOnce(ctx context.Context, logger zerolog.Logger) error {
	threshold := s.r.clock.Now().Add(-s.threshold)

	total := 0
	for {
		stale, err := s.r.bots.ListStale(ctx, threshold, SweepBatchSize)
		if err != nil {
			return err
		}
		if len(stale) == 0 {
			break
		}

		for _, bot := range stale {
			matched, err := s.r.bots.CompareAndSetStatus(ctx, bot.ID, domain.BotOnline, domain.BotError)
			if err != nil {
				logger.Error().Err(err).Str("bot_id", bot.ID.String()).Msg("failed to demote stale bot")
				continue
			}
			if !matched {
				logger.Debug().Str("bot_id", bot.ID.String()).Msg("bot left online between list and demote, skipping")
				continue
			}
			total++
		}

		if len(stale) < SweepBatchSize {
			break
		}
	}

	if total > 0 {
		logger.Info().Int("count", total).Msg("demoted stale bots to error")
	}
	return nil
}

// SyncVMStatus polls the IaaS for the VM behind a provisioning bot,
// updates the cached VM status/IP, and demotes the bot to error if the
// VM has disappeared. Fills the gap left by heartbeat-only staleness
// detection for bots that never reach a live heartbeat because their VM
// died mid-boot.
func (r *Reconciler) SyncVMStatus(ctx context.Context, botID uuid.UUID) error {
	bot, err := r.bots.GetByID(ctx, botID)
	if err != nil {
		return err
	}
	if bot.VMHandle == nil {
		return nil
	}

	vm, err := r.provider.GetVM(ctx, *bot.VMHandle)
	if err != nil {
		if errors.Is(err, iaas.ErrNotFound) {
			if err := r.vms.MarkDestroyed(ctx, *bot.VMHandle, r.clock.Now()); err != nil {
				return err
			}
			return r.bots.UpdateStatus(ctx, botID, domain.BotError)
		}
		return err
	}

	status := mapVMStatus(vm.Status)
	if err := r.vms.UpdateStatus(ctx, *bot.VMHandle, status); err != nil {
		return err
	}
	if vm.IPAddress != "" {
		if err := r.vms.UpdateIP(ctx, *bot.VMHandle, vm.IPAddress); err != nil {
			return err
		}
	}
	return nil
}

func mapVMStatus(providerStatus string) domain.VMStatus {
	switch providerStatus {
	case "new":
		return domain.VMNew
	case "active":
		return domain.VMActive
	case "off":
		return domain.VMOff
	default:
		return domain.VMError
	}
}

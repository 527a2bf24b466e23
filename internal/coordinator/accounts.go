package coordinator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ksred/botfleet-control-plane/internal/domain"
)

// CreateAccountInput is the admin surface's account-creation payload.
type CreateAccountInput struct {
	ExternalID string
	Tier       domain.Tier
}

// CreateAccount persists the account row and its counter row together;
// the counter always starts at zero regardless of tier.
func (co *Coordinator) CreateAccount(ctx context.Context, in CreateAccountInput) (*domain.Account, error) {
	maxBots, ok := domain.MaxBotsForTier(in.Tier)
	if !ok {
		return nil, &ValidationError{Messages: []string{fmt.Sprintf("unknown tier: %q", in.Tier)}}
	}
	if in.ExternalID == "" {
		return nil, &ValidationError{Messages: []string{"external_id must not be empty"}}
	}

	now := co.clock.Now()
	account := &domain.Account{
		ID:         uuid.New(),
		ExternalID: in.ExternalID,
		Tier:       in.Tier,
		MaxBots:    maxBots,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := co.accounts.Create(ctx, account); err != nil {
		return nil, err
	}
	if err := co.counters.Create(ctx, &domain.AccountBotCounter{
		AccountID:    account.ID,
		CurrentCount: 0,
		MaxCount:     maxBots,
		UpdatedAt:    now,
	}); err != nil {
		return nil, err
	}
	return account, nil
}

// ChangeTier cascades a subscription change to both the account row and
// its counter's ceiling. The counter's current_count is left untouched: a
// downgrade below the current bot count does not retroactively destroy
// bots, it only blocks further creation until the account is back under
// the new ceiling.
func (co *Coordinator) ChangeTier(ctx context.Context, accountID uuid.UUID, tier domain.Tier) error {
	maxBots, ok := domain.MaxBotsForTier(tier)
	if !ok {
		return &ValidationError{Messages: []string{fmt.Sprintf("unknown tier: %q", tier)}}
	}
	if err := co.accounts.UpdateSubscription(ctx, accountID, tier, maxBots); err != nil {
		return err
	}
	return co.counters.UpdateMaxCount(ctx, accountID, maxBots)
}

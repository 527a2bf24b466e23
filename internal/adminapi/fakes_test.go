package adminapi

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ksred/botfleet-control-plane/internal/domain"
	"github.com/ksred/botfleet-control-plane/internal/iaas"
	"github.com/ksred/botfleet-control-plane/internal/repository"
)

// Own copies of the in-memory fakes used across the other packages: Go
// test-only types in one package are not importable from another, so
// each package that needs them declares its own.

type fixedClock struct{ now time.Time }

func (f fixedClock) Now() time.Time { return f.now }

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[uuid.UUID]domain.Account
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[uuid.UUID]domain.Account)}
}

func (r *fakeAccountRepo) Create(ctx context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.ID] = *a
	return nil
}

func (r *fakeAccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, repository.NotFound("account", id.String())
	}
	return &a, nil
}

func (r *fakeAccountRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.ExternalID == externalID {
			return &a, nil
		}
	}
	return nil, repository.NotFound("account", externalID)
}

func (r *fakeAccountRepo) UpdateSubscription(ctx context.Context, id uuid.UUID, tier domain.Tier, maxBots int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return repository.NotFound("account", id.String())
	}
	a.Tier = tier
	a.MaxBots = maxBots
	r.accounts[id] = a
	return nil
}

type fakeCounterRepo struct {
	mu       sync.Mutex
	counters map[uuid.UUID]domain.AccountBotCounter
}

func newFakeCounterRepo() *fakeCounterRepo {
	return &fakeCounterRepo{counters: make(map[uuid.UUID]domain.AccountBotCounter)}
}

func (r *fakeCounterRepo) Create(ctx context.Context, c *domain.AccountBotCounter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[c.AccountID] = *c
	return nil
}

func (r *fakeCounterRepo) TryIncrement(ctx context.Context, accountID uuid.UUID) (repository.CounterResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[accountID]
	if !ok {
		return repository.CounterResult{NoSuchAccount: true}, nil
	}
	if c.CurrentCount >= c.MaxCount {
		return repository.CounterResult{Success: false, CurrentCount: c.CurrentCount, MaxCount: c.MaxCount}, nil
	}
	c.CurrentCount++
	r.counters[accountID] = c
	return repository.CounterResult{Success: true, CurrentCount: c.CurrentCount, MaxCount: c.MaxCount}, nil
}

func (r *fakeCounterRepo) Decrement(ctx context.Context, accountID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[accountID]
	if !ok {
		return repository.NotFound("account_bot_counter", accountID.String())
	}
	if c.CurrentCount > 0 {
		c.CurrentCount--
	}
	r.counters[accountID] = c
	return nil
}

func (r *fakeCounterRepo) UpdateMaxCount(ctx context.Context, accountID uuid.UUID, maxCount int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.counters[accountID]
	if !ok {
		return repository.NotFound("account_bot_counter", accountID.String())
	}
	c.MaxCount = maxCount
	r.counters[accountID] = c
	return nil
}

type fakeBotRepo struct {
	mu   sync.Mutex
	bots map[uuid.UUID]domain.Bot
}

func newFakeBotRepo() *fakeBotRepo {
	return &fakeBotRepo{bots: make(map[uuid.UUID]domain.Bot)}
}

func (r *fakeBotRepo) Create(ctx context.Context, b *domain.Bot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bots[b.ID] = *b
	return nil
}

func (r *fakeBotRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[id]
	if !ok {
		return nil, repository.NotFound("bot", id.String())
	}
	return &b, nil
}

func (r *fakeBotRepo) GetByTokenDigest(ctx context.Context, rawToken, digest string) (*domain.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, b := range r.bots {
		if b.RegistrationTokenDigest == digest {
			return &b, nil
		}
	}
	return nil, repository.NotFound("bot", "by token")
}

func (r *fakeBotRepo) ListByAccount(ctx context.Context, accountID uuid.UUID, page repository.Pagination) ([]domain.Bot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Bot
	for _, b := range r.bots {
		if b.AccountID == accountID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (r *fakeBotRepo) CountByAccount(ctx context.Context, accountID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, b := range r.bots {
		if b.AccountID == accountID && b.Status != domain.BotDestroyed {
			n++
		}
	}
	return n, nil
}

func (r *fakeBotRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.BotStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[id]
	if !ok {
		return repository.NotFound("bot", id.String())
	}
	b.Status = status
	r.bots[id] = b
	return nil
}

func (r *fakeBotRepo) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to domain.BotStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	r.bots[id] = b
	return true, nil
}

func (r *fakeBotRepo) UpdateVMHandle(ctx context.Context, id uuid.UUID, vmHandle *int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[id]
	if !ok {
		return repository.NotFound("bot", id.String())
	}
	b.VMHandle = vmHandle
	r.bots[id] = b
	return nil
}

func (r *fakeBotRepo) UpdateDesiredConfig(ctx context.Context, id, configID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[id]
	if !ok {
		return repository.NotFound("bot", id.String())
	}
	b.DesiredConfigVersionID = &configID
	r.bots[id] = b
	return nil
}

func (r *fakeBotRepo) UpdateAppliedConfig(ctx context.Context, id, configID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[id]
	if !ok {
		return repository.NotFound("bot", id.String())
	}
	b.AppliedConfigVersionID = &configID
	r.bots[id] = b
	return nil
}

func (r *fakeBotRepo) RecordHeartbeat(ctx context.Context, id uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bots[id]
	if !ok {
		return repository.NotFound("bot", id.String())
	}
	b.LastHeartbeatAt = &now
	r.bots[id] = b
	return nil
}

func (r *fakeBotRepo) ListStale(ctx context.Context, threshold time.Time, limit int) ([]domain.Bot, error) {
	return nil, nil
}

func (r *fakeBotRepo) HardDelete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bots[id]; !ok {
		return repository.NotFound("bot", id.String())
	}
	delete(r.bots, id)
	return nil
}

type fakeConfigRepo struct {
	mu       sync.Mutex
	versions map[uuid.UUID]domain.ConfigVersion
}

func newFakeConfigRepo() *fakeConfigRepo {
	return &fakeConfigRepo{versions: make(map[uuid.UUID]domain.ConfigVersion)}
}

func (r *fakeConfigRepo) Create(ctx context.Context, c *domain.ConfigVersion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions[c.ID] = *c
	return nil
}

func (r *fakeConfigRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.ConfigVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.versions[id]
	if !ok {
		return nil, repository.NotFound("config_version", id.String())
	}
	return &c, nil
}

func (r *fakeConfigRepo) GetLatestForBot(ctx context.Context, botID uuid.UUID) (*domain.ConfigVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *domain.ConfigVersion
	for _, c := range r.versions {
		if c.BotID != botID {
			continue
		}
		cc := c
		if latest == nil || cc.Version > latest.Version {
			latest = &cc
		}
	}
	if latest == nil {
		return nil, repository.NotFound("config_version", "latest for "+botID.String())
	}
	return latest, nil
}

func (r *fakeConfigRepo) ListByBot(ctx context.Context, botID uuid.UUID) ([]domain.ConfigVersion, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ConfigVersion
	for _, c := range r.versions {
		if c.BotID == botID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (r *fakeConfigRepo) NextVersionAtomic(ctx context.Context, botID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	max := 0
	for _, c := range r.versions {
		if c.BotID == botID && c.Version > max {
			max = c.Version
		}
	}
	return max + 1, nil
}

func (r *fakeConfigRepo) WithTx(ctx context.Context, fn func(tx repository.ConfigRepository) error) error {
	return fn(r)
}

type fakeVMRepo struct {
	mu  sync.Mutex
	vms map[int64]domain.VMRecord
}

func newFakeVMRepo() *fakeVMRepo {
	return &fakeVMRepo{vms: make(map[int64]domain.VMRecord)}
}

func (r *fakeVMRepo) Create(ctx context.Context, vm *domain.VMRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vms[vm.ID] = *vm
	return nil
}

func (r *fakeVMRepo) GetByID(ctx context.Context, id int64) (*domain.VMRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	vm, ok := r.vms[id]
	if !ok {
		return nil, repository.NotFound("vm", "")
	}
	return &vm, nil
}

func (r *fakeVMRepo) AssignToBot(ctx context.Context, vmID int64, botID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	vm, ok := r.vms[vmID]
	if !ok {
		return repository.NotFound("vm", "")
	}
	vm.BotID = &botID
	r.vms[vmID] = vm
	return nil
}

func (r *fakeVMRepo) UpdateStatus(ctx context.Context, vmID int64, status domain.VMStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	vm, ok := r.vms[vmID]
	if !ok {
		return repository.NotFound("vm", "")
	}
	vm.Status = status
	r.vms[vmID] = vm
	return nil
}

func (r *fakeVMRepo) UpdateIP(ctx context.Context, vmID int64, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	vm, ok := r.vms[vmID]
	if !ok {
		return repository.NotFound("vm", "")
	}
	vm.IPAddress = &ip
	r.vms[vmID] = vm
	return nil
}

func (r *fakeVMRepo) MarkDestroyed(ctx context.Context, vmID int64, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	vm, ok := r.vms[vmID]
	if !ok {
		return repository.NotFound("vm", "")
	}
	vm.Status = domain.VMDestroyed
	vm.DestroyedAt = &now
	r.vms[vmID] = vm
	return nil
}

// fakeProvider always succeeds; the handler-level tests exercise HTTP
// wiring and orchestration outcomes, not IaaS failure modes (those are
// covered in the coordinator package's own tests).
type fakeProvider struct {
	mu       sync.Mutex
	nextVMID int64
	vms      map[int64]iaas.VM
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{nextVMID: 1, vms: make(map[int64]iaas.VM)}
}

func (p *fakeProvider) CreateVM(ctx context.Context, req iaas.CreateRequest) (iaas.VM, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	vm := iaas.VM{ID: p.nextVMID, Name: req.Name, Status: "new", IPAddress: "10.0.0.1"}
	p.vms[vm.ID] = vm
	p.nextVMID++
	return vm, nil
}

func (p *fakeProvider) GetVM(ctx context.Context, id int64) (iaas.VM, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	vm, ok := p.vms[id]
	if !ok {
		return iaas.VM{}, iaas.ErrNotFound
	}
	return vm, nil
}

func (p *fakeProvider) DestroyVM(ctx context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.vms, id)
	return nil
}

func (p *fakeProvider) PowerOff(ctx context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	vm, ok := p.vms[id]
	if !ok {
		return iaas.ErrNotFound
	}
	vm.Status = "off"
	p.vms[id] = vm
	return nil
}

func (p *fakeProvider) PowerOn(ctx context.Context, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	vm, ok := p.vms[id]
	if !ok {
		return iaas.ErrNotFound
	}
	vm.Status = "active"
	p.vms[id] = vm
	return nil
}

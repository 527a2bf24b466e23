// Package iaas is the bounded, retrying, rate-limit-aware client for
// VM create/destroy/query/power operations. Provider is the
// capability abstraction the Provisioning Coordinator depends on; its
// one concrete implementation targets DigitalOcean's Droplets API,
// grounded on original_source/src/infrastructure/digital_ocean.rs.
package iaas

import (
	"context"
	"errors"
)

// VM is the provider's view of a worker VM, independent of our cached
// VMRecord row.
type VM struct {
	ID        int64
	Name      string
	Status    string // provider's raw status ("new", "active", "off", "archive"), copied unmapped by the adapter
	IPAddress string
}

// CreateRequest describes a VM to provision.
type CreateRequest struct {
	Name     string
	Region   string
	Size     string
	Image    string
	UserData string
	Tags     []string
}

// Provider is the abstract capability set required: create, get,
// destroy, power_off, power_on. Every method is bounded by its own
// request/connect deadlines internally; callers do not need to wrap
// calls in their own timeout.
type Provider interface {
	CreateVM(ctx context.Context, req CreateRequest) (VM, error)
	GetVM(ctx context.Context, id int64) (VM, error)
	DestroyVM(ctx context.Context, id int64) error
	PowerOff(ctx context.Context, id int64) error
	PowerOn(ctx context.Context, id int64) error
}

// Error kinds. RateLimited is distinguished so callers can re-attempt
// later at a higher layer; Transient covers retry-exhausted network/5xx
// failures; Fatal covers non-2xx responses outside the retry policy.
// Construction-time credential problems surface as InvalidConfigError.
var (
	ErrRateLimited = errors.New("iaas: rate limited")
	ErrNotFound    = errors.New("iaas: vm not found")
)

// RateLimitedError carries the provider's Retry-After hint, if any.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string { return ErrRateLimited.Error() }
func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// TransientError wraps a retry-exhausted network or 5xx failure.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string { return "iaas: transient: " + e.Cause.Error() }
func (e *TransientError) Unwrap() error { return e.Cause }

// FatalError wraps a non-retryable failure: bad credentials, malformed
// request, or any non-2xx response outside {429, 500, 502, 503, 504}.
type FatalError struct {
	Cause error
}

func (e *FatalError) Error() string { return "iaas: fatal: " + e.Cause.Error() }
func (e *FatalError) Unwrap() error { return e.Cause }

// InvalidConfigError surfaces bad credentials at construction, not at
// first use.
type InvalidConfigError struct {
	Detail string
}

func (e *InvalidConfigError) Error() string { return "iaas: invalid config: " + e.Detail }

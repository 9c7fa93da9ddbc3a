// Package breaker wraps outbound dependencies in per-dependency circuit
// breakers so a consistently failing source or SDK endpoint is skipped
// for a cool-down window instead of being hammered.
package breaker

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when a dependency is deliberately skipped
// because its breaker is open.
var ErrCircuitOpen = errors.New("circuit open: dependency temporarily disabled")

const (
	defaultFailureThreshold = 5
	defaultRecoveryTimeout  = 30 * time.Second
)

// Registry keeps one three-state breaker per dependency id. Breakers are
// created lazily on first use; state is owned exclusively by this
// registry.
type Registry struct {
	mu               sync.RWMutex
	breakers         map[string]*gobreaker.CircuitBreaker
	failureThreshold uint32
	recoveryTimeout  time.Duration
	onStateChange    func(dep string, from, to gobreaker.State)
	countsAsFailure  func(err error) bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithFailureThreshold sets how many consecutive failures trip a breaker.
func WithFailureThreshold(n uint32) Option {
	return func(r *Registry) { r.failureThreshold = n }
}

// WithRecoveryTimeout sets how long a tripped breaker stays open before
// admitting a half-open trial call.
func WithRecoveryTimeout(d time.Duration) Option {
	return func(r *Registry) { r.recoveryTimeout = d }
}

// WithStateChangeHook registers a callback invoked on every transition.
func WithStateChangeHook(fn func(dep string, from, to gobreaker.State)) Option {
	return func(r *Registry) { r.onStateChange = fn }
}

// WithFailurePredicate narrows which errors count as dependency
// failures. Errors the predicate rejects (for example a local rate-limit
// denial) pass through without moving the breaker.
func WithFailurePredicate(fn func(err error) bool) Option {
	return func(r *Registry) { r.countsAsFailure = fn }
}

// NewRegistry creates a breaker registry with defaults overridden by opts.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		breakers:         make(map[string]*gobreaker.CircuitBreaker),
		failureThreshold: defaultFailureThreshold,
		recoveryTimeout:  defaultRecoveryTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) breaker(dep string) *gobreaker.CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[dep]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[dep]; ok {
		return cb
	}

	threshold := r.failureThreshold
	st := gobreaker.Settings{
		Name: dep,
		// one trial call in half-open
		MaxRequests: 1,
		Timeout:     r.recoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
	}
	if hook := r.onStateChange; hook != nil {
		st.OnStateChange = func(name string, from, to gobreaker.State) {
			hook(name, from, to)
		}
	}
	if pred := r.countsAsFailure; pred != nil {
		st.IsSuccessful = func(err error) bool {
			return err == nil || !pred(err)
		}
	}

	cb = gobreaker.NewCircuitBreaker(st)
	r.breakers[dep] = cb
	return cb
}

// Execute runs fn under the breaker for dep. While the breaker is open
// fn is not invoked and ErrCircuitOpen is returned. Retries belong
// inside fn: one Execute call counts once against the breaker no matter
// how many internal attempts fn makes.
func (r *Registry) Execute(dep string, fn func() (any, error)) (any, error) {
	result, err := r.breaker(dep).Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}

// State reports the current breaker state for dep ("closed", "open",
// "half-open"). A dependency that was never called is closed.
func (r *Registry) State(dep string) string {
	r.mu.RLock()
	cb, ok := r.breakers[dep]
	r.mu.RUnlock()
	if !ok {
		return gobreaker.StateClosed.String()
	}
	return cb.State().String()
}

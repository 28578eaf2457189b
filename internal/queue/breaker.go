package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/edvin/hosting-billing/internal/model"
)

// endpoint pairs a gobreaker instance with the failure bookkeeping operators
// see. gobreaker resets its counts on every state change, so the streak and
// last failure time are tracked here.
//
// Recovery is reset-to-closed: the first call after the cool-down swaps in a
// fresh closed breaker instead of running gobreaker's half-open probe, so a
// full streak of failures is needed to open the circuit again.
type endpoint struct {
	name       string
	newBreaker func() *gobreaker.CircuitBreaker
	onReset    func()

	mu            sync.Mutex
	cb            *gobreaker.CircuitBreaker
	failures      int
	lastFailureAt time.Time
}

// breaker returns the breaker to run the next call under, resetting it when
// the cool-down has elapsed.
func (e *endpoint) breaker() *gobreaker.CircuitBreaker {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cb.State() == gobreaker.StateHalfOpen {
		e.cb = e.newBreaker()
		e.failures = 0
		if e.onReset != nil {
			e.onReset()
		}
	}
	return e.cb
}

func (e *endpoint) record(failed bool, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if failed {
		e.failures++
		e.lastFailureAt = at
		return
	}
	e.failures = 0
}

func (e *endpoint) snapshot() model.CircuitState {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := model.CircuitState{
		Endpoint:            e.name,
		State:               stateName(e.cb.State()),
		ConsecutiveFailures: e.failures,
	}
	st.IsOpen = st.State == model.CircuitOpen
	if !e.lastFailureAt.IsZero() {
		at := e.lastFailureAt
		st.LastFailureAt = &at
	}
	return st
}

func stateName(s gobreaker.State) string {
	switch s {
	case gobreaker.StateOpen:
		return model.CircuitOpen
	case gobreaker.StateHalfOpen:
		return model.CircuitHalfOpen
	default:
		return model.CircuitClosed
	}
}

// endpoint returns the breaker for name, creating it on first use.
func (q *Queue) endpoint(name string) *endpoint {
	q.epMu.RLock()
	ep, ok := q.endpoints[name]
	q.epMu.RUnlock()
	if ok {
		return ep
	}

	q.epMu.Lock()
	defer q.epMu.Unlock()
	if ep, ok := q.endpoints[name]; ok {
		return ep
	}

	threshold := uint32(q.cfg.BreakerThreshold)
	logger := q.logger.With().Str("endpoint", name).Logger()
	settings := gobreaker.Settings{
		Name:    name,
		Timeout: q.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(_ string, from, to gobreaker.State) {
			// half-open is never run; breaker() replaces it with a closed one
			if to == gobreaker.StateHalfOpen {
				return
			}
			breakerState.WithLabelValues(name).Set(float64(to))
			logger.Warn().Str("from", stateName(from)).Str("to", stateName(to)).Msg("circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return Classify(err) != ClassRetryable
		},
	}
	ep = &endpoint{
		name:       name,
		newBreaker: func() *gobreaker.CircuitBreaker { return gobreaker.NewCircuitBreaker(settings) },
		onReset: func() {
			breakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
			logger.Info().Msg("circuit cool-down elapsed, reset to closed")
		},
	}
	ep.cb = ep.newBreaker()
	q.endpoints[name] = ep
	breakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	return ep
}

// Circuits returns the state of every endpoint seen so far, sorted by name.
func (q *Queue) Circuits() []model.CircuitState {
	q.epMu.RLock()
	eps := make([]*endpoint, 0, len(q.endpoints))
	for _, ep := range q.endpoints {
		eps = append(eps, ep)
	}
	q.epMu.RUnlock()

	states := make([]model.CircuitState, 0, len(eps))
	for _, ep := range eps {
		states = append(states, ep.snapshot())
	}
	sort.Slice(states, func(i, j int) bool { return states[i].Endpoint < states[j].Endpoint })
	return states
}

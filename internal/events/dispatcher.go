package events

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/edvin/hosting-billing/internal/platform"
)

var (
	eventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_events_emitted_total",
		Help: "Events accepted by the dispatcher, by type.",
	}, []string{"type"})

	eventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_events_dropped_total",
		Help: "Events dropped because the dispatch buffer was full.",
	}, []string{"type"})

	deliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_event_delivery_failures_total",
		Help: "Failed deliveries by sink.",
	}, []string{"sink"})
)

// Sink delivers envelopes to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, env Envelope) error
}

// Dispatcher buffers events in memory and hands them to every sink from a
// single goroutine started with Run.
type Dispatcher struct {
	buf          chan Envelope
	sinks        []Sink
	logger       zerolog.Logger
	now          func() time.Time
	drainTimeout time.Duration
}

func NewDispatcher(buffer int, logger zerolog.Logger, sinks ...Sink) *Dispatcher {
	if buffer < 1 {
		buffer = 1
	}
	return &Dispatcher{
		buf:          make(chan Envelope, buffer),
		sinks:        sinks,
		logger:       logger.With().Str("component", "events").Logger(),
		now:          time.Now,
		drainTimeout: 5 * time.Second,
	}
}

// Emit queues e for delivery. When the buffer is full the event is dropped.
func (d *Dispatcher) Emit(e Event) {
	env := Envelope{
		ID:         platform.NewID(),
		Type:       e.EventType(),
		OccurredAt: d.now().UTC(),
		Data:       e,
	}
	select {
	case d.buf <- env:
		eventsEmitted.WithLabelValues(string(env.Type)).Inc()
	default:
		eventsDropped.WithLabelValues(string(env.Type)).Inc()
		d.logger.Warn().Str("type", string(env.Type)).Msg("event buffer full, dropping event")
	}
}

// Run delivers events until ctx is done, then flushes what is already
// buffered within a short grace period.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case env := <-d.buf:
			d.deliver(ctx, env)
		case <-ctx.Done():
			d.drain()
			return
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), d.drainTimeout)
	defer cancel()
	for {
		select {
		case env := <-d.buf:
			d.deliver(ctx, env)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, env Envelope) {
	for _, s := range d.sinks {
		if err := s.Deliver(ctx, env); err != nil {
			deliveryFailures.WithLabelValues(s.Name()).Inc()
			d.logger.Warn().Err(err).Str("sink", s.Name()).Str("type", string(env.Type)).
				Str("event_id", env.ID).Msg("event delivery failed")
		}
	}
}

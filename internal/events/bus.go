// Package events fans domain events out to the audit log and to every
// configured sink (NATS, webhooks). Publishing is best effort: sink
// failures are logged and never fail the operation that raised the event.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/PNWBNW/Proven-National-Worker/internal/audit"
	"github.com/PNWBNW/Proven-National-Worker/internal/model"
)

// Emitter is what domain components depend on to raise events.
type Emitter interface {
	Emit(ctx context.Context, ev model.Event) model.Event
}

// Sink receives every emitted event.
type Sink interface {
	Publish(ctx context.Context, ev model.Event) error
}

type namedSink struct {
	name string
	sink Sink
}

// Bus records each event in the audit log and forwards it to the sinks.
type Bus struct {
	log    audit.Log // nil = no audit entries
	logger *zap.Logger
	now    func() time.Time

	mu    sync.RWMutex
	sinks []namedSink
}

// NewBus creates a Bus. log may be nil.
func NewBus(log audit.Log, logger *zap.Logger) *Bus {
	return &Bus{
		log:    log,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// AddSink attaches a sink; name is used in log lines.
func (b *Bus) AddSink(name string, s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, namedSink{name: name, sink: s})
}

// Emit stamps the event with an ID and time when missing, appends it to the
// audit log and publishes it to every sink. It returns the stamped event.
func (b *Bus) Emit(ctx context.Context, ev model.Event) model.Event {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = b.now()
	}

	if b.log != nil {
		b.appendAudit(ctx, ev)
	}

	b.mu.RLock()
	sinks := b.sinks
	b.mu.RUnlock()
	for _, s := range sinks {
		if err := s.sink.Publish(ctx, ev); err != nil {
			b.logger.Error("event sink publish failed",
				zap.String("sink", s.name),
				zap.String("event", string(ev.Type)),
				zap.Error(err),
			)
		}
	}
	return ev
}

// appendAudit is non-fatal: the event has already happened.
func (b *Bus) appendAudit(ctx context.Context, ev model.Event) {
	hash, err := audit.InputsHash(ev)
	if err != nil {
		b.logger.Error("event audit hash failed", zap.String("event", string(ev.Type)), zap.Error(err))
		return
	}
	if _, err := b.log.Append(ctx, audit.Record{
		SubjectID:  ev.SubjectID,
		Action:     string(ev.Type),
		Actor:      audit.ActorFrom(ctx),
		InputsHash: hash,
		Reason:     ev.Detail["reason"],
	}); err != nil {
		b.logger.Error("event audit append failed",
			zap.String("event", string(ev.Type)),
			zap.String("subject_id", ev.SubjectID),
			zap.Error(err),
		)
	}
}

// Nop discards events.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(_ context.Context, ev model.Event) model.Event { return ev }

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []model.Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(_ context.Context, ev model.Event) model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return ev
}

// Publish implements Sink.
func (r *Recorder) Publish(ctx context.Context, ev model.Event) error {
	r.Emit(ctx, ev)
	return nil
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Event(nil), r.events...)
}

// OfType returns the recorded events of type t.
func (r *Recorder) OfType(t model.EventType) []model.Event {
	var out []model.Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

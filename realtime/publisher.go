package realtime

import (
	"context"
	"time"

	"github.com/kasuganosora/hangout/cache"
	"github.com/kasuganosora/hangout/metrics"
	"go.uber.org/zap"
)

// Emitter hands events to the fan-out layer. Emit never fails the caller:
// delivery problems are logged and counted.
type Emitter interface {
	Emit(ctx context.Context, topic, eventType string, payload interface{})
}

// Publisher is the Emitter backed by cache.PubSub.
type Publisher struct {
	ps     cache.PubSub
	logger *zap.Logger
	now    func() time.Time
}

// NewPublisher creates a Publisher.
func NewPublisher(ps cache.PubSub, logger *zap.Logger) *Publisher {
	return &Publisher{ps: ps, logger: logger, now: time.Now}
}

// SetClock overrides the timestamp source.
func (p *Publisher) SetClock(now func() time.Time) { p.now = now }

func (p *Publisher) Emit(ctx context.Context, topic, eventType string, payload interface{}) {
	data, err := encode(topic, eventType, payload, p.now())
	if err == nil {
		err = p.ps.Publish(ctx, topic, string(data))
	}
	metrics.EventsPublished.WithLabelValues(eventType, metrics.Outcome(err)).Inc()
	if err != nil {
		p.logger.Warn("realtime publish failed",
			zap.String("topic", topic),
			zap.String("type", eventType),
			zap.Error(err))
	}
}

// Subscribe streams decoded events for the given topics. Undecodable
// payloads are skipped. The returned channel closes after cancel or once
// ctx is done.
func (p *Publisher) Subscribe(ctx context.Context, topics ...string) (<-chan *Event, func(), error) {
	in, cancel, err := p.ps.Subscribe(ctx, topics...)
	if err != nil {
		return nil, nil, err
	}
	out := make(chan *Event, cap(in))
	go func() {
		defer close(out)
		for msg := range in {
			ev, err := Decode(msg.Payload)
			if err != nil {
				p.logger.Warn("realtime decode failed", zap.String("topic", msg.Channel), zap.Error(err))
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				cancel()
				for range in {
				}
				return
			}
		}
	}()
	return out, cancel, nil
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(context.Context, string, string, interface{}) {}

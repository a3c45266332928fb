package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/fedeegea/baggage-backend/pkg/logger"
	"github.com/fedeegea/baggage-backend/pkg/metrics"
)

const (
	defaultConnectAttempts = 5
	defaultConnectDelay    = 5 * time.Second
)

// Handler processes one validated envelope. Returning an error nacks the
// message for redelivery, so handlers must stay idempotent.
type Handler interface {
	Handle(ctx context.Context, envelope Envelope) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, envelope Envelope) error

// Handle calls the underlying function.
func (fn HandlerFunc) Handle(ctx context.Context, envelope Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *gcppubsub.Message)) error
}

// SubscriberParams configures the bus subscriber.
type SubscriberParams struct {
	Subscription    *gcppubsub.Subscriber
	Handler         Handler
	Logger          *logger.Logger
	Metrics         *metrics.WatchdogMetrics
	ConnectAttempts int
	ConnectDelay    time.Duration

	// receiveOverride lets tests inject a fake transport.
	receiveOverride receiver
}

// Subscriber pulls envelopes from the bus and feeds them to a handler.
// Malformed payloads are counted and acked away; handler failures nack for
// redelivery. Connection failures retry a bounded number of times before the
// process gives up.
type Subscriber struct {
	sub      receiver
	handler  Handler
	logg     *logger.Logger
	metrics  *metrics.WatchdogMetrics
	attempts int
	delay    time.Duration
}

// NewSubscriber builds a bus subscriber over the events subscription.
func NewSubscriber(params SubscriberParams) (*Subscriber, error) {
	if params.Handler == nil {
		return nil, errors.New("handler is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}

	sub := params.receiveOverride
	if sub == nil {
		if params.Subscription == nil {
			return nil, errors.New("events subscription is required")
		}
		sub = params.Subscription
	}

	attempts := params.ConnectAttempts
	if attempts <= 0 {
		attempts = defaultConnectAttempts
	}
	delay := params.ConnectDelay
	if delay <= 0 {
		delay = defaultConnectDelay
	}

	return &Subscriber{
		sub:      sub,
		handler:  params.Handler,
		logg:     params.Logger,
		metrics:  params.Metrics,
		attempts: attempts,
		delay:    delay,
	}, nil
}

// Run consumes until the context is canceled. A broken receive stream is
// retried with a fixed delay up to the attempt budget; exhausting the budget
// returns the last error so the process exits visibly instead of spinning.
func (s *Subscriber) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		err := s.sub.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
			if s.process(innerCtx, msg).nack {
				msg.Nack()
				return
			}
			msg.Ack()
		})
		if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return err
		}

		lastErr = err
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"attempt":      attempt,
			"max_attempts": s.attempts,
			"error":        err.Error(),
		})
		s.logg.Warn(logCtx, "bus receive stream broke, reconnecting")

		if attempt < s.attempts {
			if err := sleep(ctx, s.delay); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("bus receive failed after %d attempts: %w", s.attempts, lastErr)
}

type processResult struct {
	nack bool
}

func (s *Subscriber) process(ctx context.Context, msg *gcppubsub.Message) processResult {
	s.metrics.IncConsumed()
	logCtx := s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, err := DecodeEnvelope(msg.Data)
	if err != nil {
		s.metrics.IncMalformed()
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "malformed envelope dropped")
		return processResult{}
	}

	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"event_id": envelope.EventID,
		"item_id":  envelope.ItemID,
		"kind":     envelope.Kind,
	})

	if err := s.handler.Handle(logCtx, envelope); err != nil {
		s.logg.Error(logCtx, "envelope handler failed", err)
		return processResult{nack: true}
	}
	return processResult{}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/fedeegea/baggage-backend/internal/events"
	pkgerrors "github.com/fedeegea/baggage-backend/pkg/errors"
	"github.com/fedeegea/baggage-backend/pkg/logger"
	"github.com/fedeegea/baggage-backend/pkg/metrics"
)

const defaultPublishTimeout = 10 * time.Second

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// PublisherParams configures the bus publisher.
type PublisherParams struct {
	Publisher *gcppubsub.Publisher
	Timeout   time.Duration
	Logger    *logger.Logger
	Metrics   *metrics.RelayMetrics

	// publishOverride lets tests inject a fake transport.
	publishOverride publisher
}

// Publisher relays stored events to the bus topic. Each publish waits for the
// broker acknowledgment with a bounded timeout so callers always get a
// definitive outcome.
type Publisher struct {
	pub     publisher
	timeout time.Duration
	logg    *logger.Logger
	metrics *metrics.RelayMetrics
}

// NewPublisher builds a bus publisher over the events topic.
func NewPublisher(params PublisherParams) (*Publisher, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}

	pub := params.publishOverride
	if pub == nil {
		if params.Publisher == nil {
			return nil, errors.New("events topic publisher is required")
		}
		pub = &gcpPublisher{Publisher: params.Publisher}
	}

	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultPublishTimeout
	}

	return &Publisher{
		pub:     pub,
		timeout: timeout,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// Publish sends one event to the bus and waits for the broker ack. Timeouts
// and transport failures map onto distinct error codes so callers can tell a
// slow broker from an unreachable one.
func (p *Publisher) Publish(ctx context.Context, event events.Event) error {
	envelope := NewEnvelope(event)
	payload, err := envelope.Encode()
	if err != nil {
		p.metrics.IncPublishFailure(string(pkgerrors.CodeInternal))
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encoding envelope")
	}

	msg := &gcppubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_id":    envelope.EventID,
			"item_id":     envelope.ItemID,
			"kind":        envelope.Kind,
			"occurred_at": envelope.OccurredAt.Format(time.RFC3339Nano),
		},
	}

	publishCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	result := p.pub.Publish(publishCtx, msg)
	if result == nil {
		p.metrics.IncPublishFailure(string(pkgerrors.CodePublishConnection))
		return pkgerrors.New(pkgerrors.CodePublishConnection, "publisher returned no result")
	}

	messageID, err := result.Get(publishCtx)
	if err != nil {
		code := pkgerrors.CodePublishConnection
		if errors.Is(err, context.DeadlineExceeded) {
			code = pkgerrors.CodePublishTimeout
		}
		p.metrics.IncPublishFailure(string(code))
		return pkgerrors.Wrap(code, err, fmt.Sprintf("publishing event %s", envelope.EventID))
	}

	p.metrics.IncPublished()
	logCtx := p.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"item_id":    envelope.ItemID,
		"kind":       envelope.Kind,
		"message_id": messageID,
	})
	p.logg.Info(logCtx, "event published")
	return nil
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}

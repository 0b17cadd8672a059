// Package amqp publishes job lifecycle events to a RabbitMQ topic exchange.
// Routing keys are "job.<state>", so consumers can bind to "job.completed"
// or "job.#".
package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pscheid92/faceswap/internal/adapter/metrics"
	"github.com/pscheid92/faceswap/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const publishTimeout = 5 * time.Second

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type Publisher struct {
	conn     *amqp.Connection
	ch       channel
	exchange string
	metrics  *metrics.DependencyMetrics
}

var _ domain.JobObserver = (*Publisher)(nil)

// Dial connects to the broker and declares a durable topic exchange.
func Dial(url, exchange string, m *metrics.DependencyMetrics) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	p := newPublisher(ch, exchange, m)
	p.conn = conn
	return p, nil
}

func newPublisher(ch channel, exchange string, m *metrics.DependencyMetrics) *Publisher {
	return &Publisher{ch: ch, exchange: exchange, metrics: m}
}

// JobEvent is the message body.
type JobEvent struct {
	JobID      string                  `json:"job_id"`
	State      domain.JobState         `json:"state"`
	Progress   int                     `json:"progress"`
	Result     *domain.ResultLocations `json:"result,omitempty"`
	Error      string                  `json:"error,omitempty"`
	OccurredAt time.Time               `json:"occurred_at"`
}

func RoutingKey(state domain.JobState) string {
	return "job." + string(state)
}

// JobChanged publishes status. Broker errors are logged and counted; job
// processing never waits on the broker beyond publishTimeout.
func (p *Publisher) JobChanged(ctx context.Context, status domain.JobStatus) {
	if err := p.Publish(ctx, status); err != nil {
		slog.WarnContext(ctx, "Failed to publish job event", "job_id", status.ID, "state", status.State, "error", err)
	}
}

func (p *Publisher) Publish(ctx context.Context, status domain.JobStatus) error {
	occurred := status.FinishedAt
	if occurred.IsZero() {
		occurred = time.Now()
	}

	body, err := json.Marshal(JobEvent{
		JobID:      status.ID,
		State:      status.State,
		Progress:   status.Progress,
		Result:     status.Result,
		Error:      status.Error,
		OccurredAt: occurred,
	})
	if err != nil {
		p.count("error")
		return fmt.Errorf("failed to encode job event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx,
		p.exchange,               // exchange
		RoutingKey(status.State), // routing key
		false,                    // mandatory
		false,                    // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    status.ID + ":" + string(status.State) + ":" + fmt.Sprint(status.Progress),
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    occurred,
		},
	)
	if err != nil {
		p.count("error")
		return fmt.Errorf("failed to publish to %s: %w", p.exchange, err)
	}
	p.count("success")
	return nil
}

func (p *Publisher) count(status string) {
	if p.metrics != nil {
		p.metrics.EventsPublished.WithLabelValues(status).Inc()
	}
}

func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}

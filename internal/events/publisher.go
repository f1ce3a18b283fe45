// Package events publishes pipeline run events on NATS.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"jobs-etl/internal/config"
	"jobs-etl/internal/pkg/logging"
	"jobs-etl/internal/telemetry"

	"github.com/nats-io/nats.go"
)

var tracer = telemetry.GetTracer("jobs-etl/events")

type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

type Publisher struct {
	nc     conn
	logger *logging.Logger
}

// NewPublisher connects to cfg.URL. An empty URL yields a publisher that
// drops every event.
func NewPublisher(cfg config.NATSConfig, logger *logging.Logger) (*Publisher, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		logger.Debug("event publishing disabled", "reason", "no nats url")
		return &Publisher{logger: logger}, nil
	}

	opts := []nats.Option{
		nats.Name("jobs-etl"),
		nats.Timeout(cfg.ConnTimeout),
		nats.ReconnectWait(time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}

	return &Publisher{nc: nc, logger: logger}, nil
}

// Publish sends v as JSON on subject.
func (p *Publisher) Publish(ctx context.Context, subject string, v any) error {
	if p == nil || p.nc == nil {
		return nil
	}

	_, span := tracer.Start(ctx, "events.Publish")
	defer span.End()

	data, err := json.Marshal(v)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("marshaling event: %w", err)
	}

	span.SetAttributes(
		telemetry.String("nats.subject", subject),
		telemetry.Int("message.size", len(data)),
	)

	if err := p.nc.Publish(subject, data); err != nil {
		span.RecordError(err)
		p.logger.Error("failed to publish event", "subject", subject, "error", err)
		return fmt.Errorf("publishing to NATS: %w", err)
	}

	p.logger.Debug("published event", "subject", subject, "size", len(data))
	return nil
}

func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("drain nats connection", "error", err)
	}
}

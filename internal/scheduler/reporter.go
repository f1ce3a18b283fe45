package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"jobs-etl/internal/pipeline"

	"github.com/google/uuid"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	// StatusPartial is a finished run in which some records failed to load.
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// RunReport describes one scheduled run across all of its attempts. Result is
// the last attempt's and is nil while the run is in progress.
type RunReport struct {
	ID         uuid.UUID        `json:"id"`
	Status     Status           `json:"status"`
	Attempts   int              `json:"attempts"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
	Error      string           `json:"error,omitempty"`
	Result     *pipeline.Result `json:"result,omitempty"`
}

type Reporter interface {
	ReportRun(ctx context.Context, rep RunReport) error
}

type ReporterFunc func(ctx context.Context, rep RunReport) error

func (f ReporterFunc) ReportRun(ctx context.Context, rep RunReport) error {
	return f(ctx, rep)
}

const LatestReportKey = "etl:runs:latest"

type jsonStore interface {
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, out any) (bool, error)
}

// CacheReporter keeps the most recent report in the cache.
type CacheReporter struct {
	store jsonStore
}

func NewCacheReporter(store jsonStore) *CacheReporter {
	return &CacheReporter{store: store}
}

func (c *CacheReporter) ReportRun(ctx context.Context, rep RunReport) error {
	return c.store.SetJSON(ctx, LatestReportKey, rep, 0)
}

// Latest returns the cached report, if any.
func (c *CacheReporter) Latest(ctx context.Context) (RunReport, bool, error) {
	var rep RunReport
	ok, err := c.store.GetJSON(ctx, LatestReportKey, &rep)
	return rep, ok, err
}

type publisher interface {
	Publish(ctx context.Context, subject string, v any) error
}

// EventReporter publishes finished runs on subject.
type EventReporter struct {
	pub     publisher
	subject string
}

func NewEventReporter(pub publisher, subject string) *EventReporter {
	return &EventReporter{pub: pub, subject: subject}
}

func (e *EventReporter) ReportRun(ctx context.Context, rep RunReport) error {
	if rep.Status == StatusRunning {
		return nil
	}
	return e.pub.Publish(ctx, e.subject, rep)
}

type broadcaster interface {
	Broadcast(message []byte)
}

// BroadcastReporter pushes every report, running ones included, to live
// subscribers.
type BroadcastReporter struct {
	hub broadcaster
}

func NewBroadcastReporter(hub broadcaster) *BroadcastReporter {
	return &BroadcastReporter{hub: hub}
}

func (b *BroadcastReporter) ReportRun(_ context.Context, rep RunReport) error {
	msg, err := json.Marshal(struct {
		Type string    `json:"type"`
		Run  RunReport `json:"run"`
	}{Type: "run_" + string(rep.Status), Run: rep})
	if err != nil {
		return err
	}
	b.hub.Broadcast(msg)
	return nil
}

package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"jobs-etl/internal/config"
)

type fakeConn struct {
	subject string
	data    []byte
	err     error
	drained bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	f.subject = subject
	f.data = data
	return f.err
}

func (f *fakeConn) Drain() error {
	f.drained = true
	return nil
}

func TestPublish_EncodesJSON(t *testing.T) {
	fc := &fakeConn{}
	p := &Publisher{nc: fc}

	if err := p.Publish(context.Background(), "etl.runs.finished", map[string]int{"loaded": 3}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if fc.subject != "etl.runs.finished" {
		t.Fatalf("unexpected subject %q", fc.subject)
	}
	var got map[string]int
	if err := json.Unmarshal(fc.data, &got); err != nil || got["loaded"] != 3 {
		t.Fatalf("unexpected payload %s", fc.data)
	}

	p.Close()
	if !fc.drained {
		t.Fatalf("expected connection drained on close")
	}
}

func TestPublish_ConnError(t *testing.T) {
	fc := &fakeConn{err: errors.New("nats: connection closed")}
	p := &Publisher{nc: fc}

	if err := p.Publish(context.Background(), "etl.runs.finished", struct{}{}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewPublisher_DisabledWithoutURL(t *testing.T) {
	p, err := NewPublisher(config.NATSConfig{}, nil)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := p.Publish(context.Background(), "etl.runs.finished", struct{}{}); err != nil {
		t.Fatalf("expected disabled publisher to drop events, got %v", err)
	}
	p.Close()
}

// Package events publishes bootstrap lifecycle transitions on NATS so other
// services can follow a deployment without scraping logs.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nats-io/nats.go"

	"plexident/launchpad/internal/sequencer"
)

// Message is the JSON payload published for each transition and step result.
type Message struct {
	Service  string    `json:"service"`
	Host     string    `json:"host"`
	PID      int       `json:"pid"`
	Event    string    `json:"event"`
	From     string    `json:"from,omitempty"`
	To       string    `json:"to,omitempty"`
	Step     string    `json:"step,omitempty"`
	ExitCode *int      `json:"exitCode,omitempty"`
	Attempt  int       `json:"attempt,omitempty"`
	Time     time.Time `json:"time"`
}

// conn is the subset of *nats.Conn the publisher uses, so tests can inject a
// fake without a live server.
type conn interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
	IsConnected() bool
}

// Publisher is a sequencer.Observer that publishes to
// "<prefix>.<service>.state". Publishing is best-effort: failures are logged
// and never affect the sequence.
type Publisher struct {
	conn    conn
	subject string
	service string
	host    string
}

// Connect dials NATS and returns a Publisher. The connection keeps retrying
// in the background so an absent broker does not hold up start-up.
func Connect(url, prefix, service string) (*Publisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("launchpad-"+service),
		nats.Timeout(2*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return newPublisher(nc, prefix, service), nil
}

func newPublisher(c conn, prefix, service string) *Publisher {
	host, _ := os.Hostname()
	return &Publisher{
		conn:    c,
		subject: fmt.Sprintf("%s.%s.state", prefix, service),
		service: service,
		host:    host,
	}
}

// Subject returns the subject messages are published on.
func (p *Publisher) Subject() string {
	return p.subject
}

func (p *Publisher) Observe(ctx context.Context, ev sequencer.Event) {
	msg := Message{
		Service: p.service,
		Host:    p.host,
		PID:     os.Getpid(),
		Event:   ev.Kind.String(),
		Time:    ev.Time,
	}

	switch ev.Kind {
	case sequencer.EventTransition:
		msg.From = string(ev.From)
		msg.To = string(ev.To)
	case sequencer.EventStepFinished:
		code := ev.Result.ExitCode
		msg.Step = ev.Result.Name
		msg.ExitCode = &code
	case sequencer.EventProbeSucceeded:
		msg.Attempt = ev.Attempt
	default:
		// Step starts and individual probe failures are too chatty for the bus.
		return
	}

	data, err := json.Marshal(msg)
	if err != nil {
		slog.WarnContext(ctx, "encoding lifecycle event", "error", err)
		return
	}
	if err := p.conn.Publish(p.subject, data); err != nil {
		slog.WarnContext(ctx, "publishing lifecycle event", "subject", p.subject, "error", err)
	}
}

// Probe reports whether the connection to the broker is up.
func (p *Publisher) Probe(_ context.Context, _ sequencer.Endpoint) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

// Close flushes pending messages and closes the connection. It must run before
// the process is replaced.
func (p *Publisher) Close(timeout time.Duration) error {
	defer p.conn.Close()
	if !p.conn.IsConnected() {
		return nil
	}
	if err := p.conn.FlushTimeout(timeout); err != nil {
		return fmt.Errorf("flushing nats: %w", err)
	}
	return nil
}

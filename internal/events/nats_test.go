package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plexident/launchpad/internal/sequencer"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	msgs       []published
	publishErr error
	flushErr   error
	connected  bool
	closed     bool
	flushed    bool
}

func (f *fakeConn) Publish(subject string, data []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.msgs = append(f.msgs, published{subject: subject, data: data})
	return nil
}

func (f *fakeConn) FlushTimeout(time.Duration) error { f.flushed = true; return f.flushErr }
func (f *fakeConn) Close()                           { f.closed = true }
func (f *fakeConn) IsConnected() bool                { return f.connected }

func TestPublisher_Observe(t *testing.T) {
	t.Parallel()

	fc := &fakeConn{connected: true}
	p := newPublisher(fc, "launchpad", "plexident-api")
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	p.Observe(ctx, sequencer.Event{Kind: sequencer.EventTransition, From: sequencer.StateWaiting, To: sequencer.StateMigrating, Time: now})
	p.Observe(ctx, sequencer.Event{Kind: sequencer.EventStepStarted, Time: now})
	p.Observe(ctx, sequencer.Event{Kind: sequencer.EventProbeFailed, Attempt: 3, Time: now})
	p.Observe(ctx, sequencer.Event{
		Kind:   sequencer.EventStepFinished,
		Result: sequencer.StepResult{Name: sequencer.StepMigrate, ExitCode: 0},
		Time:   now,
	})

	require.Len(t, fc.msgs, 2, "step starts and probe failures are not published")
	assert.Equal(t, "launchpad.plexident-api.state", fc.msgs[0].subject)

	var first Message
	require.NoError(t, json.Unmarshal(fc.msgs[0].data, &first))
	assert.Equal(t, "transition", first.Event)
	assert.Equal(t, string(sequencer.StateWaiting), first.From)
	assert.Equal(t, string(sequencer.StateMigrating), first.To)
	assert.Equal(t, "plexident-api", first.Service)
	assert.Nil(t, first.ExitCode)

	var second Message
	require.NoError(t, json.Unmarshal(fc.msgs[1].data, &second))
	assert.Equal(t, sequencer.StepMigrate, second.Step)
	require.NotNil(t, second.ExitCode)
	assert.Equal(t, 0, *second.ExitCode)
}

func TestPublisher_PublishErrorIsNotFatal(t *testing.T) {
	t.Parallel()

	fc := &fakeConn{publishErr: errors.New("nats: connection closed")}
	p := newPublisher(fc, "launchpad", "svc")

	assert.NotPanics(t, func() {
		p.Observe(context.Background(), sequencer.Event{Kind: sequencer.EventTransition, To: sequencer.StateServing})
	})
}

func TestPublisher_Probe(t *testing.T) {
	t.Parallel()

	fc := &fakeConn{connected: false}
	p := newPublisher(fc, "launchpad", "svc")
	assert.Error(t, p.Probe(context.Background(), sequencer.Endpoint{}))

	fc.connected = true
	assert.NoError(t, p.Probe(context.Background(), sequencer.Endpoint{}))
}

func TestPublisher_Close(t *testing.T) {
	t.Parallel()

	fc := &fakeConn{connected: true}
	require.NoError(t, newPublisher(fc, "launchpad", "svc").Close(time.Second))
	assert.True(t, fc.flushed)
	assert.True(t, fc.closed)

	failing := &fakeConn{connected: true, flushErr: errors.New("timeout")}
	assert.Error(t, newPublisher(failing, "launchpad", "svc").Close(time.Second))
	assert.True(t, failing.closed)

	offline := &fakeConn{}
	assert.NoError(t, newPublisher(offline, "launchpad", "svc").Close(time.Second))
	assert.False(t, offline.flushed)
}

package probe

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plexident/launchpad/internal/config"
	"plexident/launchpad/internal/sequencer"
)

func listenerEndpoint(t *testing.T, ln net.Listener) sequencer.Endpoint {
	t.Helper()
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return sequencer.Endpoint{Host: host, Port: port}
}

func TestTCPProber_Reachable(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	p := NewTCPProber(time.Second)
	assert.NoError(t, p.Probe(context.Background(), listenerEndpoint(t, ln)))
}

func TestTCPProber_Refused(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ep := listenerEndpoint(t, ln)
	require.NoError(t, ln.Close())

	p := NewTCPProber(time.Second)
	err = p.Probe(context.Background(), ep)
	require.Error(t, err)

	var opErr *net.OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "dial", opErr.Op)
	assert.Equal(t, 1, strings.Count(err.Error(), ep.String()), "address appears once: %s", err)
}

func TestTCPProber_UsesDialer(t *testing.T) {
	t.Parallel()

	var gotAddr string
	p := &TCPProber{
		timeout: time.Second,
		dial: func(ctx context.Context, network, addr string) (net.Conn, error) {
			gotAddr = addr
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			return nil, errors.New("i/o timeout")
		},
	}

	err := p.Probe(context.Background(), sequencer.Endpoint{Host: "db", Port: 5432})
	assert.Error(t, err)
	assert.Equal(t, "db:5432", gotAddr)
}

// --- postgres ---

type fakePGConn struct {
	pingErr error
	closed  bool
}

func (c *fakePGConn) Ping(context.Context) error  { return c.pingErr }
func (c *fakePGConn) Close(context.Context) error { c.closed = true; return nil }

func TestPostgresProber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		connectErr error
		pingErr    error
		wantErrSub string
	}{
		{name: "accepts queries"},
		{name: "connect refused", connectErr: errors.New("connection refused"), wantErrSub: "connecting to postgres"},
		{name: "starting up", pingErr: errors.New("the database system is starting up"), wantErrSub: "ping"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			conn := &fakePGConn{pingErr: tc.pingErr}
			var gotDSN string
			p := NewPostgresProber(config.DependencyConfig{
				Name: "odonto", User: "app", Password: "s3cret", SSLMode: "disable", DialTimeout: 2 * time.Second,
			})
			p.connect = func(_ context.Context, dsn string) (pgConn, error) {
				gotDSN = dsn
				if tc.connectErr != nil {
					return nil, tc.connectErr
				}
				return conn, nil
			}

			err := p.Probe(context.Background(), sequencer.Endpoint{Host: "db", Port: 5432})
			assert.True(t, strings.HasPrefix(gotDSN, "postgres://app:s3cret@db:5432/odonto?"), gotDSN)
			assert.Contains(t, gotDSN, "sslmode=disable")
			assert.Contains(t, gotDSN, "connect_timeout=2")

			if tc.wantErrSub == "" {
				assert.NoError(t, err)
				assert.True(t, conn.closed)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErrSub)
		})
	}
}

// --- redis ---

type fakePinger struct {
	val    string
	err    error
	closed bool
}

func (f *fakePinger) PingResult(context.Context) (string, error) { return f.val, f.err }
func (f *fakePinger) Close() error                               { f.closed = true; return nil }

func TestConnectTimeoutSeconds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want int
	}{
		{100 * time.Millisecond, 1},
		{499 * time.Millisecond, 1},
		{time.Second, 1},
		{1500 * time.Millisecond, 2},
		{2 * time.Second, 2},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, connectTimeoutSeconds(tc.in), tc.in.String())
	}
}

func TestPostgresProber_ShortTimeoutKeepsConnectTimeout(t *testing.T) {
	t.Parallel()

	var gotDSN string
	p := NewPostgresProber(config.DependencyConfig{DialTimeout: 200 * time.Millisecond})
	p.connect = func(_ context.Context, dsn string) (pgConn, error) {
		gotDSN = dsn
		return &fakePGConn{}, nil
	}

	require.NoError(t, p.Probe(context.Background(), sequencer.Endpoint{Host: "db", Port: 5432}))
	assert.Contains(t, gotDSN, "connect_timeout=1")
	assert.NotContains(t, gotDSN, "connect_timeout=0")
}

func TestRedisProber(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		val        string
		err        error
		wantErrSub string
	}{
		{name: "pong", val: "PONG"},
		{name: "refused", err: errors.New("dial tcp: connection refused"), wantErrSub: "ping"},
		{name: "loading", val: "LOADING", wantErrSub: "unexpected PING response"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			pinger := &fakePinger{val: tc.val, err: tc.err}
			var gotAddr string
			p := NewRedisProber(config.DependencyConfig{DialTimeout: time.Second})
			p.newPinger = func(addr, _ string, _ time.Duration) redisPinger {
				gotAddr = addr
				return pinger
			}

			err := p.Probe(context.Background(), sequencer.Endpoint{Host: "cache", Port: 6379})
			assert.Equal(t, "cache:6379", gotAddr)
			assert.True(t, pinger.closed)
			if tc.wantErrSub == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErrSub)
		})
	}
}

// --- selection and breaker ---

func TestNew(t *testing.T) {
	t.Parallel()

	p, err := New(config.DependencyConfig{Kind: config.KindTCP})
	require.NoError(t, err)
	assert.IsType(t, &TCPProber{}, p)

	p, err = New(config.DependencyConfig{Kind: config.KindPostgres})
	require.NoError(t, err)
	assert.IsType(t, &PostgresProber{}, p)

	p, err = New(config.DependencyConfig{Kind: config.KindRedis})
	require.NoError(t, err)
	assert.IsType(t, &RedisProber{}, p)

	_, err = New(config.DependencyConfig{Kind: "mysql"})
	assert.Error(t, err)
}

type staticProber struct{ err error }

func (s staticProber) Probe(context.Context, sequencer.Endpoint) error { return s.err }

func TestCheck(t *testing.T) {
	t.Parallel()

	ep := sequencer.Endpoint{Host: "db", Port: 5432}

	res := Check(context.Background(), "database", staticProber{}, ep, NewCircuitBreaker("ok"))
	assert.True(t, res.OK)
	assert.Equal(t, "database", res.Name)
	assert.Empty(t, res.Error)

	res = Check(context.Background(), "database", staticProber{err: errors.New("refused")}, ep, NewCircuitBreaker("fail"))
	assert.False(t, res.OK)
	assert.Equal(t, "refused", res.Error)
}

func TestCheck_CircuitOpensAfterThreeFailures(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker("trip")
	ep := sequencer.Endpoint{Host: "db", Port: 5432}
	failing := staticProber{err: errors.New("refused")}

	for i := 0; i < 3; i++ {
		res := Check(context.Background(), "database", failing, ep, cb)
		assert.Equal(t, "refused", res.Error)
	}

	res := Check(context.Background(), "database", failing, ep, cb)
	assert.False(t, res.OK)
	assert.Equal(t, "circuit open", res.Error)
}

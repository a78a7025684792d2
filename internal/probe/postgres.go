package probe

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"plexident/launchpad/internal/config"
	"plexident/launchpad/internal/sequencer"
)

// pgConn abstracts the *pgx.Conn methods used in Probe so that tests can
// inject a fake without standing up a real database.
type pgConn interface {
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// PostgresProber succeeds once the server accepts an authenticated
// connection and answers a ping. A bare TCP accept during start-up or
// recovery does not count.
type PostgresProber struct {
	cfg     config.DependencyConfig
	timeout time.Duration
	connect func(ctx context.Context, dsn string) (pgConn, error)
}

// NewPostgresProber builds a prober from the dependency credentials. The
// endpoint's host and port come from each Probe call.
func NewPostgresProber(cfg config.DependencyConfig) *PostgresProber {
	return &PostgresProber{
		cfg:     cfg,
		timeout: cfg.DialTimeout,
		connect: realPGConnect,
	}
}

func (p *PostgresProber) Probe(ctx context.Context, ep sequencer.Endpoint) error {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	conn, err := p.connect(ctx, p.dsn(ep))
	if err != nil {
		return fmt.Errorf("connecting to postgres %s: %w", ep, err)
	}
	defer conn.Close(context.Background()) //nolint:errcheck

	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (p *PostgresProber) dsn(ep sequencer.Endpoint) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   ep.String(),
		Path:   "/" + p.cfg.Name,
	}
	if p.cfg.User != "" {
		u.User = url.UserPassword(p.cfg.User, p.cfg.Password)
	}
	q := url.Values{}
	if p.cfg.SSLMode != "" {
		q.Set("sslmode", p.cfg.SSLMode)
	}
	if p.timeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(connectTimeoutSeconds(p.timeout)))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// connectTimeoutSeconds rounds d up to whole seconds. libpq reads 0 as no
// timeout, so anything positive is at least 1.
func connectTimeoutSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}

func realPGConnect(ctx context.Context, dsn string) (pgConn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

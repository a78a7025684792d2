package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"plexident/launchpad/internal/config"
	"plexident/launchpad/internal/sequencer"
)

// redisPinger is the subset of *redis.Client used for probing.
type redisPinger interface {
	PingResult(ctx context.Context) (string, error)
	Close() error
}

// realRedisPinger adapts *redis.Client to redisPinger so tests do not need
// to construct a *redis.StatusCmd.
type realRedisPinger struct {
	client *redis.Client
}

func (r *realRedisPinger) PingResult(ctx context.Context) (string, error) {
	return r.client.Ping(ctx).Result()
}

func (r *realRedisPinger) Close() error {
	return r.client.Close()
}

// RedisProber succeeds once the server answers PING with PONG.
type RedisProber struct {
	password  string
	timeout   time.Duration
	newPinger func(addr, password string, timeout time.Duration) redisPinger
}

func NewRedisProber(cfg config.DependencyConfig) *RedisProber {
	return &RedisProber{
		password:  cfg.Password,
		timeout:   cfg.DialTimeout,
		newPinger: realNewRedisPinger,
	}
}

func (p *RedisProber) Probe(ctx context.Context, ep sequencer.Endpoint) error {
	ctx, cancel := withTimeout(ctx, p.timeout)
	defer cancel()

	pinger := p.newPinger(ep.String(), p.password, p.timeout)
	defer pinger.Close() //nolint:errcheck

	val, err := pinger.PingResult(ctx)
	if err != nil {
		return fmt.Errorf("ping %s: %w", ep, err)
	}
	if val != "PONG" {
		return fmt.Errorf("unexpected PING response: %q", val)
	}
	return nil
}

func realNewRedisPinger(addr, password string, timeout time.Duration) redisPinger {
	return &realRedisPinger{
		client: redis.NewClient(&redis.Options{
			Addr:        addr,
			Password:    password,
			DialTimeout: timeout,
			MaxRetries:  -1,
		}),
	}
}

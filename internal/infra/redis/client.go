package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/archiver/internal/core/domain"
)

var (
	// ErrLockHeld is returned when another run owns a chain lock.
	ErrLockHeld = domain.ErrLockHeld
	// ErrLockLost is returned on release when the lock expired or was
	// taken over while held.
	ErrLockLost = errors.New("lock lost before release")
)

// Client wraps Redis operations for cross-process chain locking.
type Client struct {
	rdb   *redis.Client
	ttl   time.Duration
	owner string
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

// Enabled reports whether a Redis URL is configured.
func (c Config) Enabled() bool {
	return c.URL != ""
}

// NewClient connects to Redis. owner identifies this run in lock values.
func NewClient(cfg Config, owner string) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.LockTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Client{rdb: rdb, ttl: ttl, owner: owner}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func lockKey(chainID uint64) string {
	return "archiver:lock:" + strconv.FormatUint(chainID, 10)
}

// releaseScript deletes the key only while it still carries our value.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the TTL only while the key still carries our value.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Acquire takes the lock for a chain and returns its release func. The
// lock is renewed every third of its TTL until released.
func (c *Client) Acquire(ctx context.Context, chainID uint64) (func(context.Context) error, error) {
	key := lockKey(chainID)
	ok, err := c.rdb.SetNX(ctx, key, c.owner, c.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		holder, err := c.rdb.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("get lock holder: %w", err)
		}
		return nil, fmt.Errorf("%s (%s): %w", key, holder, ErrLockHeld)
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	var lost atomic.Bool
	go c.keepAlive(key, stop, done, &lost)

	var once sync.Once
	release := func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
		})
		n, err := releaseScript.Run(ctx, c.rdb, []string{key}, c.owner).Int()
		if err != nil {
			return fmt.Errorf("release %s: %w", key, err)
		}
		if n == 0 || lost.Load() {
			return fmt.Errorf("release %s: %w", key, ErrLockLost)
		}
		return nil
	}
	return release, nil
}

// keepAlive extends the lock until stop is closed or the lock is found to
// belong to someone else. Failed renewals are retried on the next tick.
func (c *Client) keepAlive(key string, stop <-chan struct{}, done chan<- struct{}, lost *atomic.Bool) {
	defer close(done)

	interval := max(c.ttl/3, time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := renewScript.Run(ctx, c.rdb, []string{key}, c.owner, c.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && n == 0 {
				lost.Store(true)
				return
			}
		}
	}
}

// Holder returns the run currently owning a chain lock, or "" when free.
func (c *Client) Holder(ctx context.Context, chainID uint64) (string, error) {
	val, err := c.rdb.Get(ctx, lockKey(chainID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get failed: %w", err)
	}
	return val, nil
}

package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// Redis is the distributed Store backend. Every call goes through a circuit
// breaker; while the breaker is open (or a call fails) the store degrades to
// a write-through in-process mirror, so readers keep the last known
// snapshots during an outage.
type Redis struct {
	client *redis.Client
	cb     *CircuitBreaker
	mirror *Memory
	ctx    context.Context
	log    zerolog.Logger
}

// NewRedis connects to the given redis URL ("redis://host:port/db"). The
// connection is verified with a ping; a failing ping is not fatal, the
// breaker will keep probing.
func NewRedis(ctx context.Context, url string, log zerolog.Logger) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}

	r := &Redis{
		client: redis.NewClient(opts),
		cb:     NewCircuitBreaker(5, 10*time.Second),
		mirror: NewMemory(),
		ctx:    ctx,
		log:    log,
	}
	r.cb.OnStateChange = func(from, to BreakerState) {
		r.log.Warn().
			Stringer("from", from).
			Stringer("to", to).
			Msg("redis circuit breaker state change")
	}

	if err := r.client.Ping(ctx).Err(); err != nil {
		r.log.Warn().Err(err).Msg("redis unavailable at startup, degrading to local mirror")
	}
	return r, nil
}

// Set stores value under key with an optional TTL. The local mirror is always
// updated, even when redis is down.
func (r *Redis) Set(key string, value map[string]interface{}, ttl time.Duration) error {
	if err := r.mirror.Set(key, value, ttl); err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	err = r.cb.Execute(func() error {
		return r.client.Set(r.ctx, key, raw, ttl).Err()
	})
	if err != nil && err != ErrCircuitOpen {
		r.log.Warn().Err(err).Str("key", key).Msg("redis set failed")
	}
	// Mirror write succeeded; the snapshot is still readable locally.
	return nil
}

// Get reads key from redis, falling back to the mirror on failure.
func (r *Redis) Get(key string) (map[string]interface{}, bool) {
	var raw string
	err := r.cb.Execute(func() error {
		var getErr error
		raw, getErr = r.client.Get(r.ctx, key).Result()
		if getErr == redis.Nil {
			raw = ""
			return nil
		}
		return getErr
	})
	if err != nil {
		return r.mirror.Get(key)
	}
	if raw == "" {
		return nil, false
	}

	var out map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("redis snapshot decode failed")
		return nil, false
	}
	return out, true
}

// Delete removes key from both redis and the mirror.
func (r *Redis) Delete(key string) error {
	_ = r.mirror.Delete(key)
	err := r.cb.Execute(func() error {
		return r.client.Del(r.ctx, key).Err()
	})
	if err != nil && err != ErrCircuitOpen {
		return err
	}
	return nil
}

// SetIfAbsent arms key for ttl using redis SETNX; when redis is unreachable
// the mirror decides, so idempotency still holds within this process.
func (r *Redis) SetIfAbsent(key string, ttl time.Duration) bool {
	var acquired bool
	err := r.cb.Execute(func() error {
		ok, setErr := r.client.SetNX(r.ctx, key, "1", ttl).Result()
		acquired = ok
		return setErr
	})
	if err != nil {
		return r.mirror.SetIfAbsent(key, ttl)
	}
	if acquired {
		// Keep the mirror in sync so a later redis outage does not rearm.
		r.mirror.SetIfAbsent(key, ttl)
	}
	return acquired
}

// CheckThrottle returns true and arms the named cooldown iff no alert of
// this name fired within the window.
func (r *Redis) CheckThrottle(name string, cooldown time.Duration) bool {
	return r.SetIfAbsent(throttlePrefix+name, cooldown)
}

// Client exposes the underlying redis client for liveness probes.
func (r *Redis) Client() *redis.Client {
	return r.client
}

// Close releases the redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

var _ Store = (*Redis)(nil)

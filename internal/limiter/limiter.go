package limiter

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Limiter combines a fixed-window request limit per client with local
// in-process slots for expensive work. With a Redis client the window
// counters are shared between instances.
type Limiter struct {
	rdb         *redis.Client
	limit       int
	window      time.Duration
	maxInflight int
	now         func() time.Time

	mu    sync.Mutex
	local map[string]counter
	sem   map[string]chan struct{}
}

type counter struct {
	win   int64
	count int
}

type Options struct {
	// Client is optional; nil keeps counters in memory.
	Client      *redis.Client
	PerWindow   int
	Window      time.Duration
	MaxInflight int
}

func New(opts Options) *Limiter {
	if opts.Window <= 0 {
		opts.Window = time.Minute
	}
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 2
	}
	return &Limiter{
		rdb:         opts.Client,
		limit:       opts.PerWindow,
		window:      opts.Window,
		maxInflight: opts.MaxInflight,
		now:         time.Now,
		local:       map[string]counter{},
		sem:         map[string]chan struct{}{},
	}
}

func (l *Limiter) key(client string, win int64) string {
	return fmt.Sprintf("rl:%s:%d", strings.ToLower(client), win)
}

// Allow counts one request for client. When the window is exhausted it
// returns false and the time until the next window. Redis errors fail open
// and are returned for logging.
func (l *Limiter) Allow(ctx context.Context, client string) (bool, time.Duration, error) {
	if l.limit <= 0 {
		return true, 0, nil
	}
	now := l.now()
	win := now.UnixNano() / int64(l.window)
	retryAfter := time.Duration((win+1)*int64(l.window) - now.UnixNano())

	var count int64
	if l.rdb != nil {
		k := l.key(client, win)
		pipe := l.rdb.TxPipeline()
		incr := pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, l.window+time.Second)
		if _, err := pipe.Exec(ctx); err != nil {
			return true, 0, fmt.Errorf("rate limit counter: %w", err)
		}
		count = incr.Val()
	} else {
		count = l.incrLocal(client, win)
	}
	if count > int64(l.limit) {
		return false, retryAfter, nil
	}
	return true, 0, nil
}

func (l *Limiter) incrLocal(client string, win int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := l.local[client]
	if c.win != win {
		c = counter{win: win}
	}
	c.count++
	l.local[client] = c
	if len(l.local) > 4096 {
		for k, v := range l.local {
			if v.win != win {
				delete(l.local, k)
			}
		}
	}
	return int64(c.count)
}

// Acquire tries to reserve a local in-process slot for name.
// Returns a release function and true if allowed; otherwise a no-op, false.
func (l *Limiter) Acquire(name string) (func(), bool) {
	key := strings.ToLower(name)
	l.mu.Lock()
	ch, ok := l.sem[key]
	if !ok {
		ch = make(chan struct{}, l.maxInflight)
		l.sem[key] = ch
	}
	l.mu.Unlock()
	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, true
	default:
		return func() {}, false
	}
}

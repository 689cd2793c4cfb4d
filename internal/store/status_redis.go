package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Job states.
const (
	StateQueued     = "queued"
	StateProcessing = "processing"
	StateSuccess    = "success"
	StateFailed     = "failed"
	StateCancelled  = "cancelled"
)

type Status struct {
	Status   string                 `json:"status"`
	Progress int                    `json:"progress"`
	Message  string                 `json:"message"`
	Start    *time.Time             `json:"start_time,omitempty"`
	End      *time.Time             `json:"end_time,omitempty"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Terminal reports whether the job will not change state any more.
func (s Status) Terminal() bool {
	return s.Status == StateSuccess || s.Status == StateFailed || s.Status == StateCancelled
}

// MetaString returns a string metadata value or "".
func (s Status) MetaString(key string) string {
	v, _ := s.Metadata[key].(string)
	return v
}

// MetaInt returns a numeric metadata value; JSON round trips turn ints into float64.
func (s Status) MetaInt(key string) int {
	switch t := s.Metadata[key].(type) {
	case float64:
		return int(t)
	case int:
		return t
	case int64:
		return int(t)
	}
	return 0
}

type RedisStatus struct {
	client *redis.Client
	keyNS  string
	ttl    time.Duration
}

func NewRedisStatus(redisURL string, ttl time.Duration) (*RedisStatus, error) {
	c, err := Connect(redisURL)
	if err != nil {
		return nil, err
	}
	return NewRedisStatusClient(c, ttl), nil
}

// NewRedisStatusClient shares an existing client. Close closes it.
func NewRedisStatusClient(c *redis.Client, ttl time.Duration) *RedisStatus {
	return &RedisStatus{client: c, keyNS: "job", ttl: ttl}
}

func (s *RedisStatus) key(jobID string) string { return fmt.Sprintf("%s:%s:status", s.keyNS, jobID) }

func (s *RedisStatus) Set(ctx context.Context, jobID string, st Status) error {
	m, err := encodeStatus(st)
	if err != nil {
		return err
	}
	k := s.key(jobID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, k, m)
	if s.ttl > 0 {
		pipe.Expire(ctx, k, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStatus) Get(ctx context.Context, jobID string) (Status, bool, error) {
	res, err := s.client.HGetAll(ctx, s.key(jobID)).Result()
	if err != nil {
		return Status{}, false, err
	}
	if len(res) == 0 {
		return Status{}, false, nil
	}
	return decodeStatus(res), true, nil
}

const maxUpdateRetries = 10

// Update reads the status, applies fn and writes the result back, all under
// WATCH. fn returns false to leave the stored status untouched. A missing
// job is passed to fn as the zero Status.
func (s *RedisStatus) Update(ctx context.Context, jobID string, fn func(st *Status) bool) error {
	k := s.key(jobID)
	txf := func(tx *redis.Tx) error {
		res, err := tx.HGetAll(ctx, k).Result()
		if err != nil {
			return err
		}
		st := Status{}
		if len(res) > 0 {
			st = decodeStatus(res)
		}
		if !fn(&st) {
			return nil
		}
		m, err := encodeStatus(st)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, k, m)
			if s.ttl > 0 {
				pipe.Expire(ctx, k, s.ttl)
			}
			return nil
		})
		return err
	}
	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("status update for %s: too much contention", jobID)
}

func encodeStatus(st Status) (map[string]interface{}, error) {
	m := map[string]interface{}{
		"status":   st.Status,
		"progress": st.Progress,
		"message":  st.Message,
	}
	if st.Start != nil {
		m["start"] = st.Start.Format(time.RFC3339Nano)
	}
	if st.End != nil {
		m["end"] = st.End.Format(time.RFC3339Nano)
	}
	if st.Metadata != nil {
		b, err := json.Marshal(st.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal status metadata: %w", err)
		}
		m["metadata"] = string(b)
	}
	return m, nil
}

func decodeStatus(res map[string]string) Status {
	st := Status{}
	st.Status = res["status"]
	st.Message = res["message"]
	if p, ok := res["progress"]; ok && p != "" {
		// ignore parse error; default 0
		var pi int
		fmt.Sscan(p, &pi)
		st.Progress = pi
	}
	if v := res["start"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.Start = &t
		}
	}
	if v := res["end"]; v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			st.End = &t
		}
	}
	if v := res["metadata"]; v != "" {
		_ = json.Unmarshal([]byte(v), &st.Metadata)
	}
	return st
}

func (s *RedisStatus) Close() error { return s.client.Close() }

// Ping checks redis connectivity.
func (s *RedisStatus) Ping(ctx context.Context) error { return s.client.Ping(ctx).Err() }

// Client returns the underlying Redis client
func (s *RedisStatus) Client() *redis.Client { return s.client }

// MemoryStatus is an in-process status store.
type MemoryStatus struct {
	mu sync.RWMutex
	m  map[string]Status
}

func NewMemoryStatus() *MemoryStatus { return &MemoryStatus{m: make(map[string]Status)} }

func (s *MemoryStatus) Set(_ context.Context, jobID string, st Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st.Metadata = maps.Clone(st.Metadata)
	s.m[jobID] = st
	return nil
}

func (s *MemoryStatus) Get(_ context.Context, jobID string) (Status, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.m[jobID]
	st.Metadata = maps.Clone(st.Metadata)
	return st, ok, nil
}

func (s *MemoryStatus) Update(_ context.Context, jobID string, fn func(st *Status) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.m[jobID]
	st.Metadata = maps.Clone(st.Metadata)
	if fn(&st) {
		s.m[jobID] = st
	}
	return nil
}

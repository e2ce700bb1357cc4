package notifier

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	goredis "github.com/redis/go-redis/v9"
)

// Sequencer hands out monotonically increasing numbers per channel.
type Sequencer interface {
	Next(ctx context.Context, channel string) (uint64, error)
	Current(ctx context.Context, channel string) (uint64, error)
}

type MemorySequencer struct {
	mu   sync.Mutex
	seqs map[string]uint64
}

func NewMemorySequencer() *MemorySequencer {
	return &MemorySequencer{seqs: make(map[string]uint64)}
}

func (s *MemorySequencer) Next(_ context.Context, channel string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seqs[channel]++
	return s.seqs[channel], nil
}

func (s *MemorySequencer) Current(_ context.Context, channel string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seqs[channel], nil
}

// RedisSequencer shares sequence numbers across instances with INCR.
type RedisSequencer struct {
	client *goredis.Client
	prefix string
}

func NewRedisSequencer(client *goredis.Client) *RedisSequencer {
	return &RedisSequencer{client: client, prefix: "notifier:seq:"}
}

func (s *RedisSequencer) Next(ctx context.Context, channel string) (uint64, error) {
	n, err := s.client.Incr(ctx, s.prefix+channel).Result()
	if err != nil {
		return 0, fmt.Errorf("sequencer incr %s: %w", channel, err)
	}
	return uint64(n), nil
}

func (s *RedisSequencer) Current(ctx context.Context, channel string) (uint64, error) {
	v, err := s.client.Get(ctx, s.prefix+channel).Result()
	if err == goredis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sequencer get %s: %w", channel, err)
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sequencer parse %s: %w", channel, err)
	}
	return n, nil
}

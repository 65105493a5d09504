package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/signalnews/pulse-gateway/internal/domain"
)

// lockStripes bounds memory spent on per-session serialization: owners
// hash onto a fixed pool of mutexes instead of growing a map for every
// session id that ever passed through.
const lockStripes = 64

// RedisSessionStore is the guest backend: each session owns one JSON
// sequence, stored most-recent-first and rewritten wholesale on every
// mutation. The session TTL bounds record lifetime the way a browser
// session bounds its ephemeral storage.
type RedisSessionStore struct {
	client     *redis.Client
	sessionTTL time.Duration

	locks [lockStripes]sync.Mutex
}

type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	SessionTTL time.Duration
}

func NewRedisSessionStore(ctx context.Context, cfg RedisConfig) (*RedisSessionStore, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 12 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisSessionStore{
		client:     client,
		sessionTTL: cfg.SessionTTL,
	}, nil
}

func (s *RedisSessionStore) Close() error {
	return s.client.Close()
}

func (s *RedisSessionStore) Save(ctx context.Context, owner string, record domain.HistoryRecord) error {
	unlock := s.lock(owner)
	defer unlock()

	records := s.read(ctx, owner)
	records = append([]domain.HistoryRecord{record}, records...)
	return s.write(ctx, owner, records)
}

// List parses the session sequence. A missing key or a corrupt payload
// yields an empty sequence, never an error.
func (s *RedisSessionStore) List(ctx context.Context, owner string) ([]domain.HistoryRecord, error) {
	return s.read(ctx, owner), nil
}

// Delete filters the sequence by job id and rewrites it. Deleting an
// unknown id is a silent no-op.
func (s *RedisSessionStore) Delete(ctx context.Context, owner string, jobID string) error {
	unlock := s.lock(owner)
	defer unlock()

	records := s.read(ctx, owner)
	kept := records[:0]
	for _, record := range records {
		if record.JobID != jobID {
			kept = append(kept, record)
		}
	}
	if len(kept) == len(records) {
		return nil
	}
	return s.write(ctx, owner, kept)
}

func (s *RedisSessionStore) read(ctx context.Context, owner string) []domain.HistoryRecord {
	raw, err := s.client.Get(ctx, sessionKey(owner)).Bytes()
	if err != nil {
		return []domain.HistoryRecord{}
	}
	var records []domain.HistoryRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return []domain.HistoryRecord{}
	}
	return records
}

func (s *RedisSessionStore) write(ctx context.Context, owner string, records []domain.HistoryRecord) error {
	encoded, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode session history: %w", err)
	}
	if err := s.client.Set(ctx, sessionKey(owner), encoded, s.sessionTTL).Err(); err != nil {
		return fmt.Errorf("write session history: %w", err)
	}
	return nil
}

// lock serializes read-modify-write sequences per session. Owners that
// hash onto the same stripe share a mutex, which trades rare spurious
// contention for a fixed memory footprint.
func (s *RedisSessionStore) lock(owner string) func() {
	lock := &s.locks[lockStripe(owner)]
	lock.Lock()
	return lock.Unlock
}

func lockStripe(owner string) uint32 {
	digest := fnv.New32a()
	_, _ = digest.Write([]byte(owner))
	return digest.Sum32() % lockStripes
}

func sessionKey(owner string) string {
	return "pulse_history:" + owner
}

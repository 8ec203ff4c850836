package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"voucherDesk/internal/layout"
)

var ErrSessionNotFound = errors.New("editor session not found")

// Snapshot 是一个编辑会话的完整状态。TemplateID 为 0 表示尚未保存过。
// SavedRevision 与 SavedActive 记录最近一次与持久化层同步时的修订号与启用状态。
type Snapshot struct {
	ID            string          `msgpack:"id"`
	TemplateID    int64           `msgpack:"template_id"`
	Template      layout.Template `msgpack:"template"`
	Selected      string          `msgpack:"selected"`
	Revision      int64           `msgpack:"revision"`
	SavedRevision int64           `msgpack:"saved_revision"`
	SavedActive   bool            `msgpack:"saved_active"`
	UpdatedAt     time.Time       `msgpack:"updated_at"`
}

// Store persists snapshots between requests.
type Store interface {
	Load(ctx context.Context, id string) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
	Delete(ctx context.Context, id string) error
}

// MemoryStore 用于测试与单机开发。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (s *MemoryStore) Load(_ context.Context, id string) (*Snapshot, error) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || (s.ttl > 0 && s.now().After(entry.expiresAt)) {
		return nil, ErrSessionNotFound
	}
	return decodeSnapshot(entry.data)
}

func (s *MemoryStore) Save(_ context.Context, snap *Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sessions[snap.ID] = memoryEntry{data: data, expiresAt: s.now().Add(s.ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// RedisStore 以 msgpack 编码把快照写入 Redis，每次写入刷新 TTL。
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisStore(client redis.UniversalClient, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func sessionKey(id string) string {
	return "editor_session:" + id
}

func (s *RedisStore) Load(ctx context.Context, id string) (*Snapshot, error) {
	data, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load editor session: %w", err)
	}
	return decodeSnapshot(data)
}

func (s *RedisStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, sessionKey(snap.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save editor session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete editor session: %w", err)
	}
	return nil
}

func encodeSnapshot(snap *Snapshot) ([]byte, error) {
	data, err := msgpack.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode editor session: %w", err)
	}
	return data, nil
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode editor session: %w", err)
	}
	return &snap, nil
}

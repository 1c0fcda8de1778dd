// Package session 管理会话语料与对话记录
//
// 每次上传整体替换会话语料并清空对话记录；同一会话的写操作串行执行。
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"cv-agent-go/internal/constants"
	"cv-agent-go/internal/types"

	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound 会话不存在或已过期
var ErrSessionNotFound = errors.New("会话不存在或已过期")

// CorpusStore 会话语料存储，Put 为整体替换
type CorpusStore interface {
	Get(ctx context.Context, sessionID string) (*types.Corpus, error)
	Put(ctx context.Context, sessionID string, corpus *types.Corpus) error
	Delete(ctx context.Context, sessionID string) error
}

type memoryEntry struct {
	corpus    *types.Corpus
	expiresAt time.Time
}

// MemoryCorpusStore 进程内语料存储，过期条目在读取时清理
type MemoryCorpusStore struct {
	mu    sync.RWMutex
	items map[string]memoryEntry
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryCorpusStore ttl <= 0 表示永不过期
func NewMemoryCorpusStore(ttl time.Duration) *MemoryCorpusStore {
	return &MemoryCorpusStore{
		items: make(map[string]memoryEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (s *MemoryCorpusStore) Get(_ context.Context, sessionID string) (*types.Corpus, error) {
	s.mu.RLock()
	entry, ok := s.items[sessionID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !entry.expiresAt.IsZero() && !s.now().Before(entry.expiresAt) {
		s.mu.Lock()
		if cur, ok := s.items[sessionID]; ok && cur.expiresAt.Equal(entry.expiresAt) {
			delete(s.items, sessionID)
		}
		s.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	return entry.corpus, nil
}

func (s *MemoryCorpusStore) Put(_ context.Context, sessionID string, corpus *types.Corpus) error {
	if corpus == nil {
		return fmt.Errorf("会话 %s 的语料不能为空", sessionID)
	}
	entry := memoryEntry{corpus: corpus}
	if s.ttl > 0 {
		entry.expiresAt = s.now().Add(s.ttl)
	}
	s.mu.Lock()
	s.items[sessionID] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryCorpusStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	delete(s.items, sessionID)
	s.mu.Unlock()
	return nil
}

// RedisCorpusStore 以 JSON 字符串保存语料，单条 SET 完成替换
type RedisCorpusStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration
}

func NewRedisCorpusStore(client redis.UniversalClient, keyPrefix string, ttl time.Duration) (*RedisCorpusStore, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil for RedisCorpusStore")
	}
	if keyPrefix == "" {
		keyPrefix = constants.KeySessionCorpus
	}
	return &RedisCorpusStore{client: client, keyPrefix: keyPrefix, ttl: ttl}, nil
}

func (s *RedisCorpusStore) key(sessionID string) string {
	return s.keyPrefix + sessionID
}

func (s *RedisCorpusStore) Get(ctx context.Context, sessionID string) (*types.Corpus, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取会话语料失败: %w", err)
	}
	var corpus types.Corpus
	if err := json.Unmarshal(data, &corpus); err != nil {
		return nil, fmt.Errorf("反序列化会话语料失败: %w", err)
	}
	if corpus.Records == nil {
		corpus.Records = []*types.CVRecord{}
	}
	return &corpus, nil
}

func (s *RedisCorpusStore) Put(ctx context.Context, sessionID string, corpus *types.Corpus) error {
	if corpus == nil {
		return fmt.Errorf("会话 %s 的语料不能为空", sessionID)
	}
	data, err := json.Marshal(corpus)
	if err != nil {
		return fmt.Errorf("序列化会话语料失败: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("保存会话语料失败: %w", err)
	}
	return nil
}

func (s *RedisCorpusStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("删除会话语料失败: %w", err)
	}
	return nil
}

package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
)

// ChatMemory 按会话保存对话记录，只追加，可整体清空
type ChatMemory interface {
	// GetHistory 会话不存在时返回空切片和 nil 错误
	GetHistory(ctx context.Context, sessionID string) ([]*schema.Message, error)

	AddMessage(ctx context.Context, sessionID string, message *schema.Message) error

	// AddMessages 按顺序追加多条消息，要么全部写入要么都不写入
	AddMessages(ctx context.Context, sessionID string, messages []*schema.Message) error

	// ClearHistory 会话不存在时静默成功
	ClearHistory(ctx context.Context, sessionID string) error
}

type memoryHistory struct {
	messages  []*schema.Message
	expiresAt time.Time
}

// InMemoryChatMemory 进程内的 ChatMemory 实现，重启后数据丢失
// 与 Redis 实现一致，每次追加都会刷新过期时间，过期记录在访问时清理
type InMemoryChatMemory struct {
	mu        sync.Mutex
	histories map[string]memoryHistory
	ttl       time.Duration
	now       func() time.Time
}

// NewInMemoryChatMemory ttl <= 0 表示永不过期
func NewInMemoryChatMemory(ttl time.Duration) *InMemoryChatMemory {
	return &InMemoryChatMemory{
		histories: make(map[string]memoryHistory),
		ttl:       ttl,
		now:       time.Now,
	}
}

// live 取出未过期的记录，调用方需持有锁
func (m *InMemoryChatMemory) live(sessionID string) []*schema.Message {
	h, ok := m.histories[sessionID]
	if !ok {
		return nil
	}
	if !h.expiresAt.IsZero() && !m.now().Before(h.expiresAt) {
		delete(m.histories, sessionID)
		return nil
	}
	return h.messages
}

// GetHistory 返回副本，调用方修改切片不影响内部存储
func (m *InMemoryChatMemory) GetHistory(_ context.Context, sessionID string) ([]*schema.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.live(sessionID)
	cpy := make([]*schema.Message, len(history))
	copy(cpy, history)
	return cpy, nil
}

func (m *InMemoryChatMemory) AddMessage(ctx context.Context, sessionID string, message *schema.Message) error {
	return m.AddMessages(ctx, sessionID, []*schema.Message{message})
}

func (m *InMemoryChatMemory) AddMessages(_ context.Context, sessionID string, messages []*schema.Message) error {
	for _, msg := range messages {
		if msg == nil {
			return fmt.Errorf("cannot add nil message to chat history for session %s", sessionID)
		}
	}
	if len(messages) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	h := memoryHistory{messages: append(m.live(sessionID), messages...)}
	if m.ttl > 0 {
		h.expiresAt = m.now().Add(m.ttl)
	}
	m.histories[sessionID] = h
	return nil
}

func (m *InMemoryChatMemory) ClearHistory(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.histories, sessionID)
	return nil
}

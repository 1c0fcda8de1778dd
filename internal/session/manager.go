package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cv-agent-go/internal/agent"
	"cv-agent-go/internal/config"
	"cv-agent-go/internal/constants"
	"cv-agent-go/internal/logger"
	"cv-agent-go/internal/storage"
	"cv-agent-go/internal/types"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// EventPublisher 发布 CorpusReplacedEvent
type EventPublisher interface {
	PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error
}

// Locker 跨进程的会话写锁，storage.Redis 实现了该接口
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, expiration time.Duration) (string, error)
	ReleaseLock(ctx context.Context, lockKey, lockValue string) (bool, error)
}

const (
	lockTTL      = 30 * time.Second
	lockRetryGap = 50 * time.Millisecond
)

// Manager 组合语料存储与对话记录
type Manager struct {
	corpora CorpusStore
	memory  agent.ChatMemory
	locker  Locker

	publisher  EventPublisher
	exchange   string
	routingKey string

	locksMu sync.Mutex
	locks   map[string]*sessionLock
	now     func() time.Time
	logger  zerolog.Logger
}

// sessionLock 进程内的会话写锁，refs 为持有者与等待者的数量，归零时从表中删除
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

type ManagerOption func(*Manager)

// WithCorpusEvents 每次替换语料后发布事件，exchange 为空时不发布
func WithCorpusEvents(p EventPublisher, exchange, routingKey string) ManagerOption {
	return func(m *Manager) {
		m.publisher = p
		m.exchange = exchange
		m.routingKey = routingKey
	}
}

// WithDistributedLock 多实例部署时用 Redis 锁串行化同一会话的写操作
func WithDistributedLock(l Locker) ManagerOption {
	return func(m *Manager) {
		m.locker = l
	}
}

func WithManagerLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = l
	}
}

func NewManager(corpora CorpusStore, memory agent.ChatMemory, opts ...ManagerOption) *Manager {
	m := &Manager{
		corpora: corpora,
		memory:  memory,
		locks:   make(map[string]*sessionLock),
		now:     time.Now,
		logger:  logger.Component("session"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// NewManagerFromConfig 按 session.backend 选择内存或 Redis 存储
func NewManagerFromConfig(cfg config.SessionConfig, client redis.UniversalClient, opts ...ManagerOption) (*Manager, error) {
	ttl := config.GetDuration(cfg.TTL, constants.DefaultSessionTTL)
	switch cfg.Backend {
	case "redis":
		if client == nil {
			return nil, errors.New("session.backend=redis 需要可用的 Redis 连接")
		}
		corpusPrefix, chatPrefix := constants.KeySessionCorpus, constants.KeySessionChat
		if cfg.KeyPrefix != "" {
			corpusPrefix = cfg.KeyPrefix + "corpus:"
			chatPrefix = cfg.KeyPrefix + "chat:"
		}
		corpora, err := NewRedisCorpusStore(client, corpusPrefix, ttl)
		if err != nil {
			return nil, err
		}
		memory, err := agent.NewRedisChatMemory(client, chatPrefix, ttl)
		if err != nil {
			return nil, err
		}
		return NewManager(corpora, memory, opts...), nil
	case "memory", "":
		return NewManager(NewMemoryCorpusStore(ttl), agent.NewInMemoryChatMemory(ttl), opts...), nil
	default:
		return nil, fmt.Errorf("不支持的会话存储: %q", cfg.Backend)
	}
}

// NewSessionID 生成新的会话标识
func NewSessionID() string {
	return uuid.NewString()
}

// lock 先取进程内互斥锁，配置了 Locker 时再取分布式锁
func (m *Manager) lock(ctx context.Context, sessionID string) (func(), error) {
	unlockLocal := m.lockLocal(sessionID)
	if m.locker == nil {
		return unlockLocal, nil
	}

	key := constants.KeySessionLock + sessionID
	for {
		owner, err := m.locker.AcquireLock(ctx, key, lockTTL)
		if err != nil {
			unlockLocal()
			return nil, fmt.Errorf("获取会话锁失败: %w", err)
		}
		if owner != "" {
			return func() {
				if _, err := m.locker.ReleaseLock(context.WithoutCancel(ctx), key, owner); err != nil {
					m.logger.Warn().Err(err).Str("session_id", sessionID).Msg("释放会话锁失败")
				}
				unlockLocal()
			}, nil
		}
		select {
		case <-ctx.Done():
			unlockLocal()
			return nil, fmt.Errorf("等待会话锁超时: %w", ctx.Err())
		case <-time.After(lockRetryGap):
		}
	}
}

func (m *Manager) lockLocal(sessionID string) func() {
	m.locksMu.Lock()
	l, ok := m.locks[sessionID]
	if !ok {
		l = &sessionLock{}
		m.locks[sessionID] = l
	}
	l.refs++
	m.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, sessionID)
		}
		m.locksMu.Unlock()
	}
}

// ReplaceCorpus 整体替换语料并清空对话记录
func (m *Manager) ReplaceCorpus(ctx context.Context, sessionID string, corpus *types.Corpus) error {
	unlock, err := m.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := m.corpora.Put(ctx, sessionID, corpus); err != nil {
		return err
	}
	if err := m.memory.ClearHistory(ctx, sessionID); err != nil {
		return fmt.Errorf("清空对话记录失败: %w", err)
	}

	m.logger.Info().
		Str("session_id", sessionID).
		Str("batch_id", corpus.BatchID).
		Int("records", len(corpus.Records)).
		Msg("会话语料已替换")

	if m.publisher != nil && m.exchange != "" {
		event := storage.CorpusReplacedEvent{
			SessionID:   sessionID,
			BatchID:     corpus.BatchID,
			RecordCount: len(corpus.Records),
			TextLength:  len(corpus.JoinedText),
			ReplacedAt:  m.now(),
		}
		if err := m.publisher.PublishJSON(ctx, m.exchange, m.routingKey, event, true); err != nil {
			m.logger.Warn().Err(err).Str("session_id", sessionID).Msg("发布语料替换事件失败")
		}
	}
	return nil
}

// Corpus 会话没有语料时返回 ErrSessionNotFound
func (m *Manager) Corpus(ctx context.Context, sessionID string) (*types.Corpus, error) {
	return m.corpora.Get(ctx, sessionID)
}

// CorpusText 没有语料时返回空串
func (m *Manager) CorpusText(ctx context.Context, sessionID string) (string, error) {
	corpus, err := m.corpora.Get(ctx, sessionID)
	if errors.Is(err, ErrSessionNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return corpus.JoinedText, nil
}

func (m *Manager) History(ctx context.Context, sessionID string) ([]*schema.Message, error) {
	return m.memory.GetHistory(ctx, sessionID)
}

// AppendTurn 依次追加用户消息和助手回复
func (m *Manager) AppendTurn(ctx context.Context, sessionID, userMessage, assistantReply string) error {
	unlock, err := m.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	return m.memory.AddMessages(ctx, sessionID, []*schema.Message{
		schema.UserMessage(userMessage),
		schema.AssistantMessage(assistantReply, nil),
	})
}

// ClearHistory 只清空对话记录，保留语料
func (m *Manager) ClearHistory(ctx context.Context, sessionID string) error {
	unlock, err := m.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()
	return m.memory.ClearHistory(ctx, sessionID)
}

// Destroy 删除语料和对话记录
func (m *Manager) Destroy(ctx context.Context, sessionID string) error {
	unlock, err := m.lock(ctx, sessionID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := m.corpora.Delete(ctx, sessionID); err != nil {
		return err
	}
	return m.memory.ClearHistory(ctx, sessionID)
}

// Turns 把对话记录转换为接口输出格式，忽略系统消息
func Turns(history []*schema.Message) []types.ChatTurn {
	turns := make([]types.ChatTurn, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case schema.User:
			turns = append(turns, types.ChatTurn{Role: types.RoleUser, Content: msg.Content})
		case schema.Assistant:
			turns = append(turns, types.ChatTurn{Role: types.RoleAssistant, Content: msg.Content})
		}
	}
	return turns
}

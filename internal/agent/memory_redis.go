package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cv-agent-go/internal/constants"

	"github.com/cloudwego/eino/schema"
	"github.com/redis/go-redis/v9"
)

// RedisChatMemory 使用 Redis List 保存对话记录，每个元素是一条 JSON 编码的消息
type RedisChatMemory struct {
	client    redis.UniversalClient
	keyPrefix string
	ttl       time.Duration // 每次写入都会刷新，0 表示不过期
}

// NewRedisChatMemory keyPrefix 为空时使用 constants.KeySessionChat
func NewRedisChatMemory(client redis.UniversalClient, keyPrefix string, ttl time.Duration) (*RedisChatMemory, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client cannot be nil")
	}
	if keyPrefix == "" {
		keyPrefix = constants.KeySessionChat
	}
	return &RedisChatMemory{client: client, keyPrefix: keyPrefix, ttl: ttl}, nil
}

func (rcm *RedisChatMemory) buildKey(sessionID string) string {
	return rcm.keyPrefix + sessionID
}

func (rcm *RedisChatMemory) GetHistory(ctx context.Context, sessionID string) ([]*schema.Message, error) {
	serialized, err := rcm.client.LRange(ctx, rcm.buildKey(sessionID), 0, -1).Result()
	if errors.Is(err, redis.Nil) {
		return []*schema.Message{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get messages from redis for session %s: %w", sessionID, err)
	}

	messages := make([]*schema.Message, 0, len(serialized))
	for _, sm := range serialized {
		var msg schema.Message
		if err := json.Unmarshal([]byte(sm), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message for session %s: %w", sessionID, err)
		}
		messages = append(messages, &msg)
	}
	return messages, nil
}

func (rcm *RedisChatMemory) AddMessage(ctx context.Context, sessionID string, message *schema.Message) error {
	return rcm.AddMessages(ctx, sessionID, []*schema.Message{message})
}

// AddMessages 在一个 MULTI/EXEC 事务中 RPUSH 并刷新过期时间
func (rcm *RedisChatMemory) AddMessages(ctx context.Context, sessionID string, messages []*schema.Message) error {
	if len(messages) == 0 {
		return nil
	}
	values := make([]interface{}, 0, len(messages))
	for _, message := range messages {
		if message == nil {
			return fmt.Errorf("cannot add nil message to chat history for session %s", sessionID)
		}
		data, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message for session %s: %w", sessionID, err)
		}
		values = append(values, data)
	}

	key := rcm.buildKey(sessionID)
	pipe := rcm.client.TxPipeline()
	pipe.RPush(ctx, key, values...)
	if rcm.ttl > 0 {
		pipe.Expire(ctx, key, rcm.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add messages to redis for session %s: %w", sessionID, err)
	}
	return nil
}

func (rcm *RedisChatMemory) ClearHistory(ctx context.Context, sessionID string) error {
	if err := rcm.client.Del(ctx, rcm.buildKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to clear chat history from redis for session %s: %w", sessionID, err)
	}
	return nil
}

package agent

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseChatMemory(t *testing.T, mem ChatMemory) {
	ctx := context.Background()
	sessionID := uuid.NewString()

	history, err := mem.GetHistory(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, history, "不存在的会话应返回空记录")

	require.NoError(t, mem.AddMessages(ctx, sessionID, []*schema.Message{
		schema.UserMessage("Who knows Go?"),
		schema.AssistantMessage("Jane.", nil),
	}))
	require.NoError(t, mem.AddMessage(ctx, sessionID, schema.UserMessage("Thanks")))

	history, err = mem.GetHistory(ctx, sessionID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, schema.User, history[0].Role)
	assert.Equal(t, "Jane.", history[1].Content)
	assert.Equal(t, "Thanks", history[2].Content)

	assert.Error(t, mem.AddMessage(ctx, sessionID, nil), "不允许写入 nil 消息")

	require.NoError(t, mem.ClearHistory(ctx, sessionID))
	history, err = mem.GetHistory(ctx, sessionID)
	require.NoError(t, err)
	assert.Empty(t, history)

	require.NoError(t, mem.ClearHistory(ctx, "missing-"+sessionID), "清空不存在的会话应静默成功")
}

func TestInMemoryChatMemory(t *testing.T) {
	exerciseChatMemory(t, NewInMemoryChatMemory(0))
}

func TestInMemoryChatMemory_ReturnsCopy(t *testing.T) {
	ctx := context.Background()
	mem := NewInMemoryChatMemory(0)
	require.NoError(t, mem.AddMessage(ctx, "s", schema.UserMessage("a")))

	history, _ := mem.GetHistory(ctx, "s")
	history[0] = schema.UserMessage("tampered")

	again, _ := mem.GetHistory(ctx, "s")
	assert.Equal(t, "a", again[0].Content, "修改返回的切片不应影响内部存储")
}

func TestInMemoryChatMemory_Expiry(t *testing.T) {
	ctx := context.Background()
	mem := NewInMemoryChatMemory(time.Minute)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mem.now = func() time.Time { return now }

	require.NoError(t, mem.AddMessage(ctx, "s", schema.UserMessage("a")))
	now = now.Add(50 * time.Second)
	require.NoError(t, mem.AddMessage(ctx, "s", schema.AssistantMessage("b", nil)))

	now = now.Add(50 * time.Second)
	history, err := mem.GetHistory(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, history, 2, "追加消息会刷新过期时间")

	now = now.Add(10 * time.Second)
	history, err = mem.GetHistory(ctx, "s")
	require.NoError(t, err)
	assert.Empty(t, history, "到期后对话记录应失效")
	assert.Empty(t, mem.histories, "过期记录在访问时清理")

	require.NoError(t, mem.AddMessage(ctx, "s", schema.UserMessage("c")))
	history, _ = mem.GetHistory(ctx, "s")
	require.Len(t, history, 1, "过期后重新追加不会带回旧消息")
	assert.Equal(t, "c", history[0].Content)
}

func TestRedisChatMemory(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("未设置 REDIS_ADDR，跳过 Redis 集成测试")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	require.NoError(t, client.Ping(context.Background()).Err())

	mem, err := NewRedisChatMemory(client, "test:chat:", time.Minute)
	require.NoError(t, err)
	exerciseChatMemory(t, mem)
}

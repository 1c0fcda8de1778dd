package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"cv-agent-go/internal/config"
	"cv-agent-go/internal/constants"

	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// 测试用的快速重试策略
var fastRetry = RetryPolicy{MaxRetries: 2, InitialBackoff: time.Millisecond}

type timeoutNetErr struct{}

func (timeoutNetErr) Error() string   { return "i/o wait" }
func (timeoutNetErr) Timeout() bool   { return true }
func (timeoutNetErr) Temporary() bool { return true }

var _ net.Error = timeoutNetErr{}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429 限流", &APIStatusError{StatusCode: http.StatusTooManyRequests}, true},
		{"503 服务端错误", fmt.Errorf("wrap: %w", &APIStatusError{StatusCode: 503}), true},
		{"401 鉴权失败", &APIStatusError{StatusCode: http.StatusUnauthorized}, false},
		{"gemini 500", genai.APIError{Code: 500, Status: "INTERNAL"}, true},
		{"gemini 400", genai.APIError{Code: 400, Status: "INVALID_ARGUMENT"}, false},
		{"超时", context.DeadlineExceeded, true},
		{"取消", context.Canceled, false},
		{"网络超时", timeoutNetErr{}, true},
		{"连接被重置", errors.New("read tcp: connection reset by peer"), true},
		{"普通错误", errors.New("invalid json"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestAnswerError_Is(t *testing.T) {
	transient := &AnswerError{Transient: true, Err: errors.New("503")}
	assert.True(t, errors.Is(transient, ErrTransient), "瞬时失败应与 ErrTransient 匹配")

	permanent := &AnswerError{Transient: false, Err: errors.New("400")}
	assert.False(t, errors.Is(permanent, ErrTransient), "非瞬时失败不应与 ErrTransient 匹配")
}

func TestGenerateWithRetry(t *testing.T) {
	msgs := []*schema.Message{schema.UserMessage("hi")}

	t.Run("瞬时失败后重试成功", func(t *testing.T) {
		m := NewMockChatModel(
			MockResponse{Error: &APIStatusError{StatusCode: 503}},
			MockResponse{Content: "ok"},
		)
		resp, err := GenerateWithRetry(context.Background(), m, msgs, fastRetry, zerolog.Nop())
		require.NoError(t, err)
		assert.Equal(t, "ok", resp.Content)
		assert.Equal(t, 2, m.Calls())
	})

	t.Run("非瞬时失败不重试", func(t *testing.T) {
		m := NewMockChatModel(MockResponse{Error: &APIStatusError{StatusCode: 400}})
		_, err := GenerateWithRetry(context.Background(), m, msgs, fastRetry, zerolog.Nop())
		require.Error(t, err)
		assert.Equal(t, 1, m.Calls(), "非瞬时错误只应调用一次")
	})

	t.Run("重试次数用尽", func(t *testing.T) {
		m := NewMockChatModel(MockResponse{Error: &APIStatusError{StatusCode: 502}})
		_, err := GenerateWithRetry(context.Background(), m, msgs, fastRetry, zerolog.Nop())
		require.Error(t, err)
		assert.True(t, IsTransient(err), "包装后的错误仍应被识别为瞬时错误")
		assert.Equal(t, 3, m.Calls(), "首次调用加两次重试")
	})
}

func TestCVAssistant_BuildMessages(t *testing.T) {
	a := NewCVAssistant(NewMockChatModel(MockResponse{Content: "x"}))
	history := []*schema.Message{
		schema.UserMessage("Who knows Go?"),
		schema.AssistantMessage("Jane.", nil),
	}

	msgs := a.BuildMessages("And Rust?", "CV-A\n\n####\n\nCV-B", history)
	require.Len(t, msgs, 4)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "You are an expert HR assistant.")
	assert.Contains(t, msgs[0].Content, "separated by four hashes (####)")
	assert.Contains(t, msgs[0].Content, "CV-A\n\n####\n\nCV-B", "系统提示词应包含完整语料")
	assert.Equal(t, "Who knows Go?", msgs[1].Content)
	assert.Equal(t, schema.Assistant, msgs[2].Role)
	assert.Equal(t, schema.User, msgs[3].Role)
	assert.Equal(t, "And Rust?", msgs[3].Content)
}

func TestCVAssistant_SystemPromptWithoutPlaceholder(t *testing.T) {
	a := NewCVAssistant(nil, WithPromptTemplate("Custom intro."))
	assert.Equal(t, "Custom intro.\n\nCORPUS\n\n", a.SystemPrompt("CORPUS"))
}

func TestCVAssistant_Answer(t *testing.T) {
	t.Run("成功时返回回复并传递采样参数", func(t *testing.T) {
		m := NewMockChatModel(MockResponse{Content: "Jane knows Go."})
		a := NewCVAssistant(m, WithRetryPolicy(fastRetry))

		reply, err := a.Answer(context.Background(), "Who knows Go?", "Jane Doe\nSkills\nGo", nil)
		require.NoError(t, err)
		assert.Equal(t, "Jane knows Go.", reply)

		require.Len(t, m.ReceivedOptions, 1)
		opts := m.ReceivedOptions[0]
		require.NotNil(t, opts.Temperature)
		require.NotNil(t, opts.MaxTokens)
		assert.InDelta(t, 0.2, *opts.Temperature, 1e-6)
		assert.Equal(t, 500, *opts.MaxTokens)
	})

	t.Run("降级策略返回固定文案", func(t *testing.T) {
		m := NewMockChatModel(MockResponse{Error: &APIStatusError{StatusCode: 500}})
		a := NewCVAssistant(m, WithRetryPolicy(fastRetry))

		reply, err := a.Answer(context.Background(), "q", "ctx", nil)
		require.NoError(t, err, "降级策略下不应返回错误")
		assert.Equal(t, constants.DefaultFallbackMessage, reply)
	})

	t.Run("传播策略区分瞬时错误", func(t *testing.T) {
		m := NewMockChatModel(MockResponse{Error: &APIStatusError{StatusCode: 429}})
		a := NewCVAssistant(m, WithRetryPolicy(fastRetry), WithFallback(config.FallbackPropagate, ""))

		_, err := a.Answer(context.Background(), "q", "ctx", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrTransient))

		var answerErr *AnswerError
		require.True(t, errors.As(err, &answerErr))
		assert.True(t, answerErr.Transient)
	})

	t.Run("空回复视为失败", func(t *testing.T) {
		m := NewMockChatModel(MockResponse{Content: "  "})
		a := NewCVAssistant(m, WithRetryPolicy(fastRetry), WithFallback(config.FallbackPropagate, ""))

		_, err := a.Answer(context.Background(), "q", "ctx", nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrEmptyReply))
		assert.False(t, errors.Is(err, ErrTransient))
	})
}

func TestAssistantOptionsFromConfig(t *testing.T) {
	cfg := config.ChatConfig{
		Temperature:     0.7,
		MaxTokens:       128,
		FallbackPolicy:  config.FallbackPropagate,
		FallbackMessage: "down",
		MaxRetries:      0,
		Timeout:         "5s",
	}
	a := NewCVAssistant(nil, AssistantOptionsFromConfig(cfg)...)
	assert.InDelta(t, 0.7, a.temperature, 1e-6)
	assert.Equal(t, 128, a.maxTokens)
	assert.Equal(t, config.FallbackPropagate, a.fallbackPolicy)
	assert.Equal(t, "down", a.fallbackMessage)
	assert.Equal(t, 0, a.retry.MaxRetries)
	assert.Equal(t, 5*time.Second, a.retry.CallTimeout)
	assert.Equal(t, DefaultSystemPromptTemplate, a.promptTemplate, "空模板应保留默认提示词")
}

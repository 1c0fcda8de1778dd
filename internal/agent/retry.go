package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// RetryPolicy 模型调用的重试参数
type RetryPolicy struct {
	MaxRetries     int           // 首次调用之后最多再试几次
	InitialBackoff time.Duration // 第一次重试前的等待，之后每次翻倍
	CallTimeout    time.Duration // 单次调用超时，0 表示只受上游 ctx 约束
}

// DefaultRetryPolicy 最多重试 2 次，退避从 2 秒开始，单次调用 60 秒
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, InitialBackoff: 2 * time.Second, CallTimeout: 60 * time.Second}
}

// GenerateWithRetry 调用 Generate，仅对 IsTransient 的错误做指数退避重试
func GenerateWithRetry(ctx context.Context, m model.BaseChatModel, messages []*schema.Message, policy RetryPolicy, log zerolog.Logger, opts ...model.Option) (*schema.Message, error) {
	backoff := policy.InitialBackoff
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("上下文已取消: %w", ctx.Err())
			case <-timer.C:
			}
			backoff *= 2
			log.Info().Int("attempt", attempt).Err(lastErr).Msg("重试模型调用")
		}

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if policy.CallTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, policy.CallTimeout)
		}
		resp, err := m.Generate(callCtx, messages, opts...)
		cancel()

		if err == nil {
			if resp == nil {
				return nil, ErrEmptyReply
			}
			return resp, nil
		}
		lastErr = err
		if !IsTransient(err) || ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("模型调用失败: %w", lastErr)
}

package agent

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/time/rate"
)

// RateLimitedChatModel 对模型调用做令牌桶限流的代理
// 等待令牌时遵守 ctx 的取消与超时
type RateLimitedChatModel struct {
	original model.BaseChatModel
	limiter  *rate.Limiter
}

// NewRateLimitedChatModel qpm 为每分钟调用次数，桶容量取 qpm 的一半以允许少量突发
func NewRateLimitedChatModel(original model.BaseChatModel, qpm int) *RateLimitedChatModel {
	burst := qpm / 2
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedChatModel{
		original: original,
		limiter:  rate.NewLimiter(rate.Limit(float64(qpm)/60.0), burst),
	}
}

func (rl *RateLimitedChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if err := rl.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("等待模型调用配额失败: %w", err)
	}
	return rl.original.Generate(ctx, messages, opts...)
}

func (rl *RateLimitedChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if err := rl.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("等待模型调用配额失败: %w", err)
	}
	return rl.original.Stream(ctx, messages, opts...)
}

package agent

import (
	"context"
	"fmt"
	"strings"

	"cv-agent-go/internal/config"

	"github.com/cloudwego/eino/components/model"
)

// 模型任务名，对应 aliyun.task_models 的键
const (
	TaskChat    = "chat"
	TaskCVParse = "cv_parse"
)

// NewChatModel 按 llm_provider 创建对话模型，配置了 llm_rate_limit_qpm 时套一层限流
func NewChatModel(ctx context.Context, cfg *config.Config, task string) (model.BaseChatModel, error) {
	var (
		m   model.BaseChatModel
		err error
	)
	switch strings.ToLower(cfg.LLMProvider) {
	case "", "qwen", "aliyun":
		m, err = NewQwenChatModel(cfg.Aliyun.APIKey, cfg.GetModelForTask(task), cfg.Aliyun.APIURL)
	case "gemini":
		m, err = NewGeminiChatModel(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	default:
		return nil, fmt.Errorf("不支持的模型提供方: %s", cfg.LLMProvider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.LLMRateLimitQPM > 0 {
		return NewRateLimitedChatModel(m, cfg.LLMRateLimitQPM), nil
	}
	return m, nil
}

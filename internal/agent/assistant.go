package agent

import (
	"context"
	"strings"
	"time"

	"cv-agent-go/internal/config"
	"cv-agent-go/internal/constants"
	"cv-agent-go/internal/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// DefaultSystemPromptTemplate 对话系统提示词，%s 处填入会话语料
const DefaultSystemPromptTemplate = "You are an expert HR assistant. The following is the CV information of the one or more candidates separated by four hashes (####). " +
	"Read this information carefully and answer any queries about the candidates accurately.\n\n%s\n\n"

// CVAssistant 基于会话语料回答关于候选人的问题
// 不写入对话记录，追加 user/assistant 两条消息由调用方负责
type CVAssistant struct {
	model           model.BaseChatModel
	promptTemplate  string
	temperature     float32
	maxTokens       int
	fallbackPolicy  string
	fallbackMessage string
	retry           RetryPolicy
	logger          zerolog.Logger
}

type AssistantOption func(*CVAssistant)

func WithPromptTemplate(tpl string) AssistantOption {
	return func(a *CVAssistant) {
		if strings.TrimSpace(tpl) != "" {
			a.promptTemplate = tpl
		}
	}
}

func WithSampling(temperature float32, maxTokens int) AssistantOption {
	return func(a *CVAssistant) {
		a.temperature = temperature
		if maxTokens > 0 {
			a.maxTokens = maxTokens
		}
	}
}

// WithFallback policy 为 config.FallbackDegrade 时失败返回 message，否则返回错误
func WithFallback(policy, message string) AssistantOption {
	return func(a *CVAssistant) {
		if policy != "" {
			a.fallbackPolicy = policy
		}
		if message != "" {
			a.fallbackMessage = message
		}
	}
}

func WithRetryPolicy(p RetryPolicy) AssistantOption {
	return func(a *CVAssistant) {
		a.retry = p
	}
}

func WithAssistantLogger(l zerolog.Logger) AssistantOption {
	return func(a *CVAssistant) {
		a.logger = l
	}
}

func NewCVAssistant(m model.BaseChatModel, opts ...AssistantOption) *CVAssistant {
	a := &CVAssistant{
		model:           m,
		promptTemplate:  DefaultSystemPromptTemplate,
		temperature:     0.2,
		maxTokens:       500,
		fallbackPolicy:  config.FallbackDegrade,
		fallbackMessage: constants.DefaultFallbackMessage,
		retry:           DefaultRetryPolicy(),
		logger:          logger.Component("cv_assistant"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AssistantOptionsFromConfig 把 chat 配置段转换为选项
func AssistantOptionsFromConfig(cfg config.ChatConfig) []AssistantOption {
	retry := DefaultRetryPolicy()
	if cfg.MaxRetries >= 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	retry.CallTimeout = config.GetDuration(cfg.Timeout, retry.CallTimeout)

	return []AssistantOption{
		WithPromptTemplate(cfg.SystemPromptTemplate),
		WithSampling(float32(cfg.Temperature), cfg.MaxTokens),
		WithFallback(cfg.FallbackPolicy, cfg.FallbackMessage),
		WithRetryPolicy(retry),
	}
}

// SystemPrompt 用语料替换模板中的第一个 %s；模板没有占位符时把语料追加到末尾
func (a *CVAssistant) SystemPrompt(corpusText string) string {
	if strings.Contains(a.promptTemplate, "%s") {
		return strings.Replace(a.promptTemplate, "%s", corpusText, 1)
	}
	return a.promptTemplate + "\n\n" + corpusText + "\n\n"
}

// BuildMessages system、历史记录和本次问题，按此顺序
func (a *CVAssistant) BuildMessages(query, corpusText string, history []*schema.Message) []*schema.Message {
	messages := make([]*schema.Message, 0, len(history)+2)
	messages = append(messages, schema.SystemMessage(a.SystemPrompt(corpusText)))
	for _, m := range history {
		if m != nil {
			messages = append(messages, m)
		}
	}
	return append(messages, schema.UserMessage(query))
}

// Answer 返回模型回复
// 降级策略下任何失败都返回固定致歉文案且 error 为 nil；
// 否则返回 *AnswerError，瞬时失败可用 errors.Is(err, ErrTransient) 识别
func (a *CVAssistant) Answer(ctx context.Context, query, corpusText string, history []*schema.Message) (string, error) {
	start := time.Now()
	resp, err := GenerateWithRetry(ctx, a.model, a.BuildMessages(query, corpusText, history), a.retry, a.logger,
		model.WithTemperature(a.temperature),
		model.WithMaxTokens(a.maxTokens),
	)
	if err == nil && strings.TrimSpace(resp.Content) == "" {
		err = ErrEmptyReply
	}
	if err != nil {
		answerErr := &AnswerError{Transient: IsTransient(err), Err: err}
		a.logger.Error().
			Err(err).
			Bool("transient", answerErr.Transient).
			Str("fallback_policy", a.fallbackPolicy).
			Dur("duration", time.Since(start)).
			Msg("对话模型调用失败")
		if a.fallbackPolicy == config.FallbackDegrade {
			return a.fallbackMessage, nil
		}
		return "", answerErr
	}

	a.logger.Debug().Int("history", len(history)).Dur("duration", time.Since(start)).Msg("对话回复完成")
	return resp.Content, nil
}

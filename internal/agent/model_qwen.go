package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cv-agent-go/internal/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

const (
	// DashScope 的 OpenAI 兼容接口
	defaultQwenAPIURL    = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	defaultQwenModelName = "qwen-plus"
)

type qwenToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

type qwenTool struct {
	Type     string           `json:"type"` // 固定为 "function"
	Function qwenToolFunction `json:"function"`
}

type qwenMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type qwenChatRequest struct {
	Model       string        `json:"model"`
	Messages    []qwenMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Tools       []qwenTool    `json:"tools,omitempty"`
}

type qwenChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role      string  `json:"role"`
			Content   *string `json:"content"`
			ToolCalls []struct {
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls,omitempty"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// QwenChatModel 通过 OpenAI 兼容接口调用阿里云通义千问
type QwenChatModel struct {
	apiKey     string
	modelName  string
	apiURL     string
	httpClient *http.Client
	tools      []qwenTool
	logger     zerolog.Logger
}

type QwenOption func(*QwenChatModel)

func WithQwenHTTPClient(c *http.Client) QwenOption {
	return func(q *QwenChatModel) {
		if c != nil {
			q.httpClient = c
		}
	}
}

func WithQwenLogger(l zerolog.Logger) QwenOption {
	return func(q *QwenChatModel) {
		q.logger = l
	}
}

// NewQwenChatModel modelName、apiURL 为空时使用默认值
func NewQwenChatModel(apiKey, modelName, apiURL string, opts ...QwenOption) (*QwenChatModel, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("API 密钥不能为空")
	}
	if strings.TrimSpace(modelName) == "" {
		modelName = defaultQwenModelName
	}
	if strings.TrimSpace(apiURL) == "" {
		apiURL = defaultQwenAPIURL
	}

	q := &QwenChatModel{
		apiKey:     apiKey,
		modelName:  modelName,
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: 90 * time.Second},
		logger:     logger.Component("qwen_model"),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q, nil
}

// Generate 实现 model.BaseChatModel
// 支持 model.WithTemperature / model.WithMaxTokens / model.WithModel
func (q *QwenChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{Model: &q.modelName}, opts...)

	req := qwenChatRequest{
		Model:       *options.Model,
		Messages:    make([]qwenMessage, 0, len(messages)),
		Temperature: options.Temperature,
		MaxTokens:   options.MaxTokens,
		Tools:       q.tools,
	}
	for _, m := range messages {
		if m == nil {
			continue
		}
		req.Messages = append(req.Messages, qwenMessage{Role: string(m.Role), Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("序列化请求体失败: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, q.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("创建 HTTP 请求失败: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+q.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	httpResp, err := q.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("发送 HTTP 请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	respBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}
	q.logger.Debug().
		Str("model", req.Model).
		Int("status", httpResp.StatusCode).
		Int("messages", len(req.Messages)).
		Dur("duration", time.Since(start)).
		Msg("通义千问调用完成")

	if httpResp.StatusCode != http.StatusOK {
		return nil, &APIStatusError{StatusCode: httpResp.StatusCode, Body: string(respBytes)}
	}

	var resp qwenChatResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("反序列化 API 响应失败: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("从 API 收到空选项: %s", string(respBytes))
	}

	choice := resp.Choices[0].Message
	result := &schema.Message{Role: schema.Assistant}
	if choice.Role != "" {
		result.Role = schema.RoleType(choice.Role)
	}
	if choice.Content != nil {
		result.Content = *choice.Content
	}
	for _, tc := range choice.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, schema.ToolCall{
			ID:       tc.ID,
			Function: schema.FunctionCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments},
		})
	}
	return result, nil
}

// Stream 兼容接口暂未实现流式输出
func (q *QwenChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("QwenChatModel 不支持 Stream")
}

// WithTools 返回绑定了工具的副本，原实例不变
// 参数 schema 无法从 ToolInfo 中通用地导出，这里统一声明为空对象
func (q *QwenChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	cpy := *q
	cpy.tools = make([]qwenTool, 0, len(tools))
	for _, t := range tools {
		if t == nil {
			continue
		}
		cpy.tools = append(cpy.tools, qwenTool{
			Type: "function",
			Function: qwenToolFunction{
				Name:        t.Name,
				Description: t.Desc,
				Parameters:  map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
			},
		})
	}
	return &cpy, nil
}

var _ model.ToolCallingChatModel = (*QwenChatModel)(nil)

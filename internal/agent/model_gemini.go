package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cv-agent-go/internal/logger"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-2.5-flash"

// contentGenerator 抽出 genai.Models 的调用面，测试中可替换
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiChatModel 把 Gemini API 适配为 eino 的 BaseChatModel
// system 消息合并为 SystemInstruction，assistant 映射为 model 角色
type GeminiChatModel struct {
	models    contentGenerator
	modelName string
	logger    zerolog.Logger
}

// NewGeminiChatModel 使用 Gemini API 后端创建客户端
func NewGeminiChatModel(ctx context.Context, apiKey, modelName string) (*GeminiChatModel, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGeminiChatModel(client.Models, modelName), nil
}

func newGeminiChatModel(models contentGenerator, modelName string) *GeminiChatModel {
	if modelName = strings.TrimSpace(modelName); modelName == "" {
		modelName = defaultGeminiModel
	}
	return &GeminiChatModel{
		models:    models,
		modelName: modelName,
		logger:    logger.Component("gemini_model"),
	}
}

func (g *GeminiChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	options := model.GetCommonOptions(&model.Options{Model: &g.modelName}, opts...)

	cfg := &genai.GenerateContentConfig{Temperature: options.Temperature}
	if options.MaxTokens != nil {
		cfg.MaxOutputTokens = int32(*options.MaxTokens)
	}

	var systemParts []*genai.Part
	contents := make([]*genai.Content, 0, len(messages))
	for _, m := range messages {
		if m == nil {
			continue
		}
		switch m.Role {
		case schema.System:
			systemParts = append(systemParts, &genai.Part{Text: m.Content})
		case schema.Assistant:
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: m.Content}}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	if len(systemParts) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: systemParts}
	}
	if len(contents) == 0 {
		return nil, errors.New("gemini 请求至少需要一条非 system 消息")
	}

	resp, err := g.models.GenerateContent(ctx, *options.Model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Text == "" {
				continue
			}
			builder.WriteString(part.Text)
		}
		// 只取第一个有内容的候选
		if builder.Len() > 0 {
			break
		}
	}

	g.logger.Debug().Str("model", *options.Model).Int("reply_length", builder.Len()).Msg("Gemini 调用完成")
	return &schema.Message{Role: schema.Assistant, Content: builder.String()}, nil
}

func (g *GeminiChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, fmt.Errorf("GeminiChatModel 不支持 Stream")
}

var _ model.BaseChatModel = (*GeminiChatModel)(nil)

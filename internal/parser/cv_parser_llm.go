package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"cv-agent-go/internal/agent"
	"cv-agent-go/internal/config"
	"cv-agent-go/internal/logger"
	"cv-agent-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"
)

// LLMStrategyName LLM 策略在配置与持久化中使用的名称
const LLMStrategyName = "llm"

// ErrMalformedOutput 模型输出中找不到可解析的 JSON 对象
var ErrMalformedOutput = errors.New("模型输出不是有效的简历 JSON")

const cvParseSystemPrompt = "You are a helpful assistant."

// DefaultCVParsePromptTemplate 结构化解析提示词，%s 处填入简历原文
const DefaultCVParsePromptTemplate = `You are an expert HR assistant. Extract the following information from the provided CV text and return it as valid JSON with the following keys:
- "personal_info": An object containing "name", "emails", and "phones".
- "education": A list of education entries.
- "work_experience": A list of work experience entries.
- "skills": A list of skills.
- "projects": A list of projects.
- "certifications": A list of certifications.

If any of these sections are not present, return an empty list or null for that section.

CV Text:

####
%s
####

Respond only with valid JSON and nothing else.`

var jsonFencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")

// LLMCVParser 让对话模型直接输出 CVRecord 形状的 JSON
type LLMCVParser struct {
	model          model.BaseChatModel
	promptTemplate string
	temperature    float32
	maxTokens      int
	retry          agent.RetryPolicy
	logger         zerolog.Logger
}

type LLMCVParserOption func(*LLMCVParser)

func WithCVParsePrompt(tpl string) LLMCVParserOption {
	return func(p *LLMCVParser) {
		if strings.TrimSpace(tpl) != "" {
			p.promptTemplate = tpl
		}
	}
}

func WithCVParseSampling(temperature float32, maxTokens int) LLMCVParserOption {
	return func(p *LLMCVParser) {
		p.temperature = temperature
		p.maxTokens = maxTokens
	}
}

func WithCVParseRetry(policy agent.RetryPolicy) LLMCVParserOption {
	return func(p *LLMCVParser) {
		p.retry = policy
	}
}

func WithCVParserLogger(l zerolog.Logger) LLMCVParserOption {
	return func(p *LLMCVParser) {
		p.logger = l
	}
}

func NewLLMCVParser(m model.BaseChatModel, opts ...LLMCVParserOption) *LLMCVParser {
	p := &LLMCVParser{
		model:          m,
		promptTemplate: DefaultCVParsePromptTemplate,
		retry:          agent.DefaultRetryPolicy(),
		logger:         logger.Component("llm_cv_parser"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// LLMCVParserOptionsFromConfig 把 llm_parser 配置段转换为选项
func LLMCVParserOptionsFromConfig(cfg config.LLMParserConfig) []LLMCVParserOption {
	retry := agent.DefaultRetryPolicy()
	retry.MaxRetries = cfg.MaxRetries
	if cfg.RetryWaitSeconds > 0 {
		retry.InitialBackoff = time.Duration(cfg.RetryWaitSeconds) * time.Second
	}
	retry.CallTimeout = config.GetDuration(cfg.ExtractionTimeout, retry.CallTimeout)

	return []LLMCVParserOption{
		WithCVParsePrompt(cfg.PromptTemplate),
		WithCVParseSampling(float32(cfg.Temperature), cfg.MaxTokens),
		WithCVParseRetry(retry),
	}
}

// Strategy 返回策略名称
func (p *LLMCVParser) Strategy() string {
	return LLMStrategyName
}

// StructuredParse 失败时返回 nil，失败原因只写日志
func (p *LLMCVParser) StructuredParse(ctx context.Context, text string) *types.CVRecord {
	record, err := p.BuildRecord(ctx, text)
	if err != nil {
		p.logger.Warn().Err(err).Msg("结构化解析失败")
		return nil
	}
	return record
}

// BuildRecord 调用模型并把输出规范化为 CVRecord
func (p *LLMCVParser) BuildRecord(ctx context.Context, text string) (*types.CVRecord, error) {
	prompt := strings.Replace(p.promptTemplate, "%s", text, 1)
	messages := []*schema.Message{
		schema.SystemMessage(cvParseSystemPrompt),
		schema.UserMessage(prompt),
	}

	opts := []model.Option{model.WithTemperature(p.temperature)}
	if p.maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(p.maxTokens))
	}

	start := time.Now()
	resp, err := agent.GenerateWithRetry(ctx, p.model, messages, p.retry, p.logger, opts...)
	if err != nil {
		return nil, fmt.Errorf("LLM调用失败: %w", err)
	}

	record, err := parseCVRecordJSON(resp.Content)
	if err != nil {
		p.logger.Debug().Str("response", truncate(resp.Content, 200)).Msg("无法解析的模型输出")
		return nil, err
	}
	p.logger.Debug().
		Int("skills", len(record.Skills)).
		Int("education", len(record.Education)).
		Dur("duration", time.Since(start)).
		Msg("结构化解析完成")
	return record, nil
}

// llmCVOutput 模型输出的宽松形状，列表项可能是字符串、对象或 null
type llmCVOutput struct {
	PersonalInfo *struct {
		Name   json.RawMessage `json:"name"`
		Emails json.RawMessage `json:"emails"`
		Phones json.RawMessage `json:"phones"`
	} `json:"personal_info"`
	Education      json.RawMessage `json:"education"`
	WorkExperience json.RawMessage `json:"work_experience"`
	Skills         json.RawMessage `json:"skills"`
	Projects       json.RawMessage `json:"projects"`
	Certifications json.RawMessage `json:"certifications"`
}

func parseCVRecordJSON(response string) (*types.CVRecord, error) {
	jsonStr := extractJSON(response)
	if jsonStr == "" {
		return nil, ErrMalformedOutput
	}

	var out llmCVOutput
	if err := json.Unmarshal([]byte(jsonStr), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}

	record := &types.CVRecord{
		PersonalInfo:   types.PersonalInfo{Emails: []string{}, Phones: []string{}},
		Education:      toStringList(out.Education),
		WorkExperience: toStringList(out.WorkExperience),
		Skills:         toStringList(out.Skills),
		Projects:       toStringList(out.Projects),
		Certifications: toStringList(out.Certifications),
	}
	if pi := out.PersonalInfo; pi != nil {
		record.PersonalInfo.Emails = toStringList(pi.Emails)
		record.PersonalInfo.Phones = toStringList(pi.Phones)
		if name := scalarString(pi.Name); name != "" {
			record.PersonalInfo.Name = &name
		}
	}
	return record, nil
}

// toStringList null 与缺失为空列表，单个值视为只有一项的列表
func toStringList(raw json.RawMessage) []string {
	out := []string{}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out
	}

	if raw[0] != '[' {
		if s := scalarString(raw); s != "" {
			out = append(out, s)
		}
		return out
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	for _, item := range items {
		if s := scalarString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// scalarString 字符串原样裁剪，其它 JSON 值压缩后作为字符串
func scalarString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return strings.TrimSpace(string(raw))
	}
	return buf.String()
}

// extractJSON 优先取 ```json 代码块，其次取第一个括号平衡的对象
func extractJSON(text string) string {
	if m := jsonFencePattern.FindStringSubmatch(text); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}

	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}

	level := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			level++
		case c == '}':
			level--
			if level == 0 {
				return strings.TrimSpace(text[start : i+1])
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

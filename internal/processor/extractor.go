package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"cv-agent-go/internal/agent"
	"cv-agent-go/internal/config"
	"cv-agent-go/internal/cvparser"
	"cv-agent-go/internal/logger"
	"cv-agent-go/internal/parser"
)

// ExtractorRegistry 按小写扩展名选择文本提取器
type ExtractorRegistry struct {
	byExt map[string]TextExtractor
}

func NewExtractorRegistry() *ExtractorRegistry {
	return &ExtractorRegistry{byExt: make(map[string]TextExtractor)}
}

// Register 为一个或多个扩展名注册提取器，扩展名需带点号
func (r *ExtractorRegistry) Register(extractor TextExtractor, exts ...string) *ExtractorRegistry {
	for _, ext := range exts {
		r.byExt[strings.ToLower(ext)] = extractor
	}
	return r
}

// For 返回文件名对应的提取器
func (r *ExtractorRegistry) For(filename string) (TextExtractor, bool) {
	if r == nil {
		return nil, false
	}
	e, ok := r.byExt[strings.ToLower(filepath.Ext(filename))]
	return e, ok
}

// BuildExtractors 根据配置构建提取器
// PDF: tika.type=tika 且配置了地址时走 Tika，否则使用 Eino
// DOC/DOCX: office_backend=tika 且配置了 Tika 地址时走 Tika，否则使用 docconv
func BuildExtractors(ctx context.Context, cfg *config.Config) (*ExtractorRegistry, error) {
	log := logger.Component("extractor_init")
	registry := NewExtractorRegistry()

	var tika *parser.TikaExtractor
	if cfg.Tika.ServerURL != "" {
		tika = parser.NewTikaExtractor(cfg.Tika.ServerURL, tikaOptions(cfg.Tika)...)
	}

	if tika != nil && cfg.Tika.Type == "tika" {
		log.Info().Str("server", cfg.Tika.ServerURL).Bool("ocr", cfg.Tika.EnableOCR).Msg("PDF 使用 Tika 提取")
		registry.Register(tika, ".pdf")
	} else {
		log.Info().Msg("未配置 Tika，PDF 使用 Eino 提取")
		eino, err := parser.NewEinoPDFTextExtractor(ctx,
			parser.WithEinoLogger(logger.Component("eino_pdf_extractor")),
			parser.WithEinoTimeout(time.Duration(cfg.Tika.Timeout)*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("创建PDF提取器失败: %w", err)
		}
		registry.Register(eino, ".pdf")
	}

	if tika != nil && cfg.OfficeBackend == "tika" {
		registry.Register(tika, ".doc", ".docx")
	} else {
		registry.Register(parser.NewDocconvExtractor(), ".doc", ".docx")
	}
	return registry, nil
}

func tikaOptions(cfg config.TikaConfig) []parser.TikaOption {
	opts := []parser.TikaOption{
		parser.WithOCR(cfg.EnableOCR),
		parser.WithTikaLogger(logger.Component("tika_extractor")),
	}
	switch cfg.MetadataMode {
	case "full":
		opts = append(opts, parser.WithFullMetadata(true))
	case "none":
		opts = append(opts, parser.WithMinimalMetadata(false), parser.WithFullMetadata(false))
	default:
		opts = append(opts, parser.WithMinimalMetadata(true))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, parser.WithTimeout(time.Duration(cfg.Timeout)*time.Second))
	}
	return opts
}

// BuildRecordBuilder 按 parser_strategy 返回唯一的记录构建器
func BuildRecordBuilder(ctx context.Context, cfg *config.Config) (RecordBuilder, error) {
	switch cfg.ParserStrategy {
	case config.ParserStrategyLLM:
		m, err := agent.NewChatModel(ctx, cfg, agent.TaskCVParse)
		if err != nil {
			return nil, fmt.Errorf("创建结构化解析模型失败: %w", err)
		}
		opts := append(parser.LLMCVParserOptionsFromConfig(cfg.LLMParser),
			parser.WithCVParserLogger(logger.Component("llm_cv_parser")))
		return parser.NewLLMCVParser(m, opts...), nil
	case config.ParserStrategyRegex, "":
		return cvparser.NewRegexRecordBuilder(), nil
	default:
		return nil, fmt.Errorf("不支持的解析策略: %q", cfg.ParserStrategy)
	}
}

package processor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"cv-agent-go/internal/constants"
	"cv-agent-go/internal/logger"
	"cv-agent-go/internal/storage"
	"cv-agent-go/internal/tracing"
	"cv-agent-go/internal/types"

	"github.com/gofrs/uuid/v5"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("cv-agent-go/processor")

// Components 批处理依赖的组件，Store / Recorder / Publisher 可以为 nil
type Components struct {
	Extractors *ExtractorRegistry
	Builder    RecordBuilder
	Store      DocumentStore
	Recorder   DocumentRecorder
	Publisher  EventPublisher
}

// CVProcessor 把一次上传批次转换为会话语料
type CVProcessor struct {
	comp Components

	eventsExchange      string
	processedRoutingKey string
	now                 func() time.Time
	logger              zerolog.Logger
}

// BatchResult 批次处理结果
// Documents 中只包含扩展名被接受的文件，顺序与上传顺序一致
type BatchResult struct {
	Corpus    *types.Corpus       `json:"corpus"`
	Documents []*types.CVDocument `json:"documents"`
	Warnings  []Warning           `json:"warnings"`
}

func NewCVProcessor(comp Components, opts ...ProcessorOption) (*CVProcessor, error) {
	if comp.Extractors == nil {
		return nil, fmt.Errorf("CVProcessor: 未配置文本提取器")
	}
	if comp.Builder == nil {
		return nil, fmt.Errorf("CVProcessor: 未配置记录构建器")
	}
	p := &CVProcessor{
		comp:   comp,
		now:    time.Now,
		logger: logger.Component("cv_processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Strategy 当前使用的结构化策略
func (p *CVProcessor) Strategy() string {
	return p.comp.Builder.Strategy()
}

// ProcessBatch 按上传顺序逐个处理文件并聚合语料
// 单个文件的失败只产生警告；没有任何文件时返回 ErrEmptyBatch
func (p *CVProcessor) ProcessBatch(ctx context.Context, files []types.UploadedFile) (*BatchResult, error) {
	present := make([]types.UploadedFile, 0, len(files))
	for _, f := range files {
		if f.Filename == "" && len(f.Data) == 0 {
			continue
		}
		present = append(present, f)
	}
	if len(present) == 0 {
		return nil, ErrEmptyBatch
	}

	batchID := newID()
	ctx, span := tracer.Start(ctx, "CVProcessor.ProcessBatch", trace.WithAttributes(
		attribute.String("cv.batch_id", batchID),
		attribute.Int("cv.file_count", len(present)),
		attribute.String("cv.parser_strategy", p.Strategy()),
	))
	defer span.End()

	log := p.logger.With().Str("batch_id", batchID).Logger()
	result := &BatchResult{
		Documents: make([]*types.CVDocument, 0, len(present)),
		Warnings:  []Warning{},
	}
	outcomes := make([]DocumentOutcome, 0, len(present))

	for _, f := range present {
		ext := strings.ToLower(filepath.Ext(f.Filename))
		extractor, ok := p.comp.Extractors.For(f.Filename)
		if !constants.AllowedExtensions[ext] || !ok {
			log.Warn().Str("filename", f.Filename).Str("ext", ext).Msg("跳过不支持的文件")
			result.Warnings = append(result.Warnings, Warning{
				Filename: f.Filename,
				Kind:     WarningUnsupportedExtension,
				Message:  fmt.Sprintf(constants.MsgUnsupportedExtension, f.Filename),
				Err:      NewUnsupportedExtensionError(f.Filename, ext),
			})
			continue
		}

		doc, outcome, warning := p.processFile(ctx, batchID, f, ext, extractor, log)
		result.Documents = append(result.Documents, doc)
		outcomes = append(outcomes, outcome)
		if warning != nil {
			result.Warnings = append(result.Warnings, *warning)
		}
	}

	corpus := AggregateCorpus(outcomes)
	corpus.BatchID = batchID
	corpus.CreatedAt = p.now()
	result.Corpus = corpus

	span.SetAttributes(
		attribute.Int("cv.record_count", len(corpus.Records)),
		attribute.Int("cv.warning_count", len(result.Warnings)),
	)
	log.Info().
		Int("files", len(present)).
		Int("records", len(corpus.Records)).
		Int("warnings", len(result.Warnings)).
		Msg("批次处理完成")
	return result, nil
}

func (p *CVProcessor) processFile(ctx context.Context, batchID string, f types.UploadedFile, ext string, extractor TextExtractor, log zerolog.Logger) (*types.CVDocument, DocumentOutcome, *Warning) {
	ctx, span := tracer.Start(ctx, "CVProcessor.processFile", trace.WithAttributes(
		safeString("cv.filename", f.Filename),
		attribute.Int("cv.size_bytes", len(f.Data)),
	))
	defer span.End()

	doc := &types.CVDocument{
		ID:               newID(),
		OriginalFilename: f.Filename,
		FileExt:          ext,
		UploadedAt:       p.now(),
		ParserStrategy:   p.Strategy(),
	}
	outcome := DocumentOutcome{Filename: f.Filename}
	log = log.With().Str("document_id", doc.ID).Str("filename", f.Filename).Logger()

	if p.comp.Store != nil {
		ref, err := p.comp.Store.StoreDocument(ctx, doc.ID, ext, f.Data)
		if err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeStorage)
			log.Error().Err(NewStoreError(f.Filename, err)).Msg("保存原始文档失败，继续处理")
		} else {
			doc.StorageRef = ref
		}
	}

	var warning *Warning
	text, _, err := extractor.ExtractTextFromBytes(ctx, f.Data, f.Filename, nil)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExtraction)
		log.Warn().Err(err).Msg("文本提取失败")
		doc.Status = types.DocumentStatusExtractionFailed
		warning = &Warning{
			Filename: f.Filename,
			Kind:     WarningExtractionFailure,
			Message:  fmt.Sprintf(constants.MsgProcessingError, f.Filename, err),
			Err:      NewExtractionError(f.Filename, err),
		}
	} else {
		outcome.Text = text
		outcome.Extracted = true
		doc.ExtractedText = text

		record, buildErr := p.comp.Builder.BuildRecord(ctx, text)
		if buildErr == nil && record == nil {
			buildErr = ErrStructuredParseFailed
		}
		if buildErr != nil {
			tracing.RecordError(span, buildErr, tracing.ErrorTypeLLM)
			log.Warn().Err(buildErr).Msg("结构化解析失败，保留原文")
			doc.Status = types.DocumentStatusParseFailed
			warning = &Warning{
				Filename: f.Filename,
				Kind:     WarningStructuredParse,
				Message:  fmt.Sprintf(constants.MsgProcessingError, f.Filename, buildErr),
				Err:      NewStructuredParseError(f.Filename, buildErr),
			}
		} else {
			outcome.Record = record
			doc.ParsedData = record
			doc.Status = types.DocumentStatusParsed
			span.SetAttributes(recordAttributes(record)...)
		}
	}
	span.SetAttributes(attribute.String("cv.status", string(doc.Status)))

	if p.comp.Recorder != nil {
		if err := p.comp.Recorder.RecordDocument(ctx, doc); err != nil {
			tracing.RecordError(span, err, tracing.ErrorTypeDB)
			log.Error().Err(NewRecordError(f.Filename, err)).Msg("保存文档记录失败")
		}
	}
	p.publishProcessed(ctx, batchID, doc, warning, log)

	return doc, outcome, warning
}

func (p *CVProcessor) publishProcessed(ctx context.Context, batchID string, doc *types.CVDocument, warning *Warning, log zerolog.Logger) {
	if p.comp.Publisher == nil || p.eventsExchange == "" {
		return
	}
	event := storage.DocumentProcessedEvent{
		DocumentID:       doc.ID,
		BatchID:          batchID,
		OriginalFilename: doc.OriginalFilename,
		StorageRef:       doc.StorageRef,
		Status:           string(doc.Status),
		ParserStrategy:   doc.ParserStrategy,
		TextLength:       len(doc.ExtractedText),
		ProcessedAt:      p.now(),
	}
	if warning != nil && warning.Err != nil {
		event.Error = warning.Err.Error()
	}
	if err := p.comp.Publisher.PublishJSON(ctx, p.eventsExchange, p.processedRoutingKey, event, true); err != nil {
		log.Warn().Err(err).Msg("发布文档处理事件失败")
	}
}

func safeString(key, value string) attribute.KeyValue {
	return attribute.String(key, tracing.SafeAttributeValue(key, value, tracing.DefaultMaxLength))
}

// recordAttributes 解析结果的概要，个人信息只以掩码形式上报
func recordAttributes(record *types.CVRecord) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int("cv.email_count", len(record.PersonalInfo.Emails)),
		attribute.Int("cv.phone_count", len(record.PersonalInfo.Phones)),
		attribute.Int("cv.skill_count", len(record.Skills)),
	}
	if name := record.PersonalInfo.Name; name != nil {
		attrs = append(attrs, safeString("cv.name", *name))
	}
	if len(record.PersonalInfo.Emails) > 0 {
		attrs = append(attrs, safeString("cv.email", record.PersonalInfo.Emails[0]))
	}
	return attrs
}

// newID 生成 UUIDv7，失败时退回 v4
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Must(uuid.NewV4()).String()
	}
	return id.String()
}

package parser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"cv-agent-go/internal/logger"

	"code.sajari.com/docconv"
	"github.com/rs/zerolog"
)

// 可交给 docconv 原生处理的 Office 格式
var docconvMimeTypes = map[string]string{
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".doc":  "application/msword",
}

// DocconvExtractor 使用 docconv 提取 DOC/DOCX 文本
// .doc 依赖系统中安装的 wvText，缺失时表现为提取失败
type DocconvExtractor struct {
	readability bool
	convert     func(r io.Reader, mimeType string, readability bool) (*docconv.Response, error)
	logger      zerolog.Logger
}

type DocconvOption func(*DocconvExtractor)

func WithDocconvLogger(l zerolog.Logger) DocconvOption {
	return func(e *DocconvExtractor) {
		e.logger = l
	}
}

// WithReadability 对 HTML 类内容启用 readability 清洗
func WithReadability(enable bool) DocconvOption {
	return func(e *DocconvExtractor) {
		e.readability = enable
	}
}

func NewDocconvExtractor(options ...DocconvOption) *DocconvExtractor {
	e := &DocconvExtractor{
		convert: docconv.Convert,
		logger:  logger.Component("docconv_extractor"),
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// ExtractTextFromBytes 按文件扩展名选择 MIME 类型后转换
// docconv 本身不接受 context，转换放在独立 goroutine 中，ctx 结束时立即返回
func (e *DocconvExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string, _ interface{}) (string, map[string]interface{}, error) {
	ext := strings.ToLower(filepath.Ext(uri))
	mimeType, ok := docconvMimeTypes[ext]
	if !ok {
		return "", nil, fmt.Errorf("docconv 不支持的文件类型: %q", ext)
	}
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	type convertResult struct {
		res *docconv.Response
		err error
	}
	startTime := time.Now()
	done := make(chan convertResult, 1)
	go func() {
		res, err := e.convert(bytes.NewReader(data), mimeType, e.readability)
		done <- convertResult{res: res, err: err}
	}()

	var res *docconv.Response
	var err error
	select {
	case <-ctx.Done():
		e.logger.Warn().Str("uri", uri).Msg("Office 文档转换被取消")
		return "", nil, ctx.Err()
	case r := <-done:
		res, err = r.res, r.err
	}
	if err != nil {
		return "", nil, fmt.Errorf("docconv 转换 %s 失败: %w", uri, err)
	}
	if res.Error != "" {
		return "", nil, fmt.Errorf("docconv 转换 %s 失败: %s", uri, res.Error)
	}

	metadata := map[string]interface{}{
		"extractor":              "docconv",
		"source_file_path":       uri,
		"text_length":            len(res.Body),
		"processing_duration_ms": time.Since(startTime).Milliseconds(),
	}
	for k, v := range res.Meta {
		metadata[k] = v
	}

	e.logger.Debug().Str("uri", uri).Int("text_length", len(res.Body)).Msg("Office 文档文本提取完成")
	return res.Body, metadata, nil
}

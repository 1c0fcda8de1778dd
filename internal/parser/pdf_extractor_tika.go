package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"cv-agent-go/internal/logger"

	"github.com/rs/zerolog"
)

// Tika 请求头
const (
	tikaHeaderResourceName = "X-Tika-Resource-Name"
	tikaHeaderOCRStrategy  = "X-Tika-PDFOcrStrategy"
	tikaHeaderAnnotations  = "X-Tika-PDFExtractAnnotationText"
)

// 各扩展名对应的 Content-Type，未列出的交给 Tika 自行探测
var tikaContentTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// TikaExtractor 通过 Apache Tika 服务提取文档文本
// 开启 OCR 时 PDF 按页面图像识别，适用于扫描件
type TikaExtractor struct {
	// Tika服务器地址，例如 http://localhost:9998
	ServerURL string
	Client    *http.Client

	enableOCR              bool
	extractFullMetadata    bool
	extractMinimalMetadata bool
	extractAnnotations     bool
	logger                 zerolog.Logger
}

// TikaOption 定义配置选项函数
type TikaOption func(*TikaExtractor)

// WithFullMetadata 配置是否提取完整元数据
func WithFullMetadata(extract bool) TikaOption {
	return func(e *TikaExtractor) {
		e.extractFullMetadata = extract
	}
}

// WithMinimalMetadata 配置是否只提取关键元数据
func WithMinimalMetadata(extract bool) TikaOption {
	return func(e *TikaExtractor) {
		e.extractMinimalMetadata = extract
	}
}

// WithAnnotations 配置是否提取PDF链接注释文本
func WithAnnotations(extract bool) TikaOption {
	return func(e *TikaExtractor) {
		e.extractAnnotations = extract
	}
}

// WithOCR 对 PDF 强制使用 ocr_only 策略
func WithOCR(enable bool) TikaOption {
	return func(e *TikaExtractor) {
		e.enableOCR = enable
	}
}

func WithTikaLogger(l zerolog.Logger) TikaOption {
	return func(e *TikaExtractor) {
		e.logger = l
	}
}

// WithTimeout 配置HTTP客户端超时时间
func WithTimeout(timeout time.Duration) TikaOption {
	return func(e *TikaExtractor) {
		e.Client.Timeout = timeout
	}
}

// NewTikaExtractor 创建 Tika 文本提取器
func NewTikaExtractor(serverURL string, options ...TikaOption) *TikaExtractor {
	extractor := &TikaExtractor{
		ServerURL:              strings.TrimRight(serverURL, "/"),
		Client:                 &http.Client{Timeout: 60 * time.Second},
		extractMinimalMetadata: true,
		extractAnnotations:     true,
		logger:                 logger.Component("tika_extractor"),
	}
	for _, option := range options {
		option(extractor)
	}
	return extractor
}

// ExtractTextFromReader 读取全部内容后提取文本
func (e *TikaExtractor) ExtractTextFromReader(ctx context.Context, reader io.Reader, uri string, options interface{}) (string, map[string]interface{}, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", nil, fmt.Errorf("读取文档内容失败: %w", err)
	}
	return e.ExtractTextFromBytes(ctx, data, uri, options)
}

// ExtractTextFromBytes 把文档 PUT 到 /tika 并以纯文本形式取回
func (e *TikaExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string, _ interface{}) (string, map[string]interface{}, error) {
	startTime := time.Now()
	contentType := tikaContentType(uri)

	metadata := map[string]interface{}{
		"extraction_time":  startTime.Format(time.RFC3339),
		"source_file_path": uri,
		"extractor":        "tika",
	}

	req, err := e.newRequest(ctx, "/tika", data, uri, contentType, "text/plain")
	if err != nil {
		return "", metadata, err
	}
	usedOCR := e.enableOCR && contentType == tikaContentTypes[".pdf"]
	if usedOCR {
		req.Header.Set(tikaHeaderOCRStrategy, "ocr_only")
	}
	if !e.extractAnnotations {
		req.Header.Set(tikaHeaderAnnotations, "false")
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return "", metadata, fmt.Errorf("发送请求到Tika服务器失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", metadata, fmt.Errorf("tika服务器返回错误状态码: %d", resp.StatusCode)
	}

	textBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", metadata, fmt.Errorf("读取Tika响应失败: %w", err)
	}
	text := string(textBytes)

	metadata["text_length"] = len(text)
	metadata["ocr"] = usedOCR
	metadata["processing_duration_ms"] = time.Since(startTime).Milliseconds()

	if e.extractFullMetadata || e.extractMinimalMetadata {
		raw, err := e.extractMetadata(ctx, data, uri, contentType)
		if err != nil {
			e.logger.Warn().Err(err).Str("uri", uri).Msg("元数据提取失败，继续使用基本元数据")
		} else {
			for k, v := range raw {
				if e.extractFullMetadata || isImportantMetadata(k) {
					metadata[k] = v
				}
			}
		}
	}

	e.logger.Debug().
		Str("uri", uri).
		Int("text_length", len(text)).
		Bool("ocr", usedOCR).
		Dur("duration", time.Since(startTime)).
		Msg("Tika 文本提取完成")
	return text, metadata, nil
}

// extractMetadata 调用 /meta 取回 JSON 元数据
func (e *TikaExtractor) extractMetadata(ctx context.Context, data []byte, uri, contentType string) (map[string]interface{}, error) {
	req, err := e.newRequest(ctx, "/meta", data, uri, contentType, "application/json")
	if err != nil {
		return nil, err
	}

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送请求到Tika服务器失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tika服务器返回错误状态码: %d", resp.StatusCode)
	}

	var metadata map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("解析元数据JSON失败: %w", err)
	}
	return metadata, nil
}

func (e *TikaExtractor) newRequest(ctx context.Context, path string, data []byte, uri, contentType, accept string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.ServerURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", accept)
	if uri != "" {
		req.Header.Set(tikaHeaderResourceName, filepath.Base(uri))
	}
	return req, nil
}

func tikaContentType(uri string) string {
	return tikaContentTypes[strings.ToLower(filepath.Ext(uri))]
}

// 判断元数据字段是否重要
func isImportantMetadata(key string) bool {
	switch key {
	case "pdf:PDFVersion", "xmpTPg:NPages", "dcterms:created", "language",
		"dc:title", "Content-Type", "pdf:docinfo:title", "pdf:docinfo:created",
		"meta:page-count", "meta:word-count":
		return true
	}
	return false
}

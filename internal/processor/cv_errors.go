package processor

import (
	"errors"
	"fmt"
)

// 基础错误
var (
	ErrUnsupportedExtension  = errors.New("不支持的文件扩展名")
	ErrExtractionFailed      = errors.New("提取简历文本失败")
	ErrStructuredParseFailed = errors.New("简历结构化解析失败")
	ErrEmptyBatch            = errors.New("上传批次中没有文件")
	ErrStoreDocumentFailed   = errors.New("保存原始文档失败")
	ErrRecordDocumentFailed  = errors.New("保存文档记录失败")
)

// CVProcessError 带文件名和操作的处理错误
type CVProcessError struct {
	Filename string
	Op       string
	BaseErr  error
	Detail   string
}

func (e *CVProcessError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s (操作:%s, 文件:%s): %s", e.BaseErr, e.Op, e.Filename, e.Detail)
	}
	return fmt.Sprintf("%s (操作:%s, 文件:%s)", e.BaseErr, e.Op, e.Filename)
}

func (e *CVProcessError) Unwrap() error {
	return e.BaseErr
}

// Is 实现 errors.Is 接口以支持错误比较
func (e *CVProcessError) Is(target error) bool {
	return errors.Is(e.BaseErr, target)
}

func NewUnsupportedExtensionError(filename, ext string) error {
	return &CVProcessError{Filename: filename, Op: "validate", BaseErr: ErrUnsupportedExtension, Detail: ext}
}

func NewExtractionError(filename string, cause error) error {
	return &CVProcessError{Filename: filename, Op: "extract", BaseErr: ErrExtractionFailed, Detail: causeDetail(cause)}
}

func NewStructuredParseError(filename string, cause error) error {
	return &CVProcessError{Filename: filename, Op: "parse", BaseErr: ErrStructuredParseFailed, Detail: causeDetail(cause)}
}

func NewStoreError(filename string, cause error) error {
	return &CVProcessError{Filename: filename, Op: "store", BaseErr: ErrStoreDocumentFailed, Detail: causeDetail(cause)}
}

func NewRecordError(filename string, cause error) error {
	return &CVProcessError{Filename: filename, Op: "record", BaseErr: ErrRecordDocumentFailed, Detail: causeDetail(cause)}
}

func causeDetail(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}

// WarningKind 单个文件被跳过或降级的原因
type WarningKind string

const (
	WarningUnsupportedExtension WarningKind = "UnsupportedExtension"
	WarningExtractionFailure    WarningKind = "ExtractionFailure"
	WarningStructuredParse      WarningKind = "StructuredParseFailure"
)

// Warning 批次内针对单个文件的警告，批次本身继续处理
type Warning struct {
	Filename string      `json:"filename"`
	Kind     WarningKind `json:"kind"`
	Message  string      `json:"message"`
	Err      error       `json:"-"`
}

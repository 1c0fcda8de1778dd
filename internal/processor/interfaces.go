package processor

import (
	"context"

	"cv-agent-go/internal/types"
)

// TextExtractor 从文档字节中提取纯文本
//   - uri: 资源标识，用于日志和元数据，通常是原始文件名
//   - options: 实现相关的解析选项，可以为 nil
type TextExtractor interface {
	ExtractTextFromBytes(ctx context.Context, data []byte, uri string, options interface{}) (string, map[string]interface{}, error)
}

// RecordBuilder 把简历原文转换为 CVRecord
// 正则策略永远成功；LLM 策略在模型输出无法解析时返回错误
type RecordBuilder interface {
	BuildRecord(ctx context.Context, text string) (*types.CVRecord, error)
	Strategy() string
}

// DocumentStore 保存原始文档，返回稳定的引用
type DocumentStore interface {
	StoreDocument(ctx context.Context, documentID, fileExt string, data []byte) (string, error)
}

// DocumentRecorder 持久化文档及其处理结果
type DocumentRecorder interface {
	RecordDocument(ctx context.Context, doc *types.CVDocument) error
}

// EventPublisher 发布处理事件
type EventPublisher interface {
	PublishJSON(ctx context.Context, exchangeName, routingKey string, data interface{}, persistent bool) error
}

package processor

import (
	"time"

	"github.com/rs/zerolog"
)

// ProcessorOption CVProcessor 的配置选项
type ProcessorOption func(*CVProcessor)

func WithProcessorLogger(l zerolog.Logger) ProcessorOption {
	return func(p *CVProcessor) {
		p.logger = l
	}
}

// WithEvents 设置 DocumentProcessedEvent 的交换机和路由键，exchange 为空时不发布
func WithEvents(exchange, routingKey string) ProcessorOption {
	return func(p *CVProcessor) {
		p.eventsExchange = exchange
		p.processedRoutingKey = routingKey
	}
}

// WithClock 替换时间来源，测试中用于固定时间戳
func WithClock(now func() time.Time) ProcessorOption {
	return func(p *CVProcessor) {
		if now != nil {
			p.now = now
		}
	}
}

package storage

import "time"

// DocumentProcessedEvent 单个文件处理完成后发布，routing key 见 rabbitmq.processed_routing_key
type DocumentProcessedEvent struct {
	DocumentID       string    `json:"document_id"`
	BatchID          string    `json:"batch_id"`
	OriginalFilename string    `json:"original_filename"`
	StorageRef       string    `json:"storage_ref,omitempty"`
	Status           string    `json:"status"`
	ParserStrategy   string    `json:"parser_strategy"`
	TextLength       int       `json:"text_length"`
	Error            string    `json:"error,omitempty"`
	ProcessedAt      time.Time `json:"processed_at"`
}

// CorpusReplacedEvent 会话语料被整体替换时发布
type CorpusReplacedEvent struct {
	SessionID   string    `json:"session_id"`
	BatchID     string    `json:"batch_id"`
	RecordCount int       `json:"record_count"`
	TextLength  int       `json:"text_length"`
	ReplacedAt  time.Time `json:"replaced_at"`
}

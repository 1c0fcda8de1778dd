package constants

import "time"

const (
	// CorpusSeparator 语料中各文档原文之间的分隔符，对话提示词依赖这一格式
	CorpusSeparator = "\n\n####\n\n"

	// DefaultFallbackMessage 对话模型不可用时的默认回复
	DefaultFallbackMessage = "Sorry, I'm having trouble processing your request at the moment."

	// DocumentObjectPrefix 原始文档在对象存储中的目录
	DocumentObjectPrefix = "cv_documents"

	// DefaultSessionTTL 会话语料与对话记录的默认有效期
	DefaultSessionTTL = 24 * time.Hour
)

// 面向调用方的提示信息
const (
	MsgNoFilesSelected      = "No files were selected."
	MsgEmptyChatMessage     = "Please enter a message."
	MsgUnsupportedExtension = "Unsupported file extension for file %s. Skipping this file."
	MsgProcessingError      = "Error processing file %s: %v"
)

// AllowedExtensions 允许上传的文档扩展名（小写）
var AllowedExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
}

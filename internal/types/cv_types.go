package types

import "time"

// PersonalInfo 简历中的个人信息
// Name 为 nil 表示文本中没有任何非空行
type PersonalInfo struct {
	Emails []string `json:"emails"`
	Phones []string `json:"phones"`
	Name   *string  `json:"name,omitempty"`
}

// CVRecord 单份简历的结构化结果，创建后不再修改
type CVRecord struct {
	PersonalInfo   PersonalInfo `json:"personal_info"`
	Education      []string     `json:"education"`
	WorkExperience []string     `json:"work_experience"`
	Skills         []string     `json:"skills"`
	Projects       []string     `json:"projects"`
	Certifications []string     `json:"certifications"`
}

// Corpus 一次上传批次聚合出的会话语料
type Corpus struct {
	BatchID    string      `json:"batch_id"`
	JoinedText string      `json:"joined_text"` // 各文档原文按分隔符拼接，作为对话上下文
	Records    []*CVRecord `json:"records"`     // 仅包含解析成功的记录，保持上传顺序
	CreatedAt  time.Time   `json:"created_at"`
}

// Empty 语料中既没有文本也没有记录
func (c *Corpus) Empty() bool {
	return c == nil || (c.JoinedText == "" && len(c.Records) == 0)
}

// UploadedFile 一次上传中的单个文件
type UploadedFile struct {
	Filename string
	Data     []byte
}

// DocumentStatus 文档处理状态
type DocumentStatus string

const (
	DocumentStatusParsed           DocumentStatus = "PARSED"
	DocumentStatusParseFailed      DocumentStatus = "PARSE_FAILED"
	DocumentStatusExtractionFailed DocumentStatus = "EXTRACTION_FAILED"
)

// CVDocument 一份已接收的简历文档及其处理结果
type CVDocument struct {
	ID               string         `json:"id"`
	OriginalFilename string         `json:"original_filename"`
	FileExt          string         `json:"file_ext"`
	StorageRef       string         `json:"storage_ref,omitempty"`
	UploadedAt       time.Time      `json:"uploaded_at"`
	ExtractedText    string         `json:"extracted_text,omitempty"`
	ParsedData       *CVRecord      `json:"parsed_data,omitempty"`
	Status           DocumentStatus `json:"status"`
	ParserStrategy   string         `json:"parser_strategy"`
}

// ChatRole 对话角色
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatTurn 对话中的一条消息，用于接口输出
type ChatTurn struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

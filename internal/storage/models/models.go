package models

import (
	"encoding/json"
	"fmt"
	"time"

	"cv-agent-go/internal/types"

	"gorm.io/datatypes"
)

// CVDocument 已接收的简历文档及其处理结果
type CVDocument struct {
	DocumentID       string         `gorm:"type:char(36);primaryKey"`
	OriginalFilename string         `gorm:"type:varchar(255);not null"`
	FileExt          string         `gorm:"type:varchar(10);not null"`
	StorageRef       string         `gorm:"type:varchar(512)"`
	UploadedAt       time.Time      `gorm:"type:datetime(6);not null;index:idx_cv_documents_uploaded_at"`
	ExtractedText    string         `gorm:"type:longtext"`
	ParsedData       datatypes.JSON `gorm:"type:json"`
	Status           string         `gorm:"type:varchar(32);not null;index:idx_cv_documents_status"`
	ParserStrategy   string         `gorm:"type:varchar(16);not null"`
	CreatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt        time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (CVDocument) TableName() string {
	return "cv_documents"
}

// FromCVDocument 转换为数据库模型，ParsedData 为 nil 时写入 NULL
func FromCVDocument(doc *types.CVDocument) (*CVDocument, error) {
	m := &CVDocument{
		DocumentID:       doc.ID,
		OriginalFilename: doc.OriginalFilename,
		FileExt:          doc.FileExt,
		StorageRef:       doc.StorageRef,
		UploadedAt:       doc.UploadedAt,
		ExtractedText:    doc.ExtractedText,
		Status:           string(doc.Status),
		ParserStrategy:   doc.ParserStrategy,
	}
	if doc.ParsedData != nil {
		data, err := json.Marshal(doc.ParsedData)
		if err != nil {
			return nil, fmt.Errorf("序列化 parsed_data 失败: %w", err)
		}
		m.ParsedData = datatypes.JSON(data)
	}
	return m, nil
}

// ToCVDocument 转换为领域类型
func (m *CVDocument) ToCVDocument() (*types.CVDocument, error) {
	doc := &types.CVDocument{
		ID:               m.DocumentID,
		OriginalFilename: m.OriginalFilename,
		FileExt:          m.FileExt,
		StorageRef:       m.StorageRef,
		UploadedAt:       m.UploadedAt,
		ExtractedText:    m.ExtractedText,
		Status:           types.DocumentStatus(m.Status),
		ParserStrategy:   m.ParserStrategy,
	}
	if len(m.ParsedData) > 0 && string(m.ParsedData) != "null" {
		var record types.CVRecord
		if err := json.Unmarshal(m.ParsedData, &record); err != nil {
			return nil, fmt.Errorf("反序列化 parsed_data 失败: %w", err)
		}
		doc.ParsedData = &record
	}
	return doc, nil
}

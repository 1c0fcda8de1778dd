package cvparser

import (
	"context"

	"cv-agent-go/internal/types"
)

// StrategyName 正则策略在配置与持久化中使用的名称
const StrategyName = "regex"

// BuildRecord 对同一段文本依次运行六个字段解析器
// 纯函数，同样的输入总是得到相同的结果
func BuildRecord(text string) *types.CVRecord {
	return &types.CVRecord{
		PersonalInfo:   ParsePersonalInfo(text),
		Education:      ParseEducation(text),
		WorkExperience: ParseWorkExperience(text),
		Skills:         ParseSkills(text),
		Projects:       ParseProjects(text),
		Certifications: ParseCertifications(text),
	}
}

// RegexRecordBuilder 将 BuildRecord 适配为处理器使用的记录构建器
type RegexRecordBuilder struct{}

// NewRegexRecordBuilder 创建正则记录构建器
func NewRegexRecordBuilder() *RegexRecordBuilder {
	return &RegexRecordBuilder{}
}

// BuildRecord 该策略不会失败
func (RegexRecordBuilder) BuildRecord(_ context.Context, text string) (*types.CVRecord, error) {
	return BuildRecord(text), nil
}

// Strategy 返回策略名称
func (RegexRecordBuilder) Strategy() string {
	return StrategyName
}

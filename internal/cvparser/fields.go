package cvparser

import (
	"regexp"
	"strings"

	"cv-agent-go/internal/types"
)

// 章节标题别名，顺序即匹配优先级
var (
	EducationHeadings      = []string{"Education"}
	WorkExperienceHeadings = []string{"Experience", "Work Experience"}
	SkillsHeadings         = []string{"Skills"}
	ProjectsHeadings       = []string{"Projects"}
	CertificationHeadings  = []string{"Certifications"}
)

var (
	// emailPattern 注意 TLD 字符类里的 '|' 会被当作普通字符，与历史行为保持一致
	emailPattern = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`)
	// phonePattern 可选 1-3 位国家码，随后是 3-3-4 位数字，分隔符为 - . 或空白
	phonePattern = regexp.MustCompile(`\b(?:\+?(\d{1,3})[-.\s]?)?(\d{3})[-.\s]?(\d{3})[-.\s]?(\d{4})\b`)
)

// ParsePersonalInfo 提取邮箱、电话和姓名（全文第一行非空文本）
func ParsePersonalInfo(text string) types.PersonalInfo {
	info := types.PersonalInfo{
		Emails: emailPattern.FindAllString(text, -1),
		Phones: []string{},
	}
	if info.Emails == nil {
		info.Emails = []string{}
	}

	for _, m := range phonePattern.FindAllStringSubmatch(text, -1) {
		// 未参与匹配的分组为空串，直接拼接即可
		info.Phones = append(info.Phones, strings.Join(m[1:], ""))
	}

	for _, line := range strings.Split(text, "\n") {
		if name := trimBlank(line); name != "" {
			info.Name = &name
			break
		}
	}
	return info
}

// ParseEducation 解析 Education 章节
func ParseEducation(text string) []string {
	return sectionLines(text, EducationHeadings...)
}

// ParseWorkExperience 解析 Experience / Work Experience 章节
func ParseWorkExperience(text string) []string {
	return sectionLines(text, WorkExperienceHeadings...)
}

// ParseSkills 解析 Skills 章节，逗号和换行都作为分隔符
func ParseSkills(text string) []string {
	body, ok := FindSection(text, SkillsHeadings...)
	if !ok {
		return []string{}
	}
	return splitNonBlank(body, ",\n")
}

// ParseProjects 解析 Projects 章节
func ParseProjects(text string) []string {
	return sectionLines(text, ProjectsHeadings...)
}

// ParseCertifications 解析 Certifications 章节
func ParseCertifications(text string) []string {
	return sectionLines(text, CertificationHeadings...)
}

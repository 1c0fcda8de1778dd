package cvparser

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCV = `Jane Doe
jane.doe@example.com
555-123-4567

Education
BSc Computer Science, MIT
MSc Data Science, Stanford

Work Experience
Acme Corp - Backend Engineer
Globex - Intern

Skills
Go, Python
SQL

Projects
CV Parser

Certifications
AWS Certified Developer
`

func TestFindSection(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		headings []string
		want     string
		found    bool
	}{
		{
			name:     "遇到第一个空行即停止",
			text:     "Education\nMSc CS\n\nProjects\nParser",
			headings: []string{"Education"},
			want:     "MSc CS",
			found:    true,
		},
		{
			name:     "标题大小写不敏感",
			text:     "EDUCATION\nBSc Physics",
			headings: []string{"Education"},
			want:     "BSc Physics",
			found:    true,
		},
		{
			name:     "没有空行时延伸到文本结尾",
			text:     "Projects\nA\nB",
			headings: []string{"Projects"},
			want:     "A\nB",
			found:    true,
		},
		{
			name:     "仅含空白的空行也算边界",
			text:     "Projects\nA\n \t\nB",
			headings: []string{"Projects"},
			want:     "A",
			found:    true,
		},
		{
			name:     "标题后同一行的文字属于正文",
			text:     "Skills: Go, Rust",
			headings: []string{"Skills"},
			want:     ": Go, Rust",
			found:    true,
		},
		{
			name:     "不锚定行首，句中出现的标题词会先被匹配",
			text:     "I value education deeply.\n\nEducation\nMSc",
			headings: []string{"Education"},
			want:     "deeply.",
			found:    true,
		},
		{
			name:     "未找到章节",
			text:     "Jane Doe\nNothing here",
			headings: []string{"Certifications"},
			found:    false,
		},
		{
			name:     "没有提供标题",
			text:     "Education\nBSc",
			headings: nil,
			found:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FindSection(tt.text, tt.headings...)
			assert.Equal(t, tt.found, ok, "是否找到章节与预期不符")
			assert.Equal(t, tt.want, got, "章节正文与预期不符")
		})
	}
}

func TestFindSection_AliasOrder(t *testing.T) {
	// 最左侧的出现位置优先，而不是更长的别名优先
	body, ok := FindSection("Experience with Go\n\nWork Experience\nAcme", WorkExperienceHeadings...)
	require.True(t, ok)
	assert.Equal(t, "with Go", body)

	body, ok = FindSection("Work Experience\nAcme Corp\nDev", WorkExperienceHeadings...)
	require.True(t, ok)
	assert.Equal(t, "Acme Corp\nDev", body, "行首的 Work Experience 应作为整体匹配")
}

func TestParsePersonalInfo(t *testing.T) {
	t.Run("邮箱按出现顺序提取并保留重复", func(t *testing.T) {
		info := ParsePersonalInfo("x a@x.com, then b@y.org and again a@x.com")
		assert.Equal(t, []string{"a@x.com", "b@y.org", "a@x.com"}, info.Emails)
	})

	t.Run("多级域名邮箱", func(t *testing.T) {
		info := ParsePersonalInfo("contact: john.doe@mail.example.co.uk")
		assert.Equal(t, []string{"john.doe@mail.example.co.uk"}, info.Emails)
	})

	t.Run("电话号码拼接为数字串", func(t *testing.T) {
		info := ParsePersonalInfo("Call +1 555-123-4567 or 555.987.6543")
		assert.Equal(t, []string{"15551234567", "5559876543"}, info.Phones)
	})

	t.Run("姓名取第一行非空文本", func(t *testing.T) {
		info := ParsePersonalInfo("\n\n   Jane Doe  \nEngineer")
		require.NotNil(t, info.Name)
		assert.Equal(t, "Jane Doe", *info.Name)
	})

	t.Run("空文本没有姓名且列表为空", func(t *testing.T) {
		info := ParsePersonalInfo(" \n\t\n")
		assert.Nil(t, info.Name, "全是空行时不应有姓名")
		assert.NotNil(t, info.Emails)
		assert.NotNil(t, info.Phones)
		assert.Empty(t, info.Emails)
		assert.Empty(t, info.Phones)
	})
}

func TestParseSkills(t *testing.T) {
	assert.Equal(t, []string{"Python", "Go", "Rust"}, ParseSkills("Skills\nPython, Go\nRust"))
	assert.Equal(t, []string{": Go", "Rust"}, ParseSkills("Skills: Go, Rust"))
	assert.Equal(t, []string{"Go", "Go"}, ParseSkills("Skills\nGo,,Go,\n"), "重复项不去重，空项被丢弃")
}

func TestListParsers_MissingSection(t *testing.T) {
	text := "Jane Doe\njane@example.com"
	parsers := map[string]func(string) []string{
		"education":       ParseEducation,
		"work_experience": ParseWorkExperience,
		"skills":          ParseSkills,
		"projects":        ParseProjects,
		"certifications":  ParseCertifications,
	}
	for name, parse := range parsers {
		got := parse(text)
		assert.NotNil(t, got, "%s 缺失时应返回空列表而不是 nil", name)
		assert.Empty(t, got, "%s 缺失时应返回空列表", name)
	}
}

func TestParseEducation_DropsBlankLines(t *testing.T) {
	got := ParseEducation("Education   \n   BSc  \n\t\n")
	assert.Equal(t, []string{"BSc"}, got)
}

func TestFindSection_UnicodeBlankLine(t *testing.T) {
	blanks := map[string]string{
		"不换行空格": "\u00a0",
		"全角空格":  "\u3000",
		"垂直制表符": "\v",
		"行分隔符":  "\u2028",
		"混合空白":  " \u00a0\t",
		"信息分隔符": "\x1c",
	}
	for name, blank := range blanks {
		t.Run(name, func(t *testing.T) {
			text := "Education\nMSc CS\n" + blank + "\nProjects\nParser"
			assert.Equal(t, []string{"MSc CS"}, ParseEducation(text), "仅含空白的行应结束章节")
			assert.Equal(t, []string{"Parser"}, ParseProjects(text))
		})
	}

	info := ParsePersonalInfo("\u00a0\u3000\n\u00a0Jane Doe\u3000\n")
	require.NotNil(t, info.Name)
	assert.Equal(t, "Jane Doe", *info.Name, "姓名两端的 Unicode 空白应被去掉")
}

func TestBuildRecord(t *testing.T) {
	record := BuildRecord(sampleCV)
	require.NotNil(t, record)

	require.NotNil(t, record.PersonalInfo.Name)
	assert.Equal(t, "Jane Doe", *record.PersonalInfo.Name)
	assert.Equal(t, []string{"jane.doe@example.com"}, record.PersonalInfo.Emails)
	assert.Equal(t, []string{"5551234567"}, record.PersonalInfo.Phones)

	assert.Equal(t, []string{"BSc Computer Science, MIT", "MSc Data Science, Stanford"}, record.Education)
	assert.Equal(t, []string{"Acme Corp - Backend Engineer", "Globex - Intern"}, record.WorkExperience)
	assert.Equal(t, []string{"Go", "Python", "SQL"}, record.Skills)
	assert.Equal(t, []string{"CV Parser"}, record.Projects)
	assert.Equal(t, []string{"AWS Certified Developer"}, record.Certifications)
}

func TestBuildRecord_Idempotent(t *testing.T) {
	first := BuildRecord(sampleCV)
	second := BuildRecord(sampleCV)
	assert.Equal(t, first, second, "同样的文本应得到相同的记录")
}

func TestRegexRecordBuilder(t *testing.T) {
	builder := NewRegexRecordBuilder()
	record, err := builder.BuildRecord(context.Background(), "")
	require.NoError(t, err, "正则策略不应返回错误")
	require.NotNil(t, record)
	assert.Nil(t, record.PersonalInfo.Name)
	assert.Empty(t, record.Skills)
	assert.Equal(t, StrategyName, builder.Strategy())
}

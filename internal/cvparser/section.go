// Package cvparser 基于正则启发式把简历原文解析为 CVRecord
//
// 章节定位不锚定行首：标题词在正文中更早出现时会被当作章节起点。
// 这是已知的启发式局限，调用方不应依赖它被修正。
package cvparser

import (
	"regexp"
	"strings"
	"sync"
	"unicode"
)

// blankClass 与 Unicode 空白一致的字符类，RE2 的 \s 只覆盖 ASCII
// 包含 \v、U+001C..U+001F、U+0085 以及 Z 类（NBSP、U+3000、U+2028 等）
const blankClass = `[\t\n\v\f\r \x{1c}-\x{1f}\x{85}\p{Z}]`

// sectionTerminator 章节正文的结束边界：第一个空行（可含空白字符）或文本结尾
const sectionTerminator = `(?:\n` + blankClass + `*\n|\z)`

var (
	sectionPatternsMu sync.RWMutex
	sectionPatterns   = make(map[string]*regexp.Regexp)
)

// sectionPattern 按别名顺序构造并缓存章节正则
// 别名之间的先后顺序就是交替匹配的优先顺序，不做重排
func sectionPattern(headings []string) *regexp.Regexp {
	key := strings.Join(headings, "\x00")

	sectionPatternsMu.RLock()
	re, ok := sectionPatterns[key]
	sectionPatternsMu.RUnlock()
	if ok {
		return re
	}

	quoted := make([]string, 0, len(headings))
	for _, h := range headings {
		quoted = append(quoted, regexp.QuoteMeta(h))
	}
	head := quoted[0]
	if len(quoted) > 1 {
		head = "(?:" + strings.Join(quoted, "|") + ")"
	}
	re = regexp.MustCompile(`(?is)` + head + `(.*?)` + sectionTerminator)

	sectionPatternsMu.Lock()
	sectionPatterns[key] = re
	sectionPatternsMu.Unlock()
	return re
}

// FindSection 在 text 中查找第一个匹配任一别名的章节，返回去掉首尾空白的正文
// 未找到时第二个返回值为 false
func FindSection(text string, headings ...string) (string, bool) {
	if len(headings) == 0 {
		return "", false
	}
	m := sectionPattern(headings).FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return trimBlank(m[1]), true
}

// isBlank 判断是否为空白字符，范围与 blankClass 相同
func isBlank(r rune) bool {
	return unicode.IsSpace(r) || unicode.In(r, unicode.Z) || (r >= 0x1c && r <= 0x1f)
}

func trimBlank(s string) string {
	return strings.TrimFunc(s, isBlank)
}

// sectionLines 章节正文按行切分，去除空白行
func sectionLines(text string, headings ...string) []string {
	body, ok := FindSection(text, headings...)
	if !ok {
		return []string{}
	}
	return splitNonBlank(body, "\n")
}

// splitNonBlank 按任一分隔符切分并裁剪，丢弃空项，结果不为 nil
func splitNonBlank(s string, separators string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return strings.ContainsRune(separators, r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if t := trimBlank(f); t != "" {
			out = append(out, t)
		}
	}
	return out
}

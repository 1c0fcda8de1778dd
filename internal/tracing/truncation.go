package tracing

import (
	"strings"
)

const (
	// DefaultMaxLength 默认最大属性长度
	DefaultMaxLength = 200

	// MaxSQLLength SQL语句最大长度
	MaxSQLLength = 500

	// MaxRedisLength Redis键最大长度
	MaxRedisLength = 100
)

// 属性名按 . 切分后任一段等于这些关键字时，值按个人信息处理
var maskPIIKeywords = map[string]struct{}{
	"email": {}, "phone": {}, "name": {}, "姓名": {}, "address": {}, "地址": {},
	"query": {}, "message": {}, "secret": {}, "token": {}, "api_key": {},
}

// SafeAttributeValue 敏感属性做掩码，其余按 maxLength 截断
// cv.email、chat.query 会被掩码，cv.filename 不会
func SafeAttributeValue(name string, value string, maxLength int) string {
	for _, segment := range strings.Split(strings.ToLower(name), ".") {
		if _, ok := maskPIIKeywords[segment]; ok {
			return MaskPII(value)
		}
	}
	return TruncateString(value, maxLength)
}

// MaskPII 保留首尾少量字符，其余替换为 *
//
//	"张三" -> "张*"
//	"13812345678" -> "13*******78"
func MaskPII(value string) string {
	runes := []rune(value)
	n := len(runes)
	switch {
	case n == 0:
		return ""
	case n == 1:
		return "*"
	case n == 2:
		return string(runes[0]) + "*"
	case n <= 4:
		return string(runes[0]) + strings.Repeat("*", n-2) + string(runes[n-1])
	}
	return string(runes[:2]) + strings.Repeat("*", n-4) + string(runes[n-2:])
}

// TruncateString 超长时保留首尾，中间用 ... 连接
func TruncateString(s string, maxLength int) string {
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	if maxLength <= 3 {
		return string(runes[:maxLength])
	}

	half := (maxLength - 3) / 2
	if half < 1 {
		half = 1
	}
	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}

func SafeSQL(sql string) string { return TruncateString(sql, MaxSQLLength) }

func SafeRedisKey(key string) string { return TruncateString(key, MaxRedisLength) }

package agent

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

var (
	// ErrTransient 可重试的模型调用失败：超时、连接中断、限流或服务端 5xx
	ErrTransient = errors.New("模型服务暂时不可用")
	// ErrEmptyReply 模型返回了空内容
	ErrEmptyReply = errors.New("模型返回空回复")
)

// APIStatusError 模型 HTTP 接口返回了非 200 状态码
type APIStatusError struct {
	StatusCode int
	Body       string
}

func (e *APIStatusError) Error() string {
	return fmt.Sprintf("API 请求失败，状态码 %d: %s", e.StatusCode, e.Body)
}

// AnswerError 对话调用失败，Transient 为 true 时 errors.Is(err, ErrTransient) 成立
type AnswerError struct {
	Transient bool
	Err       error
}

func (e *AnswerError) Error() string {
	if e.Transient {
		return fmt.Sprintf("对话调用暂时失败: %v", e.Err)
	}
	return fmt.Sprintf("对话调用失败: %v", e.Err)
}

func (e *AnswerError) Unwrap() error {
	return e.Err
}

func (e *AnswerError) Is(target error) bool {
	return target == ErrTransient && e.Transient
}

// IsTransient 判断错误是否值得重试
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var statusErr *APIStatusError
	if errors.As(err, &statusErr) {
		return retryableStatus(statusErr.StatusCode)
	}
	var genaiErr genai.APIError
	if errors.As(err, &genaiErr) {
		return retryableStatus(genaiErr.Code)
	}
	var genaiErrPtr *genai.APIError
	if errors.As(err, &genaiErrPtr) {
		return retryableStatus(genaiErrPtr.Code)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "EOF")
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

/**
 * 记录库错误分类
 * @author: sun977
 * @date: 2026.08.15
 * @description: DefectDojo API 错误的分级处理策略
 * @func: ErrAuth、ErrNotFound、APIError
 */
package dojo

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth 认证失败 (401/403)
	// Token 在一次运行中不变，该错误必须中止整个运行
	ErrAuth = errors.New("dojo: authentication failed")

	// ErrNotFound 查询对象不存在 (404)
	// 查找类接口把它翻译为"未找到"，允许未命中即创建
	ErrNotFound = errors.New("dojo: not found")
)

// APIError 非 2xx 响应
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > 500 {
		body = body[:500]
	}
	return fmt.Sprintf("dojo: api error %d: %s", e.StatusCode, body)
}

// Transient 判断错误是否可重试 (429 限流或 5xx 服务端错误)
func (e *APIError) Transient() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// classifyStatus 将 HTTP 状态码映射到错误分级
func classifyStatus(status int, body string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 401 || status == 403:
		return fmt.Errorf("%w (status %d)", ErrAuth, status)
	case status == 404:
		return ErrNotFound
	default:
		return &APIError{StatusCode: status, Body: body}
	}
}

// IsTransient 判断任意错误是否为可重试的瞬时错误
func IsTransient(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Transient()
}

package errors

import (
	"errors"
	"fmt"
)

// AppError 应用错误类型
// 用于统一管理业务错误，包含错误码和错误消息
type AppError struct {
	Code    int    // 错误码
	Message string // 用户可见的错误消息
	Err     error  // 原始错误（可选，用于调试）
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 支持 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewError 创建新错误
func NewError(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap 包装原始错误
func (e *AppError) Wrap(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// Is 判断是否为指定错误
func Is(err error, target *AppError) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == target.Code
	}
	return false
}

// GetCode 获取错误码，如果不是 AppError 返回默认错误码
func GetCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeServerError
}

// GetMessage 获取错误消息
func GetMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "服务器内部错误"
}

// IsRetryable 判断错误是否可重试（瞬时 I/O 类错误）
func IsRetryable(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == CodeStoreUnavailable || appErr.Code == CodeFeedUnavailable
	}
	return false
}

// ============== 错误码定义 ==============

const (
	CodeSuccess = 0

	// 会话相关 20000-20999
	CodeConversationNotFound = 20001
	CodeConversationUnusable = 20002
	CodeSelfConversation     = 20003
	CodeNotParticipant       = 20004

	// 消息相关 21000-21999
	CodeMessageNotFound = 21001
	CodeSendFailed      = 21002
	CodeEmptyMessage    = 21003

	// 认证相关 22000-22999
	CodeTokenInvalid = 22001
	CodeTokenExpired = 22002

	// 系统错误 50000-50999
	CodeServerError      = 50001
	CodeStoreUnavailable = 50002
	CodeFeedUnavailable  = 50003
)

// ============== 预定义错误 ==============

// 会话相关
var (
	ErrConversationNotFound = NewError(CodeConversationNotFound, "会话不存在")
	ErrConversationUnusable = NewError(CodeConversationUnusable, "会话创建不完整，请重试")
	ErrSelfConversation     = NewError(CodeSelfConversation, "不能和自己创建会话")
	ErrNotParticipant       = NewError(CodeNotParticipant, "用户不是会话成员")
)

// 消息相关
var (
	ErrMessageNotFound = NewError(CodeMessageNotFound, "消息不存在")
	ErrSendFailed      = NewError(CodeSendFailed, "消息发送失败")
	ErrEmptyMessage    = NewError(CodeEmptyMessage, "消息内容不能为空")
)

// 认证相关
var (
	ErrTokenInvalid = NewError(CodeTokenInvalid, "Token 无效")
	ErrTokenExpired = NewError(CodeTokenExpired, "Token 已过期")
)

// 系统相关
var (
	ErrServerError      = NewError(CodeServerError, "服务器内部错误")
	ErrStoreUnavailable = NewError(CodeStoreUnavailable, "存储服务暂不可用")
	ErrFeedUnavailable  = NewError(CodeFeedUnavailable, "通知服务暂不可用")
)

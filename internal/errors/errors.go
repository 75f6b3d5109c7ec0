// Package errors 带错误码的应用错误，错误码决定 HTTP 状态和对外的错误分类
package errors

import (
	"errors"
	"net/http"
	"strings"
)

// ErrorCode 错误代码
type ErrorCode int

const (
	ErrCodeInternalError ErrorCode = iota
	ErrCodeBadRequest
	ErrCodeNotFound
	ErrCodeDatabaseError
	ErrCodeConfigMissing
	ErrCodeConfigInvalid
	ErrCodeConfigConflict
)

var codeTable = map[ErrorCode]struct {
	name   string
	status int
}{
	ErrCodeInternalError:  {"internal_error", http.StatusInternalServerError},
	ErrCodeBadRequest:     {"bad_request", http.StatusBadRequest},
	ErrCodeNotFound:       {"not_found", http.StatusNotFound},
	ErrCodeDatabaseError:  {"database_error", http.StatusServiceUnavailable},
	ErrCodeConfigMissing:  {"configuration_missing", http.StatusNotFound},
	ErrCodeConfigInvalid:  {"configuration_invalid", http.StatusBadRequest},
	ErrCodeConfigConflict: {"configuration_conflict", http.StatusConflict},
}

func (c ErrorCode) String() string {
	if info, ok := codeTable[c]; ok {
		return info.name
	}
	return "unknown"
}

// HTTPStatus 错误码对应的 HTTP 状态，未知错误码为 500
func (c ErrorCode) HTTPStatus() int {
	if info, ok := codeTable[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// AppError 应用错误；Field 指向出错的输入字段或文件
type AppError struct {
	Code    ErrorCode
	Message string
	Field   string
	Err     error
}

func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	if e.Field != "" {
		b.WriteString(" (" + e.Field + ")")
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *AppError) Unwrap() error { return e.Err }

// Is 错误码相同即视为同类，供 errors.Is 使用
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t != nil && t.Code == e.Code
}

// HTTPStatus 返回对应的HTTP状态码
func (e *AppError) HTTPStatus() int { return e.Code.HTTPStatus() }

// NewError 创建新错误
func NewError(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// NewErrorWithErr 创建带底层错误的错误
func NewErrorWithErr(code ErrorCode, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Err: err}
}

// NewFieldError 创建指向某个字段的错误
func NewFieldError(code ErrorCode, field, message string) *AppError {
	return &AppError{Code: code, Message: message, Field: field}
}

// WrapError 用新的错误码和消息包装 err，保留原错误的字段；err 为 nil 时返回 nil
func WrapError(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Field: FieldOf(err), Err: err}
}

// 各错误码的哨兵值，用于 Is 判断
var (
	ErrInternalError  = NewError(ErrCodeInternalError, "Internal server error")
	ErrBadRequest     = NewError(ErrCodeBadRequest, "Bad request")
	ErrNotFound       = NewError(ErrCodeNotFound, "Resource not found")
	ErrDatabaseError  = NewError(ErrCodeDatabaseError, "Database error")
	ErrConfigMissing  = NewError(ErrCodeConfigMissing, "Configuration missing")
	ErrConfigInvalid  = NewError(ErrCodeConfigInvalid, "Configuration invalid")
	ErrConfigConflict = NewError(ErrCodeConfigConflict, "Configuration conflict")
)

// Is 错误链中是否有与 target 错误码相同的 AppError
func Is(err error, target *AppError) bool {
	if err == nil || target == nil {
		return false
	}
	return errors.Is(err, target)
}

// CodeOf 错误链中第一个 AppError 的错误码，没有时为 ErrCodeInternalError
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// FieldOf 返回错误链中第一个携带字段名的 AppError 的字段
func FieldOf(err error) string {
	for current := err; current != nil; current = errors.Unwrap(current) {
		if appErr, ok := current.(*AppError); ok && appErr.Field != "" {
			return appErr.Field
		}
	}
	return ""
}

// StatusOf 返回错误对应的HTTP状态码，非 AppError 一律 500
func StatusOf(err error) int {
	return CodeOf(err).HTTPStatus()
}

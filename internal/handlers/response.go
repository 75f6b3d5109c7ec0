package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/gonglijing/biodataBridge/internal/errors"
	"github.com/gorilla/mux"
)

// maxBodyBytes 请求体上限
const maxBodyBytes = 1 << 20

// APIResponse /api 接口的统一响应
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
	Field   string      `json:"field,omitempty"`
	Message string      `json:"message,omitempty"`
}

// WriteJSON 写 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 200 {"success": true, "data": ...}
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}

// WriteCreated 201 {"success": true, "data": ...}
func WriteCreated(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusCreated, APIResponse{Success: true, Data: data})
}

// WriteError 失败响应
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, APIResponse{Error: message})
}

func WriteBadRequest(w http.ResponseWriter, message string)   { WriteError(w, http.StatusBadRequest, message) }
func WriteUnauthorized(w http.ResponseWriter, message string) { WriteError(w, http.StatusUnauthorized, message) }
func WriteNotFound(w http.ResponseWriter, message string)     { WriteError(w, http.StatusNotFound, message) }
func WriteServerError(w http.ResponseWriter, message string)  { WriteError(w, http.StatusInternalServerError, message) }

// WriteAppError 按错误码写 APIResponse，内部错误不暴露底层原因
func WriteAppError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	WriteJSON(w, code.HTTPStatus(), APIResponse{
		Error: publicMessage(err),
		Code:  code.String(),
		Field: apperrors.FieldOf(err),
	})
}

// plainError 设备-植物接口的错误格式 {"error": "..."}
type plainError struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writePlainError(w http.ResponseWriter, err error) {
	WriteJSON(w, apperrors.StatusOf(err), plainError{
		Error: publicMessage(err),
		Field: apperrors.FieldOf(err),
	})
}

// publicMessage AppError 的消息；其他错误只给出状态文本
func publicMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return http.StatusText(apperrors.StatusOf(err))
}

// decodeJSONBody 读取 JSON 请求体；空请求体返回 nil, nil
func decodeJSONBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, apperrors.NewErrorWithErr(apperrors.ErrCodeBadRequest, "failed to read request body", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}
	return data, nil
}

// pathVar 路由参数，去除首尾空白
func pathVar(r *http.Request, name string) string {
	return strings.TrimSpace(mux.Vars(r)[name])
}

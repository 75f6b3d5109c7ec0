package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gonglijing/biodataBridge/internal/auth"
)

// ==================== 认证相关 ====================

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult 登录成功返回的令牌
type LoginResult struct {
	Token   string            `json:"token"`
	Session *auth.SessionInfo `json:"session"`
}

// Login 处理登录，支持 JSON 与表单；同一来源连续失败后暂时封禁
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if blocked, remaining := h.limiter.BlockStatus(ip); blocked {
		w.Header().Set("Retry-After", retryAfterSeconds(remaining))
		WriteError(w, http.StatusTooManyRequests, errTooManyAttemptsMessage)
		return
	}

	var req loginRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteBadRequest(w, errInvalidRequestBodyPrefix+err.Error())
			return
		}
	} else {
		_ = r.ParseForm()
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		WriteBadRequest(w, errCredentialsRequiredMessage)
		return
	}

	token, session, err := h.auth.Login(w, strings.TrimSpace(req.Username), req.Password)
	switch {
	case errors.Is(err, auth.ErrLoginDisabled):
		WriteError(w, http.StatusForbidden, errLoginDisabledMessage)
		return
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.limiter.RecordFailure(ip)
		h.log.Warn("Login failed", "username", req.Username, "ip", ip)
		WriteUnauthorized(w, errInvalidCredentialsMessage)
		return
	case err != nil:
		h.log.Error("Login failed", err, "username", req.Username)
		WriteServerError(w, "failed to issue token")
		return
	}

	h.limiter.RecordSuccess(ip)
	h.log.Info("Login succeeded", "username", session.Username, "ip", ip)
	WriteSuccess(w, LoginResult{Token: token, Session: session})
}

// Logout 登出，清除 Cookie
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout(w)
	WriteSuccess(w, nil)
}

// Session 当前会话
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		WriteUnauthorized(w, "not authenticated")
		return
	}
	WriteSuccess(w, session)
}

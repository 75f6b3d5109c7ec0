package auth

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gonglijing/biodataBridge/internal/logger"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrLoginDisabled      = errors.New("login disabled: admin password hash not configured")
)

const (
	defaultCookieName = "biodata_jwt"
	defaultTokenTTL   = 24 * time.Hour
	minSecretLength   = 16

	// RoleAdmin 管理员角色
	RoleAdmin = "admin"
)

// Claims JWT 载荷
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// SessionInfo 会话信息
type SessionInfo struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Options 认证参数
type Options struct {
	Secret        []byte
	TokenTTL      time.Duration
	AdminUser     string
	AdminPassHash string
	Now           func() time.Time
}

// JWTManager 管理 JWT 签发与验证（HS256）
type JWTManager struct {
	secret     []byte
	ttl        time.Duration
	cookieName string
	adminUser  string
	adminHash  string
	now        func() time.Time
}

type sessionInfoContextKey struct{}

// NewJWTManager 创建管理器；密钥过短时使用随机密钥，重启后旧令牌失效
func NewJWTManager(opts Options) *JWTManager {
	secret := opts.Secret
	if len(secret) < minSecretLength {
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			panic(err)
		}
		logger.Warn("JWT secret not configured or too short, using a random secret")
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	user := strings.TrimSpace(opts.AdminUser)
	if user == "" {
		user = "admin"
	}
	return &JWTManager{
		secret:     secret,
		ttl:        ttl,
		cookieName: defaultCookieName,
		adminUser:  user,
		adminHash:  strings.TrimSpace(opts.AdminPassHash),
		now:        now,
	}
}

// LoginEnabled 是否配置了管理员密码
func (m *JWTManager) LoginEnabled() bool {
	return m.adminHash != ""
}

// Login 校验管理员账号，成功后写 Cookie 并返回令牌
func (m *JWTManager) Login(w http.ResponseWriter, username, password string) (string, *SessionInfo, error) {
	if !m.LoginEnabled() {
		return "", nil, ErrLoginDisabled
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(m.adminUser)) == 1
	passOK := Compare(password, m.adminHash)
	if !userOK || !passOK {
		return "", nil, ErrInvalidCredentials
	}

	token, info, err := m.GenerateToken(m.adminUser, RoleAdmin)
	if err != nil {
		return "", nil, err
	}
	if w != nil {
		m.setCookie(w, token)
	}
	return token, info, nil
}

// Logout 清除 Cookie
func (m *JWTManager) Logout(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// GenerateToken 签发令牌
func (m *JWTManager) GenerateToken(username, role string) (string, *SessionInfo, error) {
	now := m.now()
	exp := now.Add(m.ttl)
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, err
	}
	return token, &SessionInfo{Username: username, Role: role, ExpiresAt: exp.Truncate(time.Second)}, nil
}

// ParseToken 解析并验证令牌，只接受 HS256
func (m *JWTManager) ParseToken(tokenStr string) (*SessionInfo, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidCredentials
			}
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidCredentials
	}

	info := &SessionInfo{Username: claims.Subject, Role: claims.Role}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info, nil
}

// GetSession 从 Authorization Bearer 或 Cookie 获取会话；未携带令牌时返回 nil, nil
func (m *JWTManager) GetSession(r *http.Request) (*SessionInfo, error) {
	tokenStr := extractToken(r, m.cookieName)
	if tokenStr == "" {
		return nil, nil
	}
	return m.ParseToken(tokenStr)
}

// RequireAuth 需要认证中间件
func (m *JWTManager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := m.GetSession(r)
		if err != nil || info == nil {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionInfoContextKey{}, info)))
	})
}

// RequireAdmin 需要管理员权限中间件
func (m *JWTManager) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, err := m.GetSession(r)
		if err != nil || info == nil {
			writeAuthError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		if info.Role != RoleAdmin {
			writeAuthError(w, http.StatusForbidden, "forbidden")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionInfoContextKey{}, info)))
	})
}

// SessionFromContext 取出中间件写入的会话
func SessionFromContext(ctx context.Context) *SessionInfo {
	if ctx == nil {
		return nil
	}
	info, _ := ctx.Value(sessionInfoContextKey{}).(*SessionInfo)
	return info
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": message})
}

func extractToken(r *http.Request, cookieName string) string {
	// Authorization: Bearer <token>
	authz := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

func (m *JWTManager) setCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(m.ttl.Seconds()),
	})
}

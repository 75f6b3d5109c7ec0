package handlers

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogin_JSON(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/login", map[string]string{
		"username": "admin", "password": testAdminPassword,
	}, "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	data := decodeBody(t, rr)["data"].(map[string]interface{})
	token := data["token"].(string)
	require.NotEmpty(t, token)
	assert.NotEmpty(t, rr.Result().Cookies())

	// 令牌可用于需要认证的接口
	rr = env.do(t, http.MethodPost, "/device-plant/associate", map[string]interface{}{
		"device_id": "biodata_1", "plant_name": "Roble",
	}, token)
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestLogin_Form(t *testing.T) {
	env := newTestEnv(t)

	form := url.Values{"username": {"admin"}, "password": {testAdminPassword}}
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestLogin_Errors(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/login", map[string]string{"username": "admin"}, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/login", `{"username":`, "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = env.do(t, http.MethodPost, "/api/login", map[string]string{"username": "admin", "password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, errInvalidCredentialsMessage, decodeBody(t, rr)["error"])
}

func TestLogin_BlocksAfterRepeatedFailures(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		rr := env.do(t, http.MethodPost, "/api/login", map[string]string{"username": "admin", "password": "nope"}, "")
		require.Equal(t, http.StatusUnauthorized, rr.Code)
	}

	// 封禁期间正确密码也被拒绝
	rr := env.do(t, http.MethodPost, "/api/login", map[string]string{"username": "admin", "password": testAdminPassword}, "")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("Retry-After"))
}

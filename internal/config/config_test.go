package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, ":1880", cfg.ListenAddr)
	assert.Equal(t, 30*time.Second, cfg.HTTPReadTimeout)
	assert.Equal(t, 60*time.Second, cfg.HTTPIdleTimeout)
	assert.Equal(t, 300, cfg.RateLimitPerMinute)
	assert.Equal(t, "biodata.db", cfg.DBPath)
	assert.Equal(t, 4, cfg.DBMaxOpenConns)
	assert.Equal(t, 5*time.Second, cfg.DBBusyTimeout)
	assert.Equal(t, "configs/secrets.yaml", cfg.NodeConfigPath)
	assert.Equal(t, 60*time.Second, cfg.MappingCacheTTL)
	assert.True(t, cfg.BridgeEnabled)
	assert.Equal(t, 1000, cfg.BridgeQueueSize)
	assert.Zero(t, cfg.BridgeQOS)
	assert.Equal(t, "admin", cfg.AdminUser)
	assert.False(t, cfg.TLSAuto)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_String_HidesSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.JWTSecret = "super-secret-value"
	cfg.AdminPasswordHash = "$2a$10$hash"

	s := cfg.String()
	assert.Contains(t, s, "ListenAddr=:1880")
	assert.NotContains(t, s, "super-secret-value")
	assert.NotContains(t, s, "$2a$10$hash")
}

func TestGetAllowedOrigins(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, []string{"http://localhost:1880", "http://127.0.0.1:1880"}, cfg.GetAllowedOrigins())

	cfg.AllowedOrigins = " http://a.com , ,http://b.com"
	assert.Equal(t, []string{"http://a.com", "http://b.com"}, cfg.GetAllowedOrigins())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_SearchPaths(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configs", "config.yaml"), []byte("server:\n  addr: \":7000\"\n"), 0600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.ListenAddr)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
  read_timeout: 10s
  allowed_origins:
    - http://a.com
    - http://b.com
  trust_proxy: true
  rate_limit_per_minute: 0
database:
  path: /var/lib/biodata/map.db
  max_open_conns: 2
  busy_timeout: 2s
node:
  config_path: /etc/biodata/secrets.yaml
log:
  level: debug
  json: true
mapping:
  cache_ttl: 2m
bridge:
  enabled: false
  qos: 1
auth:
  jwt_secret: file-secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.ListenAddr)
	assert.Equal(t, 10*time.Second, cfg.HTTPReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.HTTPWriteTimeout, "keys absent from the file keep their defaults")
	assert.Equal(t, "http://a.com,http://b.com", cfg.AllowedOrigins)
	assert.True(t, cfg.TrustProxy)
	assert.Zero(t, cfg.RateLimitPerMinute, "an explicit 0 disables rate limiting")
	assert.Equal(t, "/var/lib/biodata/map.db", cfg.DBPath)
	assert.Equal(t, 2, cfg.DBMaxOpenConns)
	assert.Equal(t, 2*time.Second, cfg.DBBusyTimeout)
	assert.Equal(t, "/etc/biodata/secrets.yaml", cfg.NodeConfigPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, 2*time.Minute, cfg.MappingCacheTTL)
	assert.False(t, cfg.BridgeEnabled)
	assert.Equal(t, 1, cfg.BridgeQOS)
	assert.Equal(t, "file-secret", cfg.JWTSecret)
	assert.Equal(t, "admin", cfg.AdminUser)
}

func TestLoad_CheckedInSample(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "configs", "config.yaml"))
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, "data/biodata.db", cfg.DBPath)
}

func TestLoad_EmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	_, err := Load(writeConfig(t, "server:\n  adress: \":9000\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "adress")
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedFile(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "server:\n  addr: \":9000\"\nbridge:\n  enabled: true\n")
	t.Setenv("LISTEN_ADDR", ":9100")
	t.Setenv("BRIDGE_ENABLED", "0")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.ListenAddr)
	assert.False(t, cfg.BridgeEnabled)
}

func TestLoadFromEnv(t *testing.T) {
	env := map[string]string{
		"HTTP_READ_TIMEOUT":         "45s",
		"HTTP_HANDLER_TIMEOUT":      "0",
		"TRUST_PROXY":               "true",
		"RATE_LIMIT_PER_MINUTE":     "60",
		"ALLOWED_ORIGINS":           "http://a.com,http://b.com",
		"TLS_AUTO":                  "1",
		"TLS_DOMAIN":                "bridge.example.com",
		"DB_PATH":                   "/data/map.db",
		"DB_MAX_OPEN_CONNS":         "1",
		"LOG_LEVEL":                 "warn",
		"LOG_JSON":                  "TRUE",
		"MAPPING_CACHE_TTL":         "5m",
		"BRIDGE_RECONNECT_INTERVAL": "10s",
		"BRIDGE_QUEUE_SIZE":         "50",
		"BRIDGE_QOS":                "2",
		"ADMIN_USER":                "operator",
		"ADMIN_PASSWORD_HASH":       "$2a$10$abc",
		"JWT_SECRET":                "env-secret-1234567890",
		"TOKEN_TTL":                 "1h",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg := DefaultConfig()
	require.NoError(t, loadFromEnv(cfg))

	assert.Equal(t, 45*time.Second, cfg.HTTPReadTimeout)
	assert.Zero(t, cfg.HTTPHandlerTimeout)
	assert.True(t, cfg.TrustProxy)
	assert.Equal(t, 60, cfg.RateLimitPerMinute)
	assert.Equal(t, []string{"http://a.com", "http://b.com"}, cfg.GetAllowedOrigins())
	assert.True(t, cfg.TLSAuto)
	assert.Equal(t, "bridge.example.com", cfg.TLSDomain)
	assert.Equal(t, "/data/map.db", cfg.DBPath)
	assert.Equal(t, 1, cfg.DBMaxOpenConns)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, 5*time.Minute, cfg.MappingCacheTTL)
	assert.Equal(t, 10*time.Second, cfg.BridgeReconnectInterval)
	assert.Equal(t, 50, cfg.BridgeQueueSize)
	assert.Equal(t, 2, cfg.BridgeQOS)
	assert.Equal(t, "operator", cfg.AdminUser)
	assert.Equal(t, "$2a$10$abc", cfg.AdminPasswordHash)
	assert.Equal(t, "env-secret-1234567890", cfg.JWTSecret)
	assert.Equal(t, time.Hour, cfg.TokenTTL)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv_BlankValuesIgnored(t *testing.T) {
	t.Setenv("LISTEN_ADDR", "   ")
	t.Setenv("BRIDGE_QUEUE_SIZE", "")

	cfg := DefaultConfig()
	require.NoError(t, loadFromEnv(cfg))
	assert.Equal(t, ":1880", cfg.ListenAddr)
	assert.Equal(t, 1000, cfg.BridgeQueueSize)
}

func TestLoadFromEnv_InvalidValuesReported(t *testing.T) {
	t.Setenv("HTTP_READ_TIMEOUT", "abc")
	t.Setenv("MAPPING_CACHE_TTL", "0")
	t.Setenv("BRIDGE_QUEUE_SIZE", "-1")
	t.Setenv("LOG_JSON", "maybe")

	cfg := DefaultConfig()
	err := loadFromEnv(cfg)
	require.Error(t, err)
	for _, key := range []string{"HTTP_READ_TIMEOUT", "MAPPING_CACHE_TTL", "BRIDGE_QUEUE_SIZE", "LOG_JSON"} {
		assert.Contains(t, err.Error(), key)
	}
	assert.Equal(t, 30*time.Second, cfg.HTTPReadTimeout, "invalid values leave the field untouched")
	assert.Equal(t, 1000, cfg.BridgeQueueSize)

	_, err = Load(writeConfig(t, ""))
	assert.Error(t, err, "Load surfaces environment errors")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"auto tls without domain", func(c *Config) { c.TLSAuto = true }, "tls_domain"},
		{"auto tls with domain", func(c *Config) { c.TLSAuto = true; c.TLSDomain = "example.com" }, ""},
		{"cert without key", func(c *Config) { c.TLSCertFile = "cert.pem" }, "set together"},
		{"qos out of range", func(c *Config) { c.BridgeQOS = 3 }, "qos"},
		{"empty listen addr", func(c *Config) { c.ListenAddr = " " }, "listen_addr"},
		{"negative rate limit", func(c *Config) { c.RateLimitPerMinute = -1 }, "rate_limit"},
		{"no db connections", func(c *Config) { c.DBMaxOpenConns = 0 }, "db_max_open_conns"},
		{"empty queue", func(c *Config) { c.BridgeQueueSize = 0 }, "queue_size"},
		{"negative cache ttl", func(c *Config) { c.MappingCacheTTL = -time.Second }, "cache_ttl"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BridgeQOS = 5
	cfg.DBMaxOpenConns = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qos")
	assert.Contains(t, err.Error(), "db_max_open_conns")
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

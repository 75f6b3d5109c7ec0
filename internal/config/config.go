// Package config 桥接服务自身的配置：默认值、YAML 文件、环境变量，后者覆盖前者
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config 桥接服务配置（节点配置记录见 nodeconfig）
type Config struct {
	ListenAddr string `json:"listen_addr"`

	TLSCertFile string `json:"tls_cert_file"`
	TLSKeyFile  string `json:"tls_key_file"`
	TLSAuto     bool   `json:"tls_auto"`      // Let's Encrypt 自动证书
	TLSDomain   string `json:"tls_domain"`    // 自动证书域名
	TLSCacheDir string `json:"tls_cache_dir"` // 自动证书缓存目录

	HTTPReadTimeout    time.Duration `json:"http_read_timeout"`
	HTTPWriteTimeout   time.Duration `json:"http_write_timeout"`
	HTTPIdleTimeout    time.Duration `json:"http_idle_timeout"`
	HTTPHandlerTimeout time.Duration `json:"http_handler_timeout"`
	// 位于反向代理之后时信任 X-Forwarded-For
	TrustProxy bool `json:"trust_proxy"`
	// 每个来源 IP 每分钟请求上限，0 表示不限
	RateLimitPerMinute int    `json:"rate_limit_per_minute"`
	AllowedOrigins     string `json:"allowed_origins"`

	DBPath         string        `json:"db_path"`
	DBMaxOpenConns int           `json:"db_max_open_conns"`
	DBBusyTimeout  time.Duration `json:"db_busy_timeout"`

	NodeConfigPath string `json:"node_config_path"`

	LogLevel      string `json:"log_level"`
	LogJSON       bool   `json:"log_json"`
	LogFile       string `json:"log_file"`
	LogMaxSizeMB  int    `json:"log_max_size_mb"`
	LogMaxBackups int    `json:"log_max_backups"`

	MappingCacheTTL time.Duration `json:"mapping_cache_ttl"`

	BridgeEnabled           bool          `json:"bridge_enabled"`
	BridgeReconnectInterval time.Duration `json:"bridge_reconnect_interval"`
	BridgeQueueSize         int           `json:"bridge_queue_size"`
	BridgeQOS               int           `json:"bridge_qos"`

	AdminUser         string        `json:"admin_user"`
	AdminPasswordHash string        `json:"-"`
	JWTSecret         string        `json:"-"`
	TokenTTL          time.Duration `json:"token_ttl"`

	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		ListenAddr:              ":1880",
		TLSCacheDir:             "cert-cache",
		HTTPReadTimeout:         30 * time.Second,
		HTTPWriteTimeout:        30 * time.Second,
		HTTPIdleTimeout:         60 * time.Second,
		HTTPHandlerTimeout:      15 * time.Second,
		RateLimitPerMinute:      300,
		DBPath:                  "biodata.db",
		DBMaxOpenConns:          4,
		DBBusyTimeout:           5 * time.Second,
		NodeConfigPath:          "configs/secrets.yaml",
		LogLevel:                "info",
		LogMaxSizeMB:            10,
		LogMaxBackups:           3,
		MappingCacheTTL:         60 * time.Second,
		BridgeEnabled:           true,
		BridgeReconnectInterval: 5 * time.Second,
		BridgeQueueSize:         1000,
		AdminUser:               "admin",
		TokenTTL:                24 * time.Hour,
		ShutdownTimeout:         30 * time.Second,
	}
}

// Load 默认值 -> YAML 文件 -> 环境变量。
// path 为空时按 SearchPaths 查找，找不到文件则只用默认值和环境变量。
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := loadFromFile(cfg, path); err != nil {
		return nil, err
	}
	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查取值范围以及互斥或缺失的服务配置
func (c *Config) Validate() error {
	var problems []string
	check := func(bad bool, format string, args ...interface{}) {
		if bad {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(strings.TrimSpace(c.ListenAddr) == "", "listen_addr is required")
	check(c.TLSAuto && strings.TrimSpace(c.TLSDomain) == "", "tls_auto requires tls_domain")
	check((c.TLSCertFile == "") != (c.TLSKeyFile == ""), "tls_cert_file and tls_key_file must be set together")
	check(c.RateLimitPerMinute < 0, "rate_limit_per_minute must not be negative")
	check(c.DBMaxOpenConns < 1, "db_max_open_conns must be at least 1")
	check(c.BridgeQOS < 0 || c.BridgeQOS > 2, "bridge qos must be 0, 1 or 2, got %d", c.BridgeQOS)
	check(c.BridgeQueueSize < 1, "bridge queue_size must be at least 1")
	check(c.HTTPReadTimeout < 0 || c.HTTPWriteTimeout < 0, "http timeouts must not be negative")
	check(c.MappingCacheTTL < 0, "mapping cache_ttl must not be negative")
	check(c.TokenTTL < 0, "token_ttl must not be negative")

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
}

// GetAllowedOrigins 允许的跨域来源，未配置时只允许本机
func (c *Config) GetAllowedOrigins() []string {
	if strings.TrimSpace(c.AllowedOrigins) == "" {
		return []string{"http://localhost:1880", "http://127.0.0.1:1880"}
	}
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c *Config) String() string {
	return fmt.Sprintf("Config{ListenAddr=%s, DBPath=%s, NodeConfigPath=%s, LogLevel=%s, BridgeEnabled=%v, MappingCacheTTL=%v}",
		c.ListenAddr, c.DBPath, c.NodeConfigPath, c.LogLevel, c.BridgeEnabled, c.MappingCacheTTL)
}

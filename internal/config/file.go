package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SearchPaths 未显式指定时依次查找的配置文件
var SearchPaths = []string{
	"configs/config.yaml",
	"config/config.yaml",
	"./config.yaml",
}

// fileConfig YAML 文件结构；解码前先填入当前值，文件中缺省的键保持不变
type fileConfig struct {
	Server struct {
		Addr           string        `yaml:"addr"`
		ReadTimeout    time.Duration `yaml:"read_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		IdleTimeout    time.Duration `yaml:"idle_timeout"`
		HandlerTimeout time.Duration `yaml:"handler_timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		TrustProxy     bool          `yaml:"trust_proxy"`
		RateLimit      int           `yaml:"rate_limit_per_minute"`
	} `yaml:"server"`
	TLS struct {
		CertFile string `yaml:"cert_file"`
		KeyFile  string `yaml:"key_file"`
		Auto     bool   `yaml:"auto"`
		Domain   string `yaml:"domain"`
		CacheDir string `yaml:"cache_dir"`
	} `yaml:"tls"`
	Database struct {
		Path         string        `yaml:"path"`
		MaxOpenConns int           `yaml:"max_open_conns"`
		BusyTimeout  time.Duration `yaml:"busy_timeout"`
	} `yaml:"database"`
	Node struct {
		ConfigPath string `yaml:"config_path"`
	} `yaml:"node"`
	Log struct {
		Level      string `yaml:"level"`
		JSON       bool   `yaml:"json"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
	} `yaml:"log"`
	Mapping struct {
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"mapping"`
	Bridge struct {
		Enabled           bool          `yaml:"enabled"`
		ReconnectInterval time.Duration `yaml:"reconnect_interval"`
		QueueSize         int           `yaml:"queue_size"`
		QOS               int           `yaml:"qos"`
	} `yaml:"bridge"`
	Auth struct {
		AdminUser         string        `yaml:"admin_user"`
		AdminPasswordHash string        `yaml:"admin_password_hash"`
		JWTSecret         string        `yaml:"jwt_secret"`
		TokenTTL          time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Shutdown struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"shutdown"`
}

// findConfigFile 显式路径必须存在；否则返回第一个存在的候选，都不存在时返回空串
func findConfigFile(path string) (string, error) {
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("config file %s: %w", path, err)
		}
		return path, nil
	}
	for _, candidate := range SearchPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

func loadFromFile(cfg *Config, path string) error {
	configFile, err := findConfigFile(path)
	if err != nil || configFile == "" {
		return err
	}
	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := applyYAML(cfg, data); err != nil {
		return fmt.Errorf("%s: %w", configFile, err)
	}
	return nil
}

// applyYAML 未知键视为错误，避免拼写错误的配置被静默忽略
func applyYAML(cfg *Config, data []byte) error {
	fc := snapshot(cfg)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	fc.apply(cfg)
	return nil
}

// snapshot 当前配置的文件视图
func snapshot(cfg *Config) fileConfig {
	var fc fileConfig
	fc.Server.Addr = cfg.ListenAddr
	fc.Server.ReadTimeout = cfg.HTTPReadTimeout
	fc.Server.WriteTimeout = cfg.HTTPWriteTimeout
	fc.Server.IdleTimeout = cfg.HTTPIdleTimeout
	fc.Server.HandlerTimeout = cfg.HTTPHandlerTimeout
	fc.Server.TrustProxy = cfg.TrustProxy
	fc.Server.RateLimit = cfg.RateLimitPerMinute
	if cfg.AllowedOrigins != "" {
		fc.Server.AllowedOrigins = cfg.GetAllowedOrigins()
	}

	fc.TLS.CertFile = cfg.TLSCertFile
	fc.TLS.KeyFile = cfg.TLSKeyFile
	fc.TLS.Auto = cfg.TLSAuto
	fc.TLS.Domain = cfg.TLSDomain
	fc.TLS.CacheDir = cfg.TLSCacheDir

	fc.Database.Path = cfg.DBPath
	fc.Database.MaxOpenConns = cfg.DBMaxOpenConns
	fc.Database.BusyTimeout = cfg.DBBusyTimeout
	fc.Node.ConfigPath = cfg.NodeConfigPath

	fc.Log.Level = cfg.LogLevel
	fc.Log.JSON = cfg.LogJSON
	fc.Log.File = cfg.LogFile
	fc.Log.MaxSizeMB = cfg.LogMaxSizeMB
	fc.Log.MaxBackups = cfg.LogMaxBackups

	fc.Mapping.CacheTTL = cfg.MappingCacheTTL

	fc.Bridge.Enabled = cfg.BridgeEnabled
	fc.Bridge.ReconnectInterval = cfg.BridgeReconnectInterval
	fc.Bridge.QueueSize = cfg.BridgeQueueSize
	fc.Bridge.QOS = cfg.BridgeQOS

	fc.Auth.AdminUser = cfg.AdminUser
	fc.Auth.AdminPasswordHash = cfg.AdminPasswordHash
	fc.Auth.JWTSecret = cfg.JWTSecret
	fc.Auth.TokenTTL = cfg.TokenTTL

	fc.Shutdown.Timeout = cfg.ShutdownTimeout
	return fc
}

func (fc *fileConfig) apply(cfg *Config) {
	cfg.ListenAddr = fc.Server.Addr
	cfg.HTTPReadTimeout = fc.Server.ReadTimeout
	cfg.HTTPWriteTimeout = fc.Server.WriteTimeout
	cfg.HTTPIdleTimeout = fc.Server.IdleTimeout
	cfg.HTTPHandlerTimeout = fc.Server.HandlerTimeout
	cfg.TrustProxy = fc.Server.TrustProxy
	cfg.RateLimitPerMinute = fc.Server.RateLimit
	cfg.AllowedOrigins = strings.Join(fc.Server.AllowedOrigins, ",")

	cfg.TLSCertFile = fc.TLS.CertFile
	cfg.TLSKeyFile = fc.TLS.KeyFile
	cfg.TLSAuto = fc.TLS.Auto
	cfg.TLSDomain = fc.TLS.Domain
	cfg.TLSCacheDir = fc.TLS.CacheDir

	cfg.DBPath = fc.Database.Path
	cfg.DBMaxOpenConns = fc.Database.MaxOpenConns
	cfg.DBBusyTimeout = fc.Database.BusyTimeout
	cfg.NodeConfigPath = fc.Node.ConfigPath

	cfg.LogLevel = fc.Log.Level
	cfg.LogJSON = fc.Log.JSON
	cfg.LogFile = fc.Log.File
	cfg.LogMaxSizeMB = fc.Log.MaxSizeMB
	cfg.LogMaxBackups = fc.Log.MaxBackups

	cfg.MappingCacheTTL = fc.Mapping.CacheTTL

	cfg.BridgeEnabled = fc.Bridge.Enabled
	cfg.BridgeReconnectInterval = fc.Bridge.ReconnectInterval
	cfg.BridgeQueueSize = fc.Bridge.QueueSize
	cfg.BridgeQOS = fc.Bridge.QOS

	cfg.AdminUser = fc.Auth.AdminUser
	cfg.AdminPasswordHash = fc.Auth.AdminPasswordHash
	cfg.JWTSecret = fc.Auth.JWTSecret
	cfg.TokenTTL = fc.Auth.TokenTTL

	cfg.ShutdownTimeout = fc.Shutdown.Timeout
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// envVar 一个环境变量及其写入的配置字段
type envVar struct {
	key   string
	apply func(cfg *Config, value string) error
}

func envString(key string, field func(*Config) *string) envVar {
	return envVar{key, func(cfg *Config, v string) error {
		*field(cfg) = v
		return nil
	}}
}

// envBool 接受 strconv.ParseBool 的写法（1/0、true/false 等）
func envBool(key string, field func(*Config) *bool) envVar {
	return envVar{key, func(cfg *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New("expected a boolean")
		}
		*field(cfg) = b
		return nil
	}}
}

func envInt(key string, lowest int, field func(*Config) *int) envVar {
	return envVar{key, func(cfg *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.New("expected an integer")
		}
		if n < lowest {
			return fmt.Errorf("must be >= %d", lowest)
		}
		*field(cfg) = n
		return nil
	}}
}

// envDuration 时长必须大于 0，"0" 只在 allowZero 时接受
func envDuration(key string, allowZero bool, field func(*Config) *time.Duration) envVar {
	return envVar{key, func(cfg *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return errors.New("expected a duration such as 30s")
		}
		if d < 0 || (d == 0 && !allowZero) {
			return errors.New("must be positive")
		}
		*field(cfg) = d
		return nil
	}}
}

var envVars = []envVar{
	envString("LISTEN_ADDR", func(c *Config) *string { return &c.ListenAddr }),
	envDuration("HTTP_READ_TIMEOUT", false, func(c *Config) *time.Duration { return &c.HTTPReadTimeout }),
	envDuration("HTTP_WRITE_TIMEOUT", false, func(c *Config) *time.Duration { return &c.HTTPWriteTimeout }),
	envDuration("HTTP_IDLE_TIMEOUT", true, func(c *Config) *time.Duration { return &c.HTTPIdleTimeout }),
	envDuration("HTTP_HANDLER_TIMEOUT", true, func(c *Config) *time.Duration { return &c.HTTPHandlerTimeout }),
	envBool("TRUST_PROXY", func(c *Config) *bool { return &c.TrustProxy }),
	envInt("RATE_LIMIT_PER_MINUTE", 0, func(c *Config) *int { return &c.RateLimitPerMinute }),
	envString("ALLOWED_ORIGINS", func(c *Config) *string { return &c.AllowedOrigins }),

	envString("TLS_CERT_FILE", func(c *Config) *string { return &c.TLSCertFile }),
	envString("TLS_KEY_FILE", func(c *Config) *string { return &c.TLSKeyFile }),
	envBool("TLS_AUTO", func(c *Config) *bool { return &c.TLSAuto }),
	envString("TLS_DOMAIN", func(c *Config) *string { return &c.TLSDomain }),
	envString("TLS_CACHE_DIR", func(c *Config) *string { return &c.TLSCacheDir }),

	envString("DB_PATH", func(c *Config) *string { return &c.DBPath }),
	envInt("DB_MAX_OPEN_CONNS", 1, func(c *Config) *int { return &c.DBMaxOpenConns }),
	envDuration("DB_BUSY_TIMEOUT", true, func(c *Config) *time.Duration { return &c.DBBusyTimeout }),
	envString("NODE_CONFIG_PATH", func(c *Config) *string { return &c.NodeConfigPath }),

	envString("LOG_LEVEL", func(c *Config) *string { return &c.LogLevel }),
	envBool("LOG_JSON", func(c *Config) *bool { return &c.LogJSON }),
	envString("LOG_FILE", func(c *Config) *string { return &c.LogFile }),
	envInt("LOG_MAX_SIZE_MB", 1, func(c *Config) *int { return &c.LogMaxSizeMB }),
	envInt("LOG_MAX_BACKUPS", 1, func(c *Config) *int { return &c.LogMaxBackups }),

	envDuration("MAPPING_CACHE_TTL", false, func(c *Config) *time.Duration { return &c.MappingCacheTTL }),

	envBool("BRIDGE_ENABLED", func(c *Config) *bool { return &c.BridgeEnabled }),
	envDuration("BRIDGE_RECONNECT_INTERVAL", false, func(c *Config) *time.Duration { return &c.BridgeReconnectInterval }),
	envInt("BRIDGE_QUEUE_SIZE", 1, func(c *Config) *int { return &c.BridgeQueueSize }),
	envInt("BRIDGE_QOS", 0, func(c *Config) *int { return &c.BridgeQOS }),

	envString("ADMIN_USER", func(c *Config) *string { return &c.AdminUser }),
	envString("ADMIN_PASSWORD_HASH", func(c *Config) *string { return &c.AdminPasswordHash }),
	envString("JWT_SECRET", func(c *Config) *string { return &c.JWTSecret }),
	envDuration("TOKEN_TTL", false, func(c *Config) *time.Duration { return &c.TokenTTL }),

	envDuration("SHUTDOWN_TIMEOUT", false, func(c *Config) *time.Duration { return &c.ShutdownTimeout }),
}

// loadFromEnv 空值视为未设置；格式错误的变量全部列出后一并返回
func loadFromEnv(cfg *Config) error {
	var problems []string
	for _, ev := range envVars {
		value := strings.TrimSpace(os.Getenv(ev.key))
		if value == "" {
			continue
		}
		if err := ev.apply(cfg, value); err != nil {
			problems = append(problems, fmt.Sprintf("%s=%q: %v", ev.key, value, err))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid environment: %s", strings.Join(problems, "; "))
	}
	return nil
}

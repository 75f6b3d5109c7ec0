package app

import (
	"crypto/rand"
	"crypto/sha256"
	"os"
	"path/filepath"

	"github.com/gonglijing/biodataBridge/internal/config"
	"github.com/gonglijing/biodataBridge/internal/logger"
)

const secretKeyFile = "jwt_secret.key"

// loadOrGenerateSecretKey 优先使用配置的密钥，否则读取数据库目录下的密钥文件，不存在则生成
func loadOrGenerateSecretKey(cfg *config.Config) []byte {
	if cfg.JWTSecret != "" {
		h := sha256.Sum256([]byte(cfg.JWTSecret))
		return h[:]
	}

	keyDir := filepath.Dir(cfg.DBPath)
	keyFile := filepath.Join(keyDir, secretKeyFile)
	if data, err := os.ReadFile(keyFile); err == nil && len(data) >= 32 {
		h := sha256.Sum256(data)
		return h[:]
	}

	if err := os.MkdirAll(keyDir, 0755); err != nil {
		logger.Warn("Failed to create secret key directory", "error", err)
	}

	newKey := make([]byte, 32)
	if _, err := rand.Read(newKey); err != nil {
		logger.Fatal("Failed to generate secret key", err)
	}

	if err := os.WriteFile(keyFile, newKey, 0600); err != nil {
		logger.Warn("Failed to save JWT secret key, tokens will not survive a restart", "error", err)
	} else {
		logger.Info("Generated new JWT secret key", "path", keyFile)
	}

	h := sha256.Sum256(newKey)
	return h[:]
}

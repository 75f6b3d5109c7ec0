package app

import (
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	"github.com/gonglijing/biodataBridge/internal/config"
	"github.com/gonglijing/biodataBridge/internal/graceful"
	"github.com/gonglijing/biodataBridge/internal/logger"
	"golang.org/x/crypto/acme/autocert"
)

// acmeChallengeAddr Let's Encrypt HTTP-01 验证必须走 80 端口
const acmeChallengeAddr = ":80"

type serveMode int

const (
	servePlain serveMode = iota
	serveCertFiles
	serveAutoCert
)

// chooseServeMode 自动证书优先，其次证书文件，否则明文 HTTP
func chooseServeMode(cfg *config.Config) serveMode {
	switch {
	case cfg.TLSAuto && cfg.TLSDomain != "":
		return serveAutoCert
	case cfg.TLSCertFile != "" && cfg.TLSKeyFile != "":
		return serveCertFiles
	default:
		return servePlain
	}
}

// newAutoCert 为 server 配置自动证书，返回处理 HTTP-01 验证并把其余请求重定向到 HTTPS 的服务
func newAutoCert(server *http.Server, cfg *config.Config) *http.Server {
	manager := &autocert.Manager{
		Cache:      autocert.DirCache(cfg.TLSCacheDir),
		Prompt:     autocert.AcceptTOS,
		HostPolicy: autocert.HostWhitelist(cfg.TLSDomain),
	}
	server.TLSConfig = &tls.Config{
		GetCertificate: manager.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1", "acme-tls/1"},
		MinVersion:     tls.VersionTLS12,
	}
	return &http.Server{
		Addr:              acmeChallengeAddr,
		Handler:           manager.HTTPHandler(nil),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func serve(server *http.Server, cfg *config.Config, mgr *graceful.GracefulShutdown) error {
	switch chooseServeMode(cfg) {
	case serveAutoCert:
		challenge := newAutoCert(server, cfg)
		mgr.AddShutdownFunc("acme challenge server", challenge.Shutdown)
		go func() {
			if err := challenge.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("ACME challenge server stopped", err, "addr", challenge.Addr)
			}
		}()
		logger.Info("Starting HTTPS (auto-cert)", "addr", cfg.ListenAddr, "domain", cfg.TLSDomain, "cache", cfg.TLSCacheDir)
		return server.ListenAndServeTLS("", "")
	case serveCertFiles:
		logger.Info("Starting HTTPS", "addr", cfg.ListenAddr, "cert", cfg.TLSCertFile)
		return server.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
	default:
		logger.Info("Starting HTTP", "addr", cfg.ListenAddr)
		return server.ListenAndServe()
	}
}

// Package graceful 收到 SIGINT/SIGTERM 后按序关闭 HTTP 服务与后台组件
package graceful

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gonglijing/biodataBridge/internal/logger"
)

// ShutdownFunc 关闭函数类型
type ShutdownFunc func(ctx context.Context) error

type namedFunc struct {
	name string
	fn   ShutdownFunc
}

// GracefulShutdown 优雅关闭管理器
type GracefulShutdown struct {
	timeout    time.Duration
	mu         sync.Mutex
	funcs      []namedFunc
	httpServer *http.Server
	notifyChan chan os.Signal
	once       sync.Once
	done       chan struct{}
	ctx        context.Context
	cancel     context.CancelFunc
	err        error
	log        *logger.StructuredLogger
}

// NewGracefulShutdown 创建优雅关闭管理器
func NewGracefulShutdown(timeout time.Duration) *GracefulShutdown {
	ctx, cancel := context.WithCancel(context.Background())
	return &GracefulShutdown{
		timeout:    timeout,
		notifyChan: make(chan os.Signal, 1),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		log:        logger.Named("graceful"),
	}
}

// Context 后台组件使用的上下文，开始关闭时取消
func (g *GracefulShutdown) Context() context.Context {
	return g.ctx
}

// AddShutdownFunc 添加关闭函数，关闭时按注册的逆序执行
func (g *GracefulShutdown) AddShutdownFunc(name string, f ShutdownFunc) {
	g.mu.Lock()
	g.funcs = append(g.funcs, namedFunc{name: name, fn: f})
	g.mu.Unlock()
}

// SetHTTPServer 设置HTTP服务器，关闭时最先停止接收请求
func (g *GracefulShutdown) SetHTTPServer(srv *http.Server) {
	g.mu.Lock()
	g.httpServer = srv
	g.mu.Unlock()
}

// Start 启动信号监听
func (g *GracefulShutdown) Start() {
	signal.Notify(g.notifyChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-g.notifyChan:
			g.log.Info("Received shutdown signal, starting graceful shutdown", "signal", sig.String())
			g.Shutdown()
		case <-g.done:
		}
		signal.Stop(g.notifyChan)
	}()
}

// Shutdown 执行关闭，只执行一次；返回各步骤的错误
func (g *GracefulShutdown) Shutdown() error {
	g.once.Do(func() {
		defer close(g.done)
		g.cancel()

		ctx, cancel := g.WithTimeout()
		defer cancel()

		g.mu.Lock()
		srv := g.httpServer
		funcs := append([]namedFunc(nil), g.funcs...)
		g.mu.Unlock()

		var errs []error
		if srv != nil {
			g.log.Info("Shutting down HTTP server")
			if err := srv.Shutdown(ctx); err != nil {
				g.log.Error("HTTP server shutdown error", err)
				errs = append(errs, fmt.Errorf("http server: %w", err))
			}
		}

		for i := len(funcs) - 1; i >= 0; i-- {
			f := funcs[i]
			g.log.Info("Stopping component", "component", f.name)
			if err := f.fn(ctx); err != nil {
				g.log.Error("Component shutdown error", err, "component", f.name)
				errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
			}
		}

		g.err = errors.Join(errs...)
		g.log.Info("Graceful shutdown completed")
	})
	<-g.done
	return g.err
}

// Done 关闭完成后关闭的通道
func (g *GracefulShutdown) Done() <-chan struct{} {
	return g.done
}

// Wait 等待关闭完成
func (g *GracefulShutdown) Wait() {
	<-g.done
}

// WithTimeout 创建带超时的上下文
func (g *GracefulShutdown) WithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), g.timeout)
}

package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	defaultMaxLogSizeBytes = 10 * 1024 * 1024
	defaultMaxBackups      = 3
	backupTimeLayout       = "20060102T150405.000"
)

// rotatingFile 按大小滚动的日志文件；滚动后的文件名带时间戳，只保留最近 maxBackups 个
type rotatingFile struct {
	mu         sync.Mutex
	path       string
	maxSize    int64
	maxBackups int
	file       *os.File
	size       int64
}

func openRotatingFile(path string, maxSize int64, maxBackups int) (*rotatingFile, error) {
	if maxSize <= 0 {
		maxSize = defaultMaxLogSizeBytes
	}
	if maxBackups < 1 {
		maxBackups = defaultMaxBackups
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	f := &rotatingFile{path: path, maxSize: maxSize, maxBackups: maxBackups}
	if err := f.open(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *rotatingFile) open() error {
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	f.file = file
	f.size = info.Size()
	return nil
}

// Write 单行超过上限时仍整行写入当前文件
func (f *rotatingFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.file == nil {
		if err := f.open(); err != nil {
			return 0, err
		}
	}
	if f.size > 0 && f.size+int64(len(p)) > f.maxSize {
		if err := f.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := f.file.Write(p)
	f.size += int64(n)
	return n, err
}

func (f *rotatingFile) rotate() error {
	if err := f.file.Close(); err != nil {
		return err
	}
	f.file = nil
	if err := os.Rename(f.path, backupName(f.path, nowFunc())); err != nil {
		return fmt.Errorf("rotate log file: %w", err)
	}
	f.prune()
	return f.open()
}

// prune 删除超出保留数量的旧备份，时间戳格式保证按名称排序即按时间排序
func (f *rotatingFile) prune() {
	ext := filepath.Ext(f.path)
	matches, err := filepath.Glob(strings.TrimSuffix(f.path, ext) + "-*" + ext)
	if err != nil || len(matches) <= f.maxBackups {
		return
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-f.maxBackups] {
		_ = os.Remove(old)
	}
}

func (f *rotatingFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

func backupName(path string, t time.Time) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "-" + t.UTC().Format(backupTimeLayout) + ext
}

// InitFileOutput 日志同时写标准输出和滚动文件；返回的 Closer 在退出时关闭文件
func InitFileOutput(path string, maxSizeBytes int64, maxBackups int) (io.Closer, error) {
	if path == "" {
		path = filepath.Join("logs", "biodata-bridge.log")
	}
	file, err := openRotatingFile(path, maxSizeBytes, maxBackups)
	if err != nil {
		return nil, err
	}
	SetOutput(io.MultiWriter(os.Stdout, file))
	return file, nil
}

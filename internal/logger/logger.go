// Package logger 结构化日志：模块名、级别过滤、文本或 JSON 输出，所有模块共享同一输出
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LogLevel 日志级别
type LogLevel int32

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "LEVEL(" + strconv.Itoa(int(l)) + ")"
	}
}

// ParseLevel 解析日志级别，无法识别时为 INFO
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DEBUG
	case "warn", "warning":
		return WARN
	case "error":
		return ERROR
	case "fatal":
		return FATAL
	default:
		return INFO
	}
}

// exitFunc 致命日志之后的退出函数，测试中可替换
var exitFunc = os.Exit

// nowFunc 时间来源，测试中可替换
var nowFunc = time.Now

// sink 所有日志共享的输出、级别与格式
type sink struct {
	mu    sync.Mutex
	out   io.Writer
	level atomic.Int32
	json  atomic.Bool
}

func (s *sink) write(line []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = s.out.Write(line)
}

// Entry JSON 输出的一行
type Entry struct {
	Time    string                 `json:"time"`
	Level   string                 `json:"level"`
	Module  string                 `json:"module,omitempty"`
	Message string                 `json:"msg"`
	Error   string                 `json:"error,omitempty"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// StructuredLogger 带模块名和固定字段的日志
type StructuredLogger struct {
	sink   *sink
	module string
	fields []interface{}
}

var std = newSink(os.Stdout)

func newSink(w io.Writer) *sink {
	s := &sink{out: w}
	s.level.Store(int32(INFO))
	return s
}

// Named 返回带模块名的日志
func Named(module string) *StructuredLogger {
	return &StructuredLogger{sink: std, module: module}
}

// With 返回附加固定字段的副本
func (l *StructuredLogger) With(keysAndValues ...interface{}) *StructuredLogger {
	fields := make([]interface{}, 0, len(l.fields)+len(keysAndValues))
	fields = append(fields, l.fields...)
	fields = append(fields, keysAndValues...)
	return &StructuredLogger{sink: l.sink, module: l.module, fields: fields}
}

// Enabled 该级别是否会输出
func (l *StructuredLogger) Enabled(level LogLevel) bool {
	return level >= LogLevel(l.sink.level.Load())
}

// Debug 调试日志
func (l *StructuredLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.emit(DEBUG, msg, nil, keysAndValues)
}

// Info 信息日志
func (l *StructuredLogger) Info(msg string, keysAndValues ...interface{}) {
	l.emit(INFO, msg, nil, keysAndValues)
}

// Warn 警告日志
func (l *StructuredLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.emit(WARN, msg, nil, keysAndValues)
}

// Error 错误日志
func (l *StructuredLogger) Error(msg string, err error, keysAndValues ...interface{}) {
	l.emit(ERROR, msg, err, keysAndValues)
}

// Fatal 致命日志，输出后退出进程
func (l *StructuredLogger) Fatal(msg string, err error, keysAndValues ...interface{}) {
	l.emit(FATAL, msg, err, keysAndValues)
	exitFunc(1)
}

func (l *StructuredLogger) emit(level LogLevel, msg string, err error, keysAndValues []interface{}) {
	// ERROR 及以上总是输出
	if level < ERROR && !l.Enabled(level) {
		return
	}
	fields := fieldMap(l.fields, keysAndValues)
	entry := Entry{
		Time:    nowFunc().UTC().Format(time.RFC3339),
		Level:   level.String(),
		Module:  l.module,
		Message: msg,
		Fields:  fields,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if l.sink.json.Load() {
		data, _ := json.Marshal(entry)
		l.sink.write(append(data, '\n'))
		return
	}
	l.sink.write(formatText(entry))
}

// formatText time LEVEL [module] msg key=value ... error="..."
func formatText(e Entry) []byte {
	var b strings.Builder
	b.WriteString(e.Time)
	b.WriteByte(' ')
	b.WriteString(fmt.Sprintf("%-5s", e.Level))
	if e.Module != "" {
		b.WriteString(" [" + e.Module + "]")
	}
	b.WriteByte(' ')
	b.WriteString(e.Message)

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(" " + k + "=" + textValue(e.Fields[k]))
	}
	if e.Error != "" {
		b.WriteString(" error=" + strconv.Quote(e.Error))
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

func textValue(v interface{}) string {
	var s string
	switch x := v.(type) {
	case string:
		s = x
	case fmt.Stringer:
		s = x.String()
	default:
		s = fmt.Sprint(x)
	}
	if s == "" || strings.ContainsAny(s, " \t\"=") {
		return strconv.Quote(s)
	}
	return s
}

// fieldMap 合并键值对；非字符串键跳过，多余的末尾参数忽略
func fieldMap(lists ...[]interface{}) map[string]interface{} {
	var out map[string]interface{}
	for _, kv := range lists {
		for i := 0; i+1 < len(kv); i += 2 {
			key, ok := kv[i].(string)
			if !ok {
				continue
			}
			if out == nil {
				out = make(map[string]interface{})
			}
			value := kv[i+1]
			if err, ok := value.(error); ok && err != nil {
				value = err.Error()
			}
			out[key] = value
		}
	}
	return out
}

// Configure 根据服务配置设置级别与输出格式
func Configure(level string, jsonOutput bool) {
	SetLevel(ParseLevel(level))
	SetJSONOutput(jsonOutput)
}

// SetLevel 设置日志级别
func SetLevel(level LogLevel) {
	std.level.Store(int32(level))
}

// SetJSONOutput 设置 JSON 输出
func SetJSONOutput(enabled bool) {
	std.json.Store(enabled)
}

// SetOutput 设置输出目标
func SetOutput(w io.Writer) {
	std.mu.Lock()
	std.out = w
	std.mu.Unlock()
}

// Output 当前输出目标
func Output() io.Writer {
	std.mu.Lock()
	defer std.mu.Unlock()
	return std.out
}

var root = Named("")

// Debug 全局调试日志
func Debug(msg string, keysAndValues ...interface{}) {
	root.emit(DEBUG, msg, nil, keysAndValues)
}

// Info 全局信息日志
func Info(msg string, keysAndValues ...interface{}) {
	root.emit(INFO, msg, nil, keysAndValues)
}

// Warn 全局警告日志
func Warn(msg string, keysAndValues ...interface{}) {
	root.emit(WARN, msg, nil, keysAndValues)
}

// Error 全局错误日志
func Error(msg string, err error, keysAndValues ...interface{}) {
	root.emit(ERROR, msg, err, keysAndValues)
}

// Fatal 全局致命日志
func Fatal(msg string, err error, keysAndValues ...interface{}) {
	root.emit(FATAL, msg, err, keysAndValues)
	exitFunc(1)
}

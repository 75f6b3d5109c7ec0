// Package database 设备-植物关联的 SQLite 持久化
package database

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/gonglijing/biodataBridge/internal/logger"
)

const (
	DefaultDBFile       = "biodata.db"
	DefaultMaxOpenConns = 4
	DefaultBusyTimeout  = 5 * time.Second
	connMaxLifetime     = time.Hour
)

// Options 打开数据库的参数，零值使用默认
type Options struct {
	Path         string
	MaxOpenConns int
	BusyTimeout  time.Duration
}

func (o Options) withDefaults() Options {
	if o.Path == "" {
		o.Path = DefaultDBFile
	}
	if o.MaxOpenConns <= 0 {
		o.MaxOpenConns = DefaultMaxOpenConns
	}
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = DefaultBusyTimeout
	}
	return o
}

// dsn 连接串带上每个连接都要执行的 pragma：
// busy_timeout 写冲突时等待，WAL 让读不阻塞写，foreign_keys 打开约束检查
func (o Options) dsn() string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", o.BusyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "foreign_keys(1)")
	return "file:" + o.Path + "?" + q.Encode()
}

// DB 关联数据库连接
var DB *sql.DB

var dbFile = DefaultDBFile

var errDBNotInitialized = errors.New("database not initialized")

var log = logger.Named("database")

// Open 打开数据库并建表，不修改全局 DB
func Open(opts Options) (*sql.DB, error) {
	opts = opts.withDefaults()
	db, err := sql.Open("sqlite", opts.dsn())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns((opts.MaxOpenConns + 1) / 2)
	db.SetConnMaxLifetime(connMaxLifetime)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", opts.Path, err)
	}
	if err := InitSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Init 打开数据库并设为全局 DB
func Init(opts Options) error {
	opts = opts.withDefaults()
	db, err := Open(opts)
	if err != nil {
		return err
	}
	DB = db
	dbFile = opts.Path
	log.Info("Database initialized", "path", opts.Path, "max_open", opts.MaxOpenConns, "busy_timeout", opts.BusyTimeout)
	return nil
}

// Path 当前数据库文件路径
func Path() string {
	return dbFile
}

// Close 关闭全局 DB
func Close() error {
	if DB == nil {
		return nil
	}
	err := DB.Close()
	DB = nil
	return err
}

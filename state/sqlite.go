package state

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore 把账本快照保存在 sqlite 单行表里
// 适合多个 bot 实例共用一个数据库文件的部署方式
type SQLiteStore struct {
	db   *sql.DB
	name string // bot 实例名，作为主键
}

// NewSQLiteStore 打开（必要时创建）sqlite 快照存储
func NewSQLiteStore(dbPath, name string) (*SQLiteStore, error) {
	if name == "" {
		return nil, fmt.Errorf("bot name required for sqlite store")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("打开状态数据库失败: %w", err)
	}

	schema := `CREATE TABLE IF NOT EXISTS bot_state (
		name TEXT PRIMARY KEY,
		snapshot TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("初始化状态表失败: %w", err)
	}

	return &SQLiteStore{db: db, name: name}, nil
}

// Save 整行替换快照
func (s *SQLiteStore) Save(st *BotState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("序列化账本快照失败: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO bot_state (name, snapshot, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		s.name, string(data), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("写入账本快照失败: %w", err)
	}
	return nil
}

// Load 读取快照，不存在时返回 ErrStateNotFound
func (s *SQLiteStore) Load() (*BotState, error) {
	var data string
	err := s.db.QueryRow(`SELECT snapshot FROM bot_state WHERE name = ?`, s.name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("读取账本快照失败: %w", err)
	}
	var st BotState
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("解析账本快照失败: %w", err)
	}
	return &st, nil
}

// Close 关闭底层数据库
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

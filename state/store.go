package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// ErrStateNotFound 持久化快照不存在
var ErrStateNotFound = errors.New("state not found")

// Store 账本快照的持久化接口
// 每次 Save 写入完整快照，整体替换，无增量格式
type Store interface {
	Save(st *BotState) error
	Load() (*BotState, error)
}

// FileStore 把账本快照作为单个 JSON 文件保存
type FileStore struct {
	path string
}

// NewFileStore 创建文件快照存储
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Save 序列化并整体覆盖写入
func (f *FileStore) Save(st *BotState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化账本快照失败: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o644); err != nil {
		return fmt.Errorf("写入账本快照失败: %w", err)
	}
	return nil
}

// Load 读取并反序列化快照
func (f *FileStore) Load() (*BotState, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrStateNotFound
		}
		return nil, fmt.Errorf("读取账本快照失败: %w", err)
	}
	var st BotState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("解析账本快照失败: %w", err)
	}
	return &st, nil
}

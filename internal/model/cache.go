package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEntryNotFound 表示当前会话中没有该角色的缓存条目。
	ErrEntryNotFound = errors.New("cache entry not found")
	// ErrIncomplete 表示缓存条目还缺少 info 或 histories。
	ErrIncomplete = errors.New("cache entry incomplete")
)

// Slot 是每个角色需要凑齐的两类响应之一。
type Slot string

const (
	SlotInfo      Slot = "info"
	SlotHistories Slot = "histories"
)

// ParseSlot 校验槽位名称。
func ParseSlot(s string) (Slot, error) {
	switch Slot(s) {
	case SlotInfo, SlotHistories:
		return Slot(s), nil
	}
	return "", fmt.Errorf("unknown slot %q", s)
}

// CacheEntry 是某个会话下某个角色已收集到的响应。histories 在写入前已脱敏。
type CacheEntry struct {
	Entity    string          `json:"entity"`
	Info      json.RawMessage `json:"info,omitempty"`
	Histories json.RawMessage `json:"histories,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// IsComplete 两个槽位都已填充时返回 true。
func (e *CacheEntry) IsComplete() bool {
	return e != nil && len(e.Info) > 0 && len(e.Histories) > 0
}

// Set 把 payload 写入对应槽位。
func (e *CacheEntry) Set(slot Slot, payload json.RawMessage) {
	switch slot {
	case SlotInfo:
		e.Info = payload
	case SlotHistories:
		e.Histories = payload
	}
}

// ExportDocument 是最终下载文件的内容。
type ExportDocument struct {
	Info      json.RawMessage `json:"info"`
	Histories json.RawMessage `json:"histories"`
}

// Document 把完整的缓存条目合并为导出文档。
func (e *CacheEntry) Document() (ExportDocument, error) {
	if !e.IsComplete() {
		return ExportDocument{}, ErrIncomplete
	}
	return ExportDocument{Info: e.Info, Histories: e.Histories}, nil
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"chat-dumper-go/internal/hub"
	"chat-dumper-go/internal/model"
	"chat-dumper-go/internal/pipeline"
	"chat-dumper-go/internal/repository"
	"chat-dumper-go/pkg/log"
	"chat-dumper-go/pkg/storage"
	"chat-dumper-go/pkg/tasks"
)

// ErrArtifactNotFound 表示请求的导出文件不存在或尚未生成。
var ErrArtifactNotFound = errors.New("export artifact not found")

// Notifier 把导出完成的消息推送给页面脚本。
type Notifier interface {
	Notify(sessionID string, n hub.Notification)
}

// EventPublisher 对外发布导出完成事件。
type EventPublisher interface {
	PublishExportEvent(ctx context.Context, event tasks.ExportEvent) error
}

// ExportStatus 是某个角色在当前会话中的收集进度。
type ExportStatus struct {
	Entity       string          `json:"entity"`
	HasInfo      bool            `json:"hasInfo"`
	HasHistories bool            `json:"hasHistories"`
	Complete     bool            `json:"complete"`
	Exported     bool            `json:"exported"`
	FileName     string          `json:"fileName"`
	DownloadURL  string          `json:"downloadUrl,omitempty"`
	UpdatedAt    model.LocalTime `json:"updatedAt"`
}

// Artifact 是一次下载请求的结果：要么是可读取的内容，要么是重定向地址。
type Artifact struct {
	FileName    string
	RedirectURL string
	Body        io.ReadCloser
	Size        int64
}

// ExportService 接口定义了导出相关的业务操作。
type ExportService interface {
	// ExportIfReady 在条目完整且尚未导出时安排一次导出，返回是否由本次调用触发。
	ExportIfReady(ctx context.Context, sessionID, entity string) (bool, error)
	List(ctx context.Context, sessionID string) ([]ExportStatus, error)
	Locate(ctx context.Context, sessionID, entity string) (*Artifact, error)
	History(sessionID string) ([]model.ExportRecord, error)
	ClearSession(ctx context.Context, sessionID string) error
}

// ExportOptions 收集 ExportService 的可选依赖，未配置的项为 nil。
type ExportOptions struct {
	Delay    time.Duration
	Notifier Notifier
	Events   EventPublisher
	Audit    repository.ExportRecordRepository
}

type exportService struct {
	cache    repository.PayloadCacheRepository
	store    storage.ArtifactStore
	delay    time.Duration
	notifier Notifier
	events   EventPublisher
	audit    repository.ExportRecordRepository

	mu      sync.Mutex
	pending map[string]map[string]*time.Timer
}

// NewExportService 创建一个新的 ExportService 实例。
func NewExportService(cache repository.PayloadCacheRepository, store storage.ArtifactStore, opts ExportOptions) ExportService {
	return &exportService{
		cache:    cache,
		store:    store,
		delay:    opts.Delay,
		notifier: opts.Notifier,
		events:   opts.Events,
		audit:    opts.Audit,
		pending:  make(map[string]map[string]*time.Timer),
	}
}

// ObjectKey 返回导出文件在存储中的 key。
func ObjectKey(sessionID, entity string) string {
	return sessionPrefix(sessionID) + url.PathEscape(entity) + ".json"
}

func sessionPrefix(sessionID string) string {
	return "exports/" + sessionID + "/"
}

// FileName 返回下载时使用的文件名。
func FileName(entity string) string {
	return entity + ".json"
}

// DownloadPath 返回角色导出文件的下载路径。
func DownloadPath(entity string) string {
	return "/api/v1/exports/" + url.PathEscape(entity)
}

func (s *exportService) ExportIfReady(ctx context.Context, sessionID, entity string) (bool, error) {
	complete, err := s.cache.IsComplete(ctx, sessionID, entity)
	if err != nil {
		return false, fmt.Errorf("检查缓存条目失败: %w", err)
	}
	if !complete {
		return false, nil
	}

	first, err := s.cache.MarkExported(ctx, sessionID, entity)
	if err != nil {
		return false, fmt.Errorf("设置导出标记失败: %w", err)
	}
	if !first {
		// 文件只写一次；页面重新加载后仍需要再次收到下载链接
		if s.exported(ctx, sessionID, entity) {
			log.Debugf("[ExportIfReady] 角色已导出过，重新推送下载链接。会话: %s, 角色: %s", sessionID, entity)
			s.notify(sessionID, entity)
		}
		return false, nil
	}

	if s.delay <= 0 {
		return true, s.export(ctx, sessionID, entity)
	}

	// 延迟执行时原请求可能已结束，不能继承它的取消信号。
	bg := context.WithoutCancel(ctx)
	s.mu.Lock()
	timers, ok := s.pending[sessionID]
	if !ok {
		timers = make(map[string]*time.Timer)
		s.pending[sessionID] = timers
	}
	timers[entity] = time.AfterFunc(s.delay, func() {
		s.forget(sessionID, entity)
		if err := s.export(bg, sessionID, entity); err != nil {
			log.Errorf("[ExportIfReady] 延迟导出失败，会话: %s, 角色: %s, error: %v", sessionID, entity, err)
		}
	})
	s.mu.Unlock()
	log.Infof("[ExportIfReady] 已安排导出，%s 后执行。角色: %s", s.delay, entity)
	return true, nil
}

func (s *exportService) forget(sessionID, entity string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if timers, ok := s.pending[sessionID]; ok {
		delete(timers, entity)
		if len(timers) == 0 {
			delete(s.pending, sessionID)
		}
	}
}

// export 合并缓存条目、写入存储，并依次通知订阅方。
func (s *exportService) export(ctx context.Context, sessionID, entity string) error {
	entry, err := s.cache.Get(ctx, sessionID, entity)
	if err != nil {
		return fmt.Errorf("读取缓存条目失败: %w", err)
	}
	doc, err := entry.Document()
	if err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("序列化导出文档失败: %w", err)
	}

	key := ObjectKey(sessionID, entity)
	if err := s.store.Put(ctx, key, data, "application/json"); err != nil {
		return fmt.Errorf("写入导出文件失败: %w", err)
	}
	log.Infof("[export] 导出文件已写入，角色: %s, 大小: %d bytes", entity, len(data))

	var summary pipeline.Report
	if h, err := model.DecodeCharacterHistories(entry.Histories); err == nil {
		summary = pipeline.Summarize(h)
	} else {
		log.Warnf("[export] 无法统计导出内容: %v", err)
	}

	if s.audit != nil {
		record := &model.ExportRecord{
			SessionID:        sessionID,
			Entity:           entity,
			ObjectKey:        key,
			SizeBytes:        int64(len(data)),
			Conversations:    summary.Conversations,
			Messages:         summary.Messages,
			RedactedFields:   summary.RedactedFields,
			RedactedMentions: summary.RedactedMentions,
		}
		if err := s.audit.Create(record); err != nil {
			log.Errorf("[export] 写入导出审计记录失败: %v", err)
		}
	}

	s.notify(sessionID, entity)

	if s.events != nil {
		event := tasks.ExportEvent{
			SessionID:     sessionID,
			Entity:        entity,
			ObjectKey:     key,
			SizeBytes:     int64(len(data)),
			Conversations: summary.Conversations,
			Messages:      summary.Messages,
			ExportedAt:    time.Now(),
		}
		if err := s.events.PublishExportEvent(ctx, event); err != nil {
			log.Errorf("[export] 发布导出事件失败: %v", err)
		}
	}
	return nil
}

func (s *exportService) notify(sessionID, entity string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(sessionID, hub.Notification{
		Type:     hub.TypeExportReady,
		Entity:   entity,
		FileName: FileName(entity),
		URL:      DownloadPath(entity),
	})
}

// exported 报告导出文件是否已经写入存储。
func (s *exportService) exported(ctx context.Context, sessionID, entity string) bool {
	body, _, err := s.store.Open(ctx, ObjectKey(sessionID, entity))
	if err != nil {
		return false
	}
	body.Close()
	return true
}

func (s *exportService) List(ctx context.Context, sessionID string) ([]ExportStatus, error) {
	entities, err := s.cache.Entities(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	statuses := make([]ExportStatus, 0, len(entities))
	for _, entity := range entities {
		entry, err := s.cache.Get(ctx, sessionID, entity)
		if errors.Is(err, model.ErrEntryNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		status := ExportStatus{
			Entity:       entity,
			HasInfo:      len(entry.Info) > 0,
			HasHistories: len(entry.Histories) > 0,
			Complete:     entry.IsComplete(),
			FileName:     FileName(entity),
			UpdatedAt:    model.LocalTime(entry.UpdatedAt),
		}
		if status.Complete && s.exported(ctx, sessionID, entity) {
			status.Exported = true
			status.DownloadURL = DownloadPath(entity)
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func (s *exportService) Locate(ctx context.Context, sessionID, entity string) (*Artifact, error) {
	key := ObjectKey(sessionID, entity)
	body, size, err := s.store.Open(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, entity)
	}
	if err != nil {
		return nil, err
	}

	artifact := &Artifact{FileName: FileName(entity)}
	redirect, err := s.store.PresignedURL(ctx, key, artifact.FileName)
	if err != nil {
		body.Close()
		return nil, err
	}
	if redirect != "" {
		body.Close()
		artifact.RedirectURL = redirect
		return artifact, nil
	}
	artifact.Body = body
	artifact.Size = size
	return artifact, nil
}

func (s *exportService) History(sessionID string) ([]model.ExportRecord, error) {
	if s.audit == nil {
		return []model.ExportRecord{}, nil
	}
	return s.audit.FindBySession(sessionID)
}

// ClearSession 取消未执行的导出，并删除会话的缓存、导出文件与审计记录。
func (s *exportService) ClearSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	for _, timer := range s.pending[sessionID] {
		timer.Stop()
	}
	delete(s.pending, sessionID)
	s.mu.Unlock()

	var errs []error
	if err := s.cache.Clear(ctx, sessionID); err != nil {
		errs = append(errs, fmt.Errorf("清理缓存失败: %w", err))
	}
	if err := s.store.DeletePrefix(ctx, sessionPrefix(sessionID)); err != nil {
		errs = append(errs, fmt.Errorf("删除导出文件失败: %w", err))
	}
	if s.audit != nil {
		if err := s.audit.DeleteBySession(sessionID); err != nil {
			errs = append(errs, fmt.Errorf("删除审计记录失败: %w", err))
		}
	}
	return errors.Join(errs...)
}

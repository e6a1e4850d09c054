// Package service 包含了应用的业务逻辑层。
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"chat-dumper-go/internal/config"
	"chat-dumper-go/internal/model"
	"chat-dumper-go/internal/pipeline"
	"chat-dumper-go/internal/repository"
	"chat-dumper-go/pkg/log"
	"chat-dumper-go/pkg/tasks"
)

// Outcome 状态取值。
const (
	StatusIgnored = "ignored"
	StatusCached  = "cached"
	StatusQueued  = "queued"
	StatusDropped = "dropped"
)

// Outcome 描述一次拦截响应的处理结果，拦截接口总是以 200 返回它。
type Outcome struct {
	Status    string `json:"status"`
	Slot      string `json:"slot,omitempty"`
	Entity    string `json:"entity,omitempty"`
	Complete  bool   `json:"complete"`
	Exporting bool   `json:"exporting"`
	Reason    string `json:"reason,omitempty"`
}

// TaskPublisher 把拦截任务投递到消息队列。
type TaskPublisher interface {
	ProduceInterceptTask(ctx context.Context, task tasks.InterceptTask) error
}

// InterceptService 接口定义了拦截响应的处理操作。
type InterceptService interface {
	// Submit 是 HTTP 接入口：同步模式直接处理，kafka 模式投递后立即返回。
	Submit(ctx context.Context, sessionID string, resp model.InterceptedResponse) Outcome
	// Observe 同步处理一条拦截响应，所有错误都被记录并吞掉。
	Observe(ctx context.Context, sessionID string, resp model.InterceptedResponse) Outcome
	// Process 供 Kafka 消费者调用。
	Process(ctx context.Context, task tasks.InterceptTask) error
}

type interceptService struct {
	cfg       config.InterceptConfig
	cache     repository.PayloadCacheRepository
	exporter  ExportService
	publisher TaskPublisher
}

// NewInterceptService 创建一个新的 InterceptService 实例。publisher 只在 kafka 模式下使用，可以为 nil。
func NewInterceptService(cfg config.InterceptConfig, cache repository.PayloadCacheRepository, exporter ExportService, publisher TaskPublisher) InterceptService {
	return &interceptService{
		cfg:       cfg,
		cache:     cache,
		exporter:  exporter,
		publisher: publisher,
	}
}

// route 按完整 URL 精确匹配两个接口。
func (s *interceptService) route(finalURL string) (model.Slot, bool) {
	switch finalURL {
	case s.cfg.InfoURL:
		return model.SlotInfo, true
	case s.cfg.HistoriesURL:
		return model.SlotHistories, true
	}
	return "", false
}

func (s *interceptService) Submit(ctx context.Context, sessionID string, resp model.InterceptedResponse) Outcome {
	if s.cfg.Mode != "kafka" || s.publisher == nil {
		return s.Observe(ctx, sessionID, resp)
	}
	slot, ok := s.route(resp.FinalURL)
	if !ok {
		return Outcome{Status: StatusIgnored}
	}
	task := tasks.InterceptTask{
		SessionID:  sessionID,
		FinalURL:   resp.FinalURL,
		Data:       resp.Data,
		ReceivedAt: time.Now(),
	}
	if err := s.publisher.ProduceInterceptTask(ctx, task); err != nil {
		log.Errorf("[Submit] 投递拦截任务失败，会话: %s, error: %v", sessionID, err)
		return Outcome{Status: StatusDropped, Slot: string(slot), Reason: "queue unavailable"}
	}
	return Outcome{Status: StatusQueued, Slot: string(slot)}
}

func (s *interceptService) Process(ctx context.Context, task tasks.InterceptTask) error {
	out := s.Observe(ctx, task.SessionID, model.InterceptedResponse{FinalURL: task.FinalURL, Data: task.Data})
	if out.Status == StatusDropped {
		return errors.New(out.Reason)
	}
	return nil
}

func (s *interceptService) Observe(ctx context.Context, sessionID string, resp model.InterceptedResponse) (out Outcome) {
	slot, ok := s.route(resp.FinalURL)
	if !ok {
		return Outcome{Status: StatusIgnored}
	}

	defer func() {
		if r := recover(); r != nil {
			log.Errorw("处理拦截响应时发生 panic", "session", sessionID, "slot", slot, "panic", r)
			out = Outcome{Status: StatusDropped, Slot: string(slot), Reason: "internal error"}
		}
	}()

	out, err := s.observe(ctx, sessionID, slot, resp)
	if err != nil {
		log.Warnw("处理拦截响应失败", "session", sessionID, "slot", slot, "error", err)
		// 已写入缓存的响应保留 cached 状态
		if out.Status == "" {
			out.Status = StatusDropped
		}
		out.Reason = reason(err)
	}
	return out
}

func (s *interceptService) observe(ctx context.Context, sessionID string, slot model.Slot, resp model.InterceptedResponse) (Outcome, error) {
	out := Outcome{Slot: string(slot)}

	body, err := resp.Body()
	if err != nil {
		return out, err
	}
	entity, payload, err := prepare(slot, body)
	if err != nil {
		return out, err
	}
	out.Entity = entity

	entry, err := s.cache.Record(ctx, sessionID, entity, slot, payload)
	if err != nil {
		return out, fmt.Errorf("写入缓存失败: %w", err)
	}
	out.Status = StatusCached
	out.Complete = entry.IsComplete()
	log.Infow("拦截响应已缓存", "session", sessionID, "slot", slot, "entity", entity, "complete", out.Complete)

	if out.Complete {
		started, err := s.exporter.ExportIfReady(ctx, sessionID, entity)
		out.Exporting = started
		if err != nil {
			return out, fmt.Errorf("导出失败: %w", err)
		}
	}
	return out, nil
}

// prepare 解析响应体并返回角色名与要缓存的内容。histories 会先脱敏。
func prepare(slot model.Slot, body []byte) (string, json.RawMessage, error) {
	switch slot {
	case model.SlotInfo:
		info, err := model.DecodeCharacterInfo(body)
		if err != nil {
			return "", nil, err
		}
		payload, err := json.Marshal(info)
		if err != nil {
			return "", nil, err
		}
		return info.EntityID(), payload, nil
	case model.SlotHistories:
		h, err := model.DecodeCharacterHistories(body)
		if err != nil {
			return "", nil, err
		}
		// 角色名来自第一条消息的 src.name，必须在脱敏前读取。
		entity := h.EntityID()
		_, report := pipeline.Anonymize(h)
		log.Infow("对话记录已脱敏",
			"entity", entity,
			"conversations", report.Conversations,
			"messages", report.Messages,
			"redacted_fields", report.RedactedFields,
			"redacted_mentions", report.RedactedMentions,
			"identifiers", report.Identifiers,
		)
		payload, err := json.Marshal(h)
		if err != nil {
			return "", nil, err
		}
		return entity, payload, nil
	}
	return "", nil, fmt.Errorf("unknown slot %q", slot)
}

func reason(err error) string {
	if errors.Is(err, model.ErrMalformedPayload) {
		return "malformed payload"
	}
	return "processing failed"
}

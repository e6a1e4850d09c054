package handler

import (
	"errors"
	"mime"
	"net/http"
	"net/url"

	"chat-dumper-go/internal/hub"
	"chat-dumper-go/internal/middleware"
	"chat-dumper-go/internal/service"
	"chat-dumper-go/pkg/log"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// 来源已由 CORS 配置与会话令牌约束
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ExportHandler 负责导出文件的查询、下载与完成通知。
type ExportHandler struct {
	exporter service.ExportService
	hub      *hub.Hub
}

// NewExportHandler 创建一个新的 ExportHandler 实例。
func NewExportHandler(exporter service.ExportService, h *hub.Hub) *ExportHandler {
	return &ExportHandler{exporter: exporter, hub: h}
}

// List 返回当前会话中各角色的收集进度与历史导出记录。
func (h *ExportHandler) List(c *gin.Context) {
	sessionID := middleware.SessionID(c)
	statuses, err := h.exporter.List(c.Request.Context(), sessionID)
	if err != nil {
		log.Errorf("List: 查询会话 %s 的缓存失败, error: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "查询失败", "data": nil})
		return
	}
	records, err := h.exporter.History(sessionID)
	if err != nil {
		log.Errorf("List: 查询导出记录失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "查询失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"entities": statuses,
			"exports":  records,
		},
	})
}

// Download 以附件形式返回 <角色名>.json，对象存储则重定向到预签名地址。
func (h *ExportHandler) Download(c *gin.Context) {
	entity := c.Param("entity")
	// 路由按原始路径匹配时参数仍是转义形式
	if c.Request.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(entity)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "角色名无效", "data": nil})
			return
		}
		entity = unescaped
	}
	artifact, err := h.exporter.Locate(c.Request.Context(), middleware.SessionID(c), entity)
	if errors.Is(err, service.ErrArtifactNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": "导出文件不存在", "data": nil})
		return
	}
	if err != nil {
		log.Errorf("Download: 读取导出文件失败, error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "服务器内部错误", "data": nil})
		return
	}

	if artifact.RedirectURL != "" {
		c.Redirect(http.StatusFound, artifact.RedirectURL)
		return
	}
	defer artifact.Body.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": artifact.FileName})
	c.DataFromReader(http.StatusOK, artifact.Size, "application/json", artifact.Body, map[string]string{
		"Content-Disposition": disposition,
	})
}

// Subscribe 把连接升级为 WebSocket，接收本会话的导出完成通知。
func (h *ExportHandler) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	sessionID := middleware.SessionID(c)
	log.Infof("WebSocket 连接已建立，会话: %s", sessionID)
	h.hub.ServeWs(conn, sessionID)
}

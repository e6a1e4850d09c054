// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"net/http"
	"net/url"

	"chat-dumper-go/internal/middleware"
	"chat-dumper-go/internal/service"
	"chat-dumper-go/pkg/log"
	"chat-dumper-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// SessionHandler 负责会话的创建与销毁。
type SessionHandler struct {
	jwtManager *token.JWTManager
	exporter   service.ExportService
	publicURL  string
}

// NewSessionHandler 创建一个新的 SessionHandler 实例。
func NewSessionHandler(jwtManager *token.JWTManager, exporter service.ExportService, publicURL string) *SessionHandler {
	return &SessionHandler{jwtManager: jwtManager, exporter: exporter, publicURL: publicURL}
}

// Create 签发一个新会话，并返回加载注入脚本的地址。
func (h *SessionHandler) Create(c *gin.Context) {
	sessionID, tokenString, err := h.jwtManager.NewSession()
	if err != nil {
		log.Error("Create: 签发会话令牌失败", err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "服务器内部错误", "data": nil})
		return
	}

	log.Infof("新会话已创建: %s", sessionID)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data": gin.H{
			"sessionId": sessionID,
			"token":     tokenString,
			"shimUrl":   h.publicURL + "/shim.js?token=" + url.QueryEscape(tokenString),
		},
	})
}

// Delete 清除会话的缓存与导出文件。
func (h *SessionHandler) Delete(c *gin.Context) {
	sessionID := middleware.SessionID(c)
	if err := h.exporter.ClearSession(c.Request.Context(), sessionID); err != nil {
		log.Errorf("Delete: 清理会话 %s 失败, error: %v", sessionID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "清理会话失败", "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "session cleared", "data": nil})
}

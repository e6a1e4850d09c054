package handler

import (
	"net/http"

	"chat-dumper-go/internal/middleware"
	"chat-dumper-go/internal/model"
	"chat-dumper-go/internal/service"
	"chat-dumper-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// InterceptHandler 接收注入脚本转发的网络响应。
type InterceptHandler struct {
	interceptService service.InterceptService
}

// NewInterceptHandler 创建一个新的 InterceptHandler 实例。
func NewInterceptHandler(interceptService service.InterceptService) *InterceptHandler {
	return &InterceptHandler{interceptService: interceptService}
}

// Intercept 处理一条转发的响应。页面脚本不关心处理结果，这里总是返回 200。
func (h *InterceptHandler) Intercept(c *gin.Context) {
	var req model.InterceptedResponse
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Intercept: 无效的请求负载, error: %v", err)
		c.JSON(http.StatusOK, gin.H{
			"code":    http.StatusOK,
			"message": "dropped",
			"data":    service.Outcome{Status: service.StatusDropped, Reason: "malformed payload"},
		})
		return
	}

	outcome := h.interceptService.Submit(c.Request.Context(), middleware.SessionID(c), req)
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": outcome.Status,
		"data":    outcome,
	})
}

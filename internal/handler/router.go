package handler

import (
	"net/http"

	"chat-dumper-go/internal/middleware"
	"chat-dumper-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// Handlers 汇总注册路由所需的全部处理器。
type Handlers struct {
	Session   *SessionHandler
	Intercept *InterceptHandler
	Export    *ExportHandler
	Shim      *ShimHandler
}

// RegisterRoutes 在 r 上注册所有路由。
func RegisterRoutes(r *gin.Engine, jwtManager *token.JWTManager, h Handlers) {
	// 角色名可能包含 "/"，按转义后的原始路径匹配 :entity，由 Download 自行解码
	r.UseRawPath = true
	r.UnescapePathValues = false

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok", "data": nil})
	})

	authed := middleware.SessionMiddleware(jwtManager)

	// 注入脚本通过 <script src> 加载，令牌放在查询参数里
	r.GET("/shim.js", authed, h.Shim.Serve)

	apiV1 := r.Group("/api/v1")
	{
		sessions := apiV1.Group("/sessions")
		{
			// 无需认证：创建会话
			sessions.POST("", h.Session.Create)
			sessions.DELETE("", authed, h.Session.Delete)
		}

		apiV1.POST("/intercept", authed, h.Intercept.Intercept)
		apiV1.GET("/ws", authed, h.Export.Subscribe)

		exports := apiV1.Group("/exports")
		exports.Use(authed)
		{
			exports.GET("", h.Export.List)
			exports.GET("/:entity", h.Export.Download)
		}
	}
}

// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"chat-dumper-go/pkg/token"

	"github.com/gin-gonic/gin"
)

const sessionKey = "session"

// SessionMiddleware 创建一个 Gin 中间件，用于校验会话令牌。
// 令牌优先取 Authorization: Bearer 头；WebSocket 与下载链接无法设置请求头，退而使用 token 查询参数。
func SessionMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未携带会话令牌", "data": nil})
			return
		}

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的会话令牌", "data": nil})
			return
		}

		// 会话 ID 与 claims 存入上下文，供后续处理函数使用
		c.Set(sessionKey, claims.SessionID())
		c.Set("claims", claims)
		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	const bearerPrefix = "Bearer "
	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, bearerPrefix) {
		return strings.TrimPrefix(authHeader, bearerPrefix)
	}
	return c.Query("token")
}

// SessionID 返回 SessionMiddleware 写入的会话 ID。
func SessionID(c *gin.Context) string {
	return c.GetString(sessionKey)
}

package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 认证中间件
// 校验请求携带的 Bearer token 与配置一致。
// 未配置 token 时直接放行，适用于仅监听本机回环地址的部署。
func AuthMiddleware(expectedToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if expectedToken == "" {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			rejectUnauthorized(c, "未提供认证令牌")
			return
		}

		token := strings.TrimPrefix(header, "Bearer ")
		if token == "" || token == header {
			rejectUnauthorized(c, "认证令牌格式错误")
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
			rejectUnauthorized(c, "无效的认证令牌")
			return
		}

		c.Set("token", token)
		c.Next()
	}
}

func rejectUnauthorized(c *gin.Context, message string) {
	c.JSON(http.StatusUnauthorized, gin.H{
		"status":  "error",
		"message": message,
	})
	c.Abort()
}

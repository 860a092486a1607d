// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"smartdoc-go/internal/model"
	"smartdoc-go/internal/service"
	"smartdoc-go/pkg/log"
	"smartdoc-go/pkg/token"

	"github.com/gin-gonic/gin"
)

const (
	contextUserKey   = "user"
	contextClaimsKey = "claims"
)

func unauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": message, "data": nil})
}

// bearerToken 优先读取 Authorization 头；WebSocket 握手无法设置请求头，允许使用 token 查询参数。
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		if q := c.Query("token"); q != "" {
			return q, true
		}
		return "", false
	}
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return "", false
	}
	return strings.TrimPrefix(authHeader, bearerPrefix), true
}

// AuthMiddleware 校验 access token 与黑名单，并将完整的 User 对象存入 Gin 的上下文中。
func AuthMiddleware(jwtManager *token.JWTManager, userService service.UserService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			unauthorized(c, "请求未包含有效的授权头")
			return
		}

		claims, err := jwtManager.VerifyKind(tokenString, token.KindAccess)
		if err != nil {
			unauthorized(c, "无效或已过期的 token")
			return
		}

		revoked, err := userService.IsTokenRevoked(c.Request.Context(), claims.ID)
		if err != nil {
			log.Errorf("[AuthMiddleware] 查询 token 黑名单失败: %v", err)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"code": http.StatusServiceUnavailable, "message": "认证服务暂不可用", "data": nil})
			return
		}
		if revoked {
			unauthorized(c, "token 已注销")
			return
		}

		// 用户可能已被删除
		user, err := userService.GetProfile(claims.Username)
		if err != nil {
			unauthorized(c, "用户不存在")
			return
		}

		c.Set(contextUserKey, user)
		c.Set(contextClaimsKey, claims)
		c.Next()
	}
}

// CurrentUser 返回 AuthMiddleware 写入的用户。
func CurrentUser(c *gin.Context) (*model.User, bool) {
	v, ok := c.Get(contextUserKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok
}

// CurrentClaims 返回 AuthMiddleware 写入的 claims。
func CurrentClaims(c *gin.Context) (*token.CustomClaims, bool) {
	v, ok := c.Get(contextClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*token.CustomClaims)
	return claims, ok
}

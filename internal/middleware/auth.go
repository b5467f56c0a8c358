package middleware

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"yatube/internal/model"
	"yatube/internal/service"
)

const (
	ContextUserIDKey   = "user_id"
	ContextUsernameKey = "username"
	ContextRoleKey     = "role"

	AccessTokenCookie = "access_token"
)

// Authenticator 校验 access token
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (service.Identity, error)
}

// AuthMiddleware 解析 Bearer 头或 access_token cookie；令牌无效时按匿名用户继续
func AuthMiddleware(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := bearerToken(c)
		if tokenStr == "" {
			c.Next()
			return
		}

		id, err := auth.Authenticate(c.Request.Context(), tokenStr)
		if err != nil {
			c.Next()
			return
		}

		// 注入 user_id
		c.Set(ContextUserIDKey, id.ID)
		c.Set(ContextUsernameKey, id.Username)
		c.Set(ContextRoleKey, id.Role)
		c.Next()
	}
}

// LoginRequired 未登录跳转到登录页，带上 next
func LoginRequired(loginURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Identity(c).Authenticated() {
			c.Redirect(http.StatusFound, LoginRedirect(loginURL, c.Request.URL.RequestURI()))
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminRequired 需要管理员角色
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if UserID(c) == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "unauthorized"})
			return
		}
		if c.GetInt(ContextRoleKey) < model.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"msg": "forbidden"})
			return
		}
		c.Next()
	}
}

func LoginRedirect(loginURL, next string) string {
	return loginURL + "?next=" + url.QueryEscape(next)
}

// UserID 未登录时为 0
func UserID(c *gin.Context) uint64 {
	if v, ok := c.Get(ContextUserIDKey); ok {
		if id, ok2 := v.(uint64); ok2 {
			return id
		}
	}
	return 0
}

func Identity(c *gin.Context) service.Identity {
	id := service.Identity{ID: UserID(c)}
	if id.ID == 0 {
		return id
	}
	id.Username = c.GetString(ContextUsernameKey)
	id.Role = c.GetInt(ContextRoleKey)
	return id
}

func bearerToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil {
		return cookie
	}
	return ""
}

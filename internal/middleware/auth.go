package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"learnhub_backend/internal/config"
	"learnhub_backend/internal/model"
	"learnhub_backend/internal/service"
	"learnhub_backend/internal/util"
	"learnhub_backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func tokenFromRequest(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		if token, ok := strings.CutPrefix(authHeader, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	// 浏览器直接打开下载链接时只能通过查询参数携带令牌
	return c.Query("token")
}

// authenticate 校验令牌签名，启用会话存储时还要求会话仍然存在
func authenticate(c *gin.Context, cfg *config.Config, sessions service.SessionStore) *util.Claims {
	tokenString := tokenFromRequest(c)
	if tokenString == "" {
		return nil
	}

	claims, err := util.ParseJWT(tokenString, cfg.JWT.Secret)
	if err != nil {
		logger.Log.Debug("JWT解析错误", zap.Error(err))
		return nil
	}
	if !claims.Role.Valid() {
		return nil
	}

	if sessions != nil {
		ok, err := sessions.Exists(c.Request.Context(), claims.SessionID())
		if err != nil {
			logger.Log.Error("session lookup failed", zap.Error(err))
			return nil
		}
		if !ok {
			return nil
		}
	}
	return claims
}

// AuthMiddleware JSON 接口认证，失败返回 401
func AuthMiddleware(cfg *config.Config, sessions service.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := authenticate(c, cfg, sessions)
		if claims == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}
		c.Set(util.UserContextKey, claims)
		c.Next()
	}
}

// PageAuthMiddleware 页面类请求认证，失败时跳转登录页并带上原始地址
func PageAuthMiddleware(cfg *config.Config, sessions service.SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := authenticate(c, cfg, sessions)
		if claims == nil {
			target := cfg.Server.LoginURL
			if target == "" {
				target = "/login"
			}
			sep := "?"
			if strings.Contains(target, "?") {
				sep = "&"
			}
			c.Redirect(http.StatusFound, target+sep+"next="+url.QueryEscape(c.Request.URL.RequestURI()))
			c.Abort()
			return
		}
		c.Set(util.UserContextKey, claims)
		c.Next()
	}
}

func RoleMiddleware(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := util.GetUserFromContext(c)
		if user == nil {
			util.Unauthorized(c)
			c.Abort()
			return
		}

		// 管理员拥有所有角色的权限
		hasRole := user.Role == model.Admin
		for _, role := range roles {
			if user.Role == role {
				hasRole = true
				break
			}
		}

		if !hasRole {
			util.Forbidden(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentActor 从上下文取出调用者身份，未认证时为零值
func CurrentActor(c *gin.Context) service.Actor {
	return service.ActorFromClaims(util.GetUserFromContext(c))
}

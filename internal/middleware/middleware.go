package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"secure-video-access/configs"
	"secure-video-access/internal/auth"
	"secure-video-access/internal/cache"

	"github.com/gin-gonic/gin"
)

// Context keys set by Auth for downstream handlers.
const (
	CtxUserID = "user_id"
	CtxAdmin  = "is_admin"
)

// Auth validates the request's capability before anything reaches the
// engine: an API key or a Bearer token, in that order of preference.
func Auth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		authHeader := c.GetHeader("Authorization")
		var tokenString string
		if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString = strings.TrimPrefix(authHeader, "Bearer ")
		}

		switch {
		case apiKey != "":
			user, err := authService.ValidateAPIKey(c.Request.Context(), apiKey)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
				c.Abort()
				return
			}
			c.Set(CtxUserID, user.ID)
			c.Set(CtxAdmin, user.Admin)

		case tokenString != "":
			claims, err := authService.ValidateToken(tokenString)
			if err != nil {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
				c.Abort()
				return
			}
			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxAdmin, claims.Admin)

		default:
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// OptionalAuth resolves credentials when present but lets anonymous
// requests through. Public-video view tracking accepts guests; the
// permission check downstream decides what they may do.
func OptionalAuth(authService *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}
		authHeader := c.GetHeader("Authorization")

		if apiKey != "" {
			if user, err := authService.ValidateAPIKey(c.Request.Context(), apiKey); err == nil {
				c.Set(CtxUserID, user.ID)
				c.Set(CtxAdmin, user.Admin)
			}
		} else if strings.HasPrefix(authHeader, "Bearer ") {
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if claims, err := authService.ValidateToken(tokenString); err == nil {
				c.Set(CtxUserID, claims.UserID)
				c.Set(CtxAdmin, claims.Admin)
			}
		}
		c.Next()
	}
}

// CallerID returns the authenticated user id, 0 when anonymous.
func CallerID(c *gin.Context) uint64 {
	if v, ok := c.Get(CtxUserID); ok {
		if id, ok := v.(uint64); ok {
			return id
		}
	}
	return 0
}

// CallerIsAdmin reports the authenticated caller's admin flag.
func CallerIsAdmin(c *gin.Context) bool {
	if v, ok := c.Get(CtxAdmin); ok {
		if admin, ok := v.(bool); ok {
			return admin
		}
	}
	return false
}

// RateLimit caps requests per caller per hour using the shared counter
// cache. A broken cache fails open.
func RateLimit(hot *cache.HotCache, cfg *configs.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := CallerID(c)
		if userID == 0 {
			c.Next()
			return
		}

		key := fmt.Sprintf("rate_limit:%d:%s", userID, time.Now().Format("2006-01-02-15"))
		count, err := hot.Increment(c.Request.Context(), key, 1)
		if err != nil {
			c.Next()
			return
		}
		if count == 1 {
			hot.Expire(c.Request.Context(), key, time.Hour)
		}

		if count > int64(cfg.RateLimitPerHour) {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":     "Rate limit exceeded",
				"limit":     cfg.RateLimitPerHour,
				"remaining": 0,
			})
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Limit", fmt.Sprintf("%d", cfg.RateLimitPerHour))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", cfg.RateLimitPerHour-int(count)))
		c.Next()
	}
}

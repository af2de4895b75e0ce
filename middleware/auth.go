package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oksnap/oksnap/utils"
)

// ContextUserIDKey is the key used to store the authenticated user ID in Gin context.
const ContextUserIDKey = "user_id"

// OptionalIdentity extracts the user ID from a Bearer JWT when one is
// presented. Anonymous requests pass through untouched: quota accounting
// treats them as guests keyed by client IP. A malformed or expired token
// is also treated as anonymous rather than rejected, so a stale session
// degrades to guest limits instead of breaking the scanner.
func OptionalIdentity() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			ctx.Next()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			ctx.Next()
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			ctx.Next()
			return
		}

		claims, err := utils.ParseToken(tokenString)
		if err != nil {
			utils.Sugar.Debugw("ignoring invalid bearer token", "error", err)
			ctx.Next()
			return
		}

		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Next()
	}
}

// UserID returns the authenticated user ID, or "" for guests.
func UserID(ctx *gin.Context) string {
	if v, ok := ctx.Get(ContextUserIDKey); ok {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// ClientIP resolves the caller's IP, honoring proxy headers first so that
// deployments behind a CDN key guests correctly.
func ClientIP(ctx *gin.Context) string {
	if fwd := ctx.GetHeader("X-Forwarded-For"); fwd != "" {
		if first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0]); first != "" {
			return first
		}
	}
	if real := strings.TrimSpace(ctx.GetHeader("X-Real-IP")); real != "" {
		return real
	}
	if ip := ctx.ClientIP(); ip != "" {
		return ip
	}
	return "127.0.0.1"
}

package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docfinder/internal/pkg/errcode"
	"github.com/xxxsen/docfinder/internal/pkg/jwt"
	"github.com/xxxsen/docfinder/internal/pkg/response"
)

const (
	ContextSubjectKey = "subject"
	ContextScopeKey   = "scope"
)

func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, errcode.ErrUnauthorized, "missing authorization")
			c.Abort()
			return
		}
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, errcode.ErrUnauthorized, "invalid authorization")
			c.Abort()
			return
		}
		claims, err := jwt.ParseToken(strings.TrimSpace(parts[1]), secret)
		if err != nil {
			RequestLogger(c).Warn("reject token")
			response.Error(c, errcode.ErrUnauthorized, "invalid token")
			c.Abort()
			return
		}
		c.Set(ContextSubjectKey, claims.Subject)
		if claims.Scope != "" {
			c.Set(ContextScopeKey, claims.Scope)
		}
		c.Next()
	}
}

const (
	ScopeRead  = "read"
	ScopeWrite = "write"
)

// RequireScope rejects tokens whose comma separated scope list lacks scope.
// Requests without a scope (auth disabled or an unscoped token) pass.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		granted := c.GetString(ContextScopeKey)
		if granted == "" || hasScope(granted, scope) {
			c.Next()
			return
		}
		RequestLogger(c).Warn("reject token scope")
		response.Error(c, errcode.ErrUnauthorized, "token scope does not allow this route")
		c.Abort()
	}
}

func hasScope(granted, scope string) bool {
	for _, item := range strings.Split(granted, ",") {
		if strings.EqualFold(strings.TrimSpace(item), scope) {
			return true
		}
	}
	return false
}

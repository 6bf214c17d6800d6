package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"opname/internal/core/apperror"
	appctx "opname/internal/core/context"
	"opname/internal/core/security"
)

// JWTValidator interface for token validation.
type JWTValidator interface {
	ValidateToken(tokenString string) (*appctx.UserContext, error)
}

// Auth middleware validates JWT tokens and populates user context.
func Auth(validator JWTValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		user, err := validator.ValidateToken(parts[1])
		if err != nil {
			abortUnauthorized(c, "invalid token")
			return
		}

		ctx := appctx.WithUser(c.Request.Context(), user)
		c.Request = c.Request.WithContext(ctx)

		c.Set("user_id", user.UserID)
		c.Set("role", string(user.Role))

		c.Next()
	}
}

// RequireCapability guards a route group behind one capability.
// The check reads the capability set resolved at token validation;
// no handler ever branches on the raw role string.
func RequireCapability(cap security.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !appctx.HasCapability(c.Request.Context(), cap) {
			_ = c.Error(
				apperror.NewForbidden("missing capability").
					WithDetail("capability", string(cap)),
			)
			c.Abort()
			return
		}
		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, message string) {
	_ = c.Error(apperror.NewUnauthorized(message))
	c.Abort()
}

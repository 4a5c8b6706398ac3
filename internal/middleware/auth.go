package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"taskflow/backend/internal/services"
	"taskflow/backend/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

const (
	ContextIdentity = "identity"
	ContextUserID   = "user_id"
	ContextSnapshot = "session"
)

type TokenResolver interface {
	Resolve(ctx context.Context, accessToken string) (*session.Identity, error)
}

// TokenFromRequest returns the bearer token, falling back to the session
// cookie.
func TokenFromRequest(c *gin.Context, cookieName string) string {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		}
		return ""
	}
	if cookieName == "" {
		return ""
	}
	token, err := c.Cookie(cookieName)
	if err != nil {
		return ""
	}
	return token
}

// RequireSession resolves the caller's token and aborts with 401 when there
// is no live session. Disabled accounts get 403.
func RequireSession(resolver TokenResolver, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c, cookieName)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   string(services.KindInvalidToken),
				"message": "Authorization header or session cookie is required",
			})
			return
		}

		identity, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			status := http.StatusUnauthorized
			code, message := string(services.KindInvalidToken), "Token validation failed"

			var authErr *services.AuthError
			if errors.As(err, &authErr) {
				code, message = authErr.Code(), authErr.Message()
				if authErr.Kind == services.KindUserDisabled {
					status = http.StatusForbidden
				}
			}
			c.AbortWithStatusJSON(status, gin.H{
				"error":   code,
				"message": message,
			})
			return
		}

		setIdentity(c, identity)
		c.Next()
	}
}

func setIdentity(c *gin.Context, identity *session.Identity) {
	c.Set(ContextIdentity, identity)
	c.Set(ContextUserID, identity.UserID)
}

// IdentityFrom returns the identity stored by RequireSession or ScreenGuard.
func IdentityFrom(c *gin.Context) (*session.Identity, bool) {
	v, exists := c.Get(ContextIdentity)
	if !exists {
		return nil, false
	}
	identity, ok := v.(*session.Identity)
	return identity, ok && identity != nil
}

func UserIDFrom(c *gin.Context) (uuid.UUID, bool) {
	identity, ok := IdentityFrom(c)
	if !ok {
		return uuid.Nil, false
	}
	return identity.UserID, true
}

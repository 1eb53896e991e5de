package api

import (
	"strings"

	"marketplace-orders/internal/access"
	"marketplace-orders/internal/apperr"
	"marketplace-orders/internal/auth"
	"marketplace-orders/internal/models"

	"github.com/gin-gonic/gin"
)

const principalKey = "principal"

// authenticate verifies the bearer token once per request and stores the
// resulting principal on both the gin and the request context.
func (h *Handler) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || strings.TrimSpace(token) == "" {
			abortWithError(c, apperr.ErrInvalidToken)
			return
		}

		p, err := h.auth.Authenticate(strings.TrimSpace(token))
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(principalKey, p)
		c.Request = c.Request.WithContext(auth.WithPrincipal(c.Request.Context(), p))
		c.Next()
	}
}

// requireRole rejects principals holding none of roles.
func requireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := access.RequireAnyRole(principal(c), roles...); err != nil {
			abortWithError(c, err)
			return
		}
		c.Next()
	}
}

// principal returns the authenticated principal, or the zero principal
// holding no roles.
func principal(c *gin.Context) auth.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(auth.Principal); ok {
			return p
		}
	}
	return auth.Principal{}
}

package api

import (
	"strings"

	"supermarket/internal/models"

	"github.com/gin-gonic/gin"
)

const (
	sessionKey = "session"
	tokenKey   = "session_token"
)

// authMiddleware resolves the bearer token into a session
func (h *Handler) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if header == "" || token == header {
			h.respondError(c, models.ErrUnauthorized)
			return
		}

		session, err := h.sessions.GetSession(c.Request.Context(), token)
		if err != nil {
			h.respondError(c, err)
			return
		}

		c.Set(sessionKey, session)
		c.Set(tokenKey, token)
		c.Next()
	}
}

// requireRole rejects sessions without the given role
func requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if currentSession(c).Role != role {
			status, body := errorResponse(models.ErrForbidden)
			c.AbortWithStatusJSON(status, body)
			return
		}
		c.Next()
	}
}

func currentSession(c *gin.Context) *models.Session {
	return c.MustGet(sessionKey).(*models.Session)
}

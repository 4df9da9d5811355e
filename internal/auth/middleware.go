package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const userIDContextKey = "auth.user_id"

// Middleware authenticates each request from a bearer header or the
// session cookie and records the user id on the gin context. Requests
// without a valid token never reach the handler.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := s.requestToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization required"})
			return
		}
		userID, err := s.ValidateToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(userIDContextKey, userID)
		c.Next()
	}
}

// UserIDFromContext returns the user id stored by Middleware.
func UserIDFromContext(c *gin.Context) (int64, bool) {
	val, ok := c.Get(userIDContextKey)
	if !ok {
		return 0, false
	}
	userID, ok := val.(int64)
	return userID, ok
}

// requestToken prefers an explicit bearer header over the session cookie.
func (s *Service) requestToken(c *gin.Context) string {
	if token, ok := bearerToken(c, s.headerName); ok {
		return token
	}
	token, _ := c.Cookie(s.cookieName)
	return token
}

// bearerToken extracts a "Bearer <token>" credential from the named header.
func bearerToken(c *gin.Context, header string) (string, bool) {
	val := c.GetHeader(header)
	if len(val) < 7 || !strings.EqualFold(val[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(val[7:])
	return token, token != ""
}

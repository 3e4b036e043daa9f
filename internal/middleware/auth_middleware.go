package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	apperrors "focusfriends/backend/internal/errors"
	"focusfriends/backend/internal/service"
)

const (
	UserIDContextKey  = "userID"
	SessionCookieName = "focusfriends_session"
)

// Auth rejects requests without a valid token. The token may come from the
// Authorization header, the token query parameter or the session cookie.
func Auth(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, apiErr := extractToken(c)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}

		userID, apiErr := authService.ParseToken(token)
		if apiErr != nil {
			writeError(c, apiErr)
			return
		}

		c.Set(UserIDContextKey, userID)
		c.Next()
	}
}

// Guard keeps page routes consistent with the session: signed-out visitors
// to /dashboard go to /login and signed-in visitors to /login or /signup go
// to /dashboard.
func Guard(authService *service.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authenticated := false
		if token, apiErr := extractToken(c); apiErr == nil {
			if userID, apiErr := authService.ParseToken(token); apiErr == nil {
				authenticated = true
				c.Set(UserIDContextKey, userID)
			}
		}

		path := c.Request.URL.Path
		switch {
		case !authenticated && strings.HasPrefix(path, "/dashboard"):
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
		case authenticated && (path == "/login" || path == "/signup"):
			c.Redirect(http.StatusFound, "/dashboard")
			c.Abort()
		default:
			c.Next()
		}
	}
}

func extractToken(c *gin.Context) (string, *apperrors.APIError) {
	if authHeader := c.GetHeader("Authorization"); authHeader != "" {
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return "", apperrors.Unauthorized("invalid authorization format")
		}
		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			return "", apperrors.Unauthorized("invalid authorization format")
		}
		return token, nil
	}

	if token := strings.TrimSpace(c.Query("token")); token != "" {
		return token, nil
	}

	if cookie, err := c.Cookie(SessionCookieName); err == nil && cookie != "" {
		return cookie, nil
	}

	return "", apperrors.Unauthorized("missing authorization header")
}

func UserID(c *gin.Context) string {
	value, ok := c.Get(UserIDContextKey)
	if !ok {
		return ""
	}
	userID, ok := value.(string)
	if !ok {
		return ""
	}
	return userID
}

func writeError(c *gin.Context, apiErr *apperrors.APIError) {
	c.AbortWithStatusJSON(apiErr.Status, gin.H{
		"error": gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
			"details": apiErr.Details,
		},
	})
}

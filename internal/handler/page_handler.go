package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"focusfriends/backend/internal/middleware"
)

// Page answers a guarded page route with the page name and the viewer.
func Page(name string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body := gin.H{"page": name}
		if userID := middleware.UserID(c); userID != "" {
			body["userId"] = userID
		}
		c.JSON(http.StatusOK, body)
	}
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaintenanceMessage is shown to customers while the help desk is down.
const MaintenanceMessage = "The help desk is under maintenance. Please try again later."

// Maintenance rejects every request with 503 while enabled reports true.
// enabled is read per request so a config reload takes effect immediately.
func Maintenance(enabled func() bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled() {
			c.Next()
			return
		}

		c.Header("Retry-After", "300")
		if IsAPIRequest(c) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error":   "maintenance",
				"message": MaintenanceMessage,
			})
			return
		}
		c.Data(http.StatusServiceUnavailable, "text/plain; charset=utf-8", []byte(MaintenanceMessage))
		c.Abort()
	}
}

// IsAPIRequest checks if the request is for an API endpoint
func IsAPIRequest(c *gin.Context) bool {
	if c.GetHeader("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	if strings.Contains(c.GetHeader("Accept"), "application/json") {
		return true
	}
	return strings.HasPrefix(c.Request.URL.Path, "/api/")
}

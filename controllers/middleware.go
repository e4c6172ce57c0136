package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"wordpress-plugin-generator/utils"
)

const requestIDHeader = "X-Request-ID"

// RequestID tags every request with an id, reusing the caller's when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("requestID", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger logs one line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
			"requestID", c.GetString("requestID"),
		}
		switch {
		case status >= 500:
			utils.LogError("HTTP request", args...)
		case status >= 400:
			utils.LogWarn("HTTP request", args...)
		default:
			utils.LogInfo("HTTP request", args...)
		}
	}
}

// NoWriteDeadline lifts the server write timeout for streaming responses.
func NoWriteDeadline() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{}); err != nil {
			utils.LogDebug("Write deadline not cleared", "path", c.FullPath(), "error", err)
		}
		c.Next()
	}
}

package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

const (
	HeaderRequestID     = "X-Request-Id"
	ContextRequestIDKey = "request_id"
)

// RequestID tags every request with an id, reusing the caller's X-Request-Id when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Set(ContextRequestIDKey, id)
		c.Writer.Header().Set(HeaderRequestID, id)
		c.Next()
	}
}

// RequestLogger returns the context logger carrying the request id.
func RequestLogger(c *gin.Context) *zap.Logger {
	logger := logutil.GetLogger(c.Request.Context())
	if id := c.GetString(ContextRequestIDKey); id != "" {
		logger = logger.With(zap.String("request_id", id))
	}
	return logger
}

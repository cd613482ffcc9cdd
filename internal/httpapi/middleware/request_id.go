// Package middleware carries Nubi's gin middleware stack: request id and
// structured request logging, panic recovery, security headers, and
// bearer-token auth. Grounded in Wikid82-Charon's
// internal/api/middleware package, generalized from that package's
// request-scoped *logrus.Entry stashed in gin.Context to the same
// pattern against internal/logging.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nubictl/nubi/internal/logging"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"
)

// RequestID assigns a uuid per request, echoes it in the response header,
// and stashes a request-scoped logger entry alongside it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := uuid.New().String()
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Set(loggerKey, logging.WithFields(logrus.Fields{"request_id": rid}))
		c.Next()
	}
}

// requestLogger retrieves the request-scoped logger, falling back to the
// package logger for requests that bypassed RequestID (there are none in
// this router, but handlers should not panic if that ever changes).
func requestLogger(c *gin.Context) *logrus.Entry {
	if v, ok := c.Get(loggerKey); ok {
		if entry, ok := v.(*logrus.Entry); ok {
			return entry
		}
	}
	return logging.Log()
}

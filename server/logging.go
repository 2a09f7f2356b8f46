package server

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-Id"

// requestIDMiddleware propagates the caller's request id or assigns one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)
		c.Set(requestIDHeader, id)
		c.Next()
	}
}

// Context keys handlers set for the access log.
const (
	ctxHost      = "cmarkup.host"
	ctxInstances = "cmarkup.instances"
	ctxWarnings  = "cmarkup.warnings"
	ctxFailures  = "cmarkup.fetch_failures"
)

var accessLogContextFields = []struct{ ctxKey, logKey string }{
	{ctxHost, "host"},
	{ctxInstances, "instances"},
	{ctxWarnings, "warnings"},
	{ctxFailures, "fetch_failures"},
}

// requestLogger writes one event per request.
func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		default:
			ev = log.Info()
		}

		ev = ev.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", duration).
			Int64("duration_ms", duration.Milliseconds()).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(requestIDHeader))
		if ua := c.Request.UserAgent(); ua != "" {
			ev = ev.Str("user_agent", ua)
		}
		for _, f := range accessLogContextFields {
			if v, ok := c.Get(f.ctxKey); ok {
				ev = ev.Interface(f.logKey, v)
			}
		}
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Msg("request")
	}
}

package logging

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"

	// TraceHeader is echoed back on every response.
	TraceHeader = "X-Trace-ID"
)

var (
	traceMu      sync.Mutex
	traceEntropy io.Reader
)

func init() {
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	traceEntropy = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)
}

// GenerateTraceID generates a new time-sortable trace ID
func GenerateTraceID() string {
	traceMu.Lock()
	defer traceMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), traceEntropy).String()
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return Default()
	}
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// TraceIDFromContext returns the request trace ID, or "" outside a request.
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTraceContext adds a trace ID to the context and returns a logger with it
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := Default().WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// RiskContext creates a logger context for guardrail operations
func RiskContext(ctx context.Context, userID string) *Logger {
	return FromContext(ctx).WithField("user_id", userID).WithComponent("risk")
}

// DatabaseContext creates a logger context for database operations
func DatabaseContext(operation, table string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"operation": operation,
		"table":     table,
	}).WithComponent("database")
}

// GinMiddleware attaches a trace-scoped logger to every request and logs completion.
func GinMiddleware(base *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = GenerateTraceID()
		}

		l := base.WithTraceID(traceID).WithFields(map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.FullPath(),
			"remote_addr": c.ClientIP(),
		}).WithComponent("http")

		ctx := context.WithValue(c.Request.Context(), traceIDKey, traceID)
		c.Request = c.Request.WithContext(NewContext(ctx, l))
		c.Header(TraceHeader, traceID)

		c.Next()

		entry := l.WithDuration(time.Since(start)).WithField("status_code", c.Writer.Status())
		if len(c.Errors) > 0 {
			entry = entry.WithField("errors", c.Errors.String())
		}
		switch {
		case c.Writer.Status() >= 500:
			entry.Error("Request failed")
		default:
			entry.Info("Request completed")
		}
	}
}

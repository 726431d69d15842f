package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &m))
		out = append(out, m)
	}
	return out
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("nonsense"))
	assert.Equal(t, "FATAL", FATAL.String())
}

func TestLoggerFieldsAndLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "INFO", Component: "test", JSONFormat: true}, &buf)

	l.Debug("hidden")
	l.WithError(errors.New("boom")).Warn("saved settings", "user_id", "u1", "attempts", 2)
	l.Info("plain %d", 7)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)

	assert.Equal(t, "warn", lines[0]["level"])
	assert.Equal(t, "test", lines[0]["component"])
	assert.Equal(t, "boom", lines[0]["error"])
	assert.Equal(t, "u1", lines[0]["user_id"])
	assert.Equal(t, float64(2), lines[0]["attempts"])

	assert.Equal(t, "plain 7", lines[1]["message"])
}

func TestTraceContext(t *testing.T) {
	a, b := GenerateTraceID(), GenerateTraceID()
	assert.Len(t, a, 26)
	assert.Less(t, a, b, "trace ids sort by creation")

	assert.Equal(t, "", TraceIDFromContext(context.Background()))
	ctx, l := WithTraceContext(context.Background())
	assert.Equal(t, l.TraceID(), TraceIDFromContext(ctx))
	assert.Same(t, l, FromContext(ctx))
}

func TestGinMiddlewareTraceHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	base := NewWithWriter(&Config{Level: "DEBUG", JSONFormat: true}, &buf)

	r := gin.New()
	r.Use(GinMiddleware(base))
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = TraceIDFromContext(c.Request.Context())
		FromContext(c.Request.Context()).Info("inside")
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(TraceHeader, "abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "abc", w.Header().Get(TraceHeader))
	assert.Equal(t, "abc", seen)

	lines := decodeLines(t, &buf)
	require.Len(t, lines, 2)
	assert.Equal(t, "inside", lines[0]["message"])
	assert.Equal(t, "abc", lines[1]["trace_id"])
	assert.Equal(t, "/ping", lines[1]["path"])
	assert.Equal(t, float64(http.StatusNoContent), lines[1]["status_code"])

	// A missing header gets a generated id.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEmpty(t, w.Header().Get(TraceHeader))
	assert.Equal(t, w.Header().Get(TraceHeader), seen)
}

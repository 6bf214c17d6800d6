package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appctx "opname/internal/core/context"
)

func TestTrace_GeneratesIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var got *appctx.TraceContext
	router := gin.New()
	router.Use(Trace())
	router.GET("/", func(c *gin.Context) {
		got = appctx.GetTrace(c.Request.Context())
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotNil(t, got)
	assert.NotEmpty(t, got.TraceID)
	assert.NotEmpty(t, got.RequestID)

	// Generated IDs are echoed back so the client can correlate.
	assert.Equal(t, got.TraceID, rec.Header().Get(HeaderTraceID))
	assert.Equal(t, got.RequestID, rec.Header().Get(HeaderRequestID))
}

func TestTrace_PropagatesIncomingIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(Trace())
	router.GET("/", func(c *gin.Context) {
		assert.Equal(t, "trace-123", appctx.GetTraceID(c.Request.Context()))
		assert.Equal(t, "req-456", appctx.GetRequestID(c.Request.Context()))
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderTraceID, "trace-123")
	req.Header.Set(HeaderRequestID, "req-456")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, "trace-123", rec.Header().Get(HeaderTraceID))
	assert.Equal(t, "req-456", rec.Header().Get(HeaderRequestID))
}

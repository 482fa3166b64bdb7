package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObservedRouter(t *testing.T, level zapcore.LevelEnabler) (*gin.Engine, *observer.ObservedLogs) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	core, recorded := observer.New(level)
	router := gin.New()
	router.Use(GinMiddleware(zap.New(core)))
	return router, recorded
}

func requestEntry(t *testing.T, recorded *observer.ObservedLogs) *observer.LoggedEntry {
	t.Helper()
	logs := recorded.FilterMessage("request completed").All()
	require.Len(t, logs, 1)
	return &logs[0]
}

func TestGinMiddleware(t *testing.T) {
	t.Run("successful request logs at info", func(t *testing.T) {
		router, recorded := newObservedRouter(t, zapcore.DebugLevel)
		router.GET("/api/v1/admin/sessions", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"active": 0})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/sessions", nil))
		require.Equal(t, http.StatusOK, w.Code)

		entry := requestEntry(t, recorded)
		assert.Equal(t, zapcore.InfoLevel, entry.Level)
	})

	t.Run("health probes log at debug", func(t *testing.T) {
		router, recorded := newObservedRouter(t, zapcore.DebugLevel)
		router.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"status": "healthy"})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		entry := requestEntry(t, recorded)
		assert.Equal(t, zapcore.DebugLevel, entry.Level)
	})

	t.Run("client errors log at warn", func(t *testing.T) {
		router, recorded := newObservedRouter(t, zapcore.DebugLevel)
		router.POST("/qbwc", func(c *gin.Context) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed envelope"})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/qbwc", nil))

		entry := requestEntry(t, recorded)
		assert.Equal(t, zapcore.WarnLevel, entry.Level)
	})

	t.Run("server errors log at error", func(t *testing.T) {
		router, recorded := newObservedRouter(t, zapcore.DebugLevel)
		router.GET("/boom", func(c *gin.Context) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "db down"})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

		entry := requestEntry(t, recorded)
		assert.Equal(t, zapcore.ErrorLevel, entry.Level)
	})

	t.Run("carries the request id and query", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		core, recorded := observer.New(zapcore.DebugLevel)
		router := gin.New()
		router.Use(func(c *gin.Context) {
			c.Set("request_id", "req-123")
			c.Next()
		})
		router.Use(GinMiddleware(zap.New(core)))
		router.GET("/api/v1/admin/erp/records", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{})
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/admin/erp/records?entity=CUSTOMER", nil))

		entry := requestEntry(t, recorded)
		fields := make(map[string]zapcore.Field)
		for _, f := range entry.Context {
			fields[f.Key] = f
		}
		assert.Equal(t, "req-123", fields["request_id"].String)
		assert.Contains(t, fields["query"].String, "entity=CUSTOMER")
		assert.Contains(t, fields, "status")
		assert.Contains(t, fields, "latency")
		assert.Contains(t, fields, "client_ip")
	})
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, recorded := observer.New(zapcore.ErrorLevel)

	router := gin.New()
	router.Use(Recovery(zap.New(core)))
	router.POST("/qbwc", func(c *gin.Context) {
		panic("handler blew up")
	})

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/qbwc", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	logs := recorded.FilterMessage("panic recovered").All()
	require.Len(t, logs, 1)
}

func TestGetGinLogger(t *testing.T) {
	t.Run("returns the request-scoped logger", func(t *testing.T) {
		router, _ := newObservedRouter(t, zapcore.DebugLevel)
		var got *zap.Logger
		router.GET("/test", func(c *gin.Context) {
			got = GetGinLogger(c)
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		assert.NotNil(t, got)
	})

	t.Run("falls back to a no-op logger", func(t *testing.T) {
		gin.SetMode(gin.TestMode)
		var got *zap.Logger
		router := gin.New()
		router.GET("/test", func(c *gin.Context) {
			got = GetGinLogger(c)
			c.Status(http.StatusOK)
		})

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

		require.NotNil(t, got)
		assert.NotPanics(t, func() { got.Info("noop") })
	})
}

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
)

func newRouter(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	return r
}

func TestRequestID(t *testing.T) {
	r := newRouter(RequestID())
	var seen string
	r.GET("/ping", func(c *gin.Context) {
		seen = c.GetString(keyRequestID)
		c.Status(http.StatusNoContent)
	})

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
		r.ServeHTTP(w, req)

		assert.NotEmpty(t, w.Header().Get(headerRequestID))
		assert.Equal(t, w.Header().Get(headerRequestID), seen)
	})

	t.Run("propagated", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set(headerRequestID, "abc-123")
		r.ServeHTTP(w, req)

		assert.Equal(t, "abc-123", w.Header().Get(headerRequestID))
		assert.Equal(t, "abc-123", seen)
	})

	t.Run("unsafe replaced", func(t *testing.T) {
		for _, bad := range []string{"has space", "line\nbreak", strings.Repeat("x", maxRequestIDLen+1)} {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
			req.Header.Set(headerRequestID, bad)
			r.ServeHTTP(w, req)

			assert.NotEqual(t, bad, seen)
			_, err := uuid.Parse(seen)
			assert.NoError(t, err, bad)
		}
	})
}

func TestLogging(t *testing.T) {
	hook := test.NewGlobal()
	defer hook.Reset()
	prev := log.GetLevel()
	log.SetLevel(log.DebugLevel)
	defer log.SetLevel(prev)

	r := newRouter(RequestID(), Logging())
	r.GET("/adapters/:user_id/:avatar_id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		path  string
		level log.Level
		route string
	}{
		{"/adapters/u1/a1", log.InfoLevel, "/adapters/:user_id/:avatar_id"},
		{"/boom", log.ErrorLevel, "/boom"},
		{"/missing", log.WarnLevel, "unmatched"},
		{"/healthz", log.DebugLevel, "/healthz"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			hook.Reset()
			req, _ := http.NewRequest(http.MethodGet, tt.path, nil)
			r.ServeHTTP(httptest.NewRecorder(), req)

			entry := hook.LastEntry()
			if assert.NotNil(t, entry) {
				assert.Equal(t, tt.level, entry.Level)
				assert.Equal(t, tt.route, entry.Data["route"])
				assert.NotEmpty(t, entry.Data["request_id"])
			}
		})
	}

	hook.Reset()
	req, _ := http.NewRequest(http.MethodGet, "/adapters/u1/a1", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)
	entry := hook.LastEntry()
	if assert.NotNil(t, entry) {
		assert.Equal(t, "u1", entry.Data["user_id"])
		assert.Equal(t, "a1", entry.Data["avatar_id"])
	}
}

func TestMetrics(t *testing.T) {
	r := newRouter(Metrics())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(requestsTotal.WithLabelValues("/items/:id", http.MethodGet, "200"))
	for _, id := range []string{"a", "b"} {
		req, _ := http.NewRequest(http.MethodGet, "/items/"+id, nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}
	after := testutil.ToFloat64(requestsTotal.WithLabelValues("/items/:id", http.MethodGet, "200"))
	assert.Equal(t, before+2, after)
}

func TestTimeout(t *testing.T) {
	r := newRouter(Timeout(10 * time.Millisecond))
	r.GET("/slow", func(c *gin.Context) {
		select {
		case <-c.Request.Context().Done():
			c.Status(http.StatusGatewayTimeout)
		case <-time.After(time.Second):
			c.Status(http.StatusOK)
		}
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/slow", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
}

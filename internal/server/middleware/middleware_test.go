package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/tingly-dev/tea-assistant/internal/auth"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type bufferCloser struct {
	bytes.Buffer
	closed bool
}

func (b *bufferCloser) Close() error {
	b.closed = true
	return nil
}

func TestRequestIDAssignsAndReuses(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	generated := w.Header().Get(RequestIDHeader)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, "edge-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "edge-123", w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("a", 100))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Len(t, w.Body.String(), 36)
}

func TestStaffAuthMiddleware(t *testing.T) {
	manager := auth.NewJWTManager("s3cret")
	am := NewAuthMiddleware(func() *auth.JWTManager { return manager })

	r := gin.New()
	r.GET("/admin", am.StaffAuthMiddleware(), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(StaffIDKey))
	})

	do := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := do("")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Authorization header required", gjson.Get(w.Body.String(), "error.message").String())

	assert.Equal(t, http.StatusUnauthorized, do("Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, do("Bearer not-a-token").Code)

	token, err := manager.GenerateToken("staff-7")
	require.NoError(t, err)
	w = do("Bearer " + token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "staff-7", w.Body.String())

	manager = auth.NewJWTManager("")
	w = do("Bearer " + token)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "admin_disabled", gjson.Get(w.Body.String(), "error.code").String())
}

func TestErrorLogMiddlewareFilters(t *testing.T) {
	out := &bufferCloser{}
	dm := NewErrorLogMiddlewareWithWriter(out)

	r := gin.New()
	r.Use(RequestID(), dm.Middleware())
	r.POST("/api/chat", func(c *gin.Context) {
		c.String(http.StatusBadRequest, "messages must not be empty")
	})
	r.GET("/api/ok", func(c *gin.Context) { c.String(http.StatusOK, "fine") })
	r.GET("/other", func(c *gin.Context) { c.String(http.StatusNotFound, "nope") })

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"messages":[]}`))
	req.Header.Set("Authorization", "Bearer super-secret-value")
	r.ServeHTTP(httptest.NewRecorder(), req)
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/ok", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/other", nil))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	line := lines[0]
	assert.Equal(t, int64(400), gjson.Get(line, "status_code").Int())
	assert.Equal(t, "/api/chat", gjson.Get(line, "path").String())
	assert.True(t, gjson.Get(line, "request_body.messages").IsArray())
	assert.Equal(t, "messages must not be empty", gjson.Get(line, "response_body").String())
	assert.Equal(t, "Bearer ...", gjson.Get(line, "headers.Authorization").String())
	assert.NotEmpty(t, gjson.Get(line, "request_id").String())

	require.NoError(t, dm.SetFilterExpression("Path == '/other'"))
	out.Reset()
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Contains(t, out.String(), `"path":"/other"`)

	assert.Error(t, dm.SetFilterExpression("StatusCode +"))
	assert.Error(t, dm.SetFilterExpression("Path"))

	dm.Stop()
	assert.True(t, out.closed)
}

func TestAccessLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	r := gin.New()
	r.Use(RequestID(), AccessLog(logger, "/healthz"))
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/limited", func(c *gin.Context) { c.Status(http.StatusTooManyRequests) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/limited?x=1", nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Equal(t, "warning", gjson.Get(lines[0], "level").String())
	assert.Equal(t, "/limited?x=1", gjson.Get(lines[0], "path").String())
	assert.Equal(t, int64(429), gjson.Get(lines[0], "status").Int())
}

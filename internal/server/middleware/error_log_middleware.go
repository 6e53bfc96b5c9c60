package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tingly-dev/tea-assistant/internal/obs"
)

// DefaultErrorLogFilter logs failed API calls only
const DefaultErrorLogFilter = "StatusCode >= 400 && Path matches '^/api/'"

// maxCapturedBody bounds what is kept of each request and response body
const maxCapturedBody = 64 * 1024

// FilterContext provides the context for filter expression evaluation
type FilterContext struct {
	StatusCode int    `expr:"StatusCode"`
	Method     string `expr:"Method"`
	Path       string `expr:"Path"`
	Query      string `expr:"Query"`
}

// ErrorLogMiddleware writes the exchanges selected by an expr filter to a
// rotating JSON lines file
type ErrorLogMiddleware struct {
	out io.WriteCloser
	mu  sync.RWMutex

	// Compiled expression program for filtering
	filterProgram *vm.Program
}

// NewErrorLogMiddleware opens cfg.Filename through lumberjack
func NewErrorLogMiddleware(cfg obs.LogRotationConfig) (*ErrorLogMiddleware, error) {
	out, err := obs.NewRotatingWriter(cfg)
	if err != nil {
		return nil, err
	}
	return NewErrorLogMiddlewareWithWriter(out), nil
}

// NewErrorLogMiddlewareWithWriter logs to out with the default filter
func NewErrorLogMiddlewareWithWriter(out io.WriteCloser) *ErrorLogMiddleware {
	dm := &ErrorLogMiddleware{out: out}
	if err := dm.SetFilterExpression(""); err != nil {
		logrus.Errorf("Failed to compile default filter expression: %v", err)
	}
	return dm
}

// SetFilterExpression recompiles and sets a new filter expression
func (dm *ErrorLogMiddleware) SetFilterExpression(expression string) error {
	if expression == "" {
		expression = DefaultErrorLogFilter
	}

	program, err := expr.Compile(expression, expr.Env(FilterContext{}), expr.AsBool())
	if err != nil {
		return fmt.Errorf("failed to compile filter expression: %w", err)
	}

	dm.mu.Lock()
	dm.filterProgram = program
	dm.mu.Unlock()
	return nil
}

// ShouldLog evaluates the filter; evaluation errors fall back to the default rule
func (dm *ErrorLogMiddleware) ShouldLog(fc FilterContext) bool {
	dm.mu.RLock()
	program := dm.filterProgram
	dm.mu.RUnlock()

	if program != nil {
		result, err := expr.Run(program, fc)
		if err == nil {
			ok, _ := result.(bool)
			return ok
		}
		logrus.Errorf("Failed to evaluate filter expression: %v", err)
	}
	return fc.StatusCode >= 400 && strings.HasPrefix(fc.Path, "/api/")
}

// responseBodyWriter keeps a bounded copy of the response body
type responseBodyWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseBodyWriter) Write(b []byte) (int, error) {
	if room := maxCapturedBody - w.body.Len(); room > 0 {
		if len(b) < room {
			room = len(b)
		}
		w.body.Write(b[:room])
	}
	return w.ResponseWriter.Write(b)
}

func (w *responseBodyWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

// Middleware returns the Gin middleware function
func (dm *ErrorLogMiddleware) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" || c.Request.URL.Path == "/favicon.ico" {
			c.Next()
			return
		}

		var requestBody []byte
		if c.Request.Body != nil {
			requestBody, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(requestBody))
		}

		w := &responseBodyWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = w

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		fc := FilterContext{
			StatusCode: c.Writer.Status(),
			Method:     c.Request.Method,
			Path:       c.Request.URL.Path,
			Query:      c.Request.URL.RawQuery,
		}
		if !dm.ShouldLog(fc) {
			return
		}

		dm.logEntry(&logEntry{
			Timestamp:    start,
			Method:       fc.Method,
			Path:         fc.Path,
			Query:        fc.Query,
			StatusCode:   fc.StatusCode,
			Duration:     duration,
			RequestID:    RequestIDFrom(c),
			RequestBody:  truncate(requestBody),
			ResponseBody: w.body.Bytes(),
			Headers:      getHeaders(c),
			ClientIP:     c.ClientIP(),
		})
	}
}

type logEntry struct {
	Timestamp    time.Time
	Method       string
	Path         string
	Query        string
	StatusCode   int
	Duration     time.Duration
	RequestID    string
	RequestBody  []byte
	ResponseBody []byte
	Headers      map[string]string
	ClientIP     string
}

func truncate(b []byte) []byte {
	if len(b) > maxCapturedBody {
		return b[:maxCapturedBody]
	}
	return b
}

func bodyValue(b []byte) interface{} {
	if json.Valid(b) {
		return json.RawMessage(b)
	}
	return string(b)
}

func (dm *ErrorLogMiddleware) logEntry(entry *logEntry) {
	logData := map[string]interface{}{
		"timestamp":   entry.Timestamp.Format(time.RFC3339Nano),
		"method":      entry.Method,
		"path":        entry.Path,
		"query":       entry.Query,
		"status_code": entry.StatusCode,
		"duration_ms": entry.Duration.Milliseconds(),
		"request_id":  entry.RequestID,
		"headers":     entry.Headers,
		"client_ip":   entry.ClientIP,
	}
	if len(entry.RequestBody) > 0 {
		logData["request_body"] = bodyValue(entry.RequestBody)
	}
	if entry.StatusCode >= 400 && len(entry.ResponseBody) > 0 {
		logData["response_body"] = bodyValue(entry.ResponseBody)
	}

	jsonData, err := json.Marshal(logData)
	if err != nil {
		logrus.Errorf("Failed to marshal error log entry: %v", err)
		return
	}

	dm.mu.Lock()
	defer dm.mu.Unlock()
	if dm.out == nil {
		return
	}
	if _, err := dm.out.Write(append(jsonData, '\n')); err != nil {
		logrus.Errorf("Failed to write error log entry: %v", err)
	}
}

// getHeaders extracts relevant headers from the request
func getHeaders(c *gin.Context) map[string]string {
	headers := make(map[string]string)

	relevantHeaders := []string{
		"Authorization",
		"Content-Type",
		"User-Agent",
		"X-Forwarded-For",
		"X-Real-IP",
	}

	for _, header := range relevantHeaders {
		if value := c.GetHeader(header); value != "" {
			// Mask sensitive headers
			if header == "Authorization" && len(value) > 10 {
				headers[header] = value[:7] + "..."
			} else {
				headers[header] = value
			}
		}
	}

	return headers
}

// Stop closes the log file
func (dm *ErrorLogMiddleware) Stop() {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	if dm.out != nil {
		if err := dm.out.Close(); err != nil {
			logrus.Errorf("Failed to close error log: %v", err)
		}
		dm.out = nil
	}
}

package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AccessLog logs one line per request to logger once the handler returns,
// so a streamed chat reply is logged with its full duration. With the memory
// hook attached to logger the lines also show up in the staff log view.
func AccessLog(logger *logrus.Logger, skipPaths ...string) gin.HandlerFunc {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if _, ok := skip[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path += "?" + c.Request.URL.RawQuery
		}

		fields := logrus.Fields{
			"status":     status,
			"latency":    time.Since(start),
			"client_ip":  c.ClientIP(),
			"method":     c.Request.Method,
			"path":       path,
			"body_size":  c.Writer.Size(),
			"request_id": RequestIDFrom(c),
		}
		if strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/plain") && status == http.StatusOK {
			fields["streamed"] = true
		}

		logger.WithFields(fields).Log(accessLevel(status), c.Request.Method+" "+path)
	}
}

func accessLevel(status int) logrus.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return logrus.ErrorLevel
	case status >= http.StatusBadRequest:
		return logrus.WarnLevel
	default:
		return logrus.InfoLevel
	}
}

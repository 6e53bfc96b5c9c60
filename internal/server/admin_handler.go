package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tingly-dev/tea-assistant/internal/data/db"
	"github.com/tingly-dev/tea-assistant/internal/obs"
	"github.com/tingly-dev/tea-assistant/internal/server/middleware"
)

const defaultLogLimit = 100

// ChatRecordsResponse is one page of chat records
type ChatRecordsResponse struct {
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	Records []db.ChatRecord `json:"records"`
}

// LogsResponse represents the API response for logs
type LogsResponse struct {
	Total int            `json:"total"`
	Logs  []obs.LogEntry `json:"logs"`
}

// HealthResponse is returned by /healthz
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.version,
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		middleware.AbortWithError(c, http.StatusBadRequest, key+" must be a non-negative integer", "invalid_request_error", "invalid_"+key)
		return 0, false
	}
	return v, true
}

func (s *Server) requireStore(c *gin.Context) bool {
	if s.store != nil {
		return true
	}
	middleware.AbortWithError(c, http.StatusServiceUnavailable, "Chat record storage is disabled", "api_error", "storage_disabled")
	return false
}

// handleListChatRecords serves GET /api/admin/chat-records?limit&offset&status
func (s *Server) handleListChatRecords(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}
	status := db.ChatStatus(c.Query("status"))
	switch status {
	case "", db.ChatStatusOK, db.ChatStatusError, db.ChatStatusCanceled:
	default:
		middleware.AbortWithError(c, http.StatusBadRequest, "status must be ok, error or canceled", "invalid_request_error", "invalid_status")
		return
	}

	records, total, err := s.store.List(c.Request.Context(), db.ListOptions{Limit: limit, Offset: offset, Status: status})
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, "Failed to list chat records: "+err.Error(), "api_error", "")
		return
	}
	if records == nil {
		records = []db.ChatRecord{}
	}
	c.JSON(http.StatusOK, ChatRecordsResponse{
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		Records: records,
	})
}

// handleStats serves GET /api/admin/stats
func (s *Server) handleStats(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}
	stats, err := s.store.Stats(c.Request.Context())
	if err != nil {
		middleware.AbortWithError(c, http.StatusInternalServerError, "Failed to compute stats: "+err.Error(), "api_error", "")
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleLogs serves GET /api/admin/logs
// Query parameters:
//   - limit: maximum number of entries to return (default: 100)
//   - level: only entries of this level (debug, info, warning, error)
func (s *Server) handleLogs(c *gin.Context) {
	if s.memLog == nil {
		middleware.AbortWithError(c, http.StatusServiceUnavailable, "Memory log not available", "api_error", "logs_disabled")
		return
	}
	limit, ok := queryInt(c, "limit", defaultLogLimit)
	if !ok {
		return
	}
	logs := s.memLog.Latest(limit, c.Query("level"))
	if logs == nil {
		logs = []obs.LogEntry{}
	}
	c.JSON(http.StatusOK, LogsResponse{Total: s.memLog.Size(), Logs: logs})
}

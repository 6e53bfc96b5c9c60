package server

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/tingly-dev/tea-assistant/internal/data/db"
	"github.com/tingly-dev/tea-assistant/internal/llmclient"
	"github.com/tingly-dev/tea-assistant/internal/obs/otel"
	"github.com/tingly-dev/tea-assistant/internal/relay"
	"github.com/tingly-dev/tea-assistant/internal/server/middleware"
)

const chatRoute = "/api/chat"

// Customer-facing replies for rejected requests.
const (
	msgRateLimited   = "Bạn gửi tin nhắn quá nhanh, vui lòng thử lại sau ít phút."
	msgInvalidBody   = "Yêu cầu không hợp lệ: "
	msgInternalError = "Đã có lỗi xảy ra, vui lòng thử lại."
)

// ChatRequest is the body of POST /api/chat
type ChatRequest struct {
	Messages []relay.Message `json:"messages"`
}

// saveRecordTimeout bounds the audit write after the client is gone.
const saveRecordTimeout = 5 * time.Second

func (s *Server) handleChat(c *gin.Context) {
	start := time.Now()
	ctx := c.Request.Context()
	clientIP := c.ClientIP()
	requestID := middleware.RequestIDFrom(c)
	log := logrus.WithFields(logrus.Fields{"request_id": requestID, "client_ip": clientIP})
	model := s.config.Upstream.Model

	allowed, resetAt := s.limiter.Take(clientIP)
	if !allowed {
		retry := int(math.Ceil(time.Until(resetAt).Seconds()))
		if retry < 1 {
			retry = 1
		}
		c.Header("Retry-After", strconv.Itoa(retry))
		s.tracker.RecordRateLimited(ctx, chatRoute)
		s.tracker.RecordRequest(ctx, otel.RequestOptions{Model: model, Status: "rejected", StatusCode: http.StatusTooManyRequests})
		log.Warnf("Rate limit exceeded")
		c.String(http.StatusTooManyRequests, msgRateLimited)
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.rejectInvalid(c, log, model, "body is not valid JSON", err)
		return
	}

	rt := s.runtime.Load()
	if err := relay.ValidateConversation(req.Messages, rt.validator); err != nil {
		s.rejectInvalid(c, log, model, err.Error(), err)
		return
	}

	sink := newTextStreamSink(c.Writer)
	started := false
	defer func() {
		if p := recover(); p != nil {
			log.Errorf("Panic while relaying chat: %v", p)
			if !started {
				c.String(http.StatusInternalServerError, msgInternalError)
				return
			}
			sink.writeMarker(msgInternalError)
		}
	}()

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()
	c.Writer.Flush()
	started = true

	runCtx := llmclient.WithRequestID(ctx, requestID)
	summary, err := rt.relay.Run(runCtx, req.Messages, sink)

	status := db.ChatStatusOK
	var errText string
	switch {
	case err == nil:
	case ctx.Err() != nil || errors.Is(err, context.Canceled):
		status = db.ChatStatusCanceled
		errText = err.Error()
		log.Debugf("Client went away: %v", err)
	case sink.broken():
		status = db.ChatStatusCanceled
		errText = err.Error()
		log.Debugf("Outward stream failed: %v", err)
	default:
		status = db.ChatStatusError
		errText = err.Error()
		log.Errorf("Chat relay failed: %v", err)
		sink.writeMarker(err.Error())
	}

	duration := time.Since(start)
	log.WithFields(logrus.Fields{
		"tools":    summary.ToolNames(),
		"bytes":    summary.OutputBytes,
		"dropped":  summary.DroppedLines,
		"state":    summary.Final(),
		"duration": duration,
	}).Debugf("Chat finished with status %s", status)

	s.tracker.RecordRequest(ctx, otel.RequestOptions{
		Model:        model,
		Status:       string(status),
		StatusCode:   http.StatusOK,
		InputTokens:  summary.InputTokens,
		OutputTokens: summary.OutputTokens,
		LatencyMs:    duration.Milliseconds(),
	})

	s.saveRecord(log, &db.ChatRecord{
		RequestID:    requestID,
		ClientIP:     clientIP,
		Model:        model,
		Status:       status,
		Error:        errText,
		ToolErrors:   summary.ToolErrors(),
		MessageCount: len(req.Messages),
		InputTokens:  summary.InputTokens,
		OutputTokens: summary.OutputTokens,
		OutputBytes:  summary.OutputBytes,
		DurationMs:   duration.Milliseconds(),
	}, summary.ToolNames())
}

func (s *Server) rejectInvalid(c *gin.Context, log *logrus.Entry, model, reason string, err error) {
	log.Infof("Rejected chat request: %v", err)
	s.tracker.RecordRequest(c.Request.Context(), otel.RequestOptions{Model: model, Status: "rejected", StatusCode: http.StatusBadRequest})
	c.String(http.StatusBadRequest, msgInvalidBody+reason)
}

// saveRecord is best effort; the reply has already been sent.
func (s *Server) saveRecord(log *logrus.Entry, record *db.ChatRecord, toolNames []string) {
	if s.store == nil {
		return
	}
	record.SetToolCalls(toolNames)
	ctx, cancel := context.WithTimeout(context.Background(), saveRecordTimeout)
	defer cancel()
	if err := s.store.Record(ctx, record); err != nil {
		log.Warnf("Failed to save chat record: %v", err)
	}
}

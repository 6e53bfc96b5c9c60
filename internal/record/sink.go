// Package record captures upstream chat completion exchanges to hourly JSONL
// files for offline debugging of tool call streams.
package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Mode selects what an exchange entry contains.
type Mode string

const (
	ModeOff      Mode = ""
	ModeAll      Mode = "all"      // request and response
	ModeResponse Mode = "response" // response only
)

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeOff, ModeAll, ModeResponse:
		return Mode(s), nil
	}
	return ModeOff, fmt.Errorf("unknown record mode %q (want all, response or empty)", s)
}

// Entry is one line of a record file.
type Entry struct {
	Timestamp  string    `json:"timestamp"`
	ExchangeID string    `json:"exchange_id"`
	RequestID  string    `json:"request_id,omitempty"`
	Model      string    `json:"model"`
	Request    *Request  `json:"request,omitempty"`
	Response   *Response `json:"response,omitempty"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// Request is the outbound half of an exchange. Body is the raw JSON.
type Request struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
	Body    json.RawMessage   `json:"body,omitempty"`
}

// Response is the inbound half. Streamed bodies are kept verbatim.
type Response struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers"`
	Streamed   bool              `json:"streamed,omitempty"`
	Body       string            `json:"body,omitempty"`
}

// Sink writes entries to <dir>/<model>-<YYYY-MM-DD-HH>.jsonl.
type Sink struct {
	mode Mode
	dir  string
	now  func() time.Time

	mu    sync.Mutex
	files map[string]*hourFile
}

type hourFile struct {
	file *os.File
	enc  *json.Encoder
	hour string
}

// NewSink creates the record directory. A disabled sink is returned for ModeOff.
func NewSink(dir string, mode Mode) (*Sink, error) {
	s := &Sink{mode: mode, dir: dir, now: time.Now, files: make(map[string]*hourFile)}
	if mode == ModeOff {
		return s, nil
	}
	if dir == "" {
		return nil, fmt.Errorf("record directory is required for mode %q", mode)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create record directory %s: %w", dir, err)
	}
	return s, nil
}

// Enabled reports whether entries are written.
func (s *Sink) Enabled() bool {
	return s != nil && s.mode != ModeOff
}

// Dir returns the record directory.
func (s *Sink) Dir() string {
	return s.dir
}

// Write appends one exchange. Requests are dropped in ModeResponse.
func (s *Sink) Write(entry Entry) {
	if !s.Enabled() {
		return
	}
	if entry.Timestamp == "" {
		entry.Timestamp = s.now().UTC().Format(time.RFC3339)
	}
	if entry.ExchangeID == "" {
		entry.ExchangeID = uuid.NewString()
	}
	if s.mode == ModeResponse {
		entry.Request = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hour := s.now().UTC().Format("2006-01-02-15")
	key := entry.Model
	if key == "" {
		key = "unknown"
	}

	hf, ok := s.files[key]
	if !ok || hf.hour != hour {
		if ok {
			closeHourFile(hf)
		}
		name := filepath.Join(s.dir, fmt.Sprintf("%s-%s.jsonl", filepath.Base(key), hour))
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			logrus.Errorf("Failed to open record file %s: %v", name, err)
			return
		}
		hf = &hourFile{file: f, enc: json.NewEncoder(f), hour: hour}
		s.files[key] = hf
	}

	if err := hf.enc.Encode(entry); err != nil {
		logrus.Errorf("Failed to write record entry: %v", err)
	}
}

func closeHourFile(hf *hourFile) {
	if err := hf.file.Close(); err != nil {
		logrus.Errorf("Failed to close record file: %v", err)
	}
}

// Close flushes and closes every open file.
func (s *Sink) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, hf := range s.files {
		closeHourFile(hf)
	}
	s.files = make(map[string]*hourFile)
}

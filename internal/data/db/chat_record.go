package db

import (
	"strings"
	"time"
)

// ChatStatus is the outcome of one relayed chat request.
type ChatStatus string

const (
	ChatStatusOK       ChatStatus = "ok"
	ChatStatusError    ChatStatus = "error"
	ChatStatusCanceled ChatStatus = "canceled"
)

// ChatRecord is the audit row written after each relayed chat request.
// Message content is not stored; only shape and outcome.
type ChatRecord struct {
	ID        uint   `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	RequestID string `gorm:"column:request_id;index:idx_chat_records_request_id;size:64" json:"request_id"`
	ClientIP  string `gorm:"column:client_ip;index:idx_chat_records_client_ip;size:64" json:"client_ip"`
	Model     string `gorm:"column:model;not null" json:"model"`

	Status ChatStatus `gorm:"column:status;index:idx_chat_records_status;not null" json:"status"`
	Error  string     `gorm:"column:error;type:text" json:"error,omitempty"`

	// ToolCalls is a comma separated list of dispatched tool names
	ToolCalls  string `gorm:"column:tool_calls" json:"tool_calls"`
	ToolErrors int    `gorm:"column:tool_errors;default:0" json:"tool_errors"`

	MessageCount int   `gorm:"column:message_count" json:"message_count"`
	InputTokens  int   `gorm:"column:input_tokens" json:"input_tokens"`
	OutputTokens int   `gorm:"column:output_tokens" json:"output_tokens"`
	OutputBytes  int   `gorm:"column:output_bytes" json:"output_bytes"`
	DurationMs   int64 `gorm:"column:duration_ms" json:"duration_ms"`

	CreatedAt time.Time `gorm:"column:created_at;index:idx_chat_records_created_at;not null" json:"created_at"`
}

// TableName pins the table name.
func (ChatRecord) TableName() string {
	return "chat_records"
}

// SetToolCalls stores names as a comma separated list.
func (r *ChatRecord) SetToolCalls(names []string) {
	r.ToolCalls = strings.Join(names, ",")
}

// ToolCallNames splits ToolCalls.
func (r *ChatRecord) ToolCallNames() []string {
	if r.ToolCalls == "" {
		return nil
	}
	return strings.Split(r.ToolCalls, ",")
}

package tools

import (
	"context"
	"errors"

	"github.com/openai/openai-go/v3"
)

// Name is the closed set of tools the assistant may call.
type Name string

const (
	NameGetTime    Name = "get_time"
	NameSearchDocs Name = "search_docs"
)

// knownNames maps wire names to tool names
var knownNames = map[string]Name{
	string(NameGetTime):    NameGetTime,
	string(NameSearchDocs): NameSearchDocs,
}

// ParseName resolves the name sent by the model.
func ParseName(s string) (Name, bool) {
	name, ok := knownNames[s]
	return name, ok
}

var (
	// ErrUnknownTool is returned when the model calls a tool that is not registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrInvalidArguments is returned when tool arguments do not match the tool schema.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Result is any JSON-serializable tool output.
type Result any

// Tool is a locally executed capability offered to the model.
type Tool interface {
	Name() Name
	Definition() openai.ChatCompletionToolUnionParam
	Call(ctx context.Context, args map[string]any) (Result, error)
}

// TimeResult is the output of get_time.
type TimeResult struct {
	ISO      string `json:"iso"`
	Display  string `json:"display"`
	Timezone string `json:"timezone"`
}

// Document is one entry of the search_docs catalog.
type Document struct {
	Title     string  `json:"title" yaml:"title"`
	URL       string  `json:"url" yaml:"url"`
	Snippet   string  `json:"snippet" yaml:"snippet"`
	Relevance float64 `json:"relevance" yaml:"relevance"`
}

// SearchRequest holds search_docs arguments.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchResult is the output of search_docs.
type SearchResult struct {
	Query   string     `json:"query"`
	Results []Document `json:"results"`
}

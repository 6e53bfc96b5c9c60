package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"
)

// DefaultSearchLimit is used when the model does not pass a limit.
const DefaultSearchLimit = 3

// DefaultDocuments is the static tea-guide catalog served by search_docs.
var DefaultDocuments = []Document{
	{
		Title:     "Hướng dẫn pha trà ô long",
		URL:       "/blog/huong-dan-pha-tra-o-long",
		Snippet:   "Dùng nước 90-95°C, tráng ấm trước, hãm 45 giây cho nước đầu và tăng dần thời gian cho các nước sau.",
		Relevance: 0.95,
	},
	{
		Title:     "Chính sách giao hàng và đổi trả",
		URL:       "/chinh-sach/giao-hang",
		Snippet:   "Miễn phí giao hàng cho đơn từ 500.000đ. Đổi trả trong 7 ngày nếu sản phẩm còn nguyên niêm phong.",
		Relevance: 0.87,
	},
	{
		Title:     "Bảo quản trà đúng cách",
		URL:       "/blog/bao-quan-tra",
		Snippet:   "Giữ trà trong hộp kín, tránh ánh nắng và mùi lạ; trà xanh nên để ngăn mát tủ lạnh.",
		Relevance: 0.81,
	},
	{
		Title:     "Phân biệt trà xanh, trà đen và trà trắng",
		URL:       "/blog/phan-biet-cac-loai-tra",
		Snippet:   "Mức độ oxy hóa quyết định hương vị: trà xanh gần như không oxy hóa, trà đen oxy hóa hoàn toàn.",
		Relevance: 0.74,
	},
	{
		Title:     "Câu hỏi thường gặp về thanh toán",
		URL:       "/ho-tro/thanh-toan",
		Snippet:   "Cửa hàng nhận chuyển khoản, ví điện tử và thanh toán khi nhận hàng (COD).",
		Relevance: 0.66,
	},
}

// SearchDocs is a stand-in for a real document index: it ignores the query
// and returns the static catalog truncated to limit.
type SearchDocs struct {
	docs []Document
}

// NewSearchDocs creates the search_docs tool. A nil catalog uses DefaultDocuments.
func NewSearchDocs(docs []Document) *SearchDocs {
	if len(docs) == 0 {
		docs = DefaultDocuments
	}
	copied := make([]Document, len(docs))
	copy(copied, docs)
	return &SearchDocs{docs: copied}
}

func (s *SearchDocs) Name() Name {
	return NameSearchDocs
}

func (s *SearchDocs) Definition() openai.ChatCompletionToolUnionParam {
	return openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
		Name:        string(NameSearchDocs),
		Description: openai.String("Tìm bài viết hướng dẫn và chính sách của cửa hàng trà."),
		Parameters: shared.FunctionParameters{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Nội dung cần tìm",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Số kết quả tối đa (mặc định 3)",
				},
			},
			"required": []string{"query"},
		},
	})
}

func (s *SearchDocs) Call(_ context.Context, args map[string]any) (Result, error) {
	req, err := decodeSearchRequest(args)
	if err != nil {
		return nil, err
	}

	limit := req.Limit
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > len(s.docs) {
		limit = len(s.docs)
	}

	results := make([]Document, limit)
	copy(results, s.docs[:limit])
	return SearchResult{Query: req.Query, Results: results}, nil
}

// decodeSearchRequest maps loosely typed JSON arguments onto SearchRequest.
func decodeSearchRequest(args map[string]any) (SearchRequest, error) {
	var req SearchRequest
	raw, err := json.Marshal(args)
	if err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	if err := json.Unmarshal(raw, &req); err != nil {
		return req, fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return req, fmt.Errorf("%w: query is required", ErrInvalidArguments)
	}
	return req, nil
}

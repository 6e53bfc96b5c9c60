// Package token estimates token usage for relayed conversations with tiktoken.
// Counts are approximations used for logging and metrics only.
package token

import (
	"fmt"
	"sync"

	"github.com/openai/openai-go/v3"
	"github.com/tiktoken-go/tokenizer"
)

// requestOverhead approximates the per-request framing tokens
const requestOverhead = 3

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

// defaultCodec loads O200kBase once; the tables are large.
func defaultCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.O200kBase)
		if codecErr != nil {
			codecErr = fmt.Errorf("failed to get tokenizer: %w", codecErr)
		}
	})
	return codec, codecErr
}

func countOrEstimate(enc tokenizer.Codec, text string) int {
	if text == "" {
		return 0
	}
	if enc == nil {
		return len(text) / 4
	}
	c, err := enc.Count(text)
	if err != nil {
		return len(text) / 4
	}
	return c
}

// EstimateInputTokens estimates the prompt size of a message list.
func EstimateInputTokens(messages []openai.ChatCompletionMessageParamUnion) (int, error) {
	enc, err := defaultCodec()
	if err != nil {
		return 0, err
	}

	total := 0
	for _, msg := range messages {
		if role := msg.GetRole(); role != nil {
			total += countOrEstimate(enc, *role)
		}
		switch content := msg.GetContent().AsAny().(type) {
		case *string:
			if content != nil {
				total += countOrEstimate(enc, *content)
			}
		case *[]openai.ChatCompletionContentPartTextParam:
			if content != nil {
				for _, part := range *content {
					total += countOrEstimate(enc, part.Text)
				}
			}
		case *[]openai.ChatCompletionContentPartUnionParam:
			if content != nil {
				for _, part := range *content {
					if part.OfText != nil {
						total += countOrEstimate(enc, part.OfText.Text)
					}
				}
			}
		}
		if msg.OfAssistant != nil {
			for _, call := range msg.OfAssistant.ToolCalls {
				if fn := call.OfFunction; fn != nil {
					total += countOrEstimate(enc, fn.Function.Name)
					total += countOrEstimate(enc, fn.Function.Arguments)
				}
			}
		}
	}

	return total + requestOverhead, nil
}

// EstimateOutputTokens estimates tokens in generated text.
func EstimateOutputTokens(content string) int {
	enc, err := defaultCodec()
	if err != nil {
		return len(content) / 4
	}
	return countOrEstimate(enc, content)
}

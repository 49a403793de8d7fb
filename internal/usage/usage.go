// Package usage estimates token counts for the usage block of chat
// completion responses. The upstream reports no usage, so counts are local
// approximations.
package usage

import (
	"sync"
	"unicode/utf8"

	"chatrelay-backend/internal/adapter"
	"chatrelay-backend/internal/model"
	"chatrelay-backend/pkg/logger"

	"github.com/pkoukk/tiktoken-go"
	openai "github.com/sashabaranov/go-openai"
)

const (
	TokenizerEstimate = "estimate"
	TokenizerTiktoken = "tiktoken"
)

type Counter interface {
	Count(text string) int
}

// EstimateCounter counts one token per four characters, rounded up.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// TiktokenCounter counts with a tiktoken encoding. The encoding is loaded on
// first use; if it cannot be loaded the counter falls back to the estimate.
type TiktokenCounter struct {
	encoding string

	once    sync.Once
	encoder *tiktoken.Tiktoken
	err     error
}

func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &TiktokenCounter{encoding: encoding}
}

func (c *TiktokenCounter) Count(text string) int {
	c.once.Do(func() {
		c.encoder, c.err = tiktoken.GetEncoding(c.encoding)
		if c.err != nil {
			logger.WithComponent("usage").Warnf("tiktoken encoding %s unavailable, estimating: %v", c.encoding, c.err)
		}
	})
	if c.err != nil {
		return EstimateCounter{}.Count(text)
	}
	return len(c.encoder.Encode(text, nil, nil))
}

// NewCounter returns the counter named by tokenizer. Unknown names estimate.
func NewCounter(tokenizer, encoding string) Counter {
	if tokenizer == TokenizerTiktoken {
		return NewTiktokenCounter(encoding)
	}
	return EstimateCounter{}
}

// Compute counts every message separately for the prompt and the reply for
// the completion. Total is their sum.
func Compute(counter Counter, messages []model.ChatMessage, completion string) openai.Usage {
	prompt := 0
	for _, msg := range messages {
		prompt += counter.Count(adapter.ExtractText(msg.Content))
	}
	reply := counter.Count(completion)
	return openai.Usage{
		PromptTokens:     prompt,
		CompletionTokens: reply,
		TotalTokens:      prompt + reply,
	}
}

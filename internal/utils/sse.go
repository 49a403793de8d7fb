package utils

import (
	"encoding/json"
	"fmt"
	"net/http"

	"chatrelay-backend/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

const doneMarker = "[DONE]"

// SSEWriter writes server-sent events and flushes after each one.
type SSEWriter struct {
	w http.ResponseWriter
}

func NewSSEWriter(w http.ResponseWriter) *SSEWriter {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &SSEWriter{w: w}
}

func (s *SSEWriter) Write(event, data string) error {
	if event != "" {
		if _, err := fmt.Fprintf(s.w, "event: %s\n", event); err != nil {
			return err
		}
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}

	if f, ok := s.w.(http.Flusher); ok {
		f.Flush()
	}

	return nil
}

// WriteJSON sends v as an unnamed data event.
func (s *SSEWriter) WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Write("", string(data))
}

func (s *SSEWriter) Close() error {
	return s.Write("", doneMarker)
}

// ChunkStream writes one chat.completion.chunk stream. Every chunk carries
// the same id, model and creation time. After the first failed write, or
// after Finish or Fail, further calls are dropped and return the first error.
type ChunkStream struct {
	sse     *SSEWriter
	id      string
	model   string
	created int64

	err   error
	ended bool
}

func NewChunkStream(w http.ResponseWriter, id, modelName string, created int64) *ChunkStream {
	return &ChunkStream{
		sse:     NewSSEWriter(w),
		id:      id,
		model:   modelName,
		created: created,
	}
}

// Delta sends one content fragment with a null finish reason.
func (s *ChunkStream) Delta(content string) error {
	return s.send(s.chunk(openai.ChatCompletionStreamChoiceDelta{Content: content}, ""))
}

// Finish sends the closing chunk with the stop reason and usage, then [DONE].
func (s *ChunkStream) Finish(u openai.Usage) error {
	final := s.chunk(openai.ChatCompletionStreamChoiceDelta{}, openai.FinishReasonStop)
	final.Usage = &u
	if err := s.send(final); err != nil {
		return err
	}
	s.ended = true
	if err := s.sse.Close(); err != nil {
		s.err = err
	}
	return s.err
}

// Fail sends an error envelope as the last event. No [DONE] follows it.
func (s *ChunkStream) Fail(message, errType string) error {
	err := s.send(model.NewErrorResponse(message, errType))
	s.ended = true
	return err
}

// Err returns the first write error, if any.
func (s *ChunkStream) Err() error {
	return s.err
}

func (s *ChunkStream) send(v interface{}) error {
	if s.err != nil || s.ended {
		return s.err
	}
	if err := s.sse.WriteJSON(v); err != nil {
		s.err = err
	}
	return s.err
}

func (s *ChunkStream) chunk(delta openai.ChatCompletionStreamChoiceDelta, finish openai.FinishReason) openai.ChatCompletionStreamResponse {
	return openai.ChatCompletionStreamResponse{
		ID:      s.id,
		Object:  model.ObjectChatCompletionChunk,
		Created: s.created,
		Model:   s.model,
		Choices: []openai.ChatCompletionStreamChoice{{
			Index:        0,
			Delta:        delta,
			FinishReason: finish,
		}},
	}
}

package adapter

import (
	"strings"

	"github.com/tidwall/gjson"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
	deltaType    = "text-delta"

	// DefaultFallback is returned when a response carried no text at all.
	DefaultFallback = "Sorry, unable to get a valid response."
)

// ParseLine applies the event-stream policy to a single line. It reports the
// text delta the line carries, if any, and whether the line is the end marker.
// Malformed payloads are ignored.
func ParseLine(line string) (delta string, done bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}

	payload := line[len(dataPrefix):]
	if payload == doneSentinel {
		return "", true
	}
	if !gjson.Valid(payload) {
		return "", false
	}

	event := gjson.Parse(payload)
	if event.Get("type").String() != deltaType {
		return "", false
	}
	d := event.Get("delta")
	if d.Type != gjson.String {
		return "", false
	}
	return d.Str, false
}

// CollectDeltas concatenates every text delta in raw up to the end marker.
func CollectDeltas(raw string) string {
	var b strings.Builder
	for _, line := range strings.Split(raw, "\n") {
		delta, done := ParseLine(line)
		if done {
			break
		}
		b.WriteString(delta)
	}
	return b.String()
}

// ParseEventStream is CollectDeltas with DefaultFallback for empty results.
func ParseEventStream(raw string) string {
	return WithFallback(CollectDeltas(raw), DefaultFallback)
}

func WithFallback(content, fallback string) string {
	if content == "" {
		return fallback
	}
	return content
}

package adapter

import (
	"fmt"
	"strings"

	"chatrelay-backend/internal/model"
)

const imageMarker = "[Image]"

// ExtractText flattens message content to a single string. Blocks are
// rendered in order and joined with newlines.
func ExtractText(content model.MessageContent) string {
	switch content.Kind {
	case model.ContentText, model.ContentOther:
		return content.Text
	case model.ContentBlocks:
		parts := make([]string, 0, len(content.Blocks))
		for _, block := range content.Blocks {
			parts = append(parts, renderBlock(block))
		}
		return strings.Join(parts, "\n")
	default:
		return content.Text
	}
}

func renderBlock(block model.ContentBlock) string {
	switch block.Kind {
	case model.BlockCode:
		return fmt.Sprintf("```%s\n%s\n```", block.Language, block.Code)
	case model.BlockImage:
		return imageMarker
	default:
		return block.Text
	}
}

// ToUpstream maps chat messages 1:1 onto the upstream schema. Message ids
// come from the input or from the message position, so the mapping is pure.
func ToUpstream(messages []model.ChatMessage) []model.UpstreamMessage {
	out := make([]model.UpstreamMessage, 0, len(messages))
	for i, msg := range messages {
		id := msg.ID
		if id == "" {
			id = fmt.Sprintf("msg_%d", i)
		}
		out = append(out, model.UpstreamMessage{
			Parts: []model.UpstreamPart{{Type: "text", Text: ExtractText(msg.Content)}},
			ID:    id,
			Role:  msg.Role,
		})
	}
	return out
}

package model

import (
	"github.com/tidwall/gjson"
)

// ContentKind tags the shape a message's content arrived in.
type ContentKind int

const (
	ContentText ContentKind = iota
	ContentBlocks
	ContentOther
)

// BlockKind tags one element of a structured content array.
type BlockKind string

const (
	BlockText    BlockKind = "text"
	BlockCode    BlockKind = "code"
	BlockImage   BlockKind = "image_url"
	BlockGeneric BlockKind = "generic"
)

// ContentBlock is one typed element of structured content. Text carries the
// text for BlockText and the extracted fallback text for BlockGeneric.
type ContentBlock struct {
	Kind     BlockKind
	Text     string
	Code     string
	Language string
}

func TextBlock(text string) ContentBlock {
	return ContentBlock{Kind: BlockText, Text: text}
}

func CodeBlock(language, code string) ContentBlock {
	return ContentBlock{Kind: BlockCode, Language: language, Code: code}
}

func ImageBlock() ContentBlock {
	return ContentBlock{Kind: BlockImage}
}

func GenericBlock(text string) ContentBlock {
	return ContentBlock{Kind: BlockGeneric, Text: text}
}

// MessageContent is either a plain string, an ordered list of blocks, or any
// other JSON value kept as its string representation in Text.
type MessageContent struct {
	Kind   ContentKind
	Text   string
	Blocks []ContentBlock
}

func NewTextContent(text string) MessageContent {
	return MessageContent{Kind: ContentText, Text: text}
}

func NewBlockContent(blocks ...ContentBlock) MessageContent {
	return MessageContent{Kind: ContentBlocks, Blocks: blocks}
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	r := gjson.ParseBytes(data)

	switch {
	case r.Type == gjson.String:
		*c = NewTextContent(r.Str)
	case r.IsArray():
		blocks := make([]ContentBlock, 0, len(r.Array()))
		r.ForEach(func(_, item gjson.Result) bool {
			if block, ok := blockFromJSON(item); ok {
				blocks = append(blocks, block)
			}
			return true
		})
		*c = NewBlockContent(blocks...)
	case r.Type == gjson.Null:
		*c = MessageContent{Kind: ContentOther, Text: "null"}
	case r.IsObject():
		text, _ := fallbackText(r)
		if text == "" {
			text = r.Raw
		}
		*c = MessageContent{Kind: ContentOther, Text: text}
	default:
		*c = MessageContent{Kind: ContentOther, Text: r.String()}
	}

	return nil
}

// blockFromJSON classifies one array element. Elements carrying nothing
// renderable are dropped.
func blockFromJSON(item gjson.Result) (ContentBlock, bool) {
	if item.Type == gjson.String {
		return TextBlock(item.Str), true
	}
	if !item.IsObject() {
		return ContentBlock{}, false
	}

	switch BlockKind(item.Get("type").String()) {
	case BlockText:
		if text := item.Get("text").String(); text != "" {
			return TextBlock(text), true
		}
	case BlockCode:
		if code := item.Get("code").String(); code != "" {
			return CodeBlock(item.Get("language").String(), code), true
		}
	case BlockImage:
		return ImageBlock(), true
	}

	if text, ok := fallbackText(item); ok {
		return GenericBlock(text), true
	}
	return ContentBlock{}, false
}

func fallbackText(obj gjson.Result) (string, bool) {
	if text := obj.Get("text").String(); text != "" {
		return text, true
	}
	content := obj.Get("content")
	if !content.Exists() || content.Type == gjson.Null || content.Type == gjson.False {
		return "", false
	}
	if text := content.String(); text != "" {
		return text, true
	}
	return "", false
}

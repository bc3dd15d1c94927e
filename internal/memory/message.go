package memory

import (
	"encoding/base64"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/nextlevelbuilder/argus/internal/providers"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"

	imageRemovedMarker = "[screenshot removed]"
)

// Message is one history entry. The image payload is owned by the message and
// is the only field pruning mutates.
type Message struct {
	Role       string
	Text       string
	Image      []byte
	ImageMIME  string
	Pinned     bool
	CreatedAt  time.Time
	ToolCalls  []providers.ToolCall // assistant tool-call descriptors
	ToolCallID string               // set when Role == RoleTool
	ToolName   string

	cost int
}

func (m *Message) hasImage() bool { return len(m.Image) > 0 }

func (m *Message) isToolCall() bool { return m.Role == RoleAssistant && len(m.ToolCalls) > 0 }

func (m *Message) estimate(c Counter) int {
	n := c.Count(m.Text)
	if m.hasImage() {
		n += imageTokenCost
	}
	n += len(m.ToolCalls) * toolCallCost
	if m.Role == RoleTool {
		n += toolCallCost
	}
	return n
}

// stripImage drops the payload and leaves a textual marker.
func (m *Message) stripImage() {
	m.Image = nil
	m.ImageMIME = ""
	if m.Text == "" {
		m.Text = imageRemovedMarker
	} else {
		m.Text = imageRemovedMarker + " " + m.Text
	}
}

// wire converts the message to its provider shape.
func (m *Message) wire() providers.Message {
	switch {
	case m.Role == RoleTool:
		return providers.Message{Role: RoleTool, ToolCallID: m.ToolCallID, Name: m.ToolName, Content: m.Text}
	case m.isToolCall():
		return providers.Message{Role: m.Role, Content: m.Text, ToolCalls: m.ToolCalls}
	case m.hasImage():
		var parts []providers.ContentPart
		if m.Text != "" {
			parts = append(parts, providers.ContentPart{Type: "text", Text: m.Text})
		}
		parts = append(parts, providers.ContentPart{
			Type:     "image_url",
			ImageURL: &providers.ImageURL{URL: dataURL(m.ImageMIME, m.Image)},
		})
		return providers.Message{Role: m.Role, Parts: parts}
	default:
		return providers.Message{Role: m.Role, Content: m.Text}
	}
}

func detectImageMIME(image []byte) string {
	if len(image) == 0 {
		return ""
	}
	mt := mimetype.Detect(image)
	if !mt.Is("image/png") && !mt.Is("image/jpeg") && !mt.Is("image/gif") && !mt.Is("image/webp") {
		return "image/png"
	}
	return mt.String()
}

func dataURL(mime string, data []byte) string {
	if mime == "" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

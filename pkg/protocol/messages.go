// Package protocol defines the message format exchanged between the agents,
// the orchestrator and the driving client (CLI renderer).
// Every message is {sender_name, type, content}.
package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Protocol version, reported by doctor.
const ProtocolVersion = 1

// Kind is the message type. New kinds must be added to every switch over Kind.
type Kind int

const (
	KindStatus Kind = iota
	KindAIContent
	KindText
	KindToolResult
	KindActionPoint
	KindRequest
	KindHumanIntervention
	KindHumanResponse
)

var kindNames = [...]string{
	KindStatus:            "status",
	KindAIContent:         "ai_content",
	KindText:              "text",
	KindToolResult:        "tool_result",
	KindActionPoint:       "action_point",
	KindRequest:           "request",
	KindHumanIntervention: "human_intervention_needed",
	KindHumanResponse:     "human_response",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("kind(%d)", int(k))
	}
	return kindNames[k]
}

// ParseKind converts a wire type string into a Kind.
func ParseKind(s string) (Kind, error) {
	for i, name := range kindNames {
		if name == s {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown message type %q", s)
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Request payloads carried by KindRequest messages.
const (
	RequestStopAgent      = "stop_agent"
	RequestNeedPermission = "need_permission"
	RequestApprove        = "approve"
	RequestDeny           = "deny"
)

// Message is one entry on the inter-agent queues.
// Content is a string for most kinds, *InterventionRequest for
// KindHumanIntervention, *HumanResponse for KindHumanResponse,
// *ToolResult for KindToolResult and *ActionPoint for KindActionPoint.
type Message struct {
	Sender  string `json:"sender_name"`
	Kind    Kind   `json:"type"`
	Content any    `json:"content"`
}

// Text returns the content as a string, or "" when it is a structured payload.
func (m Message) Text() string {
	s, _ := m.Content.(string)
	return s
}

// IsStop reports whether m is a cooperative cancellation request.
func (m Message) IsStop() bool {
	return m.Kind == KindRequest && m.Text() == RequestStopAgent
}

// IsPermissionRequest reports whether m asks the client for permission.
func (m Message) IsPermissionRequest() bool {
	return m.Kind == KindRequest && strings.Contains(m.Text(), RequestNeedPermission)
}

// IsApproval reports whether m answers a permission request, and with which verdict.
func (m Message) IsApproval() (approved, ok bool) {
	if m.Kind != KindRequest {
		return false, false
	}
	switch m.Text() {
	case RequestApprove:
		return true, true
	case RequestDeny:
		return false, true
	}
	return false, false
}

func NewText(sender, text string) Message {
	return Message{Sender: sender, Kind: KindText, Content: text}
}

func NewStatus(sender, status string) Message {
	return Message{Sender: sender, Kind: KindStatus, Content: status}
}

func NewRequest(sender, payload string) Message {
	return Message{Sender: sender, Kind: KindRequest, Content: payload}
}

// InterventionRequest is emitted when every strategy of an attempt failed.
type InterventionRequest struct {
	OriginalTask string   `json:"original_task"`
	CurrentTask  string   `json:"current_task"`
	Errors       []string `json:"errors"`
	RetryCount   int      `json:"retry_count"`
	MaxRetries   int      `json:"max_retries"`
}

// NewIntervention builds a KindHumanIntervention message.
func NewIntervention(sender string, req *InterventionRequest) Message {
	return Message{Sender: sender, Kind: KindHumanIntervention, Content: req}
}

// Human response actions.
const (
	ActionModifyTask     = "modify_task"
	ActionRetry          = "retry"
	ActionSkip           = "skip"
	ActionCompleted      = "completed"
	ActionProvideContext = "provide_context"
)

// HumanResponse is the structured answer to an InterventionRequest.
type HumanResponse struct {
	Action       string `json:"action"`
	ModifiedTask string `json:"modified_task,omitempty"`
	ForceAgent   string `json:"force_agent,omitempty"`
	Context      string `json:"context,omitempty"`
}

// NewHumanResponse builds a KindHumanResponse message.
func NewHumanResponse(sender string, resp *HumanResponse) Message {
	return Message{Sender: sender, Kind: KindHumanResponse, Content: resp}
}

// ToolResult reports the outcome of one tool call to the client.
type ToolResult struct {
	Function  string `json:"function"`
	Success   bool   `json:"success"`
	ErrorType string `json:"error_type,omitempty"`
}

// NewToolResult builds a KindToolResult message.
func NewToolResult(sender, function string, success bool, errorType string) Message {
	return Message{Sender: sender, Kind: KindToolResult, Content: &ToolResult{Function: function, Success: success, ErrorType: errorType}}
}

// NewAIContent builds a KindAIContent message.
func NewAIContent(sender, text string) Message {
	return Message{Sender: sender, Kind: KindAIContent, Content: text}
}

// ActionPoint is a screen position the GUI agent is about to act on.
type ActionPoint struct {
	Action string `json:"action"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	EndX   int    `json:"end_x,omitempty"`
	EndY   int    `json:"end_y,omitempty"`
}

// NewActionPoint builds a KindActionPoint message.
func NewActionPoint(sender string, p *ActionPoint) Message {
	return Message{Sender: sender, Kind: KindActionPoint, Content: p}
}

// rawMessage mirrors Message with an undecoded content field.
type rawMessage struct {
	Sender  string          `json:"sender_name"`
	Kind    Kind            `json:"type"`
	Content json.RawMessage `json:"content"`
}

// UnmarshalJSON decodes content into the payload type implied by the kind.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Sender = raw.Sender
	m.Kind = raw.Kind

	if len(raw.Content) == 0 || string(raw.Content) == "null" {
		m.Content = nil
		return nil
	}

	switch raw.Kind {
	case KindHumanIntervention:
		var v InterventionRequest
		if err := json.Unmarshal(raw.Content, &v); err != nil {
			return fmt.Errorf("decode %s content: %w", raw.Kind, err)
		}
		m.Content = &v
	case KindHumanResponse:
		var v HumanResponse
		if err := json.Unmarshal(raw.Content, &v); err != nil {
			return fmt.Errorf("decode %s content: %w", raw.Kind, err)
		}
		m.Content = &v
	case KindActionPoint:
		var v ActionPoint
		if err := json.Unmarshal(raw.Content, &v); err != nil {
			return fmt.Errorf("decode %s content: %w", raw.Kind, err)
		}
		m.Content = &v
	case KindToolResult:
		var v ToolResult
		if err := json.Unmarshal(raw.Content, &v); err != nil {
			return fmt.Errorf("decode %s content: %w", raw.Kind, err)
		}
		m.Content = &v
	case KindStatus, KindAIContent, KindText, KindRequest:
		var s string
		if err := json.Unmarshal(raw.Content, &s); err != nil {
			return fmt.Errorf("decode %s content: %w", raw.Kind, err)
		}
		m.Content = s
	default:
		return fmt.Errorf("unknown message type %s", raw.Kind)
	}
	return nil
}

package chat

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Roles recognized on the wire. Assistant and system are both treated as
// bot output for chain tracking.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is the atomic conversation unit exchanged with the backend.
// On the wire role and content live under a nested "message" object; the
// struct keeps them flat and restores the nesting when marshaling.
type Message struct {
	MessageID      string
	ContextID      string
	Role           string
	Content        string
	Attachments    []Attachment
	IsError        bool
	ClassifierCode string
	Model          string
	CreatedAt      time.Time
	PrevMessID     string
	RepByMessIDs   []string
}

// IsBot reports whether the message came from the backend side of the
// conversation.
func (m Message) IsBot() bool {
	return m.Role == RoleAssistant || m.Role == RoleSystem
}

// Confirmed reports whether the message carries a backend-assigned id that
// may anchor the reply chain. Temporary placeholders and synthesized error
// messages never qualify.
func (m Message) Confirmed() bool {
	return m.MessageID != "" && !IsTempID(m.MessageID) && !IsErrorID(m.MessageID) && !m.IsError
}

type messageBody struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type messageWire struct {
	MessageID      string       `json:"messageId,omitempty"`
	ContextID      string       `json:"contextId,omitempty"`
	Message        messageBody  `json:"message"`
	Attachments    []Attachment `json:"attachments,omitempty"`
	IsError        bool         `json:"isError,omitempty"`
	ClassifierCode string       `json:"classifierCode,omitempty"`
	Model          string       `json:"model,omitempty"`
	CreatedAt      string       `json:"createdAt,omitempty"`
	PrevMessID     string       `json:"prevMessId,omitempty"`
	RepByMessIDs   []string     `json:"repByMessIds,omitempty"`
}

// MarshalJSON renders the nested wire form with the content already
// normalized to a plain string.
func (m Message) MarshalJSON() ([]byte, error) {
	content, err := json.Marshal(m.Content)
	if err != nil {
		return nil, err
	}

	wire := messageWire{
		MessageID:      m.MessageID,
		ContextID:      m.ContextID,
		Message:        messageBody{Role: m.Role, Content: content},
		Attachments:    m.Attachments,
		IsError:        m.IsError,
		ClassifierCode: m.ClassifierCode,
		Model:          m.Model,
		PrevMessID:     m.PrevMessID,
		RepByMessIDs:   m.RepByMessIDs,
	}
	if !m.CreatedAt.IsZero() {
		wire.CreatedAt = m.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(wire)
}

// UnmarshalJSON accepts the nested wire form. Content may arrive as a plain
// string or as one of the wrapper objects; it is normalized either way so a
// message reloaded from the history API matches one received live.
func (m *Message) UnmarshalJSON(data []byte) error {
	var wire messageWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*m = Message{
		MessageID:      wire.MessageID,
		ContextID:      wire.ContextID,
		Role:           wire.Message.Role,
		Content:        NormalizeRawContent(wire.Message.Content),
		Attachments:    wire.Attachments,
		IsError:        wire.IsError,
		ClassifierCode: wire.ClassifierCode,
		Model:          wire.Model,
		PrevMessID:     wire.PrevMessID,
		RepByMessIDs:   wire.RepByMessIDs,
	}
	m.CreatedAt = ParseTimestamp(wire.CreatedAt)
	return nil
}

// ParseTimestamp parses the backend's ISO-8601 timestamps, returning the
// zero time when the value is absent or malformed.
func ParseTimestamp(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}

// NewTempUserID mints a placeholder id for a user message awaiting backend
// confirmation.
func NewTempUserID() string {
	return "temp-user-" + uuid.NewString()
}

// NewTempBotID mints a placeholder id for a bot message that arrived without
// an id of its own.
func NewTempBotID() string {
	return "temp-bot-" + uuid.NewString()
}

// NewErrorID mints an id for a synthesized error placeholder message.
func NewErrorID() string {
	return "error-" + uuid.NewString()
}

// IsTempID reports whether the id is a client-side placeholder.
func IsTempID(id string) bool {
	return len(id) >= 5 && id[:5] == "temp-"
}

// IsErrorID reports whether the id belongs to a synthesized error message.
func IsErrorID(id string) bool {
	return len(id) >= 6 && id[:6] == "error-"
}

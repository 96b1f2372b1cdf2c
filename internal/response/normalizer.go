// Package response converts the backend's heterogeneous response shapes
// into the canonical message form the conversation store consumes.
package response

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/irdop/limschat/internal/model/chat"
)

// ErrUnrecognizedShape marks a response that matches none of the known
// shapes. Callers decide whether to try the legacy session path or drop it.
var ErrUnrecognizedShape = errors.New("response: unrecognized shape")

type messagePart struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type payloadPart struct {
	Error          json.RawMessage `json:"error,omitempty"`
	Message        *messagePart    `json:"message,omitempty"`
	Role           string          `json:"role,omitempty"`
	Content        json.RawMessage `json:"content,omitempty"`
	MessageID      string          `json:"messageId,omitempty"`
	ContextID      string          `json:"contextId,omitempty"`
	Model          string          `json:"model,omitempty"`
	ClassifierCode string          `json:"classifierCode,omitempty"`
	CreatedAt      string          `json:"createdAt,omitempty"`
	PrevMessID     string          `json:"prevMessId,omitempty"`
}

type dataPart struct {
	Model          string `json:"model,omitempty"`
	ClassifierCode string `json:"classifierCode,omitempty"`
}

type envelope struct {
	Error     json.RawMessage `json:"error,omitempty"`
	Payload   *payloadPart    `json:"payload,omitempty"`
	Role      string          `json:"role,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	ContextID string          `json:"contextId,omitempty"`
	MsgID     string          `json:"_msgid,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
	Data      *dataPart       `json:"data,omitempty"`
}

// Normalize maps a decoded backend response onto the canonical message.
// Shapes are tried in priority order: error, full payload, legacy payload,
// direct. Responses matching none return ErrUnrecognizedShape.
func Normalize(raw json.RawMessage) (chat.Message, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return chat.Message{}, err
	}

	if errRaw := errorField(env); present(errRaw) {
		return chat.Message{
			MessageID: chat.NewErrorID(),
			ContextID: env.ContextID,
			Role:      chat.RoleAssistant,
			Content:   errorText(errRaw),
			IsError:   true,
			CreatedAt: time.Now().UTC(),
		}, nil
	}

	if p := env.Payload; p != nil {
		if p.Message != nil && p.Message.Role != "" && present(p.Message.Content) {
			return fromFullPayload(env, p), nil
		}
		if p.Role != "" && present(p.Content) {
			return fromLegacyPayload(env, p), nil
		}
	}

	if env.Role != "" && present(env.Content) {
		return fromDirect(env), nil
	}

	return chat.Message{}, ErrUnrecognizedShape
}

func fromFullPayload(env envelope, p *payloadPart) chat.Message {
	msg := chat.Message{
		MessageID:      p.MessageID,
		ContextID:      p.ContextID,
		Role:           p.Message.Role,
		Content:        chat.NormalizeRawContent(p.Message.Content),
		Model:          p.Model,
		ClassifierCode: p.ClassifierCode,
		CreatedAt:      chat.ParseTimestamp(p.CreatedAt),
		PrevMessID:     p.PrevMessID,
	}
	if msg.MessageID == "" {
		msg.MessageID = chat.NewTempBotID()
	}
	if msg.ClassifierCode == "" && env.Data != nil {
		msg.ClassifierCode = env.Data.ClassifierCode
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return msg
}

func fromLegacyPayload(env envelope, p *payloadPart) chat.Message {
	msg := chat.Message{
		MessageID: env.MsgID,
		ContextID: env.ContextID,
		Role:      p.Role,
		Content:   chat.NormalizeRawContent(p.Content),
		CreatedAt: chat.ParseTimestamp(env.Timestamp),
	}
	if msg.MessageID == "" {
		msg.MessageID = chat.NewTempBotID()
	}
	if env.Data != nil {
		msg.Model = env.Data.Model
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	return msg
}

func fromDirect(env envelope) chat.Message {
	msg := chat.Message{
		MessageID: env.MessageID,
		ContextID: env.ContextID,
		Role:      env.Role,
		Content:   chat.NormalizeRawContent(env.Content),
		CreatedAt: time.Now().UTC(),
	}
	if msg.MessageID == "" {
		msg.MessageID = chat.NewTempBotID()
	}
	return msg
}

// errorField prefers the top-level error but also accepts payload.error.
func errorField(env envelope) json.RawMessage {
	if present(env.Error) {
		return env.Error
	}
	if env.Payload != nil && present(env.Payload.Error) {
		return env.Payload.Error
	}
	return nil
}

// errorText stringifies an error value: plain strings as-is, anything else
// as compact JSON.
func errorText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && string(raw) != "null"
}

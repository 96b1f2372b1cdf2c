package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/irdop/limschat/internal/model/chat"
	"github.com/irdop/limschat/internal/response"
	"github.com/irdop/limschat/internal/service/conversation"
	"github.com/irdop/limschat/internal/service/session"
)

const chatEndpoint = "/ws/v1/gen_ai/chat"

// Envelope is the frame wrapped around every outbound WebSocket payload.
type Envelope struct {
	Type      string `json:"type"`
	Endpoint  string `json:"endpoint"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
	AppID     string `json:"appId"`
}

// Payload is the chat request body, identical over WebSocket and HTTP.
type Payload struct {
	Model          string            `json:"model"`
	Message        string            `json:"message"`
	ClassifierCode string            `json:"classifierCode,omitempty"`
	Files          []chat.Attachment `json:"files,omitempty"`
	ContextID      string            `json:"contextId,omitempty"`
	MessageID      string            `json:"messageId,omitempty"`
}

// Conn is the WebSocket surface the sender needs. *WSClient satisfies it.
type Conn interface {
	Send(v any) bool
	IsConnected() bool
}

// HTTPSender is the HTTP fallback surface. *api.Client satisfies it.
type HTTPSender interface {
	SendMessage(ctx context.Context, payload any) (json.RawMessage, error)
}

// SendOptions shapes one outbound user message.
type SendOptions struct {
	Text           string
	ReplyTo        string // anchor message id when replying mid-history
	ClassifierCode string
	Files          []chat.Attachment
}

// Sender runs the outbound pipeline: optimistic local echo, payload
// assembly, WebSocket-first delivery with HTTP fallback, and routing of
// whatever comes back through the normalizer.
type Sender struct {
	store    *conversation.Store
	sessions *session.Store
	ws       Conn
	api      HTTPSender
	model    string
	appID    string
}

// Option configures a Sender.
type Option func(*Sender)

// WithConn attaches a WebSocket connection. Without one every send goes
// over HTTP.
func WithConn(c Conn) Option {
	return func(s *Sender) { s.ws = c }
}

// NewSender wires the pipeline and registers itself as the store's retry
// channel.
func NewSender(store *conversation.Store, sessions *session.Store, api HTTPSender, model, appID string, opts ...Option) *Sender {
	s := &Sender{
		store:    store,
		sessions: sessions,
		api:      api,
		model:    model,
		appID:    appID,
	}
	for _, opt := range opts {
		opt(s)
	}
	store.SetResender(s)
	return s
}

// SetModel switches the model used for subsequent sends.
func (s *Sender) SetModel(model string) { s.model = model }

// Send performs one user turn. The user message appears in the window
// immediately; the backend reply (or a synthesized error) arrives later
// through HandleInbound.
func (s *Sender) Send(ctx context.Context, opts SendOptions) error {
	files := uploadedOnly(opts.Files)

	if opts.ReplyTo != "" {
		s.store.RemoveMessagesAfter(opts.ReplyTo)
	}

	userMsg := chat.Message{
		MessageID:      chat.NewTempUserID(),
		ContextID:      s.store.ContextID(),
		Role:           chat.RoleUser,
		Content:        opts.Text,
		Attachments:    files,
		ClassifierCode: opts.ClassifierCode,
		CreatedAt:      time.Now().UTC(),
	}
	s.store.AddMessage(userMsg)

	anchor := s.store.LastMessageID()
	if opts.ReplyTo != "" {
		anchor = opts.ReplyTo
		// The reply forks the chain; the next confirmed bot message
		// re-anchors it.
		s.store.ResetLastMessageID()
	}

	payload := Payload{
		Model:          s.model,
		Message:        opts.Text,
		ClassifierCode: opts.ClassifierCode,
		Files:          files,
		ContextID:      s.store.ContextID(),
		MessageID:      anchor,
	}
	return s.deliver(ctx, payload)
}

// Resend re-submits an already-displayed user message, keeping its content,
// attachments and classifier. Used by the store's retry operation; failures
// surface as synthesized error responses rather than a return value.
func (s *Sender) Resend(ctx context.Context, msg chat.Message) {
	payload := Payload{
		Model:          s.model,
		Message:        msg.Content,
		ClassifierCode: msg.ClassifierCode,
		Files:          uploadedOnly(msg.Attachments),
		ContextID:      s.store.ContextID(),
		MessageID:      s.store.LastMessageID(),
	}
	s.deliver(ctx, payload)
}

func (s *Sender) deliver(ctx context.Context, payload Payload) error {
	if s.ws != nil && s.ws.IsConnected() {
		env := Envelope{
			Type:      "chat_message",
			Endpoint:  chatEndpoint,
			Data:      payload,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			AppID:     s.appID,
		}
		if s.ws.Send(env) {
			return nil
		}
		log.Printf("[send] websocket send failed, falling back to HTTP")
	}

	raw, err := s.api.SendMessage(ctx, payload)
	if err != nil {
		log.Printf("[send] HTTP send failed: %v", err)
		s.fail(err)
		return err
	}
	s.HandleInbound(raw)
	return nil
}

// fail surfaces a delivery failure as an error response so it takes the
// same path through the normalizer as a backend-reported error.
func (s *Sender) fail(err error) {
	synth, mErr := json.Marshal(map[string]string{"error": err.Error()})
	if mErr != nil {
		return
	}
	s.HandleInbound(synth)
}

// HandleInbound routes one backend frame: normalized messages land in the
// conversation store, recognized side-band records in the session store,
// everything else is dropped with a log line.
func (s *Sender) HandleInbound(raw json.RawMessage) {
	msg, err := response.Normalize(raw)
	if err == nil {
		s.store.AddMessage(msg)
		return
	}
	if errors.Is(err, response.ErrUnrecognizedShape) {
		if rec, ok := response.Legacy(raw); ok {
			s.sessions.AddLegacy(rec)
			return
		}
	}
	log.Printf("[recv] dropping unhandled frame: %v", err)
}

// uploadedOnly filters out attachments whose upload never completed.
func uploadedOnly(files []chat.Attachment) []chat.Attachment {
	out := make([]chat.Attachment, 0, len(files))
	for _, f := range files {
		if f.OpaiFileID != "" {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

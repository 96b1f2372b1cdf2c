// Package session keeps a process-wide, append-only mirror of everything
// sent and received, across conversation switches. Consumers that predate
// the context-aware store read from here; chain and branch logic never do.
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/irdop/limschat/internal/model/chat"
	"github.com/irdop/limschat/internal/response"
)

// BotRecord is the reduced legacy bot shape kept for backward-compatible
// consumers.
type BotRecord struct {
	Content   string    `json:"content"`
	Role      string    `json:"role,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Model     string    `json:"model,omitempty"`
	MsgID     string    `json:"msgId,omitempty"`
	IsError   bool      `json:"isError,omitempty"`
}

// UserRecord is the reduced legacy user shape.
type UserRecord struct {
	Content     string            `json:"content"`
	Attachments []chat.Attachment `json:"attachments,omitempty"`
}

// Entry is one legacy-format mirror record, either a user or a bot turn.
type Entry struct {
	User *UserRecord `json:"user,omitempty"`
	Bot  *BotRecord  `json:"bot,omitempty"`
}

// Classification is a legacy session-classification record from the prior
// protocol version.
type Classification struct {
	Kind string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Store is the passive mirror. It subscribes to the conversation store and
// never feeds state back into it.
type Store struct {
	mu       sync.Mutex
	messages []chat.Message
	legacy   []Entry
	sessions []Classification
}

// New creates an empty mirror.
func New() *Store {
	return &Store{}
}

// MessageAdded mirrors a canonical message and its reduced legacy form.
func (s *Store) MessageAdded(msg chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, msg)

	if msg.Role == chat.RoleUser {
		s.legacy = append(s.legacy, Entry{User: &UserRecord{
			Content:     msg.Content,
			Attachments: msg.Attachments,
		}})
		return
	}

	s.legacy = append(s.legacy, Entry{Bot: &BotRecord{
		Content:   msg.Content,
		Role:      msg.Role,
		Timestamp: msg.CreatedAt,
		Model:     msg.Model,
		MsgID:     msg.MessageID,
		IsError:   msg.IsError,
	}})
}

// ContextBound is part of the subscriber contract; the mirror has no
// per-context state to adjust.
func (s *Store) ContextBound(string) {}

// ContextSwitched drops the mirrored messages; classification history
// survives switches.
func (s *Store) ContextSwitched(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.legacy = nil
}

// AddLegacy records a classification or bare-content response from the old
// protocol.
func (s *Store) AddLegacy(rec response.LegacyRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Kind == response.LegacyContent {
		s.legacy = append(s.legacy, Entry{Bot: &BotRecord{
			Content:   rec.Content,
			Timestamp: time.Now().UTC(),
		}})
		return
	}
	s.sessions = append(s.sessions, Classification{Kind: rec.Kind, Data: rec.Data})
}

// Messages returns a copy of the canonical mirror.
func (s *Store) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Legacy returns a copy of the reduced-format mirror.
func (s *Store) Legacy() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.legacy))
	copy(out, s.legacy)
	return out
}

// Sessions returns a copy of the classification history.
func (s *Store) Sessions() []Classification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Classification, len(s.sessions))
	copy(out, s.sessions)
	return out
}

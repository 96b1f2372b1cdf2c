// Package backend is the development server's conversation storage: an
// in-memory tree of contexts and messages with reply-chain and branch
// bookkeeping, serving the same wire contract as the production backend.
package backend

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/irdop/limschat/internal/model/chat"
)

var (
	ErrContextNotFound = errors.New("context not found")
	ErrMessageNotFound = errors.New("message not found")
)

type contextState struct {
	meta     chat.Context
	messages map[string]*chat.Message
	// roots are chain starts (messages with no prevMessId), oldest first.
	roots []string
}

// Store holds every context and message the development server knows.
type Store struct {
	mu       sync.RWMutex
	contexts map[string]*contextState
	order    []string
}

// New creates an empty store.
func New() *Store {
	return &Store{contexts: make(map[string]*contextState)}
}

// ListContexts returns context metadata, most recent first.
func (s *Store) ListContexts(_ context.Context) []chat.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Context, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.contexts[s.order[i]].meta)
	}
	return out
}

// GetContext resolves a context and the ordered message ids of one branch
// through its tree. An empty anchor follows the newest sibling at every
// fork; a non-empty anchor pins the walk to the branch containing it.
func (s *Store) GetContext(_ context.Context, contextID, anchorID string) (chat.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cs, ok := s.contexts[contextID]
	if !ok {
		return chat.Context{}, ErrContextNotFound
	}
	if anchorID != "" {
		if _, ok := cs.messages[anchorID]; !ok {
			return chat.Context{}, ErrMessageNotFound
		}
	}

	meta := cs.meta
	meta.MessageIDs = cs.branchView(anchorID)
	return meta, nil
}

// GetMessages resolves ids to full messages, skipping unknown ids the way
// the production backend does.
func (s *Store) GetMessages(_ context.Context, messageIDs []string) []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]chat.Message, 0, len(messageIDs))
	for _, id := range messageIDs {
		for _, cs := range s.contexts {
			if msg, ok := cs.messages[id]; ok {
				out = append(out, *msg)
				break
			}
		}
	}
	return out
}

// AppendTurn records one user message and its reply. An empty contextID
// creates a new context named after the message. An anchor pointing at a
// message that already has children forks a new branch there.
func (s *Store) AppendTurn(_ context.Context, contextID, anchorID string, user chat.Message, replyContent, model string) (chat.Message, chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cs, ok := s.contexts[contextID]
	if contextID == "" {
		contextID = uuid.NewString()
		cs = &contextState{
			meta: chat.Context{
				ContextID: contextID,
				Title:     contextName(user.Content),
				Model:     model,
			},
			messages: make(map[string]*chat.Message),
		}
		s.contexts[contextID] = cs
		s.order = append(s.order, contextID)
	} else if !ok {
		return chat.Message{}, chat.Message{}, ErrContextNotFound
	}

	if anchorID != "" {
		if _, ok := cs.messages[anchorID]; !ok {
			return chat.Message{}, chat.Message{}, ErrMessageNotFound
		}
	}

	now := time.Now().UTC()

	user.MessageID = uuid.NewString()
	user.ContextID = contextID
	user.Role = chat.RoleUser
	user.PrevMessID = anchorID
	user.RepByMessIDs = nil
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}

	bot := chat.Message{
		MessageID:  uuid.NewString(),
		ContextID:  contextID,
		Role:       chat.RoleAssistant,
		Content:    replyContent,
		Model:      model,
		CreatedAt:  now,
		PrevMessID: user.MessageID,
	}
	user.RepByMessIDs = []string{bot.MessageID}

	cs.messages[user.MessageID] = &user
	cs.messages[bot.MessageID] = &bot
	if anchorID == "" {
		cs.roots = append(cs.roots, user.MessageID)
	} else {
		parent := cs.messages[anchorID]
		parent.RepByMessIDs = append(parent.RepByMessIDs, user.MessageID)
	}

	return user, bot, nil
}

// branchView walks the tree into one linear id sequence, oldest first.
// Callers hold at least a read lock.
func (cs *contextState) branchView(anchorID string) []string {
	if len(cs.roots) == 0 {
		return nil
	}

	// Climb from the anchor to its root so the upward part of the path is
	// fixed; without an anchor start at the newest root.
	var up []string
	start := cs.roots[len(cs.roots)-1]
	if anchorID != "" {
		for id := anchorID; id != ""; {
			up = append(up, id)
			id = cs.messages[id].PrevMessID
		}
		start = up[len(up)-1]
	}

	onPath := make(map[string]bool, len(up))
	for _, id := range up {
		onPath[id] = true
	}

	var view []string
	for id := start; id != ""; {
		view = append(view, id)
		next := ""
		for _, child := range cs.messages[id].RepByMessIDs {
			// Prefer the child on the anchored path, else the newest fork.
			if onPath[child] {
				next = child
				break
			}
			next = child
		}
		id = next
	}
	return view
}

// contextName derives a short conversation title from the first message.
func contextName(content string) string {
	name := strings.TrimSpace(content)
	if name == "" {
		return "New conversation"
	}
	const limit = 40
	if len(name) > limit {
		name = strings.TrimSpace(name[:limit]) + "…"
	}
	return name
}

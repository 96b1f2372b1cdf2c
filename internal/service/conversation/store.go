// Package conversation owns the canonical per-conversation message
// sequence: the reply chain pointer, branch metadata, the pagination cursor
// and the waiting flag. All other components observe it through events or
// accessors; none of them mutate its state directly.
package conversation

import (
	"context"
	"log"
	"sync"

	"github.com/irdop/limschat/internal/model/chat"
)

const defaultPageSize = 10

// Fetcher is the message-fetch collaborator, injected at construction so
// tests can substitute it.
type Fetcher interface {
	GetMessages(ctx context.Context, messageIDs []string) ([]chat.Message, error)
	GetContext(ctx context.Context, contextID, messageID string) (chat.Context, error)
}

// Resender re-sends a previously composed user message. The transport
// sender registers itself here so retry does not reverse the dependency.
type Resender interface {
	Resend(ctx context.Context, msg chat.Message)
}

// Store is the conversation-state core.
type Store struct {
	fetcher  Fetcher
	pageSize int
	locator  Locator

	mu          sync.Mutex
	subscribers []Subscriber
	resender    Resender

	contextID   string
	messages    []chat.Message
	loaded      map[string]struct{}
	lastMessage string
	waiting     bool
	loading     bool

	// reversedIDs is the full id list most-recent-first; cursor is the
	// count of ids already consumed from it.
	reversedIDs []string
	cursor      int
	hasMore     bool

	// generation invalidates in-flight fetches issued before a context
	// switch; a batch resolving under a stale generation is discarded.
	generation uint64
}

// Option configures a Store.
type Option func(*Store)

// WithPageSize overrides the history page size.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithLocator installs the addressable-state collaborator.
func WithLocator(l Locator) Option {
	return func(s *Store) {
		if l != nil {
			s.locator = l
		}
	}
}

// New creates an empty store bound to the given fetch collaborator.
func New(fetcher Fetcher, opts ...Option) *Store {
	s := &Store{
		fetcher:  fetcher,
		pageSize: defaultPageSize,
		locator:  noopLocator{},
		loaded:   make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetResender registers the transport sender used by RetryLastMessage.
func (s *Store) SetResender(r Resender) {
	s.mu.Lock()
	s.resender = r
	s.mu.Unlock()
}

// AddMessage appends a message to the current conversation. A user message
// raises the waiting flag; a confirmed bot message advances the reply chain
// and clears it. The first message carrying a contextId binds a brand-new
// conversation to that id.
func (s *Store) AddMessage(msg chat.Message) {
	s.mu.Lock()
	s.messages = append(s.messages, msg)
	if msg.MessageID != "" {
		s.loaded[msg.MessageID] = struct{}{}
	}

	bound := ""
	if s.contextID == "" && msg.ContextID != "" {
		s.contextID = msg.ContextID
		s.locator.Set(s.contextID, "")
		bound = s.contextID
	}

	switch {
	case msg.Role == chat.RoleUser:
		s.waiting = true
	case msg.IsBot():
		s.waiting = false
		if msg.Confirmed() {
			s.lastMessage = msg.MessageID
		}
	}
	subs := s.snapshotSubscribers()
	s.mu.Unlock()

	for _, sub := range subs {
		sub.MessageAdded(msg)
	}
	if bound != "" {
		for _, sub := range subs {
			sub.ContextBound(bound)
		}
	}
}

// RemoveMessagesAfter truncates the window to end at (and including) the
// given message. A miss is non-fatal: the target may simply not be loaded.
func (s *Store) RemoveMessagesAfter(messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexOfLocked(messageID)
	if idx < 0 {
		log.Printf("[store] message %s not found for branching, keeping window", messageID)
		return
	}
	removed := len(s.messages) - idx - 1
	s.messages = s.messages[:idx+1]
	if removed > 0 {
		log.Printf("[store] removed %d messages after reply point", removed)
	}
}

// LoadMessages fetches any ids not already loaded and merges them into the
// window, appended by default or prepended for backward pagination. The
// chain pointer only advances for appended batches; prepended history is
// older than everything displayed. Returns the fetched batch.
func (s *Store) LoadMessages(ctx context.Context, messageIDs []string, prepend bool) ([]chat.Message, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}

	s.mu.Lock()
	newIDs := make([]string, 0, len(messageIDs))
	for _, id := range messageIDs {
		if _, ok := s.loaded[id]; !ok {
			newIDs = append(newIDs, id)
		}
	}
	if len(newIDs) == 0 {
		s.mu.Unlock()
		return nil, nil
	}
	gen := s.generation
	s.loading = true
	s.mu.Unlock()

	fetched, err := s.fetcher.GetMessages(ctx, newIDs)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = false

	if err != nil {
		log.Printf("[store] loading messages failed: %v", err)
		return nil, nil
	}
	if s.generation != gen {
		log.Printf("[store] discarding %d messages fetched for a stale conversation", len(fetched))
		return nil, nil
	}

	for _, id := range newIDs {
		s.loaded[id] = struct{}{}
	}
	if prepend {
		s.messages = append(append([]chat.Message{}, fetched...), s.messages...)
		return fetched, nil
	}

	s.messages = append(s.messages, fetched...)
	for i := len(fetched) - 1; i >= 0; i-- {
		if fetched[i].IsBot() && fetched[i].Confirmed() {
			s.lastMessage = fetched[i].MessageID
			break
		}
	}
	return fetched, nil
}

// SwitchContext resets all per-conversation state and, when a context is
// given, binds it and loads the most recent page of its history. A nil
// context starts a fresh unbound conversation.
func (s *Store) SwitchContext(ctx context.Context, c *chat.Context) error {
	s.mu.Lock()
	s.resetLocked()

	if c == nil {
		s.contextID = ""
		s.locator.Set("", "")
		subs := s.snapshotSubscribers()
		s.mu.Unlock()
		for _, sub := range subs {
			sub.ContextSwitched("")
		}
		return nil
	}

	s.contextID = c.ContextID
	s.locator.Set(c.ContextID, "")

	ids := c.OrderedMessageIDs()
	s.reversedIDs = reversed(ids)
	s.hasMore = len(s.reversedIDs) > s.pageSize
	s.cursor = s.pageSize

	first := s.reversedIDs
	if len(first) > s.pageSize {
		first = first[:s.pageSize]
	}
	// Request the initial window oldest-first so the displayed order never
	// depends on how the fetch collaborator sorts a batch.
	window := reversed(first)
	subs := s.snapshotSubscribers()
	s.mu.Unlock()

	for _, sub := range subs {
		sub.ContextSwitched(c.ContextID)
	}

	_, err := s.LoadMessages(ctx, window, false)
	return err
}

// LoadMoreMessages pages one batch of older history in front of the window.
func (s *Store) LoadMoreMessages(ctx context.Context) error {
	s.mu.Lock()
	if s.loading || !s.hasMore || s.contextID == "" {
		s.mu.Unlock()
		return nil
	}

	end := s.cursor + s.pageSize
	if end > len(s.reversedIDs) {
		end = len(s.reversedIDs)
	}
	if s.cursor >= end {
		s.hasMore = false
		s.mu.Unlock()
		return nil
	}
	batch := s.reversedIDs[s.cursor:end]
	window := reversed(batch)
	s.cursor = end
	s.hasMore = s.cursor < len(s.reversedIDs)
	s.mu.Unlock()

	_, err := s.LoadMessages(ctx, window, true)
	return err
}

// NavigateToMessage re-fetches the conversation anchored at a branch
// sibling and replaces the window wholesale.
func (s *Store) NavigateToMessage(ctx context.Context, contextID, messageID string) error {
	s.mu.Lock()
	gen := s.generation
	s.mu.Unlock()

	contextData, err := s.fetcher.GetContext(ctx, contextID, messageID)
	if err != nil {
		log.Printf("[store] navigating to message %s failed: %v", messageID, err)
		return err
	}

	ids := contextData.OrderedMessageIDs()
	if len(ids) == 0 {
		log.Printf("[store] context %s returned no message ids for navigation", contextID)
		return nil
	}

	messages, err := s.fetcher.GetMessages(ctx, ids)
	if err != nil {
		log.Printf("[store] loading branch messages failed: %v", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		log.Printf("[store] discarding branch navigation result for a stale conversation")
		return nil
	}
	s.generation++

	s.contextID = contextID
	s.messages = messages
	s.loaded = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.loaded[id] = struct{}{}
	}
	s.reversedIDs = reversed(ids)
	s.cursor = len(ids)
	s.hasMore = false
	s.waiting = false

	s.lastMessage = ""
	if last := len(messages) - 1; last >= 0 {
		if tail := messages[last]; tail.IsBot() && tail.Confirmed() {
			s.lastMessage = tail.MessageID
		}
	}
	s.locator.Set(contextID, messageID)
	return nil
}

// RetryLastMessage drops everything after the most recent user message,
// discarding the failed bot or error tail, and asks the registered resender
// to send it again.
func (s *Store) RetryLastMessage(ctx context.Context) {
	s.mu.Lock()
	idx := -1
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == chat.RoleUser {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return
	}
	msg := s.messages[idx]
	s.messages = s.messages[:idx+1]
	resender := s.resender
	s.mu.Unlock()

	if resender == nil {
		log.Printf("[store] no resender registered, cannot retry message %s", msg.MessageID)
		return
	}
	resender.Resend(ctx, msg)
}

// ClearConversation resets the store without signaling subscribers or the
// context directory.
func (s *Store) ClearConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.contextID = ""
	s.locator.Set("", "")
}

// ContextID returns the bound conversation id, empty for a fresh one.
func (s *Store) ContextID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.contextID
}

// Messages returns a copy of the current window, oldest first.
func (s *Store) Messages() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]chat.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// LastMessageID returns the id of the most recent confirmed bot message.
func (s *Store) LastMessageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMessage
}

// ResetLastMessageID breaks the reply chain; the next send carries no
// parent pointer until a new bot message confirms.
func (s *Store) ResetLastMessageID() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastMessage = ""
}

// IsWaiting reports whether a user turn is awaiting its bot response.
func (s *Store) IsWaiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.waiting
}

// HasMore reports whether older history remains unfetched.
func (s *Store) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

func (s *Store) resetLocked() {
	s.messages = nil
	s.loaded = make(map[string]struct{})
	s.lastMessage = ""
	s.waiting = false
	s.reversedIDs = nil
	s.cursor = 0
	s.hasMore = false
	s.generation++
}

func (s *Store) indexOfLocked(messageID string) int {
	for i, msg := range s.messages {
		if msg.MessageID == messageID {
			return i
		}
	}
	return -1
}

func reversed(ids []string) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}

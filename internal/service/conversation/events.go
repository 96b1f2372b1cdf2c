package conversation

import "github.com/irdop/limschat/internal/model/chat"

// Subscriber receives the store's state-change events in publish order:
// every canonical message append, the moment a brand-new conversation binds
// its backend-assigned id, and context switches. The session mirror and the
// context directory both attach here; the store never reaches into them.
type Subscriber interface {
	MessageAdded(msg chat.Message)
	ContextBound(contextID string)
	ContextSwitched(contextID string)
}

// Subscribe attaches a subscriber. Events are delivered synchronously on
// the mutating goroutine, outside the store's lock.
func (s *Store) Subscribe(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, sub)
}

func (s *Store) snapshotSubscribers() []Subscriber {
	subs := make([]Subscriber, len(s.subscribers))
	copy(subs, s.subscribers)
	return subs
}

// Package directory caches the sidebar's list of known conversations and
// refreshes it on a debounced trigger so rapid exchanges coalesce into a
// single list fetch.
package directory

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/irdop/limschat/internal/model/chat"
)

const defaultDebounce = time.Second

// Lister fetches the full conversation list from the backend.
type Lister interface {
	GetContextList(ctx context.Context) ([]chat.Context, error)
}

// Directory is the cached conversation list.
type Directory struct {
	lister   Lister
	debounce time.Duration

	mu       sync.Mutex
	contexts []chat.Context
	timer    *time.Timer
	loading  bool
}

// Option configures a Directory.
type Option func(*Directory)

// WithDebounce overrides the refresh debounce interval.
func WithDebounce(d time.Duration) Option {
	return func(dir *Directory) {
		if d > 0 {
			dir.debounce = d
		}
	}
}

// New creates an empty directory backed by the given lister.
func New(lister Lister, opts ...Option) *Directory {
	dir := &Directory{lister: lister, debounce: defaultDebounce}
	for _, opt := range opts {
		opt(dir)
	}
	return dir
}

// LoadContexts replaces the cached list wholesale and clears any pending
// refresh. Fetch failures degrade to the previous cache rather than
// propagate.
func (d *Directory) LoadContexts(ctx context.Context) []chat.Context {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.loading = true
	d.mu.Unlock()

	contexts, err := d.lister.GetContextList(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.loading = false
	if err != nil {
		log.Printf("[directory] loading context list failed: %v", err)
		return d.copyLocked()
	}
	d.contexts = contexts
	return d.copyLocked()
}

// NoteActivity (re)arms the debounce timer; when no further activity lands
// within the window the list refreshes once.
func (d *Directory) NoteActivity() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.debounce, func() {
		d.LoadContexts(context.Background())
	})
}

// MessageAdded implements conversation.Subscriber: a bot message landing in
// a known conversation means the sidebar may be stale.
func (d *Directory) MessageAdded(msg chat.Message) {
	if msg.IsBot() && msg.ContextID != "" {
		d.NoteActivity()
	}
}

// ContextBound implements conversation.Subscriber: a brand-new conversation
// just got its id, so it should appear in the sidebar.
func (d *Directory) ContextBound(string) {
	d.NoteActivity()
}

// ContextSwitched implements conversation.Subscriber; switching alone does
// not invalidate the list.
func (d *Directory) ContextSwitched(string) {}

// Find returns the cached context with the given id.
func (d *Directory) Find(contextID string) (chat.Context, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.contexts {
		if c.ContextID == contextID {
			return c, true
		}
	}
	return chat.Context{}, false
}

// Contexts returns a copy of the cached list.
func (d *Directory) Contexts() []chat.Context {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.copyLocked()
}

// Close cancels any pending refresh.
func (d *Directory) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func (d *Directory) copyLocked() []chat.Context {
	out := make([]chat.Context, len(d.contexts))
	copy(out, d.contexts)
	return out
}

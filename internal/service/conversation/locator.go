package conversation

import (
	"net/url"
	"sync"
)

// Locator reflects the active conversation into an addressable location so
// a view is bookmarkable. The store calls Set on every bind, switch and
// branch navigation.
type Locator interface {
	Set(contextID, messageID string)
}

type noopLocator struct{}

func (noopLocator) Set(string, string) {}

// URLLocator renders the conversation address as a shareable URL carrying
// contextId and messageId query parameters, mirroring the web client's
// address bar.
type URLLocator struct {
	mu   sync.Mutex
	base *url.URL
}

// NewURLLocator parses the base (or previously shared) link. Query
// parameters already present seed the initial address.
func NewURLLocator(raw string) (*URLLocator, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	return &URLLocator{base: u}, nil
}

// Set updates the address; empty values remove their parameter.
func (l *URLLocator) Set(contextID, messageID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	q := l.base.Query()
	setOrDelete(q, "contextId", contextID)
	setOrDelete(q, "messageId", messageID)
	l.base.RawQuery = q.Encode()
}

// Link returns the current shareable address.
func (l *URLLocator) Link() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.base.String()
}

// ContextID returns the contextId currently encoded in the address; on
// startup this is the seed from a pasted link.
func (l *URLLocator) ContextID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.base.Query().Get("contextId")
}

// MessageID returns the messageId currently encoded in the address.
func (l *URLLocator) MessageID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.base.Query().Get("messageId")
}

func setOrDelete(q url.Values, key, value string) {
	if value == "" {
		q.Del(key)
		return
	}
	q.Set(key, value)
}

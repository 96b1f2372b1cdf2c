package chat

// Context is a named conversation as the backend reports it. Depending on
// the endpoint the message references arrive either as `messageIds` or a
// `messages` id array; both mean the same ordered sequence, most recent last.
type Context struct {
	ContextID    string   `json:"contextId"`
	Title        string   `json:"title,omitempty"`
	ConvSummary  string   `json:"convSummary,omitempty"`
	Model        string   `json:"model,omitempty"`
	MessageIDs   []string `json:"messageIds,omitempty"`
	Messages     []string `json:"messages,omitempty"`
	MessageID    string   `json:"messageId,omitempty"`
	RepByMessIDs []string `json:"repByMessIds,omitempty"`
}

// OrderedMessageIDs returns the context's message id sequence regardless of
// which field the backend populated.
func (c Context) OrderedMessageIDs() []string {
	if len(c.MessageIDs) > 0 {
		return c.MessageIDs
	}
	return c.Messages
}

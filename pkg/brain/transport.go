package brain

import "context"

// Message is one turn in a conversation handed to a Transport.
type Message struct {
	Role    string // "system", "user", or "assistant"
	Content string
}

// Transport is the opaque chat/embed transport this system intentionally
// scopes out of its own concern: Brain only knows it can hand it messages
// and get text back, or an error. pkg/brain/anthropictransport and
// pkg/brain/openaitransport are the two concrete implementations this
// module ships; any other provider just needs to satisfy this interface.
type Transport interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// Package types holds the small shared value types exchanged between the
// voicelay pipeline stages and the provider interfaces.
package types

// Message roles as understood by chat-completion backends.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a conversation history.
type Message struct {
	// Role is one of [RoleSystem], [RoleUser], or [RoleAssistant].
	Role string

	// Content is the message text.
	Content string
}

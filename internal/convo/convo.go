// Package convo keeps per-session conversation history for the completion
// gateway.
//
// A Log always starts with the immutable system seed; user/assistant turns
// are appended in pairs so the history alternates cleanly. The Registry maps
// session ids to their Log, creating one on first use.
package convo

import (
	"sync"

	"github.com/google/uuid"

	"github.com/voicelay/voicelay/pkg/types"
)

// Log is an append-only conversation history with a fixed system seed.
// It is safe for concurrent use.
type Log struct {
	mu       sync.Mutex
	seed     types.Message
	turns    []types.Message
	maxTurns int
}

// NewLog returns a Log seeded with systemPrompt. maxTurns caps the number
// of user/assistant exchange pairs kept; 0 keeps everything. The seed is
// never evicted by the window.
func NewLog(systemPrompt string, maxTurns int) *Log {
	return &Log{
		seed:     types.Message{Role: types.RoleSystem, Content: systemPrompt},
		maxTurns: maxTurns,
	}
}

// AppendTurn records one user/assistant exchange. Both messages are added
// even when the assistant text is an error marker, so the history stays
// aligned with what the client saw.
func (l *Log) AppendTurn(user, assistant string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.turns = append(l.turns,
		types.Message{Role: types.RoleUser, Content: user},
		types.Message{Role: types.RoleAssistant, Content: assistant},
	)
	if l.maxTurns > 0 && len(l.turns) > l.maxTurns*2 {
		l.turns = l.turns[len(l.turns)-l.maxTurns*2:]
	}
}

// Snapshot returns the seed plus all retained turns as a fresh slice. The
// result is safe to hand to a provider while other goroutines append.
func (l *Log) Snapshot() []types.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.Message, 0, 1+len(l.turns))
	out = append(out, l.seed)
	out = append(out, l.turns...)
	return out
}

// Len returns the number of messages a Snapshot would contain.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return 1 + len(l.turns)
}

// Registry hands out one Log per session id. It is safe for concurrent use.
type Registry struct {
	mu           sync.Mutex
	logs         map[string]*Log
	systemPrompt string
	maxTurns     int
}

// NewRegistry returns a Registry whose Logs share systemPrompt and maxTurns.
func NewRegistry(systemPrompt string, maxTurns int) *Registry {
	return &Registry{
		logs:         make(map[string]*Log),
		systemPrompt: systemPrompt,
		maxTurns:     maxTurns,
	}
}

// GetOrCreate returns the session's Log, creating it on first use.
func (r *Registry) GetOrCreate(session string) *Log {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.logs[session]; ok {
		return l
	}
	l := NewLog(r.systemPrompt, r.maxTurns)
	r.logs[session] = l
	return l
}

// Create registers a fresh Log under a random session id and returns both.
// Used by clients that stream without supplying their own id.
func (r *Registry) Create() (string, *Log) {
	id := uuid.NewString()
	return id, r.GetOrCreate(id)
}

// Sessions returns the number of registered sessions.
func (r *Registry) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.logs)
}

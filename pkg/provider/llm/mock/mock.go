// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the pipeline sends the
// expected conversation history and to feed controlled replies without a
// live backend.
//
// Example:
//
//	p := &mock.Provider{Reply: "Hello!"}
//	text, err := p.Complete(ctx, msgs)
package mock

import (
	"context"
	"sync"

	"github.com/voicelay/voicelay/pkg/provider/llm"
	"github.com/voicelay/voicelay/pkg/types"
)

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Call records a single invocation of Complete.
type Call struct {
	// Messages is the history passed to Complete (copied).
	Messages []types.Message
}

// Provider is a mock implementation of llm.Provider.
// Zero values cause Complete to return ("", nil).
type Provider struct {
	mu sync.Mutex

	// Reply is returned by Complete.
	Reply string

	// Err, if non-nil, is returned as the error from Complete.
	Err error

	// Calls records every invocation of Complete in order.
	Calls []Call
}

// Complete implements llm.Provider.
func (p *Provider) Complete(_ context.Context, messages []types.Message) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]types.Message, len(messages))
	copy(cp, messages)
	p.Calls = append(p.Calls, Call{Messages: cp})
	if p.Err != nil {
		return "", p.Err
	}
	return p.Reply, nil
}

// LastCall returns the most recent recorded invocation, or nil if Complete
// has not been called.
func (p *Provider) LastCall() *Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return nil
	}
	return &p.Calls[len(p.Calls)-1]
}

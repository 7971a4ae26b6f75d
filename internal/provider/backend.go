package provider

import (
	"context"

	"github.com/ShayCichocki/agentdesk/pkg/models"
)

// Request is one prompt sent to a backend.
type Request struct {
	Role   models.Role
	Model  string
	Prompt string
	System string
}

// Response is the text a backend produced and what it cost.
type Response struct {
	Text             string
	PromptTokens     int64
	CompletionTokens int64
	// Exact is true when token counts came from the provider rather than an estimate.
	Exact bool
}

// Backend executes a single request. Implementations must return promptly
// once ctx is done; the dispatcher only waits a bounded time after cancelling.
type Backend interface {
	Name() string
	Complete(ctx context.Context, req Request) (Response, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc struct {
	ID string
	Fn func(ctx context.Context, req Request) (Response, error)
}

// Name returns the backend name.
func (b BackendFunc) Name() string {
	return b.ID
}

// Complete calls the wrapped function.
func (b BackendFunc) Complete(ctx context.Context, req Request) (Response, error) {
	return b.Fn(ctx, req)
}

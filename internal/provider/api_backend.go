package provider

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// DefaultMaxTokens caps the completion length of API requests.
const DefaultMaxTokens = 8192

// APIBackend streams completions from the Anthropic Messages API.
type APIBackend struct {
	client    *Client
	maxTokens int64
}

// NewAPIBackend creates a streaming backend on client.
func NewAPIBackend(client *Client, maxTokens int64) *APIBackend {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &APIBackend{client: client, maxTokens: maxTokens}
}

// Name returns "api".
func (b *APIBackend) Name() string {
	return "api"
}

// Complete streams the response, accumulating text deltas. Token counts are exact.
func (b *APIBackend) Complete(ctx context.Context, req Request) (Response, error) {
	params := anthropic.MessageNewParams{
		Model:     b.client.ResolveModel(req.Model),
		MaxTokens: b.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	stream := b.client.inner.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var message anthropic.Message
	var text strings.Builder
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return Response{}, err
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if td, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok {
				text.WriteString(td.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return Response{}, err
	}

	return Response{
		Text:             text.String(),
		PromptTokens:     message.Usage.InputTokens,
		CompletionTokens: message.Usage.OutputTokens,
		Exact:            true,
	}, nil
}

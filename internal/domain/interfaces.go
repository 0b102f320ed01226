package domain

import "context"

// Tokenizer counts tokens in a string so the advertised schema can be
// measured against a model's context window.
type Tokenizer interface {
	// CountTokens returns the number of tokens in the given text.
	CountTokens(text string) (int, error)
}

// ToolHost is what a transport needs from the core: the tools to advertise
// and a way to execute one decoded call. Implementations serialize access.
type ToolHost interface {
	// Tools returns the current tool definitions, honoring the operator's
	// category selection.
	Tools() []ToolDefinition

	// Call executes one tool call and never returns a transport error;
	// failures are reported inside the reply.
	Call(ctx context.Context, call ToolCall) ToolReply
}

// CallJournal records dispatched tool calls.
type CallJournal interface {
	Record(ctx context.Context, reply ToolReply) error
}

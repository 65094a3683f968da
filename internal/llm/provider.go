package llm

import "context"

// Provider defines the single completion call the orchestrator needs. The
// orchestrator owns prompt construction; providers own the wire protocol.
type Provider interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Message is one prior conversational turn. Role is "user" or "model".
type Message struct {
	Role string
	Text string
}

// MediaBlob is an inline document (image/PDF) attached to the request.
// Providers encode it as base64 on the wire.
type MediaBlob struct {
	MIMEType string
	Data     []byte
}

// Request carries one completion exchange.
type Request struct {
	System    string
	Messages  []Message
	Media     *MediaBlob
	MaxTokens int
}

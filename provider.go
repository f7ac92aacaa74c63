package medic

import "context"

// Provider is a streaming chat-completion capability with tool calling.
// Any model backend implementing it is interchangeable.
type Provider interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Request carries model selection and generation parameters.
// The provider uses its own defaults when fields are zero/nil.
type Request struct {
	Model        string // empty = provider default
	SystemPrompt string
	Messages     []Message
	Tools        []Tool
	MaxTokens    int      // 0 = provider default
	Temperature  *float64 // nil = provider default
	TopP         *float64 // nil = provider default
}

// VisionModel is a single-shot vision-completion capability: one image and
// a prompt in, free text out.
type VisionModel interface {
	Describe(ctx context.Context, req VisionRequest) (string, error)
}

// VisionRequest is the input of one vision completion.
type VisionRequest struct {
	Model        string
	SystemPrompt string
	Prompt       string
	Image        ImageBlock
	MaxTokens    int
	Temperature  *float64
}

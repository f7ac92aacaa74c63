// Package openrouter implements [medic.Provider] and [medic.VisionModel] for
// OpenAI-compatible chat completion APIs, OpenRouter by default.
//
// Streaming responses are parsed from server-sent chat.completion.chunk
// frames and exposed through the pull-based [medic.Stream] interface. Tool
// call fragments are assembled per index and surface as complete calls once
// the choice finishes.
package openrouter

import "encoding/json"

const (
	defaultBaseURL     = "https://openrouter.ai/api/v1"
	defaultModel       = "openai/gpt-oss-120b"
	defaultVisionModel = "openai/gpt-4o"
	defaultMaxTokens   = 1024
	defaultTemperature = 0.7
	defaultTopP        = 0.9
	completionsPath    = "/chat/completions"
	doneSentinel       = "[DONE]"
)

// apiRequest is the JSON body of a chat completion call.
type apiRequest struct {
	Model       string       `json:"model"`
	Messages    []apiMessage `json:"messages"`
	Stream      bool         `json:"stream"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
	TopP        *float64     `json:"top_p,omitempty"`
	Tools       []apiTool    `json:"tools,omitempty"`
	ToolChoice  string       `json:"tool_choice,omitempty"`
}

// apiMessage is one chat message. Content is a string, or a list of parts
// when the message carries an image.
type apiMessage struct {
	Role       string        `json:"role"`
	Content    any           `json:"content,omitempty"`
	ToolCalls  []apiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

type apiContentPart struct {
	Type     string       `json:"type"`
	Text     string       `json:"text,omitempty"`
	ImageURL *apiImageURL `json:"image_url,omitempty"`
}

type apiImageURL struct {
	URL string `json:"url"`
}

type apiToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function apiFunctionCall `json:"function"`
}

type apiFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type apiTool struct {
	Type     string      `json:"type"`
	Function apiFunction `json:"function"`
}

type apiFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// SSE response types.

type sseChunk struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []sseChoice    `json:"choices"`
	Usage   *apiUsage      `json:"usage"`
	Error   *apiErrorValue `json:"error"`
}

type sseChoice struct {
	Index        int      `json:"index"`
	Delta        sseDelta `json:"delta"`
	FinishReason *string  `json:"finish_reason"`
}

type sseDelta struct {
	Role      string             `json:"role"`
	Content   string             `json:"content"`
	Reasoning string             `json:"reasoning"`
	ToolCalls []sseToolCallDelta `json:"tool_calls"`
}

type sseToolCallDelta struct {
	Index    int             `json:"index"`
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function apiFunctionCall `json:"function"`
}

type apiUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// apiResponse is the body of a non-streaming completion.
type apiResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *apiUsage      `json:"usage"`
	Error *apiErrorValue `json:"error"`
}

// apiErrorResponse is the JSON body returned on non-200 HTTP responses.
type apiErrorResponse struct {
	Error apiErrorValue `json:"error"`
}

type apiErrorValue struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    json.RawMessage `json:"code"`
}

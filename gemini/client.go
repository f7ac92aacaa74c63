package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fwojciec/medic"
	"google.golang.org/genai"
)

// Interface compliance checks.
var (
	_ medic.Provider    = (*Client)(nil)
	_ medic.VisionModel = (*Client)(nil)
)

// Client implements [medic.Provider] and [medic.VisionModel] for the Google
// Gemini API.
type Client struct {
	client      *genai.Client
	model       string
	visionModel string
	baseURL     string
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithVisionModel sets the model used by Describe when a request names none.
func WithVisionModel(model string) Option {
	return func(c *Client) { c.visionModel = model }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// New creates a new Gemini [Client] with the given API key and options.
func New(ctx context.Context, apiKey string, opts ...Option) (*Client, error) {
	c := &Client{
		model:       defaultModel,
		visionModel: defaultVisionModel,
	}
	for _, o := range opts {
		o(c)
	}
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	gc, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	c.client = gc
	return c, nil
}

// Stream sends a streaming request to the Gemini API and returns a
// [medic.Stream] over its deltas.
func (c *Client) Stream(ctx context.Context, req medic.Request) (medic.Stream, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	contents := ConvertMessages(req.Messages)
	iter := c.client.Models.GenerateContentStream(ctx, model, contents, buildConfig(req))
	return newStream(ctx, iter), nil
}

// Describe sends one image and prompt as a single completion and returns
// the generated text.
func (c *Client) Describe(ctx context.Context, req medic.VisionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.visionModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	config := &genai.GenerateContentConfig{MaxOutputTokens: int32(maxTokens)}
	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		config.Temperature = &temp
	}
	contents := []*genai.Content{{
		Role: "user",
		Parts: []*genai.Part{
			{Text: req.Prompt},
			{InlineData: &genai.Blob{MIMEType: req.Image.MimeType, Data: req.Image.Data}},
		},
	}}

	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini: %w: %w", medic.ErrUpstream, err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("gemini: prompt blocked: %s: %w", resp.PromptFeedback.BlockReason, medic.ErrUpstream)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini: empty completion: %w", medic.ErrUpstream)
	}
	return text, nil
}

func buildConfig(req medic.Request) *genai.GenerateContentConfig {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
		Tools:           ConvertTools(req.Tools),
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: true,
		},
	}

	if req.SystemPrompt != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		config.Temperature = &temp
	}
	if req.TopP != nil {
		topP := float32(*req.TopP)
		config.TopP = &topP
	}
	return config
}

// ConvertMessages converts medic Messages to genai Contents.
// Exported for testing.
func ConvertMessages(msgs []medic.Message) []*genai.Content {
	var result []*genai.Content
	for _, msg := range msgs {
		switch m := msg.(type) {
		case medic.UserMessage:
			result = append(result, &genai.Content{
				Role:  "user",
				Parts: convertParts(m.Content),
			})
		case medic.AssistantMessage:
			result = append(result, &genai.Content{
				Role:  "model",
				Parts: convertParts(m.Content),
			})
		case medic.ToolResultMessage:
			result = append(result, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						ID:       m.ToolCallID,
						Name:     string(m.ToolName),
						Response: toolResponse(m),
					},
				}},
			})
		}
	}
	return result
}

// toolResponse wraps a tool result under "output", or "error" on failure.
// Tool payloads that are JSON objects are passed structured.
func toolResponse(m medic.ToolResultMessage) map[string]any {
	text := extractText(m.Content)
	key := "output"
	if m.IsError {
		key = "error"
	}
	var structured map[string]any
	if err := json.Unmarshal([]byte(text), &structured); err == nil {
		return map[string]any{key: structured}
	}
	return map[string]any{key: text}
}

func convertParts(blocks []medic.ContentBlock) []*genai.Part {
	var parts []*genai.Part
	for _, b := range blocks {
		switch bl := b.(type) {
		case medic.TextBlock:
			parts = append(parts, &genai.Part{Text: bl.Text})
		case medic.ThinkingBlock:
			p := &genai.Part{Text: bl.Thinking, Thought: true}
			if bl.Signature != nil {
				p.ThoughtSignature = bl.Signature
			}
			parts = append(parts, p)
		case medic.ToolCallBlock:
			var args map[string]any
			_ = json.Unmarshal(bl.Arguments, &args)
			parts = append(parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   bl.ID,
					Name: bl.Name,
					Args: args,
				},
			})
		case medic.ImageBlock:
			parts = append(parts, &genai.Part{
				InlineData: &genai.Blob{
					MIMEType: bl.MimeType,
					Data:     bl.Data,
				},
			})
		}
	}
	return parts
}

// extractText concatenates the text blocks.
func extractText(blocks []medic.ContentBlock) string {
	var b strings.Builder
	for _, bl := range blocks {
		if tb, ok := bl.(medic.TextBlock); ok {
			b.WriteString(tb.Text)
		}
	}
	return b.String()
}

// ConvertTools converts medic Tools to genai Tools.
// Exported for testing.
func ConvertTools(tools []medic.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		var schema map[string]any
		_ = json.Unmarshal(t.Parameters, &schema)
		decls[i] = &genai.FunctionDeclaration{
			Name:                 string(t.Name),
			Description:          t.Description,
			ParametersJsonSchema: schema,
		}
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

package openrouter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/fwojciec/medic"
)

// Interface compliance checks.
var (
	_ medic.Provider    = (*Client)(nil)
	_ medic.VisionModel = (*Client)(nil)
)

// Client implements [medic.Provider] and [medic.VisionModel] for an
// OpenAI-compatible chat completion endpoint.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	appTitle   string
	httpClient *http.Client
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest or
// for pointing at another OpenAI-compatible gateway.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithModel sets the model used when a request names none.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithAppTitle sets the X-Title attribution header.
func WithAppTitle(title string) Option {
	return func(c *Client) { c.appTitle = title }
}

// New creates a new [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: http.DefaultClient,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Stream sends a streaming chat completion request and returns a
// [medic.Stream] over its deltas.
func (c *Client) Stream(ctx context.Context, req medic.Request) (medic.Stream, error) {
	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("openrouter: %w", err)
	}
	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	return newStream(ctx, resp.Body), nil
}

// Describe sends one image and prompt as a non-streaming completion and
// returns the generated text.
func (c *Client) Describe(ctx context.Context, req medic.VisionRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = defaultVisionModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	var msgs []apiMessage
	if req.SystemPrompt != "" {
		msgs = append(msgs, apiMessage{Role: "system", Content: req.SystemPrompt})
	}
	msgs = append(msgs, apiMessage{Role: "user", Content: []apiContentPart{
		{Type: "text", Text: req.Prompt},
		imagePart(req.Image),
	}})
	body, err := json.Marshal(apiRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("openrouter: %w", err)
	}

	resp, err := c.post(ctx, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("openrouter: decode completion: %w: %w", medic.ErrUpstream, err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("openrouter: %s: %w", out.Error.Message, medic.ErrUpstream)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("openrouter: empty completion: %w", medic.ErrUpstream)
	}
	return out.Choices[0].Message.Content, nil
}

// post sends body to the completions endpoint. Non-200 responses are
// consumed and returned as errors.
func (c *Client) post(ctx context.Context, body []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("openrouter: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.appTitle != "" {
		httpReq.Header.Set("X-Title", c.appTitle)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openrouter: %w: %w", medic.ErrUpstream, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, parseHTTPError(resp)
	}
	return resp, nil
}

func (c *Client) buildRequest(req medic.Request) apiRequest {
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	temperature := defaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	topP := defaultTopP
	if req.TopP != nil {
		topP = *req.TopP
	}

	apiReq := apiRequest{
		Model:       model,
		Messages:    convertMessages(req.SystemPrompt, req.Messages),
		Stream:      true,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        &topP,
		Tools:       convertTools(req.Tools),
	}
	if len(apiReq.Tools) > 0 {
		apiReq.ToolChoice = "auto"
	}
	return apiReq
}

func convertMessages(system string, msgs []medic.Message) []apiMessage {
	result := make([]apiMessage, 0, len(msgs)+1)
	if system != "" {
		result = append(result, apiMessage{Role: "system", Content: system})
	}
	for _, msg := range msgs {
		switch m := msg.(type) {
		case medic.UserMessage:
			result = append(result, apiMessage{Role: "user", Content: convertUserContent(m.Content)})
		case medic.AssistantMessage:
			am := apiMessage{Role: "assistant"}
			if text := m.Text(); text != "" {
				am.Content = text
			}
			for _, call := range m.ToolCalls() {
				args := string(call.Arguments)
				if args == "" {
					args = "{}"
				}
				am.ToolCalls = append(am.ToolCalls, apiToolCall{
					ID:       call.ID,
					Type:     "function",
					Function: apiFunctionCall{Name: call.Name, Arguments: args},
				})
			}
			result = append(result, am)
		case medic.ToolResultMessage:
			result = append(result, apiMessage{
				Role:       "tool",
				ToolCallID: m.ToolCallID,
				Name:       string(m.ToolName),
				Content:    textOf(m.Content),
			})
		}
	}
	return result
}

// convertUserContent returns plain text unless the message carries an
// image, in which case it returns content parts.
func convertUserContent(blocks []medic.ContentBlock) any {
	hasImage := false
	for _, b := range blocks {
		if _, ok := b.(medic.ImageBlock); ok {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return textOf(blocks)
	}
	parts := make([]apiContentPart, 0, len(blocks))
	for _, b := range blocks {
		switch bl := b.(type) {
		case medic.TextBlock:
			parts = append(parts, apiContentPart{Type: "text", Text: bl.Text})
		case medic.ImageBlock:
			parts = append(parts, imagePart(bl))
		}
	}
	return parts
}

func imagePart(img medic.ImageBlock) apiContentPart {
	url := "data:" + img.MimeType + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
	return apiContentPart{Type: "image_url", ImageURL: &apiImageURL{URL: url}}
}

func textOf(blocks []medic.ContentBlock) string {
	var b strings.Builder
	for _, bl := range blocks {
		if t, ok := bl.(medic.TextBlock); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}

func convertTools(tools []medic.Tool) []apiTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]apiTool, len(tools))
	for i, t := range tools {
		result[i] = apiTool{
			Type: "function",
			Function: apiFunction{
				Name:        string(t.Name),
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

func parseHTTPError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("openrouter: HTTP %d (failed to read body: %v): %w", resp.StatusCode, err, medic.ErrUpstream)
	}
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Error.Message == "" {
		return fmt.Errorf("openrouter: HTTP %d: %s: %w", resp.StatusCode, strings.TrimSpace(string(body)), medic.ErrUpstream)
	}
	return fmt.Errorf("openrouter: HTTP %d: %s: %w", resp.StatusCode, apiErr.Error.Message, medic.ErrUpstream)
}

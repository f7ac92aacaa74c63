package openrouter_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fwojciec/medic"
	"github.com/fwojciec/medic/openrouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture records the last request body and answers with fixed bytes.
func capture(t *testing.T, status int, reply string) (*httptest.Server, *map[string]any) {
	t.Helper()
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(data, &body))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &body
}

const doneOnly = "data: {\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\ndata: [DONE]\n\n"

func TestClient_RequestFormat(t *testing.T) {
	t.Parallel()

	srv, captured := capture(t, http.StatusOK, doneOnly)
	temp := 0.2
	client := openrouter.New("test-key", openrouter.WithBaseURL(srv.URL+"/"), openrouter.WithAppTitle("medic"))
	s, err := client.Stream(context.Background(), medic.Request{
		Model:        "openai/gpt-4o-mini",
		SystemPrompt: "You are a careful medical assistant.",
		Messages: []medic.Message{
			medic.UserMessage{Content: []medic.ContentBlock{medic.TextBlock{Text: "Explain my labs"}}},
			medic.AssistantMessage{Content: []medic.ContentBlock{
				medic.ThinkingBlock{Thinking: "hidden"},
				medic.TextBlock{Text: "Checking."},
				medic.ToolCallBlock{ID: "call_1", Name: "generate_lab_explanation", Arguments: json.RawMessage(`{"test_name":"HbA1c"}`)},
			}},
			medic.ToolResultMessage{
				ToolCallID: "call_1",
				ToolName:   medic.ToolLabExplanation,
				Content:    []medic.ContentBlock{medic.TextBlock{Text: `{"summary":"ok"}`}},
			},
		},
		Tools: []medic.Tool{{
			Name:        medic.ToolLabExplanation,
			Description: "Explain a lab value",
			Parameters:  json.RawMessage(`{"type":"object"}`),
		}},
		MaxTokens:   512,
		Temperature: &temp,
	})
	require.NoError(t, err)
	defer s.Close()

	body := *captured
	assert.Equal(t, "openai/gpt-4o-mini", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.Equal(t, float64(512), body["max_tokens"])
	assert.Equal(t, 0.2, body["temperature"])
	assert.Equal(t, 0.9, body["top_p"])
	assert.Equal(t, "auto", body["tool_choice"])

	msgs := body["messages"].([]any)
	require.Len(t, msgs, 4)
	assert.Equal(t, map[string]any{"role": "system", "content": "You are a careful medical assistant."}, msgs[0])
	assert.Equal(t, map[string]any{"role": "user", "content": "Explain my labs"}, msgs[1])

	asst := msgs[2].(map[string]any)
	assert.Equal(t, "assistant", asst["role"])
	assert.Equal(t, "Checking.", asst["content"])
	calls := asst["tool_calls"].([]any)
	require.Len(t, calls, 1)
	assert.Equal(t, map[string]any{
		"id":   "call_1",
		"type": "function",
		"function": map[string]any{
			"name":      "generate_lab_explanation",
			"arguments": `{"test_name":"HbA1c"}`,
		},
	}, calls[0])

	assert.Equal(t, map[string]any{
		"role":         "tool",
		"tool_call_id": "call_1",
		"name":         "generate_lab_explanation",
		"content":      `{"summary":"ok"}`,
	}, msgs[3])

	tools := body["tools"].([]any)
	require.Len(t, tools, 1)
	assert.Equal(t, map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        "generate_lab_explanation",
			"description": "Explain a lab value",
			"parameters":  map[string]any{"type": "object"},
		},
	}, tools[0])
}

func TestClient_Defaults(t *testing.T) {
	t.Parallel()

	srv, captured := capture(t, http.StatusOK, doneOnly)
	s, err := openrouter.New("test-key", openrouter.WithBaseURL(srv.URL)).Stream(context.Background(), medic.Request{
		Messages: []medic.Message{medic.UserMessage{Content: []medic.ContentBlock{medic.TextBlock{Text: "hi"}}}},
	})
	require.NoError(t, err)
	defer s.Close()

	body := *captured
	assert.Equal(t, "openai/gpt-oss-120b", body["model"])
	assert.Equal(t, float64(1024), body["max_tokens"])
	assert.Equal(t, 0.7, body["temperature"])
	assert.Equal(t, 0.9, body["top_p"])
	assert.NotContains(t, body, "tools")
	assert.NotContains(t, body, "tool_choice")
}

func TestClient_ImageContent(t *testing.T) {
	t.Parallel()

	srv, captured := capture(t, http.StatusOK, doneOnly)
	s, err := openrouter.New("test-key", openrouter.WithBaseURL(srv.URL), openrouter.WithModel("custom/model")).Stream(context.Background(), medic.Request{
		Messages: []medic.Message{medic.UserMessage{Content: []medic.ContentBlock{
			medic.TextBlock{Text: "What is this?"},
			medic.ImageBlock{Data: []byte("png"), MimeType: "image/png"},
		}}},
	})
	require.NoError(t, err)
	defer s.Close()

	body := *captured
	assert.Equal(t, "custom/model", body["model"])
	msg := body["messages"].([]any)[0].(map[string]any)
	assert.Equal(t, []any{
		map[string]any{"type": "text", "text": "What is this?"},
		map[string]any{"type": "image_url", "image_url": map[string]any{"url": "data:image/png;base64,cG5n"}},
	}, msg["content"])
}

func TestClient_HTTPError(t *testing.T) {
	t.Parallel()

	t.Run("json error body", func(t *testing.T) {
		t.Parallel()
		srv, _ := capture(t, http.StatusTooManyRequests, `{"error":{"message":"Rate limit exceeded","code":429}}`)
		_, err := openrouter.New("test-key", openrouter.WithBaseURL(srv.URL)).Stream(context.Background(), medic.Request{})
		require.ErrorIs(t, err, medic.ErrUpstream)
		assert.Contains(t, err.Error(), "HTTP 429")
		assert.Contains(t, err.Error(), "Rate limit exceeded")
	})

	t.Run("plain body", func(t *testing.T) {
		t.Parallel()
		srv, _ := capture(t, http.StatusBadGateway, "bad gateway")
		_, err := openrouter.New("test-key", openrouter.WithBaseURL(srv.URL)).Stream(context.Background(), medic.Request{})
		require.ErrorIs(t, err, medic.ErrUpstream)
		assert.Contains(t, err.Error(), "bad gateway")
	})

	t.Run("transport failure", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()
		_, err := openrouter.New("test-key", openrouter.WithBaseURL(url)).Stream(context.Background(), medic.Request{})
		require.ErrorIs(t, err, medic.ErrUpstream)
	})
}

func TestClient_Describe(t *testing.T) {
	t.Parallel()

	t.Run("sends image and returns text", func(t *testing.T) {
		t.Parallel()
		srv, captured := capture(t, http.StatusOK, `{"choices":[{"message":{"content":"DESCRIPTION: A small red patch."},"finish_reason":"stop"}]}`)
		temp := 0.3
		got, err := openrouter.New("test-key", openrouter.WithBaseURL(srv.URL)).Describe(context.Background(), medic.VisionRequest{
			Model:        "openai/gpt-4o",
			SystemPrompt: "Describe carefully.",
			Prompt:       "What do you see?",
			Image:        medic.ImageBlock{Data: []byte("jpg"), MimeType: "image/jpeg"},
			MaxTokens:    800,
			Temperature:  &temp,
		})
		require.NoError(t, err)
		assert.Equal(t, "DESCRIPTION: A small red patch.", got)

		body := *captured
		assert.Equal(t, "openai/gpt-4o", body["model"])
		assert.Equal(t, false, body["stream"])
		assert.Equal(t, float64(800), body["max_tokens"])
		assert.Equal(t, 0.3, body["temperature"])
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, map[string]any{"role": "system", "content": "Describe carefully."}, msgs[0])
		parts := msgs[1].(map[string]any)["content"].([]any)
		require.Len(t, parts, 2)
		assert.Equal(t, "data:image/jpeg;base64,anBn", parts[1].(map[string]any)["image_url"].(map[string]any)["url"])
	})

	t.Run("empty completion", func(t *testing.T) {
		t.Parallel()
		srv, _ := capture(t, http.StatusOK, `{"choices":[]}`)
		_, err := openrouter.New("test-key", openrouter.WithBaseURL(srv.URL)).Describe(context.Background(), medic.VisionRequest{})
		require.ErrorIs(t, err, medic.ErrUpstream)
	})

	t.Run("error body with 200", func(t *testing.T) {
		t.Parallel()
		srv, _ := capture(t, http.StatusOK, `{"error":{"message":"model overloaded"}}`)
		_, err := openrouter.New("test-key", openrouter.WithBaseURL(srv.URL)).Describe(context.Background(), medic.VisionRequest{})
		require.ErrorIs(t, err, medic.ErrUpstream)
		assert.Contains(t, err.Error(), "model overloaded")
	})

	t.Run("http error", func(t *testing.T) {
		t.Parallel()
		srv, _ := capture(t, http.StatusUnauthorized, `{"error":{"message":"No auth credentials found"}}`)
		_, err := openrouter.New("test-key", openrouter.WithBaseURL(srv.URL)).Describe(context.Background(), medic.VisionRequest{})
		require.ErrorIs(t, err, medic.ErrUpstream)
		assert.Contains(t, err.Error(), "HTTP 401")
	})
}

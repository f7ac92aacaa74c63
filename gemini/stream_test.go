package gemini_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/fwojciec/medic"
	"github.com/fwojciec/medic/gemini"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"
)

// mockChunks returns a genai-style streaming iterator from pre-built chunks.
func mockChunks(chunks ...*genai.GenerateContentResponse) func(func(*genai.GenerateContentResponse, error) bool) {
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
	}
}

func chunk(reason genai.FinishReason, parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Parts: parts},
			FinishReason: reason,
		}},
	}
}

func collect(t *testing.T, s medic.Stream) []medic.Delta {
	t.Helper()
	var deltas []medic.Delta
	for {
		d, err := s.Next()
		if errors.Is(err, io.EOF) {
			return deltas
		}
		require.NoError(t, err)
		deltas = append(deltas, d)
	}
}

func TestStream_Text(t *testing.T) {
	t.Parallel()

	first := chunk("", &genai.Part{Text: "Your hemoglobin"})
	last := chunk(genai.FinishReasonStop, &genai.Part{Text: " is normal."})
	last.UsageMetadata = &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 5}

	s := gemini.NewStreamFromIter(context.Background(), mockChunks(first, last))
	deltas := collect(t, s)

	assert.Equal(t, []medic.Delta{
		medic.TextDelta{Text: "Your hemoglobin"},
		medic.TextDelta{Text: " is normal."},
	}, deltas)

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, []medic.ContentBlock{medic.TextBlock{Text: "Your hemoglobin is normal."}}, msg.Content)
	assert.Equal(t, medic.StopEndTurn, msg.StopReason)
	assert.Equal(t, "STOP", msg.RawStopReason)
	assert.Equal(t, medic.Usage{InputTokens: 10, OutputTokens: 5}, msg.Usage)
}

func TestStream_Thinking(t *testing.T) {
	t.Parallel()

	s := gemini.NewStreamFromIter(context.Background(), mockChunks(
		chunk("", &genai.Part{Text: "weighing", Thought: true, ThoughtSignature: []byte("sig123")}),
		chunk("", &genai.Part{Text: " symptoms", Thought: true}),
		chunk(genai.FinishReasonStop, &genai.Part{Text: "Answer"}),
	))
	deltas := collect(t, s)

	assert.Equal(t, []medic.Delta{
		medic.ThinkingDelta{Text: "weighing"},
		medic.ThinkingDelta{Text: " symptoms"},
		medic.TextDelta{Text: "Answer"},
	}, deltas)

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, []medic.ContentBlock{
		medic.ThinkingBlock{Thinking: "weighing symptoms", Signature: []byte("sig123")},
		medic.TextBlock{Text: "Answer"},
	}, msg.Content)
}

func TestStream_InterleavedBlocks(t *testing.T) {
	t.Parallel()

	s := gemini.NewStreamFromIter(context.Background(), mockChunks(
		chunk("", &genai.Part{Text: "think1", Thought: true}),
		chunk("", &genai.Part{Text: "text1"}),
		chunk(genai.FinishReasonStop, &genai.Part{Text: "think2", Thought: true}),
	))
	collect(t, s)

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, []medic.ContentBlock{
		medic.ThinkingBlock{Thinking: "think1"},
		medic.TextBlock{Text: "text1"},
		medic.ThinkingBlock{Thinking: "think2"},
	}, msg.Content)
}

func TestStream_SignatureOnlyPart(t *testing.T) {
	t.Parallel()

	s := gemini.NewStreamFromIter(context.Background(), mockChunks(
		chunk("", &genai.Part{Text: "reasoning", Thought: true}),
		chunk("", &genai.Part{Thought: true, ThoughtSignature: []byte("trailing-sig")}),
		chunk(genai.FinishReasonStop, &genai.Part{Text: "Answer"}),
	))
	deltas := collect(t, s)

	require.Len(t, deltas, 2)
	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, medic.ThinkingBlock{Thinking: "reasoning", Signature: []byte("trailing-sig")}, msg.Content[0])
}

func TestStream_ToolCalls(t *testing.T) {
	t.Parallel()

	t.Run("complete calls", func(t *testing.T) {
		t.Parallel()
		s := gemini.NewStreamFromIter(context.Background(), mockChunks(
			chunk(genai.FinishReasonStop,
				&genai.Part{FunctionCall: &genai.FunctionCall{ID: "tc_1", Name: "generate_lab_explanation", Args: map[string]any{"test_name": "HbA1c"}}},
				&genai.Part{FunctionCall: &genai.FunctionCall{ID: "tc_2", Name: "tavily_web_search", Args: map[string]any{"query": "HbA1c"}}},
			),
		))
		deltas := collect(t, s)

		assert.Equal(t, []medic.Delta{
			medic.ToolCallDelta{Call: medic.ToolCallBlock{ID: "tc_1", Name: "generate_lab_explanation", Arguments: json.RawMessage(`{"test_name":"HbA1c"}`)}},
			medic.ToolCallDelta{Call: medic.ToolCallBlock{ID: "tc_2", Name: "tavily_web_search", Arguments: json.RawMessage(`{"query":"HbA1c"}`)}},
		}, deltas)
		msg, err := s.Message()
		require.NoError(t, err)
		assert.Len(t, msg.ToolCalls(), 2)
		assert.Equal(t, medic.StopToolUse, msg.StopReason)
	})

	t.Run("fallback id", func(t *testing.T) {
		t.Parallel()
		s := gemini.NewStreamFromIter(context.Background(), mockChunks(
			chunk(genai.FinishReasonStop, &genai.Part{FunctionCall: &genai.FunctionCall{Name: "tavily_web_search", Args: map[string]any{"query": "x"}}}),
		))
		deltas := collect(t, s)
		require.Len(t, deltas, 1)
		call := deltas[0].(medic.ToolCallDelta).Call
		assert.Regexp(t, `^call_[0-9a-f-]{36}$`, call.ID)
	})

	t.Run("nil args", func(t *testing.T) {
		t.Parallel()
		s := gemini.NewStreamFromIter(context.Background(), mockChunks(
			chunk(genai.FinishReasonStop, &genai.Part{FunctionCall: &genai.FunctionCall{ID: "tc_nil", Name: "noop"}}),
		))
		deltas := collect(t, s)
		require.Len(t, deltas, 1)
		assert.Equal(t, json.RawMessage("{}"), deltas[0].(medic.ToolCallDelta).Call.Arguments)
	})

	t.Run("signature backfills thinking", func(t *testing.T) {
		t.Parallel()
		s := gemini.NewStreamFromIter(context.Background(), mockChunks(
			chunk(genai.FinishReasonStop,
				&genai.Part{Text: "reasoning", Thought: true},
				&genai.Part{
					FunctionCall:     &genai.FunctionCall{ID: "tc_1", Name: "tavily_web_search", Args: map[string]any{"query": "q"}},
					ThoughtSignature: []byte("sig-from-call"),
				},
			),
		))
		collect(t, s)
		msg, err := s.Message()
		require.NoError(t, err)
		assert.Equal(t, medic.ThinkingBlock{Thinking: "reasoning", Signature: []byte("sig-from-call")}, msg.Content[0])
	})

	t.Run("unmarshalable args", func(t *testing.T) {
		t.Parallel()
		s := gemini.NewStreamFromIter(context.Background(), mockChunks(
			chunk(genai.FinishReasonStop, &genai.Part{FunctionCall: &genai.FunctionCall{ID: "tc_bad", Name: "tavily_web_search", Args: map[string]any{"val": math.NaN()}}}),
		))
		_, err := s.Next()
		require.ErrorIs(t, err, medic.ErrUpstream)
		assert.Contains(t, err.Error(), "invalid tool call arguments")
		assert.Equal(t, medic.StreamStateError, s.State())
	})
}

func TestStream_StopReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		reason genai.FinishReason
		want   medic.StopReason
		raw    string
	}{
		{"stop", genai.FinishReasonStop, medic.StopEndTurn, "STOP"},
		{"max tokens", genai.FinishReasonMaxTokens, medic.StopLength, "MAX_TOKENS"},
		{"safety", genai.FinishReasonSafety, medic.StopError, "SAFETY"},
		{"recitation", genai.FinishReasonRecitation, medic.StopError, "RECITATION"},
		{"missing", "", medic.StopEndTurn, "end_turn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := gemini.NewStreamFromIter(context.Background(), mockChunks(chunk(tt.reason, &genai.Part{Text: "x"})))
			collect(t, s)
			msg, err := s.Message()
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.StopReason)
			assert.Equal(t, tt.raw, msg.RawStopReason)
		})
	}

	t.Run("safety outranks tool calls", func(t *testing.T) {
		t.Parallel()
		s := gemini.NewStreamFromIter(context.Background(), mockChunks(
			chunk(genai.FinishReasonSafety, &genai.Part{FunctionCall: &genai.FunctionCall{ID: "tc_1", Name: "tavily_web_search"}}),
		))
		collect(t, s)
		msg, err := s.Message()
		require.NoError(t, err)
		assert.Equal(t, medic.StopError, msg.StopReason)
	})
}

func TestStream_UsageClampsCachedTokens(t *testing.T) {
	t.Parallel()

	c := chunk(genai.FinishReasonStop, &genai.Part{Text: "Hi"})
	c.UsageMetadata = &genai.GenerateContentResponseUsageMetadata{
		PromptTokenCount:        5,
		CachedContentTokenCount: 8,
		CandidatesTokenCount:    3,
		ThoughtsTokenCount:      4,
	}
	s := gemini.NewStreamFromIter(context.Background(), mockChunks(c))
	collect(t, s)

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, medic.Usage{InputTokens: 0, OutputTokens: 7}, msg.Usage)
}

func TestStream_SkipsEmptyChunks(t *testing.T) {
	t.Parallel()

	s := gemini.NewStreamFromIter(context.Background(), mockChunks(
		chunk("", &genai.Part{Text: "before"}),
		nil,
		&genai.GenerateContentResponse{},
		chunk(genai.FinishReasonStop, &genai.Part{Text: " after"}),
	))
	deltas := collect(t, s)

	assert.Len(t, deltas, 2)
	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, []medic.ContentBlock{medic.TextBlock{Text: "before after"}}, msg.Content)
}

func TestStream_PromptBlocked(t *testing.T) {
	t.Parallel()

	s := gemini.NewStreamFromIter(context.Background(), mockChunks(&genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: genai.BlockedReasonSafety},
	}))
	_, err := s.Next()
	require.ErrorIs(t, err, medic.ErrUpstream)
	assert.Contains(t, err.Error(), "prompt blocked")

	assert.Equal(t, medic.StreamStateError, s.State())
	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, medic.StopError, msg.StopReason)
	assert.Equal(t, "SAFETY", msg.RawStopReason)
}

func TestStream_IteratorError(t *testing.T) {
	t.Parallel()

	it := func(yield func(*genai.GenerateContentResponse, error) bool) {
		if !yield(chunk("", &genai.Part{Text: "partial"}), nil) {
			return
		}
		yield(nil, errors.New("connection reset"))
	}
	s := gemini.NewStreamFromIter(context.Background(), it)

	d, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, medic.TextDelta{Text: "partial"}, d)

	_, err = s.Next()
	require.ErrorIs(t, err, medic.ErrUpstream)
	assert.Contains(t, err.Error(), "gemini:")
	assert.Contains(t, err.Error(), "connection reset")

	_, again := s.Next()
	assert.Equal(t, err, again)

	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, []medic.ContentBlock{medic.TextBlock{Text: "partial"}}, msg.Content)
	assert.Equal(t, medic.StopError, msg.StopReason)
}

func TestStream_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := gemini.NewStreamFromIter(ctx, mockChunks(chunk(genai.FinishReasonStop, &genai.Part{Text: "Hi"})))

	_, err := s.Next()
	require.ErrorIs(t, err, context.Canceled)
	msg, err := s.Message()
	require.NoError(t, err)
	assert.Equal(t, medic.StopAborted, msg.StopReason)
}

func TestStream_Lifecycle(t *testing.T) {
	t.Parallel()

	t.Run("message before next", func(t *testing.T) {
		t.Parallel()
		s := gemini.NewStreamFromIter(context.Background(), mockChunks())
		assert.Equal(t, medic.StreamStateNew, s.State())
		_, err := s.Message()
		require.ErrorIs(t, err, medic.ErrStreamNotReady)
	})

	t.Run("states", func(t *testing.T) {
		t.Parallel()
		s := gemini.NewStreamFromIter(context.Background(), mockChunks(chunk(genai.FinishReasonStop, &genai.Part{Text: "Hi"})))
		_, err := s.Next()
		require.NoError(t, err)
		assert.Equal(t, medic.StreamStateStreaming, s.State())
		_, err = s.Next()
		require.ErrorIs(t, err, io.EOF)
		assert.Equal(t, medic.StreamStateComplete, s.State())
	})

	t.Run("close aborts", func(t *testing.T) {
		t.Parallel()
		s := gemini.NewStreamFromIter(context.Background(), mockChunks(
			chunk("", &genai.Part{Text: "partial"}),
			chunk(genai.FinishReasonStop, &genai.Part{Text: " rest"}),
		))
		_, err := s.Next()
		require.NoError(t, err)
		require.NoError(t, s.Close())

		assert.Equal(t, medic.StreamStateClosed, s.State())
		_, err = s.Next()
		require.ErrorIs(t, err, medic.ErrStreamClosed)
		msg, err := s.Message()
		require.NoError(t, err)
		assert.Equal(t, medic.StopAborted, msg.StopReason)
		assert.Equal(t, []medic.ContentBlock{medic.TextBlock{Text: "partial"}}, msg.Content)
	})

	t.Run("close preserves completion", func(t *testing.T) {
		t.Parallel()
		s := gemini.NewStreamFromIter(context.Background(), mockChunks(chunk(genai.FinishReasonStop, &genai.Part{Text: "Hi"})))
		collect(t, s)
		require.NoError(t, s.Close())
		assert.Equal(t, medic.StreamStateComplete, s.State())
		msg, err := s.Message()
		require.NoError(t, err)
		assert.Equal(t, medic.StopEndTurn, msg.StopReason)
	})
}

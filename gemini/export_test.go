package gemini

import (
	"context"
	"iter"

	"github.com/fwojciec/medic"
	"google.golang.org/genai"
)

// NewStreamFromIter exposes the stream over a fake iterator to tests.
func NewStreamFromIter(ctx context.Context, it iter.Seq2[*genai.GenerateContentResponse, error]) medic.Stream {
	return newStream(ctx, it)
}

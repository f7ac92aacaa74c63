// Package gemini implements [medic.Provider] and [medic.VisionModel] for the
// Google Gemini API.
//
// It wraps the google.golang.org/genai SDK, translating between medic's
// domain types and the Gemini API types. Streaming uses the SDK's iter.Seq2
// iterator, wrapped into the pull-based [medic.Stream] interface.
package gemini

const (
	defaultModel       = "gemini-2.5-flash"
	defaultVisionModel = "gemini-2.5-flash"
	defaultMaxTokens   = 8192
)

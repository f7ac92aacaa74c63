// Package vision turns an attached medical image into a structured
// interpretation before reasoning begins.
//
// Validation (format, size) runs before any network call. Exactly one
// vision-model call is made per analysis and it is never retried; the
// caller decides how to surface a failure. Raw image bytes never leave this
// package.
package vision

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/fwojciec/medic"
)

const (
	defaultModel       = "openai/gpt-4o"
	defaultMaxTokens   = 1024
	defaultTemperature = 0.3
	contextLimit       = 200
)

const systemPrompt = `You are a medical image analysis assistant. Your role is to carefully observe and describe medical images with clinical accuracy.

When analyzing an image, provide:
1. A detailed description of what you observe
2. Structured findings in JSON format with relevant medical details
3. Your confidence level in the analysis

Be objective and factual. Note any limitations in image quality or visibility. Never provide definitive diagnoses - only observations and possible considerations for a healthcare provider to evaluate.

Format your response as:
DESCRIPTION: [Your detailed narrative description]

STRUCTURED_FINDINGS: [JSON object with relevant findings]

CONFIDENCE: [HIGH/MEDIUM/LOW with brief justification]`

// Analyzer runs vision pre-analysis against a VisionModel.
type Analyzer struct {
	model       medic.VisionModel
	modelName   string
	maxTokens   int
	temperature float64
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures an [Analyzer].
type Option func(*Analyzer)

// WithModel sets the vision model ID. Default is openai/gpt-4o.
func WithModel(model string) Option {
	return func(a *Analyzer) { a.modelName = model }
}

// WithLogger sets the logger. Default discards.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithClock overrides time.Now. Useful for testing.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// New creates an [Analyzer] backed by model.
func New(model medic.VisionModel, opts ...Option) *Analyzer {
	a := &Analyzer{
		model:       model,
		modelName:   defaultModel,
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Model returns the vision model ID used for analysis.
func (a *Analyzer) Model() string { return a.modelName }

// Analyze validates img and returns its interpretation.
func (a *Analyzer) Analyze(ctx context.Context, img medic.Image, question string) (*medic.ImageInterpretation, error) {
	return a.AnalyzeStream(ctx, img, question, nil)
}

// AnalyzeStream is Analyze that additionally reports progress through emit:
// image_validation, image_processing, vision_analysis and vision_complete,
// once each and in that order. A non-nil error from emit aborts the
// analysis. Validation failures return before any event is emitted.
func (a *Analyzer) AnalyzeStream(
	ctx context.Context,
	img medic.Image,
	question string,
	emit func(medic.StreamEvent) error,
) (*medic.ImageInterpretation, error) {
	if emit == nil {
		emit = func(medic.StreamEvent) error { return nil }
	}
	start := a.now()

	p, err := Prepare(img)
	if err != nil {
		a.logger.Warn("image rejected", "error", err, "bytes", len(img.Data), "mime", img.MimeType)
		return nil, err
	}
	if err := emit(medic.ImageValidationEvent{
		Message: fmt.Sprintf("Image validated: %s, %dx%d, %s",
			p.Format, p.OriginalWidth, p.OriginalHeight, megabytes(p.OriginalSize)),
		Format:    p.Format,
		Width:     p.OriginalWidth,
		Height:    p.OriginalHeight,
		SizeBytes: p.OriginalSize,
	}); err != nil {
		return nil, err
	}

	processing := "Encoding image for analysis..."
	if p.Resized {
		processing = fmt.Sprintf("Image resized for optimal processing (%dx%d → %dx%d)",
			p.OriginalWidth, p.OriginalHeight, p.Width, p.Height)
	}
	if err := emit(medic.ImageProcessingEvent{
		Message: processing,
		Resized: p.Resized,
		Width:   p.Width,
		Height:  p.Height,
	}); err != nil {
		return nil, err
	}

	if err := emit(medic.VisionAnalysisEvent{
		Message: "Analyzing image with vision model...",
		Model:   a.modelName,
	}); err != nil {
		return nil, err
	}

	temp := a.temperature
	text, err := a.model.Describe(ctx, medic.VisionRequest{
		Model:        a.modelName,
		SystemPrompt: systemPrompt,
		Prompt:       userPrompt(question),
		Image:        medic.ImageBlock{Data: p.Data, MimeType: p.MimeType},
		MaxTokens:    a.maxTokens,
		Temperature:  &temp,
	})
	if err != nil {
		return nil, fmt.Errorf("vision: %w: %w", medic.ErrUpstream, err)
	}

	parsed := Parse(text)
	interp := &medic.ImageInterpretation{
		Description:    parsed.Description,
		Findings:       parsed.Findings,
		Confidence:     parsed.Confidence,
		Model:          a.modelName,
		ProcessingTime: a.now().Sub(start),
		Format:         p.Format,
		Width:          p.OriginalWidth,
		Height:         p.OriginalHeight,
		Resized:        p.Resized,
		AnalyzedAt:     a.now(),
	}
	a.logger.Info("image analyzed",
		"model", a.modelName,
		"findings", len(interp.Findings),
		"confidence", interp.Confidence,
		"duration", interp.ProcessingTime,
	)
	if err := emit(medic.VisionCompleteEvent{Interpretation: *interp}); err != nil {
		return nil, err
	}
	return interp, nil
}

func userPrompt(question string) string {
	prompt := "Please analyze this medical image carefully. Describe what you observe in detail."
	if question != "" {
		if r := []rune(question); len(r) > contextLimit {
			question = string(r[:contextLimit])
		}
		prompt += "\n\nContext: " + question
	}
	return prompt + "\n\nProvide your analysis in the format specified in the system instructions."
}

func megabytes(n int) string {
	return fmt.Sprintf("%.2fMB", float64(n)/(1<<20))
}

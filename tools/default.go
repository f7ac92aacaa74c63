package tools

import "github.com/fwojciec/medic"

// Default returns a registry holding every built-in tool. Web search is
// registered only when s is non-nil.
func Default(s medic.Searcher, opts ...Option) (*Registry, error) {
	r := NewRegistry(opts...)
	if s != nil {
		if err := r.Register(WebSearchTool(), WebSearch(s)); err != nil {
			return nil, err
		}
	}
	for _, t := range []struct {
		tool    medic.Tool
		handler Handler
	}{
		{LabExplanationTool(), ExplainLab},
		{ImagingExplanationTool(), ExplainImaging},
		{MedicalSummaryTool(), SummarizeTopic},
	} {
		if err := r.Register(t.tool, t.handler); err != nil {
			return nil, err
		}
	}
	return r, nil
}

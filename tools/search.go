package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/fwojciec/medic"
)

const defaultMaxResults = 5

type searchArgs struct {
	Query       string `json:"query"`
	SearchDepth string `json:"search_depth"`
	Topic       string `json:"topic"`
	MaxResults  int    `json:"max_results"`
}

type searchHit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type searchPayload struct {
	Query        string      `json:"query"`
	ResultsCount int         `json:"results_count"`
	Results      []searchHit `json:"results"`
	Timestamp    time.Time   `json:"timestamp"`
}

// WebSearchTool returns the declaration of the web search tool.
func WebSearchTool() medic.Tool {
	return medic.Tool{
		Name: medic.ToolWebSearch,
		Description: "Search the web for current medical information, research studies, drug interactions, " +
			"treatment guidelines, and health-related topics. Use this when you need up-to-date information " +
			"not in your training data, or when the user asks about recent medical developments, specific " +
			"medications, or current health guidelines.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {
					"type": "string",
					"minLength": 1,
					"description": "The search query. Be specific and include medical terms. Examples: 'metformin side effects and contraindications', 'symptoms of iron deficiency anemia'"
				},
				"search_depth": {
					"type": "string",
					"enum": ["basic", "advanced"],
					"description": "'basic' for quick searches, 'advanced' for comprehensive searches. Default: 'basic'"
				},
				"topic": {
					"type": "string",
					"enum": ["general", "news", "finance"],
					"description": "Topic category. Use 'general' for medical and health-related queries, 'news' for recent updates. Default: 'general'"
				},
				"max_results": {
					"type": "integer",
					"minimum": 1,
					"maximum": 10,
					"description": "Number of results to return. Default: 5"
				}
			},
			"required": ["query"]
		}`),
	}
}

// WebSearch returns the web search handler backed by s.
func WebSearch(s medic.Searcher) Handler {
	return Typed(func(ctx context.Context, a searchArgs) (*searchPayload, error) {
		q := medic.SearchQuery{
			Query:      a.Query,
			Depth:      a.SearchDepth,
			Topic:      a.Topic,
			MaxResults: a.MaxResults,
		}
		if q.Depth == "" {
			q.Depth = "basic"
		}
		if q.Topic == "" {
			q.Topic = "general"
		}
		if q.MaxResults == 0 {
			q.MaxResults = defaultMaxResults
		}
		results, err := s.Search(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}
		p := &searchPayload{
			Query:     a.Query,
			Results:   make([]searchHit, 0, len(results)),
			Timestamp: time.Now().UTC(),
		}
		for _, r := range results {
			p.Results = append(p.Results, searchHit(r))
		}
		p.ResultsCount = len(p.Results)
		return p, nil
	})
}

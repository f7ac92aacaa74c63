package vision

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/fwojciec/medic"
)

const (
	prefixDescription = "DESCRIPTION:"
	prefixFindings    = "STRUCTURED_FINDINGS:"
	prefixConfidence  = "CONFIDENCE:"
)

// Parsed is the structured content of a vision model response.
type Parsed struct {
	Description string
	Findings    []medic.Finding
	Confidence  medic.Confidence
}

// Parse splits a response of the form
//
//	DESCRIPTION: ...
//	STRUCTURED_FINDINGS: {json}
//	CONFIDENCE: HIGH|MEDIUM|LOW ...
//
// Missing sections are tolerated: the description falls back to the whole
// text and the confidence to MEDIUM.
func Parse(text string) Parsed {
	sections := map[string][]string{}
	var current string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, prefixDescription):
			current = prefixDescription
		case strings.HasPrefix(line, prefixFindings):
			current = prefixFindings
		case strings.HasPrefix(line, prefixConfidence):
			current = prefixConfidence
		default:
			if current != "" && line != "" {
				sections[current] = append(sections[current], line)
			}
			continue
		}
		if rest := strings.TrimSpace(strings.TrimPrefix(line, current)); rest != "" {
			sections[current] = append(sections[current], rest)
		}
	}

	p := Parsed{
		Description: strings.Join(sections[prefixDescription], "\n"),
		Findings:    parseFindings(strings.Join(sections[prefixFindings], "\n")),
		Confidence:  parseConfidence(strings.Join(sections[prefixConfidence], " ")),
	}
	if p.Description == "" {
		p.Description = strings.TrimSpace(text)
	}
	return p
}

func parseConfidence(s string) medic.Confidence {
	fields := strings.Fields(strings.ToUpper(s))
	if len(fields) == 0 {
		return medic.ConfidenceMedium
	}
	switch c := medic.Confidence(strings.Trim(fields[0], ".,;:-()[]*")); c {
	case medic.ConfidenceHigh, medic.ConfidenceMedium, medic.ConfidenceLow:
		return c
	}
	return medic.ConfidenceMedium
}

// parseFindings flattens a findings JSON document into ordered label and
// qualifier pairs. Object keys keep their document order. Text that is not
// JSON becomes a single "raw" finding.
func parseFindings(s string) []medic.Finding {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if !json.Valid([]byte(s)) {
		return []medic.Finding{{Label: "raw", Qualifier: s}}
	}

	dec := json.NewDecoder(strings.NewReader(s))
	tok, err := dec.Token()
	if err != nil {
		return []medic.Finding{{Label: "raw", Qualifier: s}}
	}
	switch tok {
	case json.Delim('{'):
		var out []medic.Finding
		for dec.More() {
			keyTok, err := dec.Token()
			if err != nil {
				break
			}
			key, _ := keyTok.(string)
			var v json.RawMessage
			if err := dec.Decode(&v); err != nil {
				break
			}
			out = append(out, medic.Finding{Label: key, Qualifier: qualifier(v)})
		}
		return out
	case json.Delim('['):
		var out []medic.Finding
		for dec.More() {
			var v json.RawMessage
			if err := dec.Decode(&v); err != nil {
				break
			}
			out = append(out, medic.Finding{Label: qualifier(v)})
		}
		return out
	default:
		return []medic.Finding{{Label: "raw", Qualifier: s}}
	}
}

// qualifier renders a JSON value as plain text: strings unquoted, arrays of
// strings comma-joined, anything else compact JSON.
func qualifier(v json.RawMessage) string {
	var str string
	if err := json.Unmarshal(v, &str); err == nil {
		return str
	}
	var strs []string
	if err := json.Unmarshal(v, &strs); err == nil {
		return strings.Join(strs, ", ")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, v); err != nil {
		return string(v)
	}
	return buf.String()
}

// Package artifact builds the structured document representation of a
// finalized answer. Rendering to bytes is done by medic.Renderer
// implementations.
package artifact

import (
	"regexp"
	"strings"
	"time"

	"github.com/fwojciec/medic"
	"github.com/google/uuid"
)

var titles = map[medic.ArtifactType]string{
	medic.ArtifactLabExplanation:     "Lab Results Explanation",
	medic.ArtifactImagingAnalysis:    "Imaging Analysis",
	medic.ArtifactMedicalSummary:     "Medical Summary",
	medic.ArtifactConsultationReport: "Consultation Report",
}

// DefaultTitle returns the document title used when none is supplied.
func DefaultTitle(t medic.ArtifactType) string {
	if s, ok := titles[t]; ok {
		return s
	}
	return "Medical Document"
}

const introHeading = "Overview"

var (
	heading   = regexp.MustCompile(`^#{1,6}\s+(.+?)\s*#*$`)
	boldLine  = regexp.MustCompile(`^\*\*([^*]+?):?\*\*:?$`)
	fieldLine = regexp.MustCompile(`^(?:[-*]\s+)?\**([A-Za-z][A-Za-z0-9 /()%.,'-]{0,39}?)\**:\**\s+(\S.*)$`)
)

// Build splits content into sections on Markdown headings (or lines that
// are entirely bold) and lifts "Key: value" lines into fields. Text before
// the first heading becomes an "Overview" section. An empty title is
// replaced by the type's default title.
func Build(t medic.ArtifactType, title, content string) *medic.Artifact {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle(t)
	}
	a := &medic.Artifact{
		ID:        uuid.NewString(),
		Type:      t,
		Title:     title,
		CreatedAt: time.Now().UTC(),
	}

	cur := &medic.Section{Heading: introHeading}
	var body []string
	flush := func() {
		cur.Body = strings.TrimSpace(strings.Join(body, "\n"))
		if cur.Body != "" || len(cur.Fields) > 0 {
			a.Sections = append(a.Sections, *cur)
		}
		body = body[:0]
	}

	for _, line := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(line)
		if h := headingText(trimmed); h != "" {
			flush()
			cur = &medic.Section{Heading: h}
			continue
		}
		if f, ok := parseField(trimmed); ok {
			cur.Fields = append(cur.Fields, f)
			continue
		}
		body = append(body, line)
	}
	flush()
	return a
}

func headingText(line string) string {
	if m := heading.FindStringSubmatch(line); m != nil {
		return strings.Trim(m[1], "* ")
	}
	if m := boldLine.FindStringSubmatch(line); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func parseField(line string) (medic.Field, bool) {
	m := fieldLine.FindStringSubmatch(line)
	if m == nil {
		return medic.Field{}, false
	}
	name := strings.TrimSpace(m[1])
	// Sentences with a colon are prose, not fields.
	if strings.Count(name, " ") > 4 {
		return medic.Field{}, false
	}
	return medic.Field{Name: name, Value: strings.TrimSpace(strings.Trim(m[2], "*"))}, true
}

// Markdown renders a as Markdown, the common input of document renderers.
func Markdown(a *medic.Artifact) string {
	var b strings.Builder
	b.WriteString("# ")
	b.WriteString(a.Title)
	b.WriteString("\n")
	for _, s := range a.Sections {
		b.WriteString("\n## ")
		b.WriteString(s.Heading)
		b.WriteString("\n\n")
		for _, f := range s.Fields {
			b.WriteString("- **")
			b.WriteString(f.Name)
			b.WriteString(":** ")
			b.WriteString(f.Value)
			b.WriteString("\n")
		}
		if s.Body != "" {
			if len(s.Fields) > 0 {
				b.WriteString("\n")
			}
			b.WriteString(s.Body)
			b.WriteString("\n")
		}
	}
	return b.String()
}

package goldmark

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// BlockKind classifies a layout block.
type BlockKind int

const (
	BlockParagraph BlockKind = iota
	BlockHeading
	BlockListItem
	BlockCode
	BlockRule
)

// Block is one plain-text unit of a Markdown document, ready for layout by
// renderers that cannot display Markdown themselves.
type Block struct {
	Kind   BlockKind
	Text   string
	Level  int    // heading level
	Depth  int    // list nesting depth
	Marker string // list marker such as "- " or "2. "
	Bold   bool   // text is entirely strong emphasis
}

// Blocks parses source and flattens it into layout blocks. Inline markup
// is stripped; link destinations are kept in parentheses.
func Blocks(source string) []Block {
	if strings.TrimSpace(source) == "" {
		return nil
	}
	src := []byte(source)
	doc := goldmark.DefaultParser().Parse(text.NewReader(src))
	w := &walker{source: src}
	w.walkBlock(doc)
	return w.blocks
}

type walker struct {
	source []byte
	blocks []Block
}

func (w *walker) walkBlock(node ast.Node) {
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		w.renderBlock(c)
	}
}

func (w *walker) renderBlock(node ast.Node) {
	switch n := node.(type) {
	case *ast.Paragraph, *ast.TextBlock:
		w.blocks = append(w.blocks, Block{
			Kind: BlockParagraph,
			Text: w.collectInline(n),
			Bold: onlyStrong(n),
		})

	case *ast.Heading:
		w.blocks = append(w.blocks, Block{Kind: BlockHeading, Text: w.collectInline(n), Level: n.Level})

	case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
		w.blocks = append(w.blocks, Block{Kind: BlockCode, Text: w.lines(n)})

	case *ast.List:
		w.renderList(n, 0)

	case *ast.ThematicBreak:
		w.blocks = append(w.blocks, Block{Kind: BlockRule})

	default:
		w.walkBlock(node)
	}
}

func (w *walker) renderList(node *ast.List, depth int) {
	num := node.Start
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		item, ok := c.(*ast.ListItem)
		if !ok {
			continue
		}
		marker := "- "
		if node.IsOrdered() {
			marker = fmt.Sprintf("%d. ", num)
			num++
		}

		var parts []string
		flush := func() {
			if len(parts) == 0 {
				return
			}
			w.blocks = append(w.blocks, Block{
				Kind:   BlockListItem,
				Text:   strings.Join(parts, " "),
				Depth:  depth,
				Marker: marker,
			})
			parts = nil
			marker = strings.Repeat(" ", len(marker))
		}
		for ic := item.FirstChild(); ic != nil; ic = ic.NextSibling() {
			switch in := ic.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				parts = append(parts, w.collectInline(in))
			case *ast.List:
				flush()
				w.renderList(in, depth+1)
			default:
				flush()
				w.renderBlock(ic)
			}
		}
		flush()
	}
}

func (w *walker) lines(node ast.Node) string {
	var buf bytes.Buffer
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		buf.Write(seg.Value(w.source))
	}
	return strings.TrimRight(buf.String(), "\n")
}

func (w *walker) collectInline(node ast.Node) string {
	var buf bytes.Buffer
	for c := node.FirstChild(); c != nil; c = c.NextSibling() {
		w.renderInline(c, &buf)
	}
	return strings.TrimSpace(buf.String())
}

func (w *walker) renderInline(node ast.Node, buf *bytes.Buffer) {
	switch n := node.(type) {
	case *ast.Text:
		buf.Write(n.Segment.Value(w.source))
		if n.SoftLineBreak() {
			buf.WriteByte(' ')
		}
		if n.HardLineBreak() {
			buf.WriteByte('\n')
		}

	case *ast.String:
		buf.Write(n.Value)

	case *ast.Link:
		inner := w.collectInline(n)
		dest := string(n.Destination)
		buf.WriteString(inner)
		if dest != "" && dest != inner {
			buf.WriteString(" (" + dest + ")")
		}

	case *ast.AutoLink:
		buf.Write(n.URL(w.source))

	case *ast.RawHTML:
		for i := 0; i < n.Segments.Len(); i++ {
			seg := n.Segments.At(i)
			buf.Write(seg.Value(w.source))
		}

	default:
		for c := node.FirstChild(); c != nil; c = c.NextSibling() {
			w.renderInline(c, buf)
		}
	}
}

// onlyStrong reports whether a paragraph consists of one bold span.
func onlyStrong(n ast.Node) bool {
	c := n.FirstChild()
	if c == nil || c.NextSibling() != nil {
		return false
	}
	e, ok := c.(*ast.Emphasis)
	return ok && e.Level == 2
}

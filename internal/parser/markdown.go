package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/dgallion1/docgate/internal/doctree"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. ATX and setext
// headings become "Heading N" paragraphs; a paragraph made only of strong
// emphasis is bold.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	md := goldmark.New()
	root := md.Parser().Parse(text.NewReader(src))

	doc := newDocument(filename)
	var collect func(n ast.Node)
	collect = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch node := c.(type) {
			case *ast.Heading:
				doc.Paragraphs = append(doc.Paragraphs,
					paragraph(extractText(node, src), headingStyle(node.Level), true, nil))
			case *ast.Paragraph, *ast.TextBlock:
				if t := extractText(node, src); t != "" {
					doc.Paragraphs = append(doc.Paragraphs, paragraph(t, "", strongOnly(node), nil))
				}
			case *ast.FencedCodeBlock, *ast.CodeBlock:
				if t := extractText(node, src); t != "" {
					doc.Paragraphs = append(doc.Paragraphs, paragraph(t, "", false, nil))
				}
			case *ast.List, *ast.ListItem, *ast.Blockquote:
				collect(node)
			}
		}
	}
	collect(root)
	return doc, nil
}

// strongOnly reports whether every non-blank inline of a block is strong
// emphasis.
func strongOnly(n ast.Node) bool {
	seen := false
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if e, ok := c.(*ast.Emphasis); ok && e.Level == 2 {
			seen = true
			continue
		}
		if t, ok := c.(*ast.Text); ok && t.Segment.Len() == 0 {
			continue
		}
		return false
	}
	return seen
}

// extractText gets the text content of a goldmark AST node.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	if n.Type() == ast.TypeBlock && !n.HasChildren() {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	// Also handle inline children.
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Segment.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			// Recurse for nested inlines.
			buf.WriteString(extractText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}

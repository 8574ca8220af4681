package parser

import (
	"fmt"
	"io"
	"strings"

	"github.com/dgallion1/docgate/internal/doctree"
	"golang.org/x/net/html"
)

// HTMLParser handles HTML files. h1 to h6 become "Heading N" paragraphs;
// block elements whose only content is b or strong are bold.
type HTMLParser struct{}

func (p *HTMLParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc := newDocument(filename)
	// Extract title from <title> tag if present.
	if title := findTitle(root); title != "" {
		doc.Title = title
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			// Loose text directly inside div or body.
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				doc.Paragraphs = append(doc.Paragraphs, paragraph(t, "", false, nil))
			}
			return
		}
		if n.Type == html.ElementNode {
			if level := headingLevel(n.Data); level > 0 {
				if t := textContent(n); t != "" {
					doc.Paragraphs = append(doc.Paragraphs, paragraph(t, headingStyle(level), true, nil))
				}
				return
			}

			// Skip non-content elements.
			switch n.Data {
			case "script", "style", "nav", "footer", "header", "head":
				return
			case "p", "li", "td", "th", "dt", "dd", "pre":
				if t := textContent(n); t != "" {
					doc.Paragraphs = append(doc.Paragraphs, paragraph(t, "", boldOnly(n), nil))
				}
				return
			case "b", "strong":
				if t := textContent(n); t != "" {
					doc.Paragraphs = append(doc.Paragraphs, paragraph(t, "", true, nil))
				}
				return
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	// Find <body> or use whole document.
	if body := findBody(root); body != nil {
		walk(body)
	} else {
		walk(root)
	}
	return doc, nil
}

func headingLevel(tag string) int {
	switch tag {
	case "h1":
		return 1
	case "h2":
		return 2
	case "h3":
		return 3
	case "h4":
		return 4
	case "h5":
		return 5
	case "h6":
		return 6
	}
	return 0
}

func textContent(n *html.Node) string {
	var buf strings.Builder
	var extract func(*html.Node)
	extract = func(n *html.Node) {
		switch {
		case n.Type == html.TextNode:
			buf.WriteString(n.Data)
		case n.Type == html.ElementNode && n.Data == "br":
			buf.WriteByte('\n')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			extract(c)
		}
	}
	extract(n)

	lines := strings.Split(buf.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.Join(strings.Fields(l), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// boldOnly reports whether all visible text of n sits inside b or strong.
func boldOnly(n *html.Node) bool {
	seen := false
	ok := true
	var check func(*html.Node, bool)
	check = func(n *html.Node, inBold bool) {
		if n.Type == html.ElementNode && (n.Data == "b" || n.Data == "strong") {
			inBold = true
		}
		if n.Type == html.TextNode && strings.TrimSpace(n.Data) != "" {
			if inBold {
				seen = true
			} else {
				ok = false
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			check(c, inBold)
		}
	}
	check(n, false)
	return ok && seen
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" {
		return textContent(n)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

func findBody(n *html.Node) *html.Node {
	if n.Type == html.ElementNode && n.Data == "body" {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if b := findBody(c); b != nil {
			return b
		}
	}
	return nil
}

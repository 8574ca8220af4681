package parser

import (
	"bufio"
	"io"
	"strings"

	"github.com/dgallion1/docgate/internal/doctree"
)

// TextParser handles plain text files. Every non-empty line is a
// paragraph, so upper-case or numbered title lines stay on their own.
type TextParser struct{}

func (p *TextParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	doc := newDocument(filename)
	paras, err := textParagraphs(r)
	if err != nil {
		return nil, err
	}
	doc.Paragraphs = paras
	return doc, nil
}

func textParagraphs(r io.Reader) ([]doctree.Paragraph, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var out []doctree.Paragraph
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), "\ufeff"))
		if line == "" {
			continue
		}
		out = append(out, paragraph(line, "", false, nil))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

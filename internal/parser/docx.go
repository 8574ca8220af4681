package parser

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/dgallion1/docgate/internal/doctree"
	"github.com/fumiama/go-docx"
)

// DOCXParser handles .docx files. Body paragraphs and table cell
// paragraphs are emitted in document order with their style id, boldness
// and font size.
type DOCXParser struct{}

func (p *DOCXParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	// go-docx needs a ReadSeeker+size, so write to temp file.
	tmp, err := os.CreateTemp("", "docgate-docx-*.docx")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("seek temp file: %w", err)
	}

	d, err := docx.Parse(tmp, size)
	tmp.Close()
	if err != nil {
		return nil, fmt.Errorf("parse docx: %w", err)
	}

	doc := newDocument(filename)
	for _, item := range d.Document.Body.Items {
		switch it := item.(type) {
		case *docx.Paragraph:
			appendDocxParagraph(doc, it)
		case *docx.Table:
			appendDocxTable(doc, it)
		}
	}
	return doc, nil
}

func appendDocxParagraph(doc *doctree.Document, para *docx.Paragraph) {
	text := docxParagraphText(para)
	if text == "" {
		return
	}
	bold, size := docxRunFormat(para)
	doc.Paragraphs = append(doc.Paragraphs, paragraph(text, docxStyle(para), bold, size))
}

func appendDocxTable(doc *doctree.Document, tbl *docx.Table) {
	for _, row := range tbl.TableRows {
		for _, cell := range row.TableCells {
			for _, para := range cell.Paragraphs {
				appendDocxParagraph(doc, para)
			}
		}
	}
}

func docxStyle(para *docx.Paragraph) string {
	if para.Properties == nil || para.Properties.Style == nil {
		return ""
	}
	return para.Properties.Style.Val
}

// docxRunFormat reports whether every run carrying text is bold, and the
// font size of the first sized run. w:sz is in half-points.
func docxRunFormat(para *docx.Paragraph) (bool, *float64) {
	var (
		size  *float64
		runs  int
		bolds int
	)
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok || strings.TrimSpace(docxRunText(run)) == "" {
			continue
		}
		runs++
		rp := run.RunProperties
		if rp == nil {
			continue
		}
		if rp.Bold != nil {
			bolds++
		}
		if size == nil && rp.Size != nil {
			if half, err := strconv.ParseFloat(rp.Size.Val, 64); err == nil {
				size = doctree.FontSize(half / 2)
			}
		}
	}
	return runs > 0 && bolds == runs, size
}

func docxParagraphText(para *docx.Paragraph) string {
	var buf strings.Builder
	for _, child := range para.Children {
		if run, ok := child.(*docx.Run); ok {
			buf.WriteString(docxRunText(run))
		}
	}
	return strings.TrimSpace(buf.String())
}

func docxRunText(run *docx.Run) string {
	var buf strings.Builder
	for _, rc := range run.Children {
		if t, ok := rc.(*docx.Text); ok {
			buf.WriteString(t.Text)
		}
	}
	return buf.String()
}

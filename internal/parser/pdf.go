package parser

import (
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strings"

	"github.com/dgallion1/docgate/internal/doctree"
	pdflib "github.com/ledongthuc/pdf"
)

// PDFParser handles PDF files. It reads text rows with their font through
// the Go library, then falls back to pdftotext if enabled.
type PDFParser struct {
	FallbackPdftotext bool
}

// pdfLine is one text row of a page.
type pdfLine struct {
	text string
	size float64
	bold bool
}

func (p *PDFParser) Parse(r io.Reader, filename string) (*doctree.Document, error) {
	// ledongthuc/pdf requires a ReadSeeker+size, so we write to a temp file.
	tmp, err := os.CreateTemp("", "docgate-pdf-*.pdf")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	doc := newDocument(filename)
	lines, err := extractPDFLines(tmpPath)
	if err == nil && len(lines) > 0 {
		doc.Paragraphs = groupPDFLines(lines)
		return doc, nil
	}
	if !p.FallbackPdftotext {
		if err == nil {
			return doc, nil
		}
		return nil, fmt.Errorf("extract pdf text: %w", err)
	}

	text, ferr := extractPdftotext(tmpPath)
	if ferr != nil {
		return nil, fmt.Errorf("extract pdf text: %w", ferr)
	}
	doc.Paragraphs, err = textParagraphs(strings.NewReader(strings.ReplaceAll(text, "\f", "\n")))
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func extractPDFLines(path string) ([]pdfLine, error) {
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []pdfLine
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue
		}
		for _, row := range rows {
			if l, ok := rowLine(row.Content); ok {
				lines = append(lines, l)
			}
		}
	}
	return lines, nil
}

// rowLine joins the glyph runs of a row, inserting a space where the
// horizontal gap is wider than a fraction of the font size.
func rowLine(texts pdflib.TextHorizontal) (pdfLine, bool) {
	var (
		buf         strings.Builder
		l           pdfLine
		end         float64
		runs, bolds int
	)
	for i, t := range texts {
		if i > 0 && t.X-end > t.FontSize*0.2 {
			buf.WriteByte(' ')
		}
		buf.WriteString(t.S)
		end = t.X + t.W
		if strings.TrimSpace(t.S) == "" {
			continue
		}
		runs++
		if strings.Contains(strings.ToLower(t.Font), "bold") {
			bolds++
		}
		l.size = math.Max(l.size, t.FontSize)
	}
	l.text = strings.Join(strings.Fields(buf.String()), " ")
	l.bold = runs > 0 && bolds == runs
	return l, l.text != ""
}

// groupPDFLines rebuilds paragraphs from rows. Bold rows stand alone; a
// plain row continues the previous one when the font size matches and the
// previous row does not end a sentence.
func groupPDFLines(lines []pdfLine) []doctree.Paragraph {
	var (
		out  []doctree.Paragraph
		cur  []string
		prev pdfLine
	)
	flush := func() {
		if len(cur) > 0 {
			out = append(out, paragraph(strings.Join(cur, " "), "", prev.bold, pdfSize(prev.size)))
			cur = nil
		}
	}
	for _, l := range lines {
		continues := len(cur) > 0 &&
			!l.bold && !prev.bold &&
			math.Abs(l.size-prev.size) < 0.5 &&
			!strings.HasSuffix(prev.text, ".") && !strings.HasSuffix(prev.text, ":") &&
			!doctree.IsUpper(l.text) && !doctree.IsUpper(prev.text)
		if !continues {
			flush()
		}
		cur = append(cur, l.text)
		prev = l
	}
	flush()
	return out
}

func pdfSize(pt float64) *float64 {
	if pt <= 0 {
		return nil
	}
	return doctree.FontSize(math.Round(pt*10) / 10)
}

func extractPdftotext(path string) (string, error) {
	cmd := exec.Command("pdftotext", "-layout", path, "-")
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext: %w", err)
	}
	return string(out), nil
}

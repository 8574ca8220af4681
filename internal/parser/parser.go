package parser

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dgallion1/docgate/internal/doctree"
	"github.com/dgallion1/docgate/internal/textutil"
)

// Parser converts raw document bytes into a paragraph stream.
type Parser interface {
	Parse(r io.Reader, filename string) (*doctree.Document, error)
}

// Options tune the readers that have optional behavior.
type Options struct {
	// PDFFallbackPdftotext shells out to pdftotext when the Go PDF reader fails.
	PDFFallbackPdftotext bool
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string, opts Options) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: opts.PDFFallbackPdftotext}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

// ParseFile opens path and parses it with the reader for its extension.
func ParseFile(path string, opts Options) (*doctree.Document, error) {
	p, err := ForFile(path, opts)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := p.Parse(f, filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// newDocument starts a document titled after the file name.
func newDocument(filename string) *doctree.Document {
	return &doctree.Document{
		Title:  strings.TrimSuffix(filename, filepath.Ext(filename)),
		Source: filename,
	}
}

// paragraph fills the formatting fields every reader derives the same way.
func paragraph(text, style string, bold bool, size *float64) doctree.Paragraph {
	text = strings.TrimSpace(text)
	return doctree.Paragraph{
		Text:            text,
		StyleName:       style,
		IsBold:          bold,
		FontSize:        size,
		IsAllCaps:       doctree.IsUpper(text),
		NumberingPrefix: textutil.NumberingPrefix(text),
	}
}

func headingStyle(level int) string {
	return fmt.Sprintf("Heading %d", level)
}

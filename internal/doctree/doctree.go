package doctree

import (
	"strings"
	"unicode"
)

// Paragraph is one block of text as produced by a document reader.
type Paragraph struct {
	Text            string   `json:"text"`
	StyleName       string   `json:"style_name,omitempty"`
	IsBold          bool     `json:"is_bold,omitempty"`
	FontSize        *float64 `json:"font_size,omitempty"` // points, nil if unknown
	IsAllCaps       bool     `json:"is_all_caps,omitempty"`
	NumberingPrefix string   `json:"numbering_prefix,omitempty"`
}

// Document is the ordered paragraph stream of a parsed file.
type Document struct {
	Title      string      `json:"title"`  // From metadata or filename
	Source     string      `json:"source"` // Original filename
	Paragraphs []Paragraph `json:"paragraphs"`
}

// Text joins all paragraph text with newlines. Used for content hashing.
func (d *Document) Text() string {
	var sb strings.Builder
	for i, p := range d.Paragraphs {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// FontSize is a convenience for building a *float64 size.
func FontSize(pt float64) *float64 {
	return &pt
}

// IsUpper reports whether s has at least one letter and no lower-case letters.
func IsUpper(s string) bool {
	letters := 0
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters > 0
}

package parser

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fumiama/go-docx"
)

func TestForFile(t *testing.T) {
	tests := []struct {
		filename string
		wantErr  bool
	}{
		{"bilan.txt", false},
		{"bilan.MD", false},
		{"bilan.markdown", false},
		{"bilan.htm", false},
		{"bilan.html", false},
		{"bilan.pdf", false},
		{"bilan.docx", false},
		{"bilan.csv", true},
		{"bilan", true},
	}
	for _, tt := range tests {
		_, err := ForFile(tt.filename, Options{})
		if (err != nil) != tt.wantErr {
			t.Errorf("ForFile(%q): wantErr=%v, got %v", tt.filename, tt.wantErr, err)
		}
		if IsSupportedExtension(tt.filename) == tt.wantErr {
			t.Errorf("IsSupportedExtension(%q) disagrees with ForFile", tt.filename)
		}
	}
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dossier.txt")
	if err := os.WriteFile(path, []byte("CONCLUSION\nApte.\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := ParseFile(path, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Source != "dossier.txt" {
		t.Errorf("expected source %q, got %q", "dossier.txt", doc.Source)
	}
	if len(doc.Paragraphs) != 2 {
		t.Errorf("expected 2 paragraphs, got %d", len(doc.Paragraphs))
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.txt"), Options{}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestHTMLParser(t *testing.T) {
	input := `<html><head><title>Bilan</title><style>p{}</style></head><body>
<h2>Identité</h2>
<p>Madame Anne MARTIN</p>
<p><strong>Tests</strong></p>
<ul><li>Logique</li><li>Mémoire</li></ul>
<div>Texte libre</div>
<p>Ligne un<br>Ligne deux</p>
<script>var x = 1;</script>
</body></html>`

	p := &HTMLParser{}
	doc, err := p.Parse(strings.NewReader(input), "bilan.html")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "Bilan" {
		t.Errorf("expected title %q, got %q", "Bilan", doc.Title)
	}

	want := []struct {
		text  string
		style string
		bold  bool
	}{
		{"Identité", "Heading 2", true},
		{"Madame Anne MARTIN", "", false},
		{"Tests", "", true},
		{"Logique", "", false},
		{"Mémoire", "", false},
		{"Texte libre", "", false},
		{"Ligne un\nLigne deux", "", false},
	}
	if len(doc.Paragraphs) != len(want) {
		t.Fatalf("expected %d paragraphs, got %d: %+v", len(want), len(doc.Paragraphs), doc.Paragraphs)
	}
	for i, w := range want {
		got := doc.Paragraphs[i]
		if got.Text != w.text || got.StyleName != w.style || got.IsBold != w.bold {
			t.Errorf("paragraph[%d]: expected {%q %q %v}, got {%q %q %v}",
				i, w.text, w.style, w.bold, got.Text, got.StyleName, got.IsBold)
		}
	}
}

func TestGroupPDFLines(t *testing.T) {
	lines := []pdfLine{
		{text: "IDENTITÉ", size: 14, bold: true},
		{text: "Monsieur Paul ROCHAT", size: 11},
		{text: "né en 1990.", size: 11},
		{text: "Profession", size: 11, bold: true},
		{text: "Menuisier depuis", size: 11},
		{text: "dix ans.", size: 11},
		{text: "Suite du texte", size: 11},
		{text: "en petit", size: 8},
	}
	got := groupPDFLines(lines)

	want := []string{
		"IDENTITÉ",
		"Monsieur Paul ROCHAT né en 1990.",
		"Profession",
		"Menuisier depuis dix ans.",
		"Suite du texte",
		"en petit",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d paragraphs, got %d: %+v", len(want), len(got), got)
	}
	for i, w := range want {
		if got[i].Text != w {
			t.Errorf("paragraph[%d]: expected %q, got %q", i, w, got[i].Text)
		}
	}
	if !got[0].IsBold || got[0].FontSize == nil || *got[0].FontSize != 14 {
		t.Errorf("expected bold 14pt heading, got %+v", got[0])
	}
	if got[1].IsBold {
		t.Errorf("body paragraph flagged bold")
	}
}

func TestPdfSize(t *testing.T) {
	if pdfSize(0) != nil {
		t.Error("expected nil size for zero")
	}
	if s := pdfSize(11.04); s == nil || *s != 11 {
		t.Errorf("expected 11, got %v", s)
	}
}

func TestDOCXParser(t *testing.T) {
	w := docx.New().WithDefaultTheme()
	w.AddParagraph().AddText("CONCLUSION").Bold().Size("28")
	w.AddParagraph().AddText("Orientation vers un CFC.")
	w.AddParagraph()

	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		t.Fatalf("write docx: %v", err)
	}

	p := &DOCXParser{}
	doc, err := p.Parse(&buf, "bilan.docx")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Title != "bilan" {
		t.Errorf("expected title %q, got %q", "bilan", doc.Title)
	}
	if len(doc.Paragraphs) != 2 {
		t.Fatalf("expected 2 paragraphs (empty one dropped), got %d: %+v", len(doc.Paragraphs), doc.Paragraphs)
	}
	head := doc.Paragraphs[0]
	if head.Text != "CONCLUSION" || !head.IsBold || !head.IsAllCaps {
		t.Errorf("unexpected heading paragraph: %+v", head)
	}
	if head.FontSize == nil || *head.FontSize != 14 {
		t.Errorf("expected 14pt from half-point size 28, got %v", head.FontSize)
	}
	if doc.Paragraphs[1].IsBold {
		t.Errorf("body paragraph flagged bold")
	}
}

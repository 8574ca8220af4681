package segment

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docgate/internal/doctree"
	"github.com/dgallion1/docgate/internal/ruleset"
)

func defaultRuleset(t *testing.T) *ruleset.Ruleset {
	t.Helper()
	rs, err := ruleset.Default()
	require.NoError(t, err)
	return rs
}

func body(text string) doctree.Paragraph { return doctree.Paragraph{Text: text, StyleName: "Normal"} }

func TestClassifyWaterfall(t *testing.T) {
	rs := defaultRuleset(t)
	h := rs.Headings

	tests := []struct {
		name  string
		p     doctree.Paragraph
		by    Detection
		level int
		ok    bool
	}{
		{"style", doctree.Paragraph{Text: "Identité", StyleName: "Heading 2"}, ByStyle, 2, true},
		{"style id form", doctree.Paragraph{Text: "Conclusion", StyleName: "Titre1"}, ByStyle, 1, true},
		{"numbering", body("1.2 Tests psychotechniques"), ByPattern, 2, true},
		{"numbering prefix from reader", doctree.Paragraph{Text: "Tests", NumberingPrefix: "3."}, ByPattern, 1, true},
		{"all caps", body("CONCLUSION GENERALE"), ByPattern, 1, true},
		{"short caps", body("AVS"), "", 0, false},
		{"bold short", doctree.Paragraph{Text: "Profession actuelle", IsBold: true}, ByHeuristic, 2, true},
		{"bold sentence", doctree.Paragraph{Text: "Il a travaillé dix ans.", IsBold: true}, "", 0, false},
		{"bold long", doctree.Paragraph{Text: strings.Repeat("mot ", 16), IsBold: true}, "", 0, false},
		{"plain body", body("Monsieur a suivi le programme avec assiduité"), "", 0, false},
		{"numbered sentence", body("1. Il est arrivé en retard."), "", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			by, lvl, ok := Classify(tt.p, h)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.by, by)
			assert.Equal(t, tt.level, lvl)
		})
	}
}

func TestBuildGroupsBodyUnderHeadings(t *testing.T) {
	rs := defaultRuleset(t)
	paras := []doctree.Paragraph{
		{Text: "Identité", StyleName: "Heading 1"},
		body("M. Jean DUPONT - 756.1234.5678.97"),
		body(""),
		{Text: "Conclusion", StyleName: "Heading 1"},
		body("Première ligne"),
		body("Deuxième ligne"),
	}

	segs, warnings := Build(paras, rs)
	require.Len(t, segs, 2)
	assert.Empty(t, warnings)

	assert.Equal(t, "Identité", segs[0].RawTitle)
	assert.Equal(t, "identite", segs[0].NormalizedTitle)
	assert.Len(t, segs[0].Paragraphs, 1)

	assert.Equal(t, "conclusion", segs[1].NormalizedTitle)
	assert.Equal(t, "Première ligne\n\nDeuxième ligne", segs[1].Text())
}

func TestBuildPrefaceDrop(t *testing.T) {
	rs := defaultRuleset(t)
	paras := []doctree.Paragraph{
		body("Lausanne, le 3 mars"),
		{Text: "Identité", StyleName: "Heading 1"},
		body("texte"),
	}

	segs, warnings := Build(paras, rs)
	require.Len(t, segs, 1)
	assert.Len(t, segs[0].Paragraphs, 1)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "dropped")
}

func TestBuildPrefaceAttach(t *testing.T) {
	rs := defaultRuleset(t)
	rs.Headings.Preface = ruleset.PrefaceAttach
	paras := []doctree.Paragraph{
		body("Lausanne, le 3 mars"),
		{Text: "Identité", StyleName: "Heading 1"},
		body("texte"),
	}

	segs, warnings := Build(paras, rs)
	require.Len(t, segs, 1)
	require.Len(t, segs[0].Paragraphs, 2)
	assert.Equal(t, "Lausanne, le 3 mars", segs[0].Paragraphs[0].Text)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "attached")
}

func TestBuildWithoutHeadings(t *testing.T) {
	rs := defaultRuleset(t)
	segs, warnings := Build([]doctree.Paragraph{body("un"), body("deux")}, rs)

	require.Len(t, segs, 1)
	assert.Equal(t, ByPreface, segs[0].DetectedBy)
	assert.Equal(t, "", segs[0].RawTitle)
	assert.Len(t, segs[0].Paragraphs, 2)
	assert.Len(t, warnings, 1)
}

func TestBuildPreservesOrder(t *testing.T) {
	rs := defaultRuleset(t)
	var paras []doctree.Paragraph
	titles := []string{"Tests", "Vocation", "Conclusion", "Tests"}
	for _, title := range titles {
		paras = append(paras, doctree.Paragraph{Text: title, StyleName: "Heading 2"}, body(title+" body"))
	}

	segs, _ := Build(paras, rs)
	require.Len(t, segs, len(titles))
	for i, title := range titles {
		assert.Equal(t, title, segs[i].RawTitle)
		assert.Equal(t, title+" body", segs[i].Text())
	}
}

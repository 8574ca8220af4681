package normalize

import (
	"strings"

	"github.com/dgallion1/docgate/internal/record"
	"github.com/dgallion1/docgate/internal/ruleset"
	"github.com/dgallion1/docgate/internal/textutil"
)

// splitInline cuts text into the named sub-fields of a section. A label is
// recognized at the start of a line, either as the whole line or as the
// part before a colon. The heading title itself may name a field when the
// body carries no label.
func (n *normalizer) splitInline(path, text, title string, fields []ruleset.SplitField) record.Value {
	found, preamble := splitByLabels(text, fields)

	g := record.NewGroup()
	switch {
	case len(found) == len(fields):
		if preamble != "" {
			g.Set(record.RawKey, record.Text(preamble))
		}
		for _, f := range fields {
			g.Set(f.Field, record.Text(found[f.Field]))
		}

	case len(found) > 0:
		g.Set(record.RawKey, record.Text(text))
		var missing []string
		for _, f := range fields {
			g.Set(f.Field, record.Text(found[f.Field]))
			if _, ok := found[f.Field]; !ok {
				missing = append(missing, f.Field)
			}
		}
		n.warnf("Inline split incomplete for %s (missing: %s)", path, strings.Join(missing, ", "))

	default:
		if text == "" {
			return record.Text("")
		}
		if field := fieldForTitle(title, fields); field != "" {
			g.Set(field, record.Text(text))
			return g
		}
		g.Set(record.RawKey, record.Text(text))
		for _, f := range fields {
			g.Set(f.Field, record.Text(""))
		}
		n.warnf("Inline split failed for %s (expected: %s)", path, strings.Join(fieldNames(fields), ", "))
	}
	return g
}

// splitByLabels returns the text found under each field, plus whatever
// preceded the first label.
func splitByLabels(text string, fields []ruleset.SplitField) (map[string]string, string) {
	found := make(map[string]string)
	var (
		current  string
		preamble []string
		buf      []string
	)
	flush := func() {
		body := strings.TrimSpace(strings.Join(buf, "\n"))
		buf = buf[:0]
		if current == "" {
			if body != "" {
				preamble = append(preamble, body)
			}
			return
		}
		if prev, ok := found[current]; ok && prev != "" {
			if body != "" {
				found[current] = prev + "\n\n" + body
			}
			return
		}
		found[current] = body
	}

	for _, line := range strings.Split(text, "\n") {
		field, rest, ok := labelLine(line, fields)
		if !ok {
			buf = append(buf, line)
			continue
		}
		flush()
		current = field
		if rest != "" {
			buf = append(buf, rest)
		}
	}
	flush()
	return found, strings.Join(preamble, "\n\n")
}

// labelLine reports whether line opens a sub-field. It returns the field
// and the text after the label on the same line.
func labelLine(line string, fields []ruleset.SplitField) (string, string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", "", false
	}
	head, rest := trimmed, ""
	if i := strings.IndexAny(trimmed, ":："); i >= 0 {
		head = trimmed[:i]
		rest = strings.TrimSpace(strings.TrimLeft(trimmed[i:], ":："))
	}
	key := textutil.NormalizeTitle(head)
	if key == "" {
		return "", "", false
	}
	for _, f := range fields {
		for _, l := range f.Labels {
			if l == key {
				return f.Field, rest, true
			}
		}
	}
	return "", "", false
}

func fieldNames(fields []ruleset.SplitField) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Field
	}
	return out
}

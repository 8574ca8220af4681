package normalize

import (
	"regexp"
	"strings"

	"github.com/dgallion1/docgate/internal/record"
	"github.com/dgallion1/docgate/internal/ruleset"
	"github.com/dgallion1/docgate/internal/segment"
)

var (
	avsPattern = regexp.MustCompile(`756[\s.\-]?\d{4}[\s.\-]?\d{4}[\s.\-]?\d{2}`)

	// "M. Jean DUPONT - 756.1234.5678.97"
	nameBeforeAVS = regexp.MustCompile(`\b(?:Monsieur|Madame|Mme|M\.)\s+([^\n]+?)\s*[–—-]\s*756`)
	// "Madame Marie-Claire MARTIN"
	nameAlone = regexp.MustCompile(`\b(?:Monsieur|Madame|Mme|M\.)[ \t]+(\p{Lu}[\p{L}'’\-]*(?:[ \t]+\p{Lu}[\p{L}'’\-]*)+)`)
)

// Identity is what auto-extraction found in one segment.
type Identity struct {
	Name     string
	Surname  string
	AVS      string
	FullName string
}

func (id Identity) fields() map[string]string {
	return map[string]string{
		"name":      id.Name,
		"surname":   id.Surname,
		"avs":       id.AVS,
		"full_name": id.FullName,
	}
}

// ExtractIdentity scans text for an AVS number and a civil-title name.
// Anything not found is left empty.
func ExtractIdentity(text string) Identity {
	var id Identity
	if m := avsPattern.FindString(text); m != "" {
		id.AVS = formatAVS(m)
	}

	full := ""
	if m := nameBeforeAVS.FindStringSubmatch(text); m != nil {
		full = m[1]
	} else if m := nameAlone.FindStringSubmatch(text); m != nil {
		full = m[1]
	}
	words := strings.Fields(full)
	if len(words) == 0 {
		return id
	}
	id.FullName = strings.Join(words, " ")
	if len(words) == 1 {
		id.Surname = words[0]
		return id
	}
	id.Name = strings.Join(words[:len(words)-1], " ")
	id.Surname = words[len(words)-1]
	return id
}

// formatAVS rewrites a matched number as 756.XXXX.XXXX.XX.
func formatAVS(s string) string {
	var digits []byte
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) != 13 {
		return s
	}
	d := string(digits)
	return d[:3] + "." + d[3:7] + "." + d[7:11] + "." + d[11:]
}

func hasAVS(seg *segment.Segment) bool {
	return avsPattern.MatchString(seg.RawTitle) || avsPattern.MatchString(seg.Text())
}

// identityPrimary keeps the first segment carrying an AVS number, or the
// first segment when none does.
func identityPrimary(segs []*segment.Segment) *segment.Segment {
	for _, seg := range segs {
		if hasAVS(seg) {
			return seg
		}
	}
	return segs[0]
}

// placeIdentity fills the identity group from its primary segment. Other
// identity segments only complete fields the primary left empty.
func (n *normalizer) placeIdentity(rec *record.Group, s *ruleset.Section, segs []*segment.Segment) *segment.Segment {
	primary := identityPrimary(segs)

	parent, key := n.container(rec, s)
	v, _ := parent.Get(key)
	g, ok := v.(*record.Group)
	if !ok {
		g = record.NewGroup(ruleset.IdentityFields...)
		parent.Set(key, g)
	}

	fill := func(seg *segment.Segment, onlyEmpty bool) {
		id := ExtractIdentity(seg.RawTitle + "\n" + seg.Text())
		fields := id.fields()
		for _, f := range ruleset.IdentityFields {
			if fields[f] == "" {
				continue
			}
			if onlyEmpty && g.Text(f) != "" {
				continue
			}
			g.Set(f, record.Text(fields[f]))
		}
	}

	fill(primary, false)
	if text := primary.Text(); text != "" {
		set(g, record.RawKey, record.Text(text))
	}
	for _, seg := range segs {
		if seg == primary {
			continue
		}
		fill(seg, true)
		n.warnf("Duplicate identity segment %q: only empty identity fields were completed", seg.RawTitle)
	}
	return primary
}

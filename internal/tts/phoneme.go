package tts

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"log/slog"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/AmityCo/answercore/internal/fetchcache"
)

// Phoneme is one pronunciation rule from an organisation's phoneme table.
// Exactly one of Phoneme (IPA) or Sub (literal alias) is normally set.
type Phoneme struct {
	// Name is the surface text the rule matches.
	Name string `json:"name"`

	// Phoneme is an IPA transcription; matches are wrapped in the vendor's
	// phoneme element.
	Phoneme string `json:"phoneme,omitempty"`

	// Sub is a literal replacement; matches are wrapped in a sub element so
	// the vendor reads the alias instead.
	Sub string `json:"sub,omitempty"`
}

// ParsePhonemeTable decodes a JSON phoneme table.
func ParsePhonemeTable(data []byte) ([]Phoneme, error) {
	var rules []Phoneme
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("tts: parse phoneme table: %w", err)
	}
	return rules, nil
}

// LoadPhonemeTables fetches and merges the phoneme tables at urls (later
// tables win on duplicate names). Unreachable or malformed tables are logged
// and skipped so synthesis never fails on lexicon trouble.
func LoadPhonemeTables(ctx context.Context, fetcher *fetchcache.Fetcher, urls ...string) []Phoneme {
	byName := map[string]Phoneme{}
	order := []string{}
	for _, url := range urls {
		if url == "" {
			continue
		}
		body, err := fetcher.Fetch(ctx, url)
		if err != nil {
			slog.Warn("phoneme table fetch failed, skipping", "url", url, "error", err)
			continue
		}
		rules, err := ParsePhonemeTable(body)
		if err != nil {
			slog.Warn("phoneme table malformed, skipping", "url", url, "error", err)
			continue
		}
		for _, r := range rules {
			if r.Name == "" {
				continue
			}
			if _, seen := byName[r.Name]; !seen {
				order = append(order, r.Name)
			}
			byName[r.Name] = r
		}
	}

	merged := make([]Phoneme, 0, len(order))
	for _, name := range order {
		merged = append(merged, byName[name])
	}
	return merged
}

// Transformer applies phoneme rules to text fragments, producing
// vendor-markup output ready for SSML embedding. It is immutable after
// construction and safe for concurrent use.
type Transformer struct {
	// rules sorted longest name first, so overlapping names resolve to the
	// most specific rule.
	rules []Phoneme
}

// NewTransformer builds a transformer from rules. Rules with empty names or
// with neither a phoneme nor a substitute are dropped.
func NewTransformer(rules []Phoneme) *Transformer {
	kept := make([]Phoneme, 0, len(rules))
	for _, r := range rules {
		if r.Name != "" && (r.Phoneme != "" || r.Sub != "") {
			kept = append(kept, r)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool {
		return len(kept[i].Name) > len(kept[j].Name)
	})
	return &Transformer{rules: kept}
}

// Apply transforms a plain-text fragment: bracketed asides and control
// characters are stripped, matches are replaced left to right without
// overlap, and all plain spans are XML-escaped. The output is safe to embed
// in SSML verbatim.
func (t *Transformer) Apply(text string) string {
	cleaned := stripAsides(text)
	cleaned = stripControl(cleaned)

	var b strings.Builder
	i := 0
	for i < len(cleaned) {
		rule, ok := t.matchAt(cleaned, i)
		if !ok {
			// Advance one rune, escaping as we go.
			r, size := utf8.DecodeRuneInString(cleaned[i:])
			b.WriteString(html.EscapeString(string(r)))
			i += size
			continue
		}
		writeRule(&b, rule)
		i += len(rule.Name)
	}
	return b.String()
}

// matchAt returns the first rule matching cleaned at offset i. Matches must
// align to word boundaries so "art" never fires inside "start".
func (t *Transformer) matchAt(s string, i int) (Phoneme, bool) {
	for _, rule := range t.rules {
		end := i + len(rule.Name)
		if end > len(s) || s[i:end] != rule.Name {
			continue
		}
		if !boundaryBefore(s, i) || !boundaryAfter(s, end) {
			continue
		}
		return rule, true
	}
	return Phoneme{}, false
}

// writeRule emits the vendor markup for one matched rule.
func writeRule(b *strings.Builder, rule Phoneme) {
	name := html.EscapeString(rule.Name)
	switch {
	case rule.Sub != "":
		b.WriteString(`<sub alias="`)
		b.WriteString(html.EscapeString(rule.Sub))
		b.WriteString(`">`)
		b.WriteString(name)
		b.WriteString(`</sub>`)
	case rule.Phoneme != "":
		b.WriteString(`<phoneme alphabet="ipa" ph="`)
		b.WriteString(html.EscapeString(rule.Phoneme))
		b.WriteString(`">`)
		b.WriteString(name)
		b.WriteString(`</phoneme>`)
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(s[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

func boundaryAfter(s string, end int) bool {
	if end == len(s) {
		return true
	}
	r, _ := utf8.DecodeRuneInString(s[end:])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// stripAsides removes bracketed asides like [laughs] from the fragment.
func stripAsides(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch {
		case r == '[':
			depth++
		case r == ']' && depth > 0:
			depth--
		case depth == 0:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// stripControl drops control characters that the vendor rejects, keeping
// ordinary whitespace.
func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

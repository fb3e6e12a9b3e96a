package markdown

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// slugger hands out heading ids, suffixing repeats with -1, -2 and so on.
type slugger struct {
	seen  map[string]int
	lower cases.Caser
}

func newSlugger() *slugger {
	return &slugger{
		seen:  make(map[string]int),
		lower: cases.Lower(language.Und),
	}
}

func (s *slugger) slug(text string) string {
	base := slugify(s.lower.String(text))
	n, ok := s.seen[base]
	s.seen[base] = n + 1
	if !ok {
		return base
	}
	for {
		candidate := base + "-" + strconv.Itoa(n)
		if _, taken := s.seen[candidate]; !taken {
			s.seen[candidate] = 1
			return candidate
		}
		n++
		s.seen[base] = n + 1
	}
}

func slugify(text string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, text)
	if err != nil {
		folded = text
	}

	var b strings.Builder
	dash := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if r == '_' || r == '-' || unicode.IsSpace(r) {
			if !dash && b.Len() > 0 {
				b.WriteByte('-')
				dash = true
			}
		}
	}

	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "section"
	}
	return out
}

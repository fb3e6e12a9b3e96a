package markdown

import (
	"regexp"
	"strings"

	"github.com/conneroisu/burrow/internal/compiler"
)

const (
	// exprMark prefixes an attribute value that was written as {expr}.
	exprMark = "\uE000"
	// quoteMark stands in for a double quote inside a rewritten expression.
	quoteMark = "\uE001"
)

var (
	attrExprStart = regexp.MustCompile(`([A-Za-z_:][A-Za-z0-9_:.\-]*)=\{`)
	attrExprBack  = regexp.MustCompile(`="` + exprMark + `([^"]*)"`)
)

// document is the source split into the parts the backend handles itself.
type document struct {
	body        string
	frontmatter *compiler.RawFrontmatter
	statements  []statement
}

// statement is one import or export, with its 1-based starting line.
type statement struct {
	text string
	line int
}

// preprocess splits front-matter and ESM statements out of source and
// rewrites JSX attribute expressions so goldmark sees well-formed HTML.
// Removed lines are blanked rather than deleted so line numbers survive.
func preprocess(source string) document {
	source = strings.TrimPrefix(source, "\uFEFF")
	source = strings.ReplaceAll(source, "\r\n", "\n")
	lines := strings.Split(source, "\n")

	var doc document
	doc.frontmatter = splitFrontmatter(lines)

	var fence string
	for i := 0; i < len(lines); i++ {
		line := lines[i]

		if marker, ok := fenceMarker(line); ok {
			switch {
			case fence == "":
				fence = marker
			case strings.HasPrefix(marker, fence) && strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), string(fence[0]))) == "":
				fence = ""
			}
			continue
		}
		if fence != "" {
			continue
		}

		if isESMStart(line) {
			start := i
			depth := braceDelta(line)
			text := line
			for depth > 0 && i+1 < len(lines) {
				i++
				text += "\n" + lines[i]
				depth += braceDelta(lines[i])
			}
			doc.statements = append(doc.statements, statement{text: strings.TrimSpace(text), line: start + 1})
			for j := start; j <= i; j++ {
				lines[j] = ""
			}
			continue
		}

		lines[i] = rewriteAttrExprs(line)
	}

	doc.body = strings.Join(lines, "\n")
	return doc
}

// splitFrontmatter recognises a leading --- (YAML) or +++ (TOML) block and
// blanks it in place.
func splitFrontmatter(lines []string) *compiler.RawFrontmatter {
	if len(lines) == 0 {
		return nil
	}

	var format compiler.FrontmatterFormat
	delim := strings.TrimRight(lines[0], " \t")
	switch delim {
	case "---":
		format = compiler.FormatYAML
	case "+++":
		format = compiler.FormatTOML
	default:
		return nil
	}

	for end := 1; end < len(lines); end++ {
		if strings.TrimRight(lines[end], " \t") != delim {
			continue
		}
		raw := strings.Join(lines[1:end], "\n")
		for j := 0; j <= end; j++ {
			lines[j] = ""
		}
		return &compiler.RawFrontmatter{Raw: raw, Format: format}
	}
	return nil
}

func fenceMarker(line string) (string, bool) {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return "", false
	}
	for _, c := range []string{"```", "~~~"} {
		if strings.HasPrefix(trimmed, c) {
			n := len(trimmed) - len(strings.TrimLeft(trimmed, c[:1]))
			return strings.Repeat(c[:1], n), true
		}
	}
	return "", false
}

func isESMStart(line string) bool {
	for _, kw := range []string{"import", "export"} {
		if !strings.HasPrefix(line, kw) {
			continue
		}
		rest := line[len(kw):]
		if rest == "" {
			return false
		}
		switch rest[0] {
		case ' ', '\t', '{', '*', '\'', '"':
			return true
		}
	}
	return false
}

func braceDelta(line string) int {
	return strings.Count(line, "{") - strings.Count(line, "}")
}

// rewriteAttrExprs turns name={expr} into name="<mark>expr" so the HTML
// scanner accepts expressions that contain spaces or quotes.
func rewriteAttrExprs(line string) string {
	if !strings.Contains(line, "={") {
		return line
	}

	var b strings.Builder
	rest := line
	for {
		loc := attrExprStart.FindStringSubmatchIndex(rest)
		if loc == nil {
			b.WriteString(rest)
			break
		}
		open := loc[1] - 1
		end := matchBrace(rest, open)
		if end < 0 {
			b.WriteString(rest)
			break
		}
		b.WriteString(rest[:loc[0]])
		b.WriteString(rest[loc[2]:loc[3]])
		b.WriteString(`="`)
		b.WriteString(exprMark)
		b.WriteString(strings.ReplaceAll(rest[open+1:end], `"`, quoteMark))
		b.WriteString(`"`)
		rest = rest[end+1:]
	}
	return b.String()
}

// matchBrace returns the index of the brace closing the one at open, or -1.
func matchBrace(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// restoreAttrExprs undoes rewriteAttrExprs inside code, where the original
// text must be shown verbatim.
func restoreAttrExprs(s string) string {
	if !strings.Contains(s, exprMark) {
		return s
	}
	s = attrExprBack.ReplaceAllString(s, "={$1}")
	return strings.ReplaceAll(s, quoteMark, `"`)
}

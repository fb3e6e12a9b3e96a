package markdown

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/conneroisu/burrow/internal/errors"
	"github.com/conneroisu/burrow/internal/ir"
)

const identExpr = `[A-Za-z_$][A-Za-z0-9_$]*`

var (
	importFrom       = regexp.MustCompile(`(?s)^import\s+(.+?)\s+from\s*(?:'([^']*)'|"([^"]*)")\s*;?$`)
	importBare       = regexp.MustCompile(`^import\s*(?:'([^']*)'|"([^"]*)")\s*;?$`)
	importNearMiss   = regexp.MustCompile(`(?s)^import\s+.+?\s(` + identExpr + `)\s*['"]`)
	exportDecl       = regexp.MustCompile(`(?s)^export\s+(?:const|let|var)\s+(` + identExpr + `)\s*=\s*(.+?)\s*;?$`)
	exportDefault    = regexp.MustCompile(`^export\s+default\s+(` + identExpr + `(?:\.` + identExpr + `)*)\s*;?$`)
	exportNamedFrom  = regexp.MustCompile(`(?s)^export\s*\{([^}]*)\}\s*from\s*(?:'([^']*)'|"([^"]*)")\s*;?$`)
	exportStarFrom   = regexp.MustCompile(`^export\s*\*\s*(?:as\s+(` + identExpr + `)\s+)?from\s*(?:'([^']*)'|"([^"]*)")\s*;?$`)
	exportNamedLocal = regexp.MustCompile(`(?s)^export\s*\{([^}]*)\}\s*;?$`)
	namespaceClause  = regexp.MustCompile(`^\*\s*as\s+(` + identExpr + `)$`)
)

// module collects the declarations found in a document's ESM statements.
type module struct {
	imports   []ir.Import
	exports   []ir.Export
	reexports []ir.Reexport
	layout    string
}

func (m *module) hasExport(name string) bool {
	for _, e := range m.exports {
		if e.Name == name {
			return true
		}
	}
	return false
}

func (m *module) addExport(e ir.Export, st statement) error {
	if m.hasExport(e.Name) {
		return esmError(st, fmt.Sprintf("duplicate export %q", e.Name), "")
	}
	m.exports = append(m.exports, e)
	return nil
}

func parseStatements(statements []statement) (*module, error) {
	m := &module{}
	for _, st := range statements {
		var err error
		if strings.HasPrefix(st.text, "import") {
			err = m.parseImport(st)
		} else {
			err = m.parseExport(st)
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *module) parseImport(st statement) error {
	if match := importBare.FindStringSubmatch(st.text); match != nil {
		m.imports = append(m.imports, ir.Import{Source: first(match[1], match[2])})
		return nil
	}

	match := importFrom.FindStringSubmatch(st.text)
	if match == nil {
		if near := importNearMiss.FindStringSubmatchIndex(st.text); near != nil {
			word := st.text[near[2]:near[3]]
			if word != "from" && editDistance(word, "from") <= 2 {
				err := esmError(st, fmt.Sprintf("unexpected identifier %q in import statement", word), "did you mean 'from'?")
				err.Column = near[2] + 1
				return err
			}
		}
		return esmError(st, "could not parse import statement", "imports look like: import { Name } from './module'")
	}

	imp := ir.Import{Source: first(match[2], match[3])}
	clause := strings.TrimSpace(match[1])

	if open := strings.Index(clause, "{"); open >= 0 {
		close := strings.LastIndex(clause, "}")
		if close < open {
			return esmError(st, "unbalanced braces in import statement", "")
		}
		names, err := specifiers(clause[open+1:close], st)
		if err != nil {
			return err
		}
		for _, n := range names {
			imp.Names = append(imp.Names, n.local)
			if n.exported != n.local {
				if imp.Aliases == nil {
					imp.Aliases = map[string]string{}
				}
				imp.Aliases[n.local] = n.exported
			}
		}
		clause = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(clause[:open]), ","))
	}

	for _, part := range strings.Split(clause, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "":
		case namespaceClause.MatchString(part):
			imp.Namespace = namespaceClause.FindStringSubmatch(part)[1]
		case ir.IsIdentifier(part):
			imp.Default = part
		default:
			return esmError(st, fmt.Sprintf("unexpected %q in import statement", part), "")
		}
	}

	m.imports = append(m.imports, imp)
	return nil
}

func (m *module) parseExport(st statement) error {
	if match := exportDecl.FindStringSubmatch(st.text); match != nil {
		value, err := exportValue(match[2])
		if err != nil {
			return esmError(st, fmt.Sprintf("export %s: %v", match[1], err), "exported values must be literals or references to bindings")
		}
		return m.addExport(ir.Export{Name: match[1], Value: value}, st)
	}

	if match := exportDefault.FindStringSubmatch(st.text); match != nil {
		if m.layout != "" {
			return esmError(st, "duplicate default export", "")
		}
		m.layout = match[1]
		return nil
	}

	if match := exportNamedFrom.FindStringSubmatch(st.text); match != nil {
		names, err := specifiers(match[1], st)
		if err != nil {
			return err
		}
		re := ir.Reexport{Source: first(match[2], match[3])}
		for _, n := range names {
			re.Names = append(re.Names, n.exported)
		}
		m.reexports = append(m.reexports, re)
		return nil
	}

	if match := exportStarFrom.FindStringSubmatch(st.text); match != nil {
		re := ir.Reexport{Source: first(match[2], match[3])}
		if match[1] != "" {
			re.Names = []string{match[1]}
		}
		m.reexports = append(m.reexports, re)
		return nil
	}

	if match := exportNamedLocal.FindStringSubmatch(st.text); match != nil {
		names, err := specifiers(match[1], st)
		if err != nil {
			return err
		}
		for _, n := range names {
			if err := m.addExport(ir.Export{Name: n.exported, Value: ir.Ref(n.local)}, st); err != nil {
				return err
			}
		}
		return nil
	}

	if strings.HasPrefix(st.text, "export default") {
		return esmError(st, "unsupported default export", "export default must name a layout component, e.g. export default Layout")
	}
	return esmError(st, "could not parse export statement", "")
}

// specifier is one entry of a braced list. For imports, exported is the
// name in the source module.
type specifier struct {
	local    string
	exported string
}

// specifiers parses "a, b as c" lists.
func specifiers(list string, st statement) ([]specifier, error) {
	var out []specifier
	for _, part := range strings.Split(list, ",") {
		fields := strings.Fields(part)
		switch {
		case len(fields) == 0:
			continue
		case len(fields) == 1 && ir.IsIdentifier(fields[0]):
			out = append(out, specifier{local: fields[0], exported: fields[0]})
		case len(fields) == 3 && fields[1] == "as" && ir.IsIdentifier(fields[0]) && ir.IsIdentifier(fields[2]):
			if strings.HasPrefix(st.text, "export") {
				out = append(out, specifier{local: fields[0], exported: fields[2]})
			} else {
				out = append(out, specifier{local: fields[2], exported: fields[0]})
			}
		default:
			return nil, esmError(st, fmt.Sprintf("unexpected %q in specifier list", strings.TrimSpace(part)), "")
		}
	}
	return out, nil
}

// exportValue converts the right-hand side of an export declaration.
func exportValue(expr string) (ir.Value, error) {
	expr = strings.TrimSpace(expr)

	if s, ok := quotedString(expr); ok {
		return ir.Lit(s), nil
	}
	if json.Valid([]byte(expr)) {
		return ir.Value{Literal: json.RawMessage(expr)}, nil
	}
	if ir.IsPath(expr) && expr != "undefined" {
		return ir.Ref(expr), nil
	}
	return ir.Value{}, fmt.Errorf("unsupported expression %q", truncate(expr, 40))
}

// quotedString decodes a single-quoted or template string without
// substitutions.
func quotedString(expr string) (string, bool) {
	if len(expr) < 2 {
		return "", false
	}
	q := expr[0]
	if (q != '\'' && q != '`') || expr[len(expr)-1] != q {
		return "", false
	}
	body := expr[1 : len(expr)-1]
	if q == '`' && strings.Contains(body, "${") {
		return "", false
	}

	var b strings.Builder
	for i := 0; i < len(body); i++ {
		c := body[i]
		if c == '\\' && i+1 < len(body) {
			i++
			switch body[i] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				b.WriteByte(body[i])
			}
			continue
		}
		if c == q {
			return "", false
		}
		b.WriteByte(c)
	}
	return b.String(), true
}

func esmError(st statement, msg, suggestion string) *errors.CompileError {
	return &errors.CompileError{
		Message:    msg,
		Line:       st.line,
		Column:     1,
		Suggestion: suggestion,
	}
}

func first(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// editDistance is the Levenshtein distance between a and b.
func editDistance(a, b string) int {
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(b)]
}

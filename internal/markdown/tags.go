package markdown

import (
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/burrow/internal/ir"
)

// forbiddenElements cannot appear in compiled content.
var forbiddenElements = map[string]bool{
	"script": true, "style": true, "iframe": true, "object": true, "embed": true,
	"base": true, "frame": true, "frameset": true, "meta": true, "link": true,
}

type tokenKind int

const (
	tokText tokenKind = iota
	tokOpen
	tokClose
	tokSelfClose
)

type token struct {
	kind   tokenKind
	name   string
	attrs  []ir.Attr
	text   string
	offset int
}

// markupError is a scan failure at a byte offset of the scanned text.
type markupError struct {
	offset     int
	msg        string
	suggestion string
}

func (e *markupError) Error() string {
	return e.msg
}

// scanMarkup splits raw HTML/JSX into text and tag tokens. Comments are
// dropped.
func scanMarkup(s string) ([]token, error) {
	var (
		tokens []token
		text   strings.Builder
		start  int
	)
	flush := func(end int) {
		if text.Len() > 0 {
			tokens = append(tokens, token{kind: tokText, text: text.String(), offset: start})
			text.Reset()
		}
		start = end
	}

	i := 0
	for i < len(s) {
		if s[i] != '<' || i+1 >= len(s) {
			if text.Len() == 0 {
				start = i
			}
			text.WriteByte(s[i])
			i++
			continue
		}

		next := s[i+1]
		switch {
		case strings.HasPrefix(s[i:], "<!--"):
			end := strings.Index(s[i+4:], "-->")
			if end < 0 {
				return nil, &markupError{offset: i, msg: "unclosed comment"}
			}
			flush(i)
			i += 4 + end + 3
			start = i

		case next == '!' || next == '?':
			return nil, &markupError{offset: i, msg: "unsupported markup declaration", suggestion: "only elements, components and comments are allowed"}

		case next == '/' || isTagStart(next):
			flush(i)
			tok, n, err := scanTag(s, i)
			if err != nil {
				return nil, err
			}
			tokens = append(tokens, tok)
			i += n
			start = i

		default:
			if text.Len() == 0 {
				start = i
			}
			text.WriteByte(s[i])
			i++
		}
	}
	flush(len(s))
	return tokens, nil
}

func isTagStart(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isNameChar(c byte) bool {
	return isTagStart(c) || c >= '0' && c <= '9' || c == '-' || c == '_' || c == '.'
}

func isAttrChar(c byte) bool {
	return isNameChar(c) || c == ':'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// scanTag reads one tag starting at s[at] == '<' and returns it with its
// length.
func scanTag(s string, at int) (token, int, error) {
	i := at + 1
	tok := token{kind: tokOpen, offset: at}
	if s[i] == '/' {
		tok.kind = tokClose
		i++
	}

	nameStart := i
	for i < len(s) && isNameChar(s[i]) {
		i++
	}
	tok.name = s[nameStart:i]
	if tok.name == "" {
		return token{}, 0, &markupError{offset: at, msg: "expected a tag name"}
	}
	if err := checkTagName(tok.name); err != nil {
		err.offset = at
		return token{}, 0, err
	}

	for {
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i >= len(s) {
			return token{}, 0, &markupError{offset: at, msg: fmt.Sprintf("unterminated tag <%s>", tok.name)}
		}

		switch c := s[i]; {
		case c == '>':
			return tok, i + 1 - at, nil

		case c == '/' && i+1 < len(s) && s[i+1] == '>':
			if tok.kind == tokClose {
				return token{}, 0, &markupError{offset: at, msg: fmt.Sprintf("closing tag </%s> cannot be self-closing", tok.name)}
			}
			tok.kind = tokSelfClose
			return tok, i + 2 - at, nil

		case c == '{':
			return token{}, 0, &markupError{offset: i, msg: "spread attributes are not supported", suggestion: "pass each prop explicitly"}

		case tok.kind == tokClose:
			return token{}, 0, &markupError{offset: i, msg: fmt.Sprintf("unexpected attribute in closing tag </%s>", tok.name)}

		case isAttrChar(c):
			attr, n, err := scanAttr(s, i)
			if err != nil {
				return token{}, 0, err
			}
			tok.attrs = append(tok.attrs, attr)
			i += n

		default:
			return token{}, 0, &markupError{offset: i, msg: fmt.Sprintf("unexpected character %q in tag <%s>", c, tok.name)}
		}
	}
}

func scanAttr(s string, at int) (ir.Attr, int, error) {
	i := at
	for i < len(s) && isAttrChar(s[i]) {
		i++
	}
	attr := ir.Attr{Name: s[at:i]}

	j := i
	for j < len(s) && isSpace(s[j]) {
		j++
	}
	if j >= len(s) || s[j] != '=' {
		attr.Value = ir.Lit(true)
		return attr, i - at, nil
	}
	j++
	for j < len(s) && isSpace(s[j]) {
		j++
	}
	if j >= len(s) {
		return ir.Attr{}, 0, &markupError{offset: at, msg: fmt.Sprintf("missing value for attribute %q", attr.Name)}
	}

	var raw string
	switch q := s[j]; q {
	case '"', '\'':
		end := strings.IndexByte(s[j+1:], q)
		if end < 0 {
			return ir.Attr{}, 0, &markupError{offset: j, msg: fmt.Sprintf("unterminated value for attribute %q", attr.Name)}
		}
		raw = s[j+1 : j+1+end]
		j += end + 2
	case '{':
		end := matchBrace(s, j)
		if end < 0 {
			return ir.Attr{}, 0, &markupError{offset: j, msg: fmt.Sprintf("unterminated expression for attribute %q", attr.Name)}
		}
		raw = exprMark + s[j+1:end]
		j = end + 1
	default:
		k := j
		for k < len(s) && !isSpace(s[k]) && s[k] != '>' && !(s[k] == '/' && k+1 < len(s) && s[k+1] == '>') {
			k++
		}
		raw = s[j:k]
		j = k
	}

	value, err := attrValue(raw)
	if err != nil {
		err.offset = at
		return ir.Attr{}, 0, err
	}
	attr.Value = value
	return attr, j - at, nil
}

// attrValue converts a raw attribute value. Values carrying exprMark were
// written as {expr}.
func attrValue(raw string) (ir.Value, *markupError) {
	expr, ok := strings.CutPrefix(raw, exprMark)
	if !ok {
		return ir.Lit(html.UnescapeString(raw)), nil
	}

	expr = strings.TrimSpace(strings.ReplaceAll(expr, quoteMark, `"`))
	switch {
	case expr == "":
		return ir.Value{}, &markupError{msg: "empty attribute expression"}
	case json.Valid([]byte(expr)):
		return ir.Value{Literal: json.RawMessage(expr)}, nil
	case ir.IsPath(expr) && expr != "undefined":
		return ir.Ref(expr), nil
	}
	if s, ok := quotedString(expr); ok {
		return ir.Lit(s), nil
	}
	return ir.Value{}, &markupError{
		msg:        fmt.Sprintf("unsupported attribute expression {%s}", truncate(expr, 40)),
		suggestion: "attribute expressions must be literals or references such as {user.name}",
	}
}

func checkTagName(name string) *markupError {
	if isComponentName(name) {
		for _, part := range strings.Split(name, ".") {
			if !ir.IsIdentifier(part) {
				return &markupError{msg: fmt.Sprintf("invalid component name <%s>", name)}
			}
		}
		return nil
	}

	if forbiddenElements[name] {
		return &markupError{
			msg:        fmt.Sprintf("<%s> is not allowed in content", name),
			suggestion: "provide a component that renders it instead",
		}
	}
	if atom.Lookup([]byte(name)) == 0 && !strings.Contains(name, "-") {
		return &markupError{
			msg:        fmt.Sprintf("unknown element <%s>", name),
			suggestion: "components must start with an uppercase letter",
		}
	}
	if strings.ContainsAny(name, "._") || strings.ToLower(name) != name {
		return &markupError{msg: fmt.Sprintf("invalid element name <%s>", name)}
	}
	return nil
}

// isComponentName follows JSX: capitalized or dotted names are components.
func isComponentName(name string) bool {
	return name != "" && (name[0] >= 'A' && name[0] <= 'Z' || strings.Contains(name, "."))
}

func tagNode(name string, attrs []ir.Attr) ir.Node {
	if isComponentName(name) {
		return ir.Component(name, attrs)
	}
	return ir.Element(name, attrs)
}

type frame struct {
	name   string
	node   ir.Node
	offset int
}

// flow nests nodes under the tags opened across sibling markdown nodes.
type flow struct {
	frames []*frame
}

func newFlow() *flow {
	return &flow{frames: []*frame{{}}}
}

func (f *flow) top() *frame {
	return f.frames[len(f.frames)-1]
}

func (f *flow) depth() int {
	return len(f.frames) - 1
}

func (f *flow) add(nodes ...ir.Node) {
	top := f.top()
	top.node.Children = append(top.node.Children, nodes...)
}

// apply feeds one tag token into the flow.
func (f *flow) apply(tok token) *markupError {
	switch tok.kind {
	case tokSelfClose:
		f.add(tagNode(tok.name, tok.attrs))
	case tokOpen:
		if voidElement(tok.name) {
			f.add(tagNode(tok.name, tok.attrs))
			return nil
		}
		f.frames = append(f.frames, &frame{name: tok.name, node: tagNode(tok.name, tok.attrs), offset: tok.offset})
	case tokClose:
		if voidElement(tok.name) {
			return nil
		}
		if f.depth() == 0 {
			return &markupError{offset: tok.offset, msg: fmt.Sprintf("unexpected closing tag </%s>", tok.name)}
		}
		top := f.top()
		if top.name != tok.name {
			return &markupError{
				offset:     tok.offset,
				msg:        fmt.Sprintf("expected closing tag </%s>, found </%s>", top.name, tok.name),
				suggestion: fmt.Sprintf("close <%s> before </%s>", top.name, tok.name),
			}
		}
		f.frames = f.frames[:len(f.frames)-1]
		f.add(top.node)
	}
	return nil
}

// finish returns the collected nodes. Tags still open at the end of the
// flow are an error.
func (f *flow) finish() ([]ir.Node, *frame) {
	if f.depth() > 0 {
		return nil, f.top()
	}
	return f.frames[0].node.Children, nil
}

func voidElement(name string) bool {
	switch name {
	case "area", "br", "col", "hr", "img", "input", "source", "track", "wbr":
		return true
	}
	return false
}

func unclosedError(fr *frame) *markupError {
	return &markupError{
		offset:     fr.offset,
		msg:        fmt.Sprintf("expected a closing tag for <%s>", fr.name),
		suggestion: fmt.Sprintf("add </%s> or write <%s />", fr.name, fr.name),
	}
}

package markdown

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/conneroisu/burrow/internal/compiler"
	"github.com/conneroisu/burrow/internal/errors"
	"github.com/conneroisu/burrow/internal/ir"
)

// converter turns a goldmark document into IR nodes.
type converter struct {
	source   []byte
	lineBase int
	lines    []int
	opts     compiler.Normalized
	engine   goldmark.Markdown
	slugs    *slugger
	images   *imageSet
}

type imageSet struct {
	seen map[string]bool
	list []string
}

func newImageSet() *imageSet {
	return &imageSet{seen: make(map[string]bool)}
}

func (s *imageSet) add(src string) {
	if src == "" || s.seen[src] {
		return
	}
	s.seen[src] = true
	s.list = append(s.list, src)
}

func newConverter(source []byte, lineBase int, opts compiler.Normalized, engine goldmark.Markdown, slugs *slugger, images *imageSet) *converter {
	c := &converter{
		source:   source,
		lineBase: lineBase,
		lines:    []int{0},
		opts:     opts,
		engine:   engine,
		slugs:    slugs,
		images:   images,
	}
	for i, b := range source {
		if b == '\n' {
			c.lines = append(c.lines, i+1)
		}
	}
	return c
}

func (c *converter) sub(source string, offset int) *converter {
	line, _ := c.position(offset)
	return newConverter([]byte(source), line-1, c.opts, c.engine, c.slugs, c.images)
}

// position maps a byte offset of c.source to a 1-based line and column of
// the original document.
func (c *converter) position(offset int) (int, int) {
	idx := sort.Search(len(c.lines), func(i int) bool { return c.lines[i] > offset }) - 1
	if idx < 0 {
		idx = 0
	}
	return c.lineBase + idx + 1, offset - c.lines[idx] + 1
}

func (c *converter) errorAt(offset int, msg, suggestion string) *errors.CompileError {
	line, col := c.position(offset)
	return &errors.CompileError{Message: msg, Line: line, Column: col, Suggestion: suggestion}
}

func (c *converter) markupError(base int, err error) error {
	var me *markupError
	if stderrors.As(err, &me) {
		return c.errorAt(base+me.offset, me.msg, me.suggestion)
	}
	return err
}

func (c *converter) document() ([]ir.Node, error) {
	doc := c.engine.Parser().Parse(text.NewReader(c.source))
	return c.blockList(doc)
}

func (c *converter) blockList(parent ast.Node) ([]ir.Node, error) {
	f := newFlow()
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if hb, ok := n.(*ast.HTMLBlock); ok {
			if err := c.htmlBlock(hb, f); err != nil {
				return nil, err
			}
			continue
		}
		nodes, err := c.block(n)
		if err != nil {
			return nil, err
		}
		f.add(nodes...)
	}
	nodes, open := f.finish()
	if open != nil {
		return nil, c.markupError(0, unclosedError(open))
	}
	return nodes, nil
}

func (c *converter) block(n ast.Node) ([]ir.Node, error) {
	switch x := n.(type) {
	case *ast.Paragraph:
		return c.paragraph(x)

	case *ast.TextBlock:
		return c.inlineList(x)

	case *ast.Heading:
		children, err := c.inlineList(x)
		if err != nil {
			return nil, err
		}
		var attrs []ir.Attr
		if c.opts.DefaultPlugins {
			attrs = append(attrs, attr("id", c.slugs.slug(plainText(children))))
		}
		return one(ir.Element("h"+strconv.Itoa(x.Level), attrs, children...)), nil

	case *ast.ThematicBreak:
		return one(ir.Element("hr", nil)), nil

	case *ast.FencedCodeBlock:
		var attrs []ir.Attr
		if lang := string(x.Language(c.source)); lang != "" {
			attrs = append(attrs, attr("className", "language-"+lang))
		}
		return one(codeBlock(c.linesText(x), attrs)), nil

	case *ast.CodeBlock:
		return one(codeBlock(c.linesText(x), nil)), nil

	case *ast.Blockquote:
		children, err := c.blockList(x)
		if err != nil {
			return nil, err
		}
		return one(ir.Element("blockquote", nil, children...)), nil

	case *ast.List:
		return c.list(x)

	case *east.Table:
		return c.table(x)

	case *east.FootnoteList:
		return c.footnotes(x)

	default:
		return c.blockList(n)
	}
}

func (c *converter) paragraph(p *ast.Paragraph) ([]ir.Node, error) {
	if c.opts.Math {
		if tex, ok := displayMath(c.linesText(p)); ok {
			return one(ir.Element("div", []ir.Attr{attr("className", "math math-display")}, ir.Text(tex))), nil
		}
	}

	children, err := c.inlineList(p)
	if err != nil {
		return nil, err
	}
	if node, ok := standalone(p, children); ok {
		return one(node), nil
	}
	return one(ir.Element("p", nil, children...)), nil
}

// standalone reports whether a paragraph holds nothing but a single tag or
// expression, which renders without the surrounding <p>.
func standalone(p *ast.Paragraph, children []ir.Node) (ir.Node, bool) {
	var significant []ir.Node
	for _, n := range children {
		if n.Kind == ir.KindText && strings.TrimSpace(n.Text) == "" {
			continue
		}
		significant = append(significant, n)
	}
	if len(significant) != 1 {
		return ir.Node{}, false
	}

	n := significant[0]
	switch n.Kind {
	case ir.KindExpr:
		return n, true
	case ir.KindElement, ir.KindComponent:
		_, first := p.FirstChild().(*ast.RawHTML)
		_, last := p.LastChild().(*ast.RawHTML)
		return n, first && last
	}
	return ir.Node{}, false
}

func (c *converter) list(l *ast.List) ([]ir.Node, error) {
	tag := "ul"
	var attrs []ir.Attr
	if l.IsOrdered() {
		tag = "ol"
		if l.Start != 1 {
			attrs = append(attrs, ir.Attr{Name: "start", Value: ir.Lit(l.Start)})
		}
	}

	var items []ir.Node
	for item := l.FirstChild(); item != nil; item = item.NextSibling() {
		children, err := c.blockList(item)
		if err != nil {
			return nil, err
		}
		items = append(items, ir.Element("li", nil, children...))
	}
	return one(ir.Element(tag, attrs, items...)), nil
}

func (c *converter) table(t *east.Table) ([]ir.Node, error) {
	var head, body []ir.Node
	for row := t.FirstChild(); row != nil; row = row.NextSibling() {
		_, isHeader := row.(*east.TableHeader)
		cellTag := "td"
		if isHeader {
			cellTag = "th"
		}

		var cells []ir.Node
		for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
			children, err := c.inlineList(cell)
			if err != nil {
				return nil, err
			}
			var attrs []ir.Attr
			if tc, ok := cell.(*east.TableCell); ok {
				if align := alignment(tc.Alignment); align != "" {
					attrs = append(attrs, ir.Attr{Name: "style", Value: ir.Lit(map[string]string{"textAlign": align})})
				}
			}
			cells = append(cells, ir.Element(cellTag, attrs, children...))
		}

		tr := ir.Element("tr", nil, cells...)
		if isHeader {
			head = append(head, tr)
		} else {
			body = append(body, tr)
		}
	}

	children := []ir.Node{ir.Element("thead", nil, head...)}
	if len(body) > 0 {
		children = append(children, ir.Element("tbody", nil, body...))
	}
	return one(ir.Element("table", nil, children...)), nil
}

func alignment(a east.Alignment) string {
	switch a {
	case east.AlignLeft:
		return "left"
	case east.AlignRight:
		return "right"
	case east.AlignCenter:
		return "center"
	}
	return ""
}

func (c *converter) footnotes(list *east.FootnoteList) ([]ir.Node, error) {
	var items []ir.Node
	for n := list.FirstChild(); n != nil; n = n.NextSibling() {
		fn, ok := n.(*east.Footnote)
		if !ok {
			continue
		}
		children, err := c.blockList(fn)
		if err != nil {
			return nil, err
		}
		items = append(items, ir.Element("li", []ir.Attr{attr("id", "fn-"+strconv.Itoa(fn.Index))}, children...))
	}

	attrs := []ir.Attr{attr("className", "footnotes"), {Name: "data-footnotes", Value: ir.Lit(true)}}
	return one(ir.Element("section", attrs, ir.Element("hr", nil), ir.Element("ol", nil, items...))), nil
}

func (c *converter) htmlBlock(n *ast.HTMLBlock, f *flow) error {
	var b strings.Builder
	start := -1
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if start < 0 {
			start = seg.Start
		}
		b.Write(seg.Value(c.source))
	}
	if n.HasClosure() {
		if start < 0 {
			start = n.ClosureLine.Start
		}
		b.Write(n.ClosureLine.Value(c.source))
	}
	if start < 0 {
		return nil
	}
	return c.markup(b.String(), start, f)
}

// markup applies raw HTML/JSX at byte offset base to f. Text between tags
// is compiled as markdown.
func (c *converter) markup(raw string, base int, f *flow) error {
	tokens, err := scanMarkup(raw)
	if err != nil {
		return c.markupError(base, err)
	}

	for _, tok := range tokens {
		tok.offset += base

		if tok.kind == tokText {
			nodes, err := c.textToken(tok)
			if err != nil {
				return err
			}
			f.add(nodes...)
			continue
		}

		if tok.name == "img" && tok.kind != tokClose {
			for _, a := range tok.attrs {
				var src string
				if a.Name == "src" && !a.Value.IsRef() && json.Unmarshal(a.Value.Literal, &src) == nil {
					c.images.add(src)
				}
			}
		}
		if me := f.apply(tok); me != nil {
			return c.markupError(0, me)
		}
	}
	return nil
}

// textToken compiles the text between tags of an HTML block. Text that
// stands on its own lines is block content, anything else is inline.
func (c *converter) textToken(tok token) ([]ir.Node, error) {
	t := tok.text
	if strings.TrimSpace(t) == "" {
		if strings.Contains(t, "\n") {
			return nil, nil
		}
		return one(ir.Text(t)), nil
	}

	sub := c.sub(t, tok.offset)
	blockMode := strings.Contains(t, "\n\n") ||
		strings.HasPrefix(t, "\n") && strings.HasSuffix(strings.TrimRight(t, " \t"), "\n")
	if blockMode {
		return sub.document()
	}

	doc := c.engine.Parser().Parse(text.NewReader(sub.source))
	p, ok := doc.FirstChild().(*ast.Paragraph)
	if !ok || p.NextSibling() != nil {
		return sub.blockList(doc)
	}
	nodes, err := sub.inlineList(p)
	if err != nil {
		return nil, err
	}
	if lead := len(t) - len(strings.TrimLeft(t, " \t")); lead > 0 {
		nodes = append([]ir.Node{ir.Text(" ")}, nodes...)
	}
	if len(t) > len(strings.TrimRight(t, " \t")) {
		nodes = append(nodes, ir.Text(" "))
	}
	return nodes, nil
}

// textRun is adjacent text gathered across goldmark's text nodes, which
// split at delimiter characters, with the source offset of each piece.
type textRun struct {
	b      strings.Builder
	pieces []runPiece
}

type runPiece struct {
	at     int
	offset int
}

func (r *textRun) append(s string, offset int) {
	if offset >= 0 {
		r.pieces = append(r.pieces, runPiece{at: r.b.Len(), offset: offset})
	}
	r.b.WriteString(s)
}

func (r *textRun) offset(i int) int {
	off := 0
	for _, p := range r.pieces {
		if p.at > i {
			break
		}
		off = p.offset + (i - p.at)
	}
	return off
}

func (r *textRun) reset() {
	r.b.Reset()
	r.pieces = r.pieces[:0]
}

func (c *converter) inlineList(parent ast.Node) ([]ir.Node, error) {
	f := newFlow()
	var run textRun
	flush := func() error {
		if run.b.Len() == 0 {
			return nil
		}
		nodes, err := c.textNodes(&run)
		if err != nil {
			return err
		}
		f.add(nodes...)
		run.reset()
		return nil
	}

	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch x := n.(type) {
		case *ast.Text:
			run.append(string(x.Segment.Value(c.source)), x.Segment.Start)
			if x.SoftLineBreak() {
				run.append("\n", x.Segment.Stop)
			}
			if x.HardLineBreak() {
				if err := flush(); err != nil {
					return nil, err
				}
				f.add(ir.Element("br", nil))
			}
			continue
		case *ast.String:
			run.append(string(x.Value), -1)
			continue
		}

		if err := flush(); err != nil {
			return nil, err
		}

		if raw, ok := n.(*ast.RawHTML); ok {
			s, start := segmentsText(raw.Segments, c.source)
			if err := c.markup(s, start, f); err != nil {
				return nil, err
			}
			continue
		}

		nodes, err := c.inline(n)
		if err != nil {
			return nil, err
		}
		f.add(nodes...)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	nodes, open := f.finish()
	if open != nil {
		return nil, c.markupError(0, unclosedError(open))
	}
	return nodes, nil
}

func (c *converter) inline(n ast.Node) ([]ir.Node, error) {
	switch x := n.(type) {
	case *ast.Emphasis:
		tag := "em"
		if x.Level >= 2 {
			tag = "strong"
		}
		return c.wrapInline(tag, nil, x)

	case *ast.CodeSpan:
		var b strings.Builder
		for child := x.FirstChild(); child != nil; child = child.NextSibling() {
			switch t := child.(type) {
			case *ast.Text:
				value := t.Segment.Value(c.source)
				if len(value) > 0 && value[len(value)-1] == '\n' {
					value = append(value[:len(value)-1:len(value)-1], ' ')
				}
				b.Write(value)
			case *ast.String:
				b.Write(t.Value)
			}
		}
		return one(ir.Element("code", nil, ir.Text(restoreAttrExprs(b.String())))), nil

	case *ast.Link:
		attrs := []ir.Attr{attr("href", string(x.Destination))}
		if len(x.Title) > 0 {
			attrs = append(attrs, attr("title", string(x.Title)))
		}
		return c.wrapInline("a", attrs, x)

	case *ast.AutoLink:
		url := string(x.URL(c.source))
		if x.AutoLinkType == ast.AutoLinkEmail && !strings.HasPrefix(strings.ToLower(url), "mailto:") {
			url = "mailto:" + url
		}
		return one(ir.Element("a", []ir.Attr{attr("href", url)}, ir.Text(string(x.Label(c.source))))), nil

	case *ast.Image:
		children, err := c.inlineList(x)
		if err != nil {
			return nil, err
		}
		src := string(x.Destination)
		c.images.add(src)
		attrs := []ir.Attr{attr("src", src), attr("alt", plainText(children))}
		if len(x.Title) > 0 {
			attrs = append(attrs, attr("title", string(x.Title)))
		}
		if c.opts.DefaultPlugins {
			attrs = append(attrs, attr("loading", "lazy"))
		}
		return one(ir.Element("img", attrs)), nil

	case *east.Strikethrough:
		return c.wrapInline("del", nil, x)

	case *east.TaskCheckBox:
		attrs := []ir.Attr{attr("type", "checkbox"), {Name: "disabled", Value: ir.Lit(true)}}
		if x.IsChecked {
			attrs = append(attrs, ir.Attr{Name: "checked", Value: ir.Lit(true)})
		}
		return []ir.Node{ir.Element("input", attrs), ir.Text(" ")}, nil

	case *east.FootnoteLink:
		index := strconv.Itoa(x.Index)
		id := "fnref-" + index
		if x.RefIndex > 0 {
			id += "-" + strconv.Itoa(x.RefIndex)
		}
		link := ir.Element("a", []ir.Attr{
			attr("href", "#fn-"+index),
			attr("className", "footnote-ref"),
			{Name: "data-footnote-ref", Value: ir.Lit(true)},
		}, ir.Text(index))
		return one(ir.Element("sup", []ir.Attr{attr("id", id)}, link)), nil

	case *east.FootnoteBacklink:
		target := "#fnref-" + strconv.Itoa(x.Index)
		if x.RefIndex > 0 {
			target += "-" + strconv.Itoa(x.RefIndex)
		}
		return []ir.Node{ir.Text(" "), ir.Element("a", []ir.Attr{
			attr("href", target),
			attr("className", "footnote-backref"),
			attr("aria-label", "Back to content"),
		}, ir.Text("\u21a9\ufe0e"))}, nil

	default:
		return c.inlineList(n)
	}
}

func (c *converter) wrapInline(tag string, attrs []ir.Attr, n ast.Node) ([]ir.Node, error) {
	children, err := c.inlineList(n)
	if err != nil {
		return nil, err
	}
	return one(ir.Element(tag, attrs, children...)), nil
}

// textNodes compiles a text run: inline math, {expressions} and plain
// text with markdown escapes and entities resolved.
func (c *converter) textNodes(run *textRun) ([]ir.Node, error) {
	s := run.b.String()

	var (
		out   []ir.Node
		plain strings.Builder
	)
	emit := func() {
		if plain.Len() > 0 {
			out = append(out, ir.Text(unescapeText(plain.String())))
			plain.Reset()
		}
	}

	for i := 0; i < len(s); {
		ch := s[i]
		switch {
		case ch == '\\' && i+1 < len(s):
			plain.WriteString(s[i : i+2])
			i += 2
			continue

		case ch == '$' && c.opts.Math:
			if tex, end, ok := inlineMath(s, i); ok {
				emit()
				out = append(out, ir.Element("span", []ir.Attr{attr("className", "math math-inline")}, ir.Text(tex)))
				i = end
				continue
			}

		case ch == '{':
			end := matchBrace(s, i)
			if end < 0 {
				return nil, c.errorAt(run.offset(i), "unexpected end of text: expected a closing brace for the expression", `escape a literal brace as \{`)
			}
			node, ok, err := expression(restoreAttrExprs(s[i+1 : end]))
			if err != nil {
				return nil, c.errorAt(run.offset(i), err.Error(), "expressions must be references such as {user.name} or literals")
			}
			emit()
			if ok {
				out = append(out, node)
			}
			i = end + 1
			continue
		}

		plain.WriteByte(ch)
		i++
	}
	emit()
	return out, nil
}

// expression compiles the inside of {...} in text. ok is false for
// expressions that render nothing.
func expression(inner string) (ir.Node, bool, error) {
	expr := strings.TrimSpace(inner)
	if expr == "" || strings.HasPrefix(expr, "/*") && strings.HasSuffix(expr, "*/") {
		return ir.Node{}, false, nil
	}
	if s, ok := quotedString(expr); ok {
		return ir.Text(s), true, nil
	}

	var v any
	if err := json.Unmarshal([]byte(expr), &v); err == nil {
		switch x := v.(type) {
		case string:
			return ir.Text(x), true, nil
		case float64:
			return ir.Text(strconv.FormatFloat(x, 'f', -1, 64)), true, nil
		case bool, nil:
			return ir.Node{}, false, nil
		}
		return ir.Node{}, false, fmt.Errorf("unsupported expression {%s}", truncate(expr, 40))
	}

	if ir.IsPath(expr) {
		if expr == "undefined" {
			return ir.Node{}, false, nil
		}
		return ir.Expr(expr), true, nil
	}
	return ir.Node{}, false, fmt.Errorf("could not parse expression {%s}", truncate(expr, 40))
}

// inlineMath matches $tex$ or $$tex$$ starting at s[i].
func inlineMath(s string, i int) (string, int, bool) {
	delim := "$"
	if strings.HasPrefix(s[i:], "$$") {
		delim = "$$"
	}
	start := i + len(delim)
	for j := start; j < len(s); j++ {
		if s[j] == '\\' {
			j++
			continue
		}
		if !strings.HasPrefix(s[j:], delim) {
			continue
		}
		tex := s[start:j]
		if strings.TrimSpace(tex) == "" || (delim == "$" && (tex[0] == ' ' || tex[len(tex)-1] == ' ')) {
			return "", 0, false
		}
		return tex, j + len(delim), true
	}
	return "", 0, false
}

// displayMath matches a paragraph made only of $$...$$.
func displayMath(p string) (string, bool) {
	t := strings.TrimSpace(p)
	if len(t) < 4 || !strings.HasPrefix(t, "$$") || !strings.HasSuffix(t, "$$") {
		return "", false
	}
	tex := strings.TrimSpace(t[2 : len(t)-2])
	if tex == "" || strings.Contains(tex, "$$") {
		return "", false
	}
	return tex, true
}

func unescapeText(s string) string {
	b := util.UnescapePunctuations([]byte(s))
	b = util.ResolveNumericReferences(b)
	b = util.ResolveEntityNames(b)
	return string(b)
}

func (c *converter) linesText(n ast.Node) string {
	var b strings.Builder
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		b.Write(seg.Value(c.source))
	}
	return b.String()
}

func segmentsText(segs *text.Segments, source []byte) (string, int) {
	var b strings.Builder
	start := 0
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		if i == 0 {
			start = seg.Start
		}
		b.Write(seg.Value(source))
	}
	return b.String(), start
}

func codeBlock(code string, attrs []ir.Attr) ir.Node {
	return ir.Element("pre", nil, ir.Element("code", attrs, ir.Text(restoreAttrExprs(code))))
}

func plainText(nodes []ir.Node) string {
	var b strings.Builder
	ir.Walk(nodes, func(n ir.Node) bool {
		if n.Kind == ir.KindText {
			b.WriteString(n.Text)
		}
		return true
	})
	return strings.TrimSpace(b.String())
}

func attr(name, value string) ir.Attr {
	return ir.Attr{Name: name, Value: ir.Lit(value)}
}

func one(n ir.Node) []ir.Node {
	return []ir.Node{n}
}

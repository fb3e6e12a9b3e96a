package build

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

// Layout wraps a rendered page body in a document.
type Layout func(title string, body templ.Component) templ.Component

// Index lists pages as links. href maps a page name to its link target.
func Index(names []string, href func(name string) string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := io.WriteString(w, "<h1>Pages</h1>\n<ul>"); err != nil {
			return err
		}
		for _, name := range names {
			u := templ.URL(href(name))
			if _, err := fmt.Fprintf(w, `<li><a href="%s">%s</a></li>`, templ.EscapeString(string(u)), templ.EscapeString(name)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</ul>")
		return err
	})
}

// Title returns the frontmatter title, or fallback when there is none.
func Title(frontmatter map[string]any, fallback string) string {
	if title, ok := frontmatter["title"].(string); ok && title != "" {
		return title
	}
	return fallback
}

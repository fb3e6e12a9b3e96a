package server

import (
	"context"
	"fmt"
	"io"

	"github.com/a-h/templ"
)

const liveReloadScript = `<script>
(function () {
  var proto = location.protocol === 'https:' ? 'wss://' : 'ws://';
  var ws = new WebSocket(proto + location.host + '/ws');
  ws.onmessage = function (event) {
    var msg = JSON.parse(event.data);
    if (msg.type === 'reload') { location.reload(); }
  };
})();
</script>`

const pageStyle = `<style>
body { font-family: system-ui, sans-serif; max-width: 46rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.6; }
pre { background: #f5f5f5; padding: 1rem; overflow-x: auto; }
.burrow-error { border-left: 4px solid #d33; padding: .5rem 1rem; background: #fff5f5; }
</style>`

// PageData is what the page shell wraps around rendered content.
type PageData struct {
	Title      string
	Body       templ.Component
	LiveReload bool
}

// Page renders a complete HTML document around data.Body.
func Page(data PageData) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w, "<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"utf-8\">\n<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">\n<title>%s</title>\n%s\n</head>\n<body>\n<main>", templ.EscapeString(data.Title), pageStyle); err != nil {
			return err
		}
		if data.Body != nil {
			if err := data.Body.Render(ctx, w); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, "</main>\n"); err != nil {
			return err
		}
		if data.LiveReload {
			if _, err := io.WriteString(w, liveReloadScript+"\n"); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, "</body>\n</html>\n")
		return err
	})
}

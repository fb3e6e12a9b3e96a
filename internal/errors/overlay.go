package errors

import (
	"errors"
	"fmt"
	"html"
	"strings"
)

// FormatErrorsForBrowser renders errors as a standalone HTML page for the dev
// server. All error text is escaped.
func FormatErrorsForBrowser(errs ...error) string {
	if len(errs) == 0 {
		return ""
	}

	var builder strings.Builder

	builder.WriteString(`<!DOCTYPE html>
<html>
<head>
    <title>Compile Errors</title>
    <style>
        body { font-family: monospace; margin: 20px; background-color: #1e1e1e; color: #ffffff; }
        .error { margin: 20px 0; padding: 15px; border-left: 4px solid #ff4444; background-color: #2d2d2d; }
        .warning { border-left-color: #ffaa00; }
        .error-header { font-weight: bold; font-size: 1.1em; margin-bottom: 10px; }
        .error-location { color: #88ccff; font-size: 0.9em; }
        .error-message { margin: 10px 0; }
        .error-suggestion { color: #88ff88; font-style: italic; margin-top: 10px; }
        .error-context { margin-top: 10px; padding: 10px; background-color: #1a1a1a; border-radius: 4px; white-space: pre; }
    </style>
</head>
<body>
    <h1>Compile Errors</h1>
`)

	for _, err := range errs {
		if err == nil {
			continue
		}
		writeOverlayEntry(&builder, err)
	}

	builder.WriteString(`    <script>
        const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/ws');
        ws.onmessage = () => location.reload();
    </script>
</body>
</html>`)

	return builder.String()
}

func writeOverlayEntry(builder *strings.Builder, err error) {
	cssClass := "error"
	errType := "error"
	var e *Error
	if errors.As(err, &e) {
		errType = string(e.Type)
		if e.Type == TypeSanitization || e.Type == TypeFrontmatter {
			cssClass = "warning"
		}
	}

	fmt.Fprintf(builder, "    <div class=\"%s\">\n", cssClass)
	fmt.Fprintf(builder, "        <div class=\"error-header\">[%s]</div>\n", html.EscapeString(errType))

	var ce *CompileError
	if errors.As(err, &ce) {
		if ce.File != "" || ce.Line > 0 {
			location := ce.File
			if ce.Line > 0 {
				location += fmt.Sprintf(":%d", ce.Line)
				if ce.Column > 0 {
					location += fmt.Sprintf(":%d", ce.Column)
				}
			}
			fmt.Fprintf(builder, "        <div class=\"error-location\">%s</div>\n", html.EscapeString(location))
		}
		fmt.Fprintf(builder, "        <div class=\"error-message\">%s</div>\n", html.EscapeString(ce.Message))
		if ce.Suggestion != "" {
			fmt.Fprintf(builder, "        <div class=\"error-suggestion\">%s</div>\n", html.EscapeString(ce.Suggestion))
		}
		if ce.Context != "" {
			fmt.Fprintf(builder, "        <div class=\"error-context\">%s</div>\n", html.EscapeString(ce.Context))
		}
	} else {
		fmt.Fprintf(builder, "        <div class=\"error-message\">%s</div>\n", html.EscapeString(err.Error()))
	}

	builder.WriteString("    </div>\n")
}

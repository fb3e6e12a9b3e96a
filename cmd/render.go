package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/a-h/templ"
	"github.com/spf13/cobra"

	"github.com/conneroisu/burrow/internal/build"
	"github.com/conneroisu/burrow/internal/compiler"
	"github.com/conneroisu/burrow/internal/mdx"
	"github.com/conneroisu/burrow/internal/server"
)

var (
	renderScope scopeFlag
	renderPage  bool
)

var renderCmd = &cobra.Command{
	Use:   "render FILE",
	Short: "Compile and render an MDX file to HTML",
	Long: `Compile an MDX file, evaluate it with the given scope and print the
rendered HTML. Pass - to read stdin.

Examples:
  burrow render post.mdx
  burrow render post.mdx --scope @scope.json
  burrow render post.mdx --page > post.html`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	addScopeFlag(renderCmd.Flags(), &renderScope)
	renderCmd.Flags().BoolVar(&renderPage, "page", false, "Wrap the output in a complete HTML document")
}

func runRender(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	source, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	result, err := a.svc.Evaluate(ctx, string(source), mdx.EvaluateOptions{
		Scope:   renderScope.scope,
		Compile: compiler.Options{Filepath: args[0]},
	})
	if err != nil {
		return err
	}

	var out templ.Component = result.Default
	if renderPage {
		out = server.Page(server.PageData{
			Title: pageTitle(result.Frontmatter, args[0]),
			Body:  result.Default,
		})
	}
	if err := out.Render(ctx, cmd.OutOrStdout()); err != nil {
		return err
	}
	if !renderPage {
		fmt.Fprintln(cmd.OutOrStdout())
	}
	return nil
}

func pageTitle(frontmatter map[string]any, path string) string {
	base := filepath.Base(path)
	return build.Title(frontmatter, strings.TrimSuffix(base, filepath.Ext(base)))
}

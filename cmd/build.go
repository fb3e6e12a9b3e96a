package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/a-h/templ"
	"github.com/spf13/cobra"

	"github.com/conneroisu/burrow/internal/build"
	"github.com/conneroisu/burrow/internal/server"
)

var (
	buildOutput  string
	buildWorkers int
	buildClean   bool
	buildLazy    bool
	buildScope   scopeFlag
	buildFormat  string
)

var buildCmd = &cobra.Command{
	Use:   "build [CONTENT_DIR]",
	Short: "Render the content directory to static HTML",
	Long: `Render every .mdx and .md page of the content directory to an HTML file,
write an index listing the pages and a manifest.json describing the run.
CONTENT_DIR defaults to server.content_dir.

Examples:
  burrow build
  burrow build ./docs --output public --clean
  burrow build --scope @site.json --workers 4 --format json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "", "Output directory (default build.output_dir)")
	buildCmd.Flags().IntVarP(&buildWorkers, "workers", "w", 0, "Concurrent page builds (default build.workers)")
	buildCmd.Flags().BoolVar(&buildClean, "clean", false, "Remove the output directory before building")
	buildCmd.Flags().BoolVar(&buildLazy, "lazy", false, "Render pages as lazy boundaries")
	buildCmd.Flags().StringVarP(&buildFormat, "format", "f", "text", "Report format (text, json)")
	addScopeFlag(buildCmd.Flags(), &buildScope)
}

func runBuild(cmd *cobra.Command, args []string) error {
	if buildFormat != "text" && buildFormat != "json" {
		return fmt.Errorf("unsupported format %q: use text or json", buildFormat)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	opts := build.Options{
		ContentDir: a.cfg.Server.ContentDir,
		OutputDir:  a.cfg.Build.OutputDir,
		Workers:    a.cfg.Build.Workers,
		Scope:      buildScope.scope,
		Lazy:       buildLazy || a.cfg.Hydrate.Lazy,
		Clean:      buildClean,
		Layout: func(title string, body templ.Component) templ.Component {
			return server.Page(server.PageData{Title: title, Body: body})
		},
	}
	if len(args) == 1 {
		opts.ContentDir = args[0]
	}
	if cmd.Flags().Changed("output") {
		opts.OutputDir = buildOutput
	}
	if cmd.Flags().Changed("workers") {
		opts.Workers = buildWorkers
	}

	ctx := commandContext(cmd)
	report, err := build.NewGenerator(a.svc, build.WithLogger(a.logger)).Generate(ctx, opts)
	if err != nil {
		return err
	}

	if buildFormat == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReport(cmd, report)
	}

	if failed := report.Failed(); len(failed) > 0 {
		return fmt.Errorf("%d of %d pages failed to build", len(failed), len(report.Pages))
	}
	return nil
}

func printReport(cmd *cobra.Command, report *build.Report) {
	out := cmd.OutOrStdout()
	for _, p := range report.Pages {
		if p.Err != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", p.Name, p.Err)
			continue
		}
		fmt.Fprintf(out, "ok   %s (%d bytes)\n", p.Name, p.Bytes)
	}

	m := report.Metrics.Snapshot()
	fmt.Fprintf(out, "Built %d/%d pages into %s in %s (cache hit rate %.0f%%)\n",
		m.SuccessfulPages, m.TotalPages, report.OutputDir,
		time.Since(report.GeneratedAt).Round(time.Millisecond), report.Metrics.CacheHitRate())
}

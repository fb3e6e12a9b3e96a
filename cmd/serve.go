package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/burrow/internal/hydrate"
	"github.com/conneroisu/burrow/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server with live reload",
	Long: `Start the HTTP server. It exposes the serialize and render APIs, serves
pages from the content directory and reloads browsers when content changes.

Examples:
  burrow serve
  burrow serve --port 3000 --content ./docs
  BURROW_SERVER_REMOTE_HOSTS=raw.githubusercontent.com burrow serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().IntP("port", "p", 8080, "Port to serve on")
	serveCmd.Flags().String("host", "localhost", "Host to bind to")
	serveCmd.Flags().StringP("content", "c", "./content", "Directory of .mdx pages")
	serveCmd.Flags().Bool("live-reload", true, "Reload browsers when content changes")
	serveCmd.Flags().Bool("lazy", false, "Render pages as lazy boundaries")

	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = viper.BindPFlag("server.content_dir", serveCmd.Flags().Lookup("content"))
	_ = viper.BindPFlag("server.live_reload", serveCmd.Flags().Lookup("live-reload"))
	_ = viper.BindPFlag("hydrate.lazy", serveCmd.Flags().Lookup("lazy"))
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}

	h := hydrate.New(hydrate.WithLogger(a.logger), hydrate.WithSanitizer(a.svc.Sanitizer()))
	srv, err := server.New(a.cfg, a.svc, h, server.WithLogger(a.logger))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.logger.Info(ctx, "Starting server",
		"addr", a.cfg.Server.Address(),
		"content", a.cfg.Server.ContentDir,
		"live_reload", a.cfg.Server.LiveReload,
	)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	a.svc.Cache().Teardown()
	a.logger.Info(context.Background(), "Server stopped")
	return nil
}

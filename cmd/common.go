package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/conneroisu/burrow/internal/cache"
	"github.com/conneroisu/burrow/internal/config"
	"github.com/conneroisu/burrow/internal/logging"
	"github.com/conneroisu/burrow/internal/markdown"
	"github.com/conneroisu/burrow/internal/mdx"
)

// app is what every command needs: configuration, a logger writing to the
// command's stderr, and the MDX service built from both.
type app struct {
	cfg    *config.Config
	logger logging.Logger
	svc    *mdx.Service
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logCfg, err := cfg.Log.LoggerConfig()
	if err != nil {
		return nil, err
	}
	logCfg.Output = cmd.ErrOrStderr()
	logger := logging.NewLogger(logCfg)

	svc := mdx.New(markdown.Load,
		mdx.WithCache(cache.New(cache.Config{MaxSize: cfg.Cache.MaxSize, TTL: cfg.Cache.TTL})),
		mdx.WithDefaults(cfg.Compile.Options()),
		mdx.WithLogger(logger),
	)
	return &app{cfg: cfg, logger: logger, svc: svc}, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// scopeFlag is a JSON object flag. A value starting with @ names a file
// holding the object.
type scopeFlag struct {
	raw   string
	scope map[string]any
}

var _ pflag.Value = (*scopeFlag)(nil)

func (f *scopeFlag) String() string {
	return f.raw
}

func (f *scopeFlag) Set(value string) error {
	data := []byte(value)
	if name, ok := strings.CutPrefix(value, "@"); ok {
		var err error
		if data, err = os.ReadFile(name); err != nil {
			return fmt.Errorf("read scope file: %w", err)
		}
	}

	var scope map[string]any
	if err := json.Unmarshal(data, &scope); err != nil {
		return fmt.Errorf("scope must be a JSON object: %w", err)
	}
	f.raw = value
	f.scope = scope
	return nil
}

func (f *scopeFlag) Type() string {
	return "json"
}

func addScopeFlag(flags *pflag.FlagSet, f *scopeFlag) {
	flags.Var(f, "scope", "scope as a JSON object, or @file.json")
}

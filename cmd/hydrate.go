package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conneroisu/burrow/internal/hydrate"
)

var (
	hydrateScope scopeFlag
	hydrateLazy  bool
)

var hydrateCmd = &cobra.Command{
	Use:   "hydrate PAYLOAD",
	Short: "Render a serialized result",
	Long: `Render the JSON printed by "burrow compile" to HTML. A payload that fails
to hydrate renders the fallback markup and the command still succeeds.
Pass - to read stdin.

Examples:
  burrow compile post.mdx | burrow hydrate -
  burrow hydrate result.json --scope '{"user":"Ada"}'`,
	Args: cobra.ExactArgs(1),
	RunE: runHydrate,
}

func init() {
	rootCmd.AddCommand(hydrateCmd)

	addScopeFlag(hydrateCmd.Flags(), &hydrateScope)
	hydrateCmd.Flags().BoolVar(&hydrateLazy, "lazy", false, "Mark the output as a lazy boundary")
}

func runHydrate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	data, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	var props hydrate.Props
	if err := json.Unmarshal(data, &props); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}
	if hydrateScope.scope != nil {
		props.Scope = hydrateScope.scope
	}
	props.Lazy = props.Lazy || hydrateLazy || a.cfg.Hydrate.Lazy

	h := hydrate.New(hydrate.WithLogger(a.logger), hydrate.WithSanitizer(a.svc.Sanitizer()))
	if err := h.Render(commandContext(cmd), cmd.OutOrStdout(), props); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return nil
}

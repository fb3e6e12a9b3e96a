package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/burrow/internal/compiler"
)

var (
	compileScope         scopeFlag
	compileFormat        string
	compileNoFrontmatter bool
)

var compileCmd = &cobra.Command{
	Use:   "compile FILE",
	Short: "Serialize an MDX file",
	Long: `Compile an MDX file and print the serialized result: the compiled code,
parsed front-matter, scope and referenced images. Pass - to read stdin.

Examples:
  burrow compile post.mdx
  burrow compile post.mdx --scope '{"user":"Ada"}' > result.json
  burrow compile post.mdx --format yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

func init() {
	rootCmd.AddCommand(compileCmd)

	addScopeFlag(compileCmd.Flags(), &compileScope)
	compileCmd.Flags().StringVarP(&compileFormat, "format", "f", "json", "Output format (json, yaml)")
	compileCmd.Flags().BoolVar(&compileNoFrontmatter, "no-frontmatter", false, "Leave front-matter unparsed")
}

func runCompile(cmd *cobra.Command, args []string) error {
	if compileFormat != "json" && compileFormat != "yaml" {
		return fmt.Errorf("unsupported format: %s (supported: json, yaml)", compileFormat)
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	source, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	opts := compiler.SerializeOptions{
		Scope:   compileScope.scope,
		Compile: compiler.Options{Filepath: args[0]},
	}
	if compileNoFrontmatter || !a.cfg.Compile.ParseFrontmatter {
		opts.ParseFrontmatter = compiler.Bool(false)
	}

	result, err := a.svc.Serialize(commandContext(cmd), string(source), opts)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if compileFormat == "yaml" {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(result); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/go-kratos/stategraph"
	"github.com/go-kratos/stategraph/config"
	"github.com/go-kratos/stategraph/graph"
	"github.com/go-kratos/stategraph/middleware"
)

func newRunCmd() *cobra.Command {
	var (
		sets       []string
		jsonOutput bool
		runID      string
	)
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Run a graph definition once",
		Long: `Load and compile a graph definition, run it from the initial state given
with --set and print the final public state.

Values are read as YAML scalars, so numbers and booleans keep their type.

Examples:
  stategraph run pipeline.yaml --set a="set at start"
  stategraph run pipeline.hcl --set count=3 --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			initial, err := parseSets(sets)
			if err != nil {
				return err
			}
			def, err := config.Load(args[0])
			if err != nil {
				return err
			}
			logger := slog.Default().With(slog.String("graph", def.Name))
			g, err := def.Build(nil,
				graph.WithLogger(logger),
				graph.WithMiddleware(middleware.Logging(logger)),
			)
			if err != nil {
				return err
			}
			var opts []graph.RunOption
			if runID != "" {
				opts = append(opts, graph.WithRunID(runID))
			}
			final, err := g.Run(cmd.Context(), initial, opts...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(final)
			}
			for _, key := range final.Keys() {
				fmt.Fprintf(out, "%s=%v\n", key, final[key])
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&sets, "set", nil, "Initial state field as key=value (repeatable)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the final state as JSON")
	cmd.Flags().StringVar(&runID, "run-id", "", "Run identifier (defaults to a generated UUID)")
	return cmd
}

func parseSets(sets []string) (stategraph.State, error) {
	initial := make(stategraph.State, len(sets))
	for _, set := range sets {
		key, raw, ok := strings.Cut(set, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --set %q: expected key=value", set)
		}
		initial[key] = parseValue(raw)
	}
	return initial, nil
}

// parseValue reads scalars the way YAML does and keeps anything else as a string.
func parseValue(raw string) any {
	var v any
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	switch v.(type) {
	case string, int, float64, bool:
		return v
	default:
		return raw
	}
}

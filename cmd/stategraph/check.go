package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/go-kratos/stategraph/config"
	"github.com/go-kratos/stategraph/graph"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE",
		Short: "Validate a graph definition",
		Long: `Load a graph definition, compile it with the schema-flow check enabled
and print the traversal order with every node's input and output schema.

Examples:
  stategraph check pipeline.yaml
  stategraph check pipeline.hcl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			def, err := config.Load(args[0])
			if err != nil {
				return err
			}
			g, err := def.Build(nil, graph.WithSchemaFlowCheck())
			if err != nil {
				return err
			}
			printGraph(cmd.OutOrStdout(), def.Name, g)
			return nil
		},
	}
}

func printGraph(w io.Writer, name string, g *graph.Graph) {
	fmt.Fprintf(w, "graph %s %s\n", name, g.Schema())
	fmt.Fprintf(w, "  %s\n", graph.Start)
	for _, step := range g.Path() {
		node, _ := g.Node(step)
		fmt.Fprintf(w, "  %s %s -> %s\n", node.Name(), node.Input(), node.Output())
	}
	fmt.Fprintf(w, "  %s\n", graph.End)
}

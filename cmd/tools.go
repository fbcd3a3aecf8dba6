package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newToolsCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "Inspect the tool broker",
	}

	cmd.AddCommand(newToolsListCmd(app))

	return cmd
}

func newToolsListCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Start the broker and print its tool catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sink, err := newInteractiveLogger(app.cfg, cmd.ErrOrStderr(), app.verbose)
			if err != nil {
				return err
			}
			defer sink.Close()

			orch, err := app.newOrchestrator(orchestratorOptions{Sink: sink})
			if err != nil {
				return err
			}
			defer func() { _ = orch.Close(context.Background()) }()

			tools, err := orch.Tools(cmd.Context())
			if err != nil {
				return fmt.Errorf("list tools: %s", describeError(err))
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(tools)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, tool := range tools {
				_, _ = fmt.Fprintf(w, "%s\t%s\n", tool.Name, tool.Description)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the catalog as JSON")

	return cmd
}

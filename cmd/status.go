package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	statusadapter "github.com/bnema/cloudwhisper/internal/adapters/render/status"
	"github.com/bnema/cloudwhisper/internal/application"
	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/spf13/cobra"
)

func newStatusCmd(app *app) *cobra.Command {
	var (
		account string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the broker, the active account and the configured accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sink, err := newInteractiveLogger(app.cfg, cmd.ErrOrStderr(), app.verbose)
			if err != nil {
				return err
			}
			defer sink.Close()

			orch, err := app.newOrchestrator(orchestratorOptions{Account: domain.AccountID(account), Sink: sink})
			if err != nil {
				return err
			}
			defer func() { _ = orch.Close(context.Background()) }()

			status, err := app.service.GetStatus(cmd.Context(), orch)
			if err != nil {
				return err
			}

			return writeStatusOutput(cmd, app, status, asJSON)
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "account to bind the broker to (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the status as JSON")

	return cmd
}

func writeStatusOutput(cmd *cobra.Command, app *app, status application.Status, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}

	rendered, err := app.statusRenderer(status, statusadapter.RenderOptions{Now: app.now()})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

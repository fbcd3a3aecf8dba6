package cmd

import (
	"fmt"

	"github.com/bnema/cloudwhisper/internal/adapters/analysis"
	tomlrepo "github.com/bnema/cloudwhisper/internal/adapters/repo/toml"
	"github.com/bnema/cloudwhisper/internal/application"
	"github.com/spf13/cobra"
)

func newConfigCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigValidateCmd(app))

	return cmd
}

func newConfigValidateCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check AI keys and account credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			findings, err := app.service.ValidateSetup(cmd.Context(), app.apiKeys(), analysis.UsableKey)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "accounts file: %s\n", expandHome(app.cfg.GetString(tomlrepo.AccountsPathKey)))

			errorCount := 0
			for _, finding := range findings {
				if finding.Level == application.FindingError {
					errorCount++
				}
				_, _ = fmt.Fprintf(out, "[%s] %s: %s\n", finding.Level, finding.Subject, finding.Message)
			}

			if errorCount > 0 {
				return fmt.Errorf("configuration has %d error(s)", errorCount)
			}

			return nil
		},
	}
}

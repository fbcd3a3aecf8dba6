package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/bnema/cloudwhisper/internal/broker"
	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/bnema/cloudwhisper/internal/version"
	"github.com/spf13/cobra"
)

func newBrokerCmd(app *app) *cobra.Command {
	var account string

	cmd := &cobra.Command{
		Use:    brokerCommand,
		Short:  "Serve the tool protocol on stdin and stdout",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newBrokerLogger(app.cfg, cmd.ErrOrStderr(), app.verbose)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			id := domain.AccountID(account)
			if id == "" {
				id = domain.AccountID(app.cfg.GetString(keyDefaultAccount))
			}

			client := broker.NewDeferredClient(ctx, domain.ProviderAWS, id, app.newResourceClient(logger))
			b := broker.New(client, version.Version, logger)

			logger.Info().Str("account", string(id)).Msg("broker serving")
			err = b.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
			if errors.Is(err, context.Canceled) {
				return nil
			}

			return err
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "account to bind at startup")

	return cmd
}

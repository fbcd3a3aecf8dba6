package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bnema/cloudwhisper/internal/application"
	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/spf13/cobra"
)

type askOutput struct {
	Question string                  `json:"question"`
	Answer   string                  `json:"answer"`
	Backend  string                  `json:"backend"`
	TurnID   string                  `json:"turn_id"`
	Snapshot domain.ResourceSnapshot `json:"snapshot"`
}

func newAskCmd(app *app) *cobra.Command {
	var (
		account string
		plain   bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer one question about your cloud inventory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return fmt.Errorf("question is empty")
			}

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

			var answer application.Answer
			err = runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "Analyzing your cloud inventory...", func(ctx context.Context) error {
				var err error
				answer, err = orch.Ask(ctx, question)
				return err
			})
			if err != nil {
				return fmt.Errorf("ask: %s", describeError(err))
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(askOutput{
					Question: question,
					Answer:   answer.Text,
					Backend:  answer.Backend,
					TurnID:   answer.Turn.ID.String(),
					Snapshot: answer.Snapshot,
				})
			}

			renderer, err := app.newAnswerRenderer(plain)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), renderer.Answer(answer.Text, answer.Backend))
			return err
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "account to query (default from config)")
	cmd.Flags().BoolVar(&plain, "plain", false, "print the answer without markdown rendering")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the answer and snapshot as JSON")

	return cmd
}

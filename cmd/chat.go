package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bnema/cloudwhisper/internal/adapters/analysis/fallback"
	"github.com/bnema/cloudwhisper/internal/adapters/metrics"
	answeradapter "github.com/bnema/cloudwhisper/internal/adapters/render/answer"
	"github.com/bnema/cloudwhisper/internal/application"
	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/bnema/cloudwhisper/internal/ports"
	"github.com/spf13/cobra"
)

const chatHelp = `Commands:
  help                      show this help
  data                      show the raw inventory summary
  history                   show recent questions and answers
  accounts                  list configured accounts
  providers                 list supported providers
  tools                     list the broker's tools
  current                   show the active provider and account
  switch account <id>       switch to another account
  switch provider <name>    switch to another provider
  quit, exit, bye           leave the chat

Anything else is a question about your cloud inventory.`

func newChatCmd(app *app) *cobra.Command {
	var (
		account     string
		metricsAddr string
		plain       bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive session about your cloud inventory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sink, err := newInteractiveLogger(app.cfg, cmd.ErrOrStderr(), app.verbose)
			if err != nil {
				return err
			}
			defer sink.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var recorder ports.Recorder = ports.NopRecorder{}
			if metricsAddr != "" {
				promRecorder := metrics.NewRecorder()
				recorder = promRecorder
				go func() {
					if err := promRecorder.Serve(ctx, metricsAddr, sink.Logger); err != nil {
						sink.Logger.Error().Err(err).Str("addr", metricsAddr).Msg("metrics endpoint stopped")
					}
				}()
			}

			orch, err := app.newOrchestrator(orchestratorOptions{
				Account:  domain.AccountID(account),
				Recorder: recorder,
				Sink:     sink,
			})
			if err != nil {
				return err
			}
			defer func() {
				if err := orch.Close(context.Background()); err != nil {
					sink.Logger.Debug().Err(err).Msg("close worker")
				}
			}()

			renderer, err := app.newAnswerRenderer(plain)
			if err != nil {
				return err
			}

			session := &chatSession{
				orch:     orch,
				renderer: renderer,
				out:      cmd.OutOrStdout(),
				spinner:  cmd.ErrOrStderr(),
			}

			return session.run(ctx, cmd.InOrStdin())
		},
	}

	cmd.Flags().StringVar(&account, "account", "", "account to start with (default from config)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().BoolVar(&plain, "plain", false, "print answers without markdown rendering")

	return cmd
}

type chatSession struct {
	orch     *application.Orchestrator
	renderer *answeradapter.Renderer
	out      io.Writer
	// spinner receives progress while a question is answered; nil hides it.
	spinner io.Writer
}

func (s *chatSession) run(ctx context.Context, in io.Reader) error {
	s.println("CloudWhisper - ask about your cloud inventory. Type 'help' for commands.")

	if err := s.orch.Start(ctx); err != nil {
		if ctx.Err() != nil {
			s.println("")
			return nil
		}
		s.printf("Warning: the tool broker is unavailable (%v). It will be retried on the next request.\n", err)
	} else {
		s.printf("Connected to %s, analysis by %s.\n", s.orch.CurrentLabel(), s.orch.BackendName())
	}

	lines, readErr := readLines(ctx, in)
	for {
		s.printf("\n[%s] > ", s.orch.CurrentLabel())

		var line string
		select {
		case <-ctx.Done():
			s.println("")
			return nil
		case next, ok := <-lines:
			if !ok {
				s.println("")
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("read input: %w", err)
					}
				default:
				}
				return nil
			}
			line = next
		}

		if s.handle(ctx, line) {
			s.println("Goodbye.")
			return nil
		}
		if ctx.Err() != nil {
			s.println("")
			return nil
		}
	}
}

// readLines scans in on its own goroutine so an interrupt is noticed while
// the prompt waits. lines is closed at end of input; a scan error is sent
// on the second channel first.
func readLines(ctx context.Context, in io.Reader) (<-chan string, <-chan error) {
	lines := make(chan string)
	readErr := make(chan error, 1)

	go func() {
		defer close(lines)

		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	return lines, readErr
}

// handle runs one line of input and reports whether the session should end.
// Failures are printed; they never end the session.
func (s *chatSession) handle(ctx context.Context, line string) bool {
	line = strings.TrimSpace(line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch command := strings.ToLower(fields[0]); {
	case len(fields) == 1 && (command == "quit" || command == "exit" || command == "bye"):
		return true
	case len(fields) == 1 && command == "help":
		s.println(chatHelp)
	case len(fields) == 1 && command == "data":
		s.showData(ctx)
	case len(fields) == 1 && command == "history":
		s.println(s.renderer.History(s.orch.History()))
	case len(fields) == 1 && command == "accounts":
		s.showAccounts(ctx)
	case len(fields) == 1 && command == "providers":
		s.showProviders(ctx)
	case len(fields) == 1 && command == "tools":
		s.showTools(ctx)
	case len(fields) == 1 && command == "current":
		s.showCurrent(ctx)
	case command == "switch" && len(fields) == 3 && strings.EqualFold(fields[1], "account"):
		s.switchAccount(ctx, fields[2])
	case command == "switch" && len(fields) == 3 && strings.EqualFold(fields[1], "provider"):
		s.switchProvider(ctx, fields[2])
	case command == "switch":
		s.println("Usage: switch account <id> | switch provider <name>")
	default:
		s.ask(ctx, line)
	}

	return false
}

func (s *chatSession) ask(ctx context.Context, question string) {
	var answer application.Answer
	err := runWithSpinner(ctx, s.spinner, "Analyzing your cloud inventory...", func(ctx context.Context) error {
		var err error
		answer, err = s.orch.Ask(ctx, question)
		return err
	})
	if err != nil {
		s.printf("Sorry, I could not answer that: %s\n", describeError(err))
		return
	}

	s.println(s.renderer.Answer(answer.Text, answer.Backend))
}

func (s *chatSession) showData(ctx context.Context) {
	snapshot, err := s.orch.Snapshot(ctx)
	if err != nil {
		s.printf("Could not fetch cloud data: %s\n", describeError(err))
		return
	}

	s.println(s.renderer.Markdown(fallback.Report(snapshot)))
}

func (s *chatSession) showAccounts(ctx context.Context) {
	result, err := s.orch.ListAccounts(ctx)
	if err != nil {
		s.printf("Could not list accounts: %s\n", describeError(err))
		return
	}
	if len(result.Accounts) == 0 {
		s.println("No accounts configured.")
		return
	}

	s.println("Accounts:")
	for _, entry := range result.Accounts {
		marker := " "
		if entry.ID == result.CurrentAccount.AccountID {
			marker = "*"
		}
		s.printf("%s %s - %s (%s)\n", marker, entry.ID, entry.Name, entry.Region)
	}
}

func (s *chatSession) showProviders(ctx context.Context) {
	result, err := s.orch.ListProviders(ctx)
	if err != nil {
		s.printf("Could not list providers: %s\n", describeError(err))
		return
	}

	s.println("Providers:")
	for _, provider := range result.Providers {
		marker := " "
		if provider.ID == result.Current {
			marker = "*"
		}
		s.printf("%s %s - %s\n", marker, provider.ID, provider.Name)
	}
}

func (s *chatSession) showTools(ctx context.Context) {
	tools, err := s.orch.Tools(ctx)
	if err != nil {
		s.printf("Could not list tools: %s\n", describeError(err))
		return
	}

	s.println("Tools:")
	for _, tool := range tools {
		s.printf("  %s - %s\n", tool.Name, tool.Description)
	}
}

func (s *chatSession) showCurrent(ctx context.Context) {
	current, err := s.orch.CurrentProvider(ctx)
	if err != nil {
		s.printf("Could not read the current account: %s\n", describeError(err))
		return
	}

	info := current.AccountInfo
	s.printf("Provider: %s\n", current.Provider)
	s.printf("Account:  %s\n", s.orch.CurrentLabel())
	s.printf("Region:   %s\n", info.Region)
	if info.Verified {
		s.printf("Identity: %s (%s)\n", info.UserARN, info.ProviderAccountID)
	} else if info.Error != "" {
		s.printf("Credentials not verified: %s\n", info.Error)
	}
}

func (s *chatSession) switchAccount(ctx context.Context, id string) {
	if err := s.orch.SwitchAccount(ctx, domain.AccountID(id)); err != nil {
		s.printf("Failed to switch account: %s\n", describeError(err))
		return
	}

	s.printf("Switched to account: %s\n", s.orch.CurrentLabel())
}

func (s *chatSession) switchProvider(ctx context.Context, provider string) {
	if err := s.orch.SwitchProvider(ctx, provider); err != nil {
		s.printf("Failed to switch provider: %s\n", describeError(err))
		return
	}

	s.printf("Switched to provider: %s\n", strings.ToLower(provider))
}

func (s *chatSession) println(text string) {
	_, _ = fmt.Fprintln(s.out, text)
}

func (s *chatSession) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}

// describeError turns a turn failure into one line for the user.
func describeError(err error) string {
	switch {
	case errors.Is(err, domain.ErrWorkerUnavailable):
		return fmt.Sprintf("the tool broker is unavailable (%v)", err)
	case errors.Is(err, context.Canceled):
		return "interrupted"
	default:
		return err.Error()
	}
}

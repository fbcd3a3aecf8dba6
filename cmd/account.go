package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	tomlrepo "github.com/bnema/cloudwhisper/internal/adapters/repo/toml"
	yamlrepo "github.com/bnema/cloudwhisper/internal/adapters/repo/yaml"
	"github.com/bnema/cloudwhisper/internal/application"
	"github.com/bnema/cloudwhisper/internal/domain"
	"github.com/spf13/cobra"
)

func newAccountCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account",
		Short: "Manage cloud accounts",
	}

	cmd.AddCommand(
		newAccountListCmd(app),
		newAccountAddCmd(app),
		newAccountRemoveCmd(app),
		newAccountImportCmd(app),
	)

	return cmd
}

func newAccountListCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured accounts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			accounts, err := app.service.ListAccounts(cmd.Context())
			if err != nil {
				return err
			}
			if len(accounts) == 0 {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "No accounts configured.")
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			for _, account := range accounts {
				entry := account.Entry()
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", entry.ID, entry.Name, entry.Region, credentialSource(account))
			}
			return w.Flush()
		},
	}
}

func credentialSource(account domain.Account) string {
	switch {
	case account.CredentialRef != "":
		return "key pair"
	case account.Profile != "":
		return "profile " + account.Profile
	default:
		return "ambient"
	}
}

func newAccountAddCmd(app *app) *cobra.Command {
	var (
		name         string
		region       string
		profile      string
		description  string
		accessKeyID  string
		secretKey    string
		sessionToken string
	)

	cmd := &cobra.Command{
		Use:   "add <id>",
		Short: "Add or update an account",
		Long:  "Add or update an account. A key pair given with --access-key-id and --secret-access-key is kept in the secret store under aws://<id>/credentials.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := application.AddAccountCommand{
				ID:          domain.AccountID(args[0]),
				Name:        name,
				Region:      region,
				Profile:     profile,
				Description: description,
			}
			if accessKeyID != "" || secretKey != "" || sessionToken != "" {
				command.Credentials = &domain.Credentials{
					AccessKeyID:     strings.TrimSpace(accessKeyID),
					SecretAccessKey: strings.TrimSpace(secretKey),
					SessionToken:    strings.TrimSpace(sessionToken),
				}
			}

			account, err := app.service.AddAccount(cmd.Context(), command)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "Saved account %s (%s)\n", account.ID, credentialSource(account))
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&region, "region", "", "default region")
	cmd.Flags().StringVar(&profile, "profile", "", "shared config profile used when no key pair is stored")
	cmd.Flags().StringVar(&description, "description", "", "free-form description")
	cmd.Flags().StringVar(&accessKeyID, "access-key-id", "", "access key id to store")
	cmd.Flags().StringVar(&secretKey, "secret-access-key", "", "secret access key to store")
	cmd.Flags().StringVar(&sessionToken, "session-token", "", "optional session token to store")
	cmd.MarkFlagsRequiredTogether("access-key-id", "secret-access-key")

	return cmd
}

func newAccountRemoveCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <id>",
		Aliases: []string{"rm"},
		Short:   "Remove an account and its stored key pair",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := domain.AccountID(strings.TrimSpace(args[0]))
			if err := app.service.RemoveAccount(cmd.Context(), application.RemoveAccountCommand{ID: id}); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Removed account %s\n", id)
			return err
		},
	}
}

func newAccountImportCmd(app *app) *cobra.Command {
	var (
		from      string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import accounts from another account file",
		Long:  "Import accounts from a legacy aws_accounts YAML file or another accounts.toml. Inline key pairs move into the secret store.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			command := application.ImportAccountsCommand{Overwrite: overwrite}

			path := expandHome(from)
			if yamlrepo.IsYAMLPath(path) {
				source, err := yamlrepo.NewRepository(path)
				if err != nil {
					return err
				}
				command.Source = source
				command.Secrets = source.Secrets()
			} else {
				source, err := tomlrepo.NewRepositoryAt(path)
				if err != nil {
					return err
				}
				command.Source = source
				command.Secrets = app.secrets
			}

			report, err := app.service.ImportAccounts(cmd.Context(), command)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Imported %d account(s)", len(report.Imported))
			if len(report.Skipped) > 0 {
				_, _ = fmt.Fprintf(out, ", skipped %d existing: %s", len(report.Skipped), joinIDs(report.Skipped))
			}
			_, err = fmt.Fprintln(out)
			return err
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "account file to import (.yaml, .yml or .toml)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "replace accounts that already exist")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}

func joinIDs(ids []domain.AccountID) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, string(id))
	}

	return strings.Join(parts, ", ")
}

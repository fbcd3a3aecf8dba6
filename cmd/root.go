package cmd

import (
	"github.com/spf13/cobra"
)

func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "cw",
		Short:         "CloudWhisper (cw): ask questions about your cloud inventory",
		Long:          "cw (CloudWhisper) runs a tool broker against your AWS accounts and answers natural-language questions about their instances, storage buckets and monitoring alarms.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp()
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		return rootCmd
	}

	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		newVersionCmd(),
		newChatCmd(app),
		newAskCmd(app),
		newBrokerCmd(app),
		newToolsCmd(app),
		newStatusCmd(app),
		newAccountCmd(app),
		newConfigCmd(app),
	)

	return rootCmd
}

package cli

import (
	"github.com/ralt/extmgr/internal/messages"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const defaultConfigFile = "extmgr.toml"

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           messages.RootUse,
		Short:         messages.RootShort,
		Long:          messages.RootLong,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.InfoLevel)
			}
		},
	}

	rootCmd.PersistentFlags().BoolP("verbose", "v", false, messages.FlagVerbose)
	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigFile, messages.FlagConfig)

	rootCmd.AddCommand(
		NewCheckCmd(),
		NewInstallCmd(),
		NewUpdateCmd(),
		NewCommentsCmd(),
		NewDistributionCmd(),
		NewListCmd(),
		NewIndexCmd(),
		NewKeygenCmd(),
	)

	return rootCmd
}

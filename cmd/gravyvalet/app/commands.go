// Package app provides the gravyvalet command-line application.
package app

import (
	"github.com/spf13/cobra"

	"github.com/CenterForOpenScience/gravyvalet/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:               "gravyvalet",
	DisableAutoGenTag: true,
	Short:             "gravyvalet brokers third-party addon integrations for the OSF",
	Long: `gravyvalet is the addon gateway for the Open Science Framework: it holds
encrypted third-party credentials, drives OAuth handshakes and token refresh,
and exposes a uniform operation API over cloud storage, citation, computing,
and link-resolver providers.

Configuration comes from GRAVYVALET_* environment variables; see the README
for the full list.`,
	Run: func(cmd *cobra.Command, _ []string) {
		if err := cmd.Help(); err != nil {
			logger.Errorf("displaying help: %v", err)
		}
	},
}

// NewRootCmd creates the root command for the gravyvalet CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(newRotateEncryptionCmd())
	return rootCmd
}

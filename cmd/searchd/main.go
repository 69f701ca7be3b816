// Command searchd serves document collections over HTTP and applies
// document events from Kafka.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "searchd",
		Short:         "In-memory full-text search service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().String("config", "configs/development.yaml", "path to config file")
	cmd.AddCommand(newServeCmd(), newPublishCmd())
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

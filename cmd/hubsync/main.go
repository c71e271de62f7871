// Command hubsync mirrors Content Hub entities into JSON snapshot files.
package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	configPath string
}

func main() {
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		log.Printf("[HubSync] %v", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "hubsync",
		Short: "Incremental Content Hub to JSON snapshot sync",
		Long: `HubSync downloads the entities changed since the last run of every
configured entity type and writes them as numbered JSON chunk files into the
incoming folder.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to the config file")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newWatermarkCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))

	return cmd
}

package cli

import (
	"github.com/spf13/cobra"

	"github.com/jacq-os/jacq/internal/config"
)

var (
	configPath string
	settings   = config.New()
)

var rootCmd = &cobra.Command{
	Use:   "jacq",
	Short: "Long-term memory for a personal assistant",
	Long: "jacq keeps a temporal knowledge graph of what the assistant has learned about its owner " +
		"and turns it into a compact context block for every request.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ~/.jacq/config.toml)")
	flags.String("db", "", "database path (default ~/.jacq/jacq.db)")
	flags.String("owner", "", "owner whose memory to use")
	_ = settings.BindPFlag("database.path", flags.Lookup("db"))
	_ = settings.BindPFlag("owner", flags.Lookup("owner"))

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(maintainCmd)
	rootCmd.AddCommand(entityCmd)
	rootCmd.AddCommand(factCmd)
	rootCmd.AddCommand(hookCmd)
}

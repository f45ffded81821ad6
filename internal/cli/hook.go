package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jacq-os/jacq/internal/config"
	"github.com/jacq-os/jacq/internal/hooks"
)

var hookCmd = &cobra.Command{
	Use:   "hook [start|submit|end]",
	Short: "Handle assistant host hook events",
	Long: "Read a hook event as JSON on stdin and answer on stdout. start and submit inject memory " +
		"context from the running server; end records the session as an interaction. " +
		"JACQ_URL overrides the server address.",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"start", "submit", "end"},
	RunE:      runHook,
}

func runHook(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadWith(settings, configPath)
	if err != nil {
		// Hooks must never break the host.
		fmt.Fprintf(os.Stderr, "jacq hook: %v\n", err)
		cfg = config.Default()
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		log = zap.NewNop()
	}
	defer log.Sync()

	url := os.Getenv("JACQ_URL")
	if url == "" {
		url = "http://" + cfg.ListenAddr()
	}
	h := &hooks.Handler{
		Client: hooks.NewClient(url),
		Owner:  cfg.Owner,
		Out:    cmd.OutOrStdout(),
		Log:    log.Named("hook"),
	}
	return h.Handle(cmd.Context(), args[0], cmd.InOrStdin())
}

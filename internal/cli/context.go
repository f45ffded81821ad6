package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jacq-os/jacq/internal/router"
)

var contextJSON bool

var contextCmd = &cobra.Command{
	Use:   "context [query]",
	Short: "Print the memory context for a query",
	Long:  "Retrieve what jacq remembers about the entities a query mentions and print it as a narrative block.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runContext,
}

var routeCmd = &cobra.Command{
	Use:   "route [text]",
	Short: "Show which capability would handle a request",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		printDecision(cmd.OutOrStdout(), router.Route(strings.Join(args, " ")))
	},
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run one lifecycle maintenance batch",
	Long:  "Promote frequently used facts, clean up decayed ones and settle contradictions.",
	RunE:  runMaintain,
}

func init() {
	contextCmd.Flags().BoolVar(&contextJSON, "json", false, "Print the full memory context as JSON")
}

func runContext(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	if err := a.enableEmbeddings(ctx); err != nil {
		a.log.Warn("embeddings disabled", zap.Error(err))
	}
	if _, err := a.engine.EmbedMissing(ctx, a.cfg.Owner); err != nil {
		a.log.Warn("embed missing", zap.Error(err))
	}

	mc := a.engine.Retrieve(ctx, a.cfg.Owner, query)
	out := cmd.OutOrStdout()
	if contextJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(mc)
	}
	if mc.Narrative == "" {
		fmt.Fprintln(out, "No memories found.")
		return nil
	}
	fmt.Fprintln(out, mc.Narrative)
	fmt.Fprintf(out, "\n(%d facts, %d hops, ~%d tokens)\n", len(mc.Facts), mc.HopDepth, mc.TokenEstimate)
	return nil
}

func runMaintain(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	rep, err := a.engine.RunMaintenance(cmd.Context())
	if err != nil {
		return fmt.Errorf("maintenance: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(),
		"evaluated %d: promoted %d, cleaned up %d, superseded %d, skipped %d, conflicts %d, failures %d (%s)\n",
		rep.Evaluated, rep.Promoted, rep.CleanedUp, rep.Superseded, rep.Skipped, rep.Conflicts, rep.Failures,
		rep.Duration.Round(time.Millisecond))
	return nil
}

func printDecision(w io.Writer, d router.Decision) {
	fmt.Fprintf(w, "primary:    %s (%.2f)\n", d.Primary, d.Confidence)
	if len(d.Secondary) > 0 {
		names := make([]string, len(d.Secondary))
		for i, c := range d.Secondary {
			names[i] = string(c)
		}
		fmt.Fprintf(w, "secondary:  %s\n", strings.Join(names, ", "))
	}
	fmt.Fprintf(w, "summary:    %s\n", d.Summary)
	fmt.Fprintf(w, "memory:     %t\n", d.RequiresMemory)
}

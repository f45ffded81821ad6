package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacq-os/jacq/internal/memory"
)

var (
	factObjectID   string
	factConfidence float64
	factSource     string
	factProvenance string
)

var factCmd = &cobra.Command{
	Use:   "fact",
	Short: "Manage facts",
}

var factAddCmd = &cobra.Command{
	Use:   "add [subject-id] [predicate] [value]",
	Short: "Add a fact about an entity",
	Long: "Add a staged fact. Give a literal value as the third argument, or point at another entity with --object. " +
		"Confident facts supersede contradicting confirmed ones.",
	Args: cobra.MinimumNArgs(2),
	RunE: runFactAdd,
}

var factTouchCmd = &cobra.Command{
	Use:   "touch [fact-id]",
	Short: "Record an access to a fact",
	Args:  cobra.ExactArgs(1),
	RunE:  runFactTransition("touch"),
}

var factPromoteCmd = &cobra.Command{
	Use:   "promote [fact-id]",
	Short: "Confirm a staged fact",
	Args:  cobra.ExactArgs(1),
	RunE:  runFactTransition("promote"),
}

var factRetractCmd = &cobra.Command{
	Use:   "retract [fact-id]",
	Short: "Retract a fact",
	Args:  cobra.ExactArgs(1),
	RunE:  runFactTransition("retract"),
}

func init() {
	factAddCmd.Flags().StringVar(&factObjectID, "object", "", "Entity ID the fact points at")
	factAddCmd.Flags().Float64VarP(&factConfidence, "confidence", "c", 0.8, "Confidence in [0, 1]")
	factAddCmd.Flags().StringVar(&factSource, "source", string(memory.SourceUserEdit), "Source: user_edit, file, system or conversation")
	factAddCmd.Flags().StringVar(&factProvenance, "provenance", string(memory.ProvenanceExplicit), "Provenance: explicit, inference or import")

	factCmd.AddCommand(factAddCmd)
	factCmd.AddCommand(factTouchCmd)
	factCmd.AddCommand(factPromoteCmd)
	factCmd.AddCommand(factRetractCmd)
}

func runFactAdd(cmd *cobra.Command, args []string) error {
	value := strings.Join(args[2:], " ")
	if (value == "") == (factObjectID == "") {
		return fmt.Errorf("give either a value or --object")
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.engine.AddFact(cmd.Context(), memory.Fact{
		OwnerID:    a.cfg.Owner,
		SubjectID:  args[0],
		Predicate:  args[1],
		Object:     memory.ObjectFromColumns(factObjectID, value),
		Confidence: factConfidence,
		Source:     memory.Source(factSource),
		Provenance: memory.Provenance(factProvenance),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	printFact(out, res.Fact)
	for _, id := range res.Superseded {
		fmt.Fprintf(out, "  superseded %s\n", id)
	}
	for _, id := range res.Skipped {
		fmt.Fprintf(out, "  left staged rival %s\n", id)
	}
	for _, id := range res.Deferred {
		fmt.Fprintf(out, "  deferred %s to maintenance\n", id)
	}
	return nil
}

func runFactTransition(action string) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		var f *memory.Fact
		switch action {
		case "touch":
			f, err = a.engine.TouchFact(ctx, args[0])
		case "promote":
			f, err = a.engine.PromoteFact(ctx, args[0])
		default:
			f, err = a.engine.RetractFact(ctx, args[0])
		}
		if err != nil {
			return err
		}
		printFact(cmd.OutOrStdout(), *f)
		return nil
	}
}

func printFact(w io.Writer, f memory.Fact) {
	fmt.Fprintf(w, "%s\t%s %s %s [%s, %.2f, %d accesses]\n",
		f.ID, f.SubjectID, f.Predicate, f.Object, f.Status, f.Confidence, f.AccessCount)
}

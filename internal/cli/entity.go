package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jacq-os/jacq/internal/memory"
)

var (
	entityID      string
	entityType    string
	entityAliases []string
)

var entityCmd = &cobra.Command{
	Use:   "entity",
	Short: "Manage entities",
}

var entityAddCmd = &cobra.Command{
	Use:   "add [name]",
	Short: "Add an entity",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runEntityAdd,
}

var entityListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the owner's entities",
	RunE:  runEntityList,
}

func init() {
	entityAddCmd.Flags().StringVar(&entityID, "id", "", "Entity ID (default: generated)")
	entityAddCmd.Flags().StringVarP(&entityType, "type", "t", string(memory.EntityConcept), "Entity type: person, project, concept, decision or preference")
	entityAddCmd.Flags().StringSliceVarP(&entityAliases, "alias", "a", nil, "Alternate name (repeatable)")

	entityCmd.AddCommand(entityAddCmd)
	entityCmd.AddCommand(entityListCmd)
}

func runEntityAdd(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if err := a.enableEmbeddings(ctx); err != nil {
		a.log.Warn("embeddings disabled", zap.Error(err))
	}
	ent, err := a.engine.AddEntity(ctx, memory.Entity{
		ID:      entityID,
		OwnerID: a.cfg.Owner,
		Type:    memory.EntityType(entityType),
		Name:    strings.Join(args, " "),
		Aliases: entityAliases,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s (%s)\n", ent.ID, ent.Name, ent.Type)
	return nil
}

func runEntityList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	entities, err := a.db.ListEntities(cmd.Context(), a.cfg.Owner)
	if err != nil {
		return fmt.Errorf("list entities: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(entities) == 0 {
		fmt.Fprintln(out, "No entities yet.")
		return nil
	}
	for _, e := range entities {
		line := fmt.Sprintf("%s\t%s (%s)", e.ID, e.Name, e.Type)
		if len(e.Aliases) > 0 {
			line += " aka " + strings.Join(e.Aliases, ", ")
		}
		fmt.Fprintf(out, "%s\t%d mentions\n", line, e.MentionCount)
	}
	return nil
}

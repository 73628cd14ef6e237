package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/dodgybits/shuffle/internal/store"
	"github.com/dodgybits/shuffle/internal/types"
)

var listLimit int

var listCmd = &cobra.Command{
	Use:       "list {contexts|projects|tasks|runs}",
	Short:     "List stored entities or sync runs",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"contexts", "projects", "tasks", "runs"},
	RunE:      runList,
}

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum number of sync runs to show")
}

func runList(cmd *cobra.Command, args []string) error {
	_, db, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	switch args[0] {
	case "contexts":
		items, err := db.Contexts().List(ctx)
		if err != nil {
			return err
		}
		return printList(cmd, items, "ID\tREMOTE\tNAME\tACTIVE\tMODIFIED", func(c types.Context) string {
			return fmt.Sprintf("%s\t%s\t%s\t%t\t%s",
				c.LocalID, idCell(c.RemoteID), c.Name, c.Active, formatTime(c.ModifiedAt))
		})
	case "projects":
		items, err := db.Projects().List(ctx)
		if err != nil {
			return err
		}
		return printList(cmd, items, "ID\tREMOTE\tNAME\tCONTEXT\tARCHIVED", func(p types.Project) string {
			return fmt.Sprintf("%s\t%s\t%s\t%s\t%t",
				p.LocalID, idCell(p.RemoteID), p.Name, idCell(p.DefaultContextID), p.Archived)
		})
	case "tasks":
		items, err := db.Tasks().List(ctx)
		if err != nil {
			return err
		}
		return printList(cmd, items, "ID\tREMOTE\tDESCRIPTION\tPROJECT\tCONTEXT\tCOMPLETE", func(t types.Task) string {
			return fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%t",
				t.LocalID, idCell(t.RemoteID), t.Description,
				idCell(t.ProjectID), idCell(t.ContextID), t.Complete)
		})
	default:
		return listRuns(cmd, db)
	}
}

func listRuns(cmd *cobra.Command, db *store.SQLiteStore) error {
	if listLimit < 1 {
		return fmt.Errorf("--limit must be positive, got %d", listLimit)
	}
	runs, err := db.ListSyncRuns(cmd.Context(), listLimit)
	if err != nil {
		return err
	}
	return printList(cmd, runs, "ID\tSTARTED\tSTATUS\tADDED\tUPDATED\tREASSIGNED\tDELETED\tERROR", func(r types.SyncRun) string {
		return fmt.Sprintf("%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s",
			r.ID, formatTime(r.StartedAt), r.Status, r.Added, r.Updated, r.Reassigned, r.Deleted, orDash(r.Error))
	})
}

func printList[E any](cmd *cobra.Command, items []E, header string, row func(E) string) error {
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), types.ListResponse[E]{Items: items, Total: len(items)})
	}

	if len(items) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing found.")
		return nil
	}

	w := newTabWriter(cmd.OutOrStdout())
	fmt.Fprintln(w, header)
	for _, item := range items {
		fmt.Fprintln(w, row(item))
	}
	return w.Flush()
}

func idCell(id types.ID) string {
	if !id.IsSet() {
		return "-"
	}
	return strconv.FormatInt(int64(id), 10)
}

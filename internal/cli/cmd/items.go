package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zfogg/daybook/internal/cli/client"
	"github.com/zfogg/daybook/internal/dto"
	"github.com/zfogg/daybook/internal/models"
)

const (
	uuidLength    = 36
	shortIDLength = 8
	resolvePage   = 100
)

func shortID(id string) string {
	if len(id) > shortIDLength {
		return id[:shortIDLength]
	}
	return id
}

func newItemsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "items",
		Aliases: []string{"item", "progress"},
		Short:   "Manage progress items",
	}
	cmd.AddCommand(newItemsListCmd(a), newItemsAddCmd(a), newItemsDoneCmd(a), newItemsRmCmd(a))
	return cmd
}

func newItemsListCmd(a *app) *cobra.Command {
	var f client.ItemFilter

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List progress items",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, meta, err := a.client.ListItems(cmd.Context(), f)
			if err != nil {
				return err
			}
			if a.printer.JSON() {
				return a.printer.Data(items)
			}
			if len(items) == 0 {
				a.printer.Info("No progress items")
				return nil
			}
			rows := make([][]string, 0, len(items))
			for _, it := range items {
				due := "-"
				if it.DueDate != nil {
					due = *it.DueDate
				}
				rows = append(rows, []string{
					shortID(it.ID), string(it.Quadrant), string(it.Status),
					strconv.Itoa(it.Progress) + "%", due, it.Title,
				})
			}
			a.printer.Table([]string{"ID", "QUADRANT", "STATUS", "PROGRESS", "DUE", "TITLE"}, rows)
			if meta != nil && meta.HasMore {
				a.printer.Info("Showing %d of %d, use --offset %d for more", meta.Count, meta.Total, meta.Offset+meta.Count)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "Filter by status (todo, in_progress, done)")
	cmd.Flags().StringVar(&f.Quadrant, "quadrant", "", "Filter by quadrant (do, schedule, delegate, eliminate)")
	cmd.Flags().StringVarP(&f.Query, "query", "q", "", "Filter by title text")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "Maximum items to list")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "Items to skip")
	return cmd
}

func newItemsAddCmd(a *app) *cobra.Command {
	var (
		important, urgent bool
		due, description  string
	)

	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a progress item",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validDate(due); err != nil {
				return err
			}
			req := dto.CreateProgressItemRequest{
				Title:       strings.Join(args, " "),
				Description: description,
				Important:   important,
				Urgent:      urgent,
			}
			if due != "" {
				req.DueDate = &due
			}

			item, err := a.client.CreateItem(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.printer.JSON() {
				return a.printer.Data(item)
			}
			a.printer.Success("Added %s [%s] %s", shortID(item.ID), item.Quadrant, item.Title)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&important, "important", "i", false, "Mark as important")
	cmd.Flags().BoolVarP(&urgent, "urgent", "u", false, "Mark as urgent")
	cmd.Flags().StringVar(&due, "due", "", "Due date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&description, "description", "", "Longer description")
	return cmd
}

func newItemsDoneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "done <id>",
		Short: "Complete a progress item (full ID or unique prefix)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveItemID(cmd.Context(), a.client, args[0])
			if err != nil {
				return err
			}
			item, err := a.client.CompleteItem(cmd.Context(), id)
			if err != nil {
				return err
			}
			if a.printer.JSON() {
				return a.printer.Data(item)
			}
			a.printer.Success("Completed %s", item.Title)
			return nil
		},
	}
}

func newItemsRmCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a progress item (full ID or unique prefix)",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := resolveItemID(cmd.Context(), a.client, args[0])
			if err != nil {
				return err
			}
			if err := a.client.DeleteItem(cmd.Context(), id); err != nil {
				return err
			}
			if a.printer.JSON() {
				return a.printer.Data(map[string]interface{}{"id": id, "deleted": true})
			}
			a.printer.Success("Deleted %s", shortID(id))
			return nil
		},
	}
}

// resolveItemID expands a short ID prefix to the one item it names
func resolveItemID(ctx context.Context, cl *client.Client, ref string) (string, error) {
	ref = strings.ToLower(strings.TrimSpace(ref))
	if len(ref) == uuidLength {
		return ref, nil
	}
	if ref == "" {
		return "", fmt.Errorf("an item ID is required")
	}

	var matches []models.ProgressItem
	f := client.ItemFilter{Limit: resolvePage}
	for {
		items, meta, err := cl.ListItems(ctx, f)
		if err != nil {
			return "", err
		}
		for _, it := range items {
			if strings.HasPrefix(it.ID, ref) {
				matches = append(matches, it)
			}
		}
		if meta == nil || !meta.HasMore || len(items) == 0 {
			break
		}
		f.Offset += len(items)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no progress item matches %q", ref)
	case 1:
		return matches[0].ID, nil
	default:
		return "", fmt.Errorf("%q matches %d progress items, use a longer prefix", ref, len(matches))
	}
}

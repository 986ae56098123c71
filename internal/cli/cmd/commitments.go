package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zfogg/daybook/internal/cli/client"
	"github.com/zfogg/daybook/internal/models"
)

func newCommitmentsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "commitments",
		Aliases: []string{"commitment", "habits"},
		Short:   "Manage commitments and check-ins",
	}
	cmd.AddCommand(newCommitmentsListCmd(a), newCheckInCmd(a))
	return cmd
}

func newCommitmentsListCmd(a *app) *cobra.Command {
	var archived bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List commitments",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := a.client.ListCommitments(cmd.Context(), &archived)
			if err != nil {
				return err
			}
			if a.printer.JSON() {
				return a.printer.Data(list)
			}
			if len(list) == 0 {
				a.printer.Info("No commitments")
				return nil
			}
			rows := make([][]string, 0, len(list))
			for _, c := range list {
				rows = append(rows, []string{
					shortID(c.ID), strings.Join(c.Schedule.Names(), ","), c.StartDate, c.Title,
				})
			}
			a.printer.Table([]string{"ID", "SCHEDULE", "SINCE", "TITLE"}, rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&archived, "archived", false, "List archived commitments instead")
	return cmd
}

func newCheckInCmd(a *app) *cobra.Command {
	var date, note string

	cmd := &cobra.Command{
		Use:   "checkin <id|title>",
		Short: "Record a commitment as kept (today by default)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validDate(date); err != nil {
				return err
			}
			c, err := resolveCommitment(cmd.Context(), a.client, strings.Join(args, " "))
			if err != nil {
				return err
			}
			if date == "" {
				creds, err := a.tokens.Load()
				if err != nil {
					return err
				}
				tz := ""
				if creds != nil {
					tz = creds.Timezone
				}
				date = today(tz)
			}

			log, err := a.client.CheckIn(cmd.Context(), c.ID, date, note)
			if err != nil {
				return err
			}
			if a.printer.JSON() {
				return a.printer.Data(log)
			}
			a.printer.Success("Checked in %s for %s", c.Title, log.Date)
			return nil
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "Day to check in (YYYY-MM-DD, default today)")
	cmd.Flags().StringVarP(&note, "note", "n", "", "Optional note")
	return cmd
}

// resolveCommitment finds an active commitment by full ID, ID prefix or title
func resolveCommitment(ctx context.Context, cl *client.Client, ref string) (*models.Commitment, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("a commitment ID or title is required")
	}
	active := false
	list, err := cl.ListCommitments(ctx, &active)
	if err != nil {
		return nil, err
	}

	lower := strings.ToLower(ref)
	var matches []models.Commitment
	for _, c := range list {
		if c.ID == lower || strings.EqualFold(c.Title, ref) {
			return &c, nil
		}
		if strings.HasPrefix(c.ID, lower) {
			matches = append(matches, c)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no active commitment matches %q", ref)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%q matches %d commitments, use a longer prefix", ref, len(matches))
	}
}

package cmd

import (
	"errors"

	"github.com/spf13/cobra"
)

func newEventsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "events",
		Aliases: []string{"timeline"},
		Short:   "Browse timeline events",
	}
	cmd.AddCommand(newEventsListCmd(a))
	return cmd
}

func newEventsListCmd(a *app) *cobra.Command {
	var date, from, to string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events of a day, or of a range with --from and --to",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (from == "") != (to == "") {
				return errors.New("--from and --to must be given together")
			}
			if err := validDate(date); err != nil {
				return err
			}

			events, err := a.client.Timeline(cmd.Context(), date, from, to)
			if err != nil {
				return err
			}
			if a.printer.JSON() {
				return a.printer.Data(events)
			}
			if len(events) == 0 {
				a.printer.Info("No events")
				return nil
			}

			creds, _ := a.tokens.Load()
			tz := ""
			if creds != nil {
				tz = creds.Timezone
			}
			loc := loadLocation(tz)

			rows := make([][]string, 0, len(events))
			for _, e := range events {
				rows = append(rows, []string{
					shortID(e.ID), e.StartsAt.In(loc).Format(dateLayout), eventTime(e, loc), e.Title, e.Location,
				})
			}
			a.printer.Table([]string{"ID", "DATE", "TIME", "TITLE", "LOCATION"}, rows)
			return nil
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "Day to list (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&from, "from", "", "Range start (YYYY-MM-DD or RFC3339)")
	cmd.Flags().StringVar(&to, "to", "", "Range end, exclusive (YYYY-MM-DD or RFC3339)")
	return cmd
}

package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/zfogg/daybook/internal/cli/client"
	"github.com/zfogg/daybook/internal/cli/output"
	"github.com/zfogg/daybook/internal/models"
)

const dateLayout = "2006-01-02"

func validDate(s string) error {
	if s == "" {
		return nil
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return nil
}

func newDashboardCmd(a *app) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Show a day at a glance",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validDate(date); err != nil {
				return err
			}
			d, err := a.client.Dashboard(cmd.Context(), date)
			if err != nil {
				return err
			}
			if a.printer.JSON() {
				return a.printer.Data(d)
			}
			printDashboard(a.printer, d)
			return nil
		},
	}
	cmd.Flags().StringVarP(&date, "date", "d", "", "Day to show (YYYY-MM-DD, default today)")
	return cmd
}

func printDashboard(p *output.Printer, d *client.Dashboard) {
	p.Heading("%s (%s)", d.Date, d.Timezone)
	p.Line("%d events, %d/%d commitments kept, %d open items, %d completed today",
		d.Summary.Events, d.Summary.CommitmentsCompleted, d.Summary.CommitmentsScheduled,
		d.Summary.OpenItems, d.Summary.CompletedToday)

	loc := loadLocation(d.Timezone)
	p.Line("")
	p.Heading("Timeline")
	if len(d.Events) == 0 {
		p.Line("  nothing scheduled")
	}
	for _, e := range d.Events {
		p.Line("  %s  %s", eventTime(e, loc), e.Title)
	}

	p.Line("")
	p.Heading("Commitments")
	if len(d.Commitments) == 0 {
		p.Line("  none")
	}
	for _, s := range d.Commitments {
		if !s.Scheduled {
			continue
		}
		p.Line("  %s %s (streak %d)", output.Check(s.Completed), s.Commitment.Title, s.Streak)
	}

	p.Line("")
	p.Heading("Matrix")
	for _, q := range models.Quadrants {
		p.Line("  %-10s %d", q, d.Progress.Counts[q])
	}
	if len(d.Progress.Overdue) > 0 {
		p.Warning("%d overdue: %s", len(d.Progress.Overdue), itemTitles(d.Progress.Overdue))
	}
	if len(d.Progress.DueToday) > 0 {
		p.Info("Due today: %s", itemTitles(d.Progress.DueToday))
	}
}

func loadLocation(tz string) *time.Location {
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Local
	}
	return loc
}

// today is the current date in tz
func today(tz string) string {
	return time.Now().In(loadLocation(tz)).Format(dateLayout)
}

func eventTime(e models.TimelineEvent, loc *time.Location) string {
	if e.AllDay {
		return "all day    "
	}
	return e.StartsAt.In(loc).Format("15:04") + "-" + e.EndsAt.In(loc).Format("15:04")
}

func itemTitles(items []models.ProgressItem) string {
	titles := make([]string, 0, len(items))
	for _, it := range items {
		titles = append(titles, it.Title)
	}
	return strings.Join(titles, ", ")
}

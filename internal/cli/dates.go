package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ridequery/internal/model"
	"ridequery/internal/service"
)

var relativeTokens = []string{
	model.RelativeToday,
	model.RelativeTomorrow,
	model.RelativeThisWeekend,
	model.RelativeThisWeek,
	model.RelativeNextWeek,
}

func newDatesCmd(app *App) *cobra.Command {
	var today string

	cmd := &cobra.Command{
		Use:   "dates [token...]",
		Short: "Resolve relative date tokens to calendar ranges",
		Long: `Resolve relative date tokens against today (or --today) in the search timezone.
Without arguments every supported token is printed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := app.Config.Search.Location()
			now := time.Now().In(loc)
			if today != "" {
				d, err := service.ParseCalendarDate(today, loc)
				if err != nil {
					return err
				}
				now = d
			}

			tokens := args
			if len(tokens) == 0 {
				tokens = relativeTokens
			}

			out := cmd.OutOrStdout()
			for _, token := range tokens {
				r, ok := service.ResolveRelativeRange(token, now)
				if !ok {
					return fmt.Errorf("unknown date token %q (want one of %s)", token, strings.Join(relativeTokens, ", "))
				}
				label := service.DescribeRange(&model.DateQuery{Relative: token}, r)
				fmt.Fprintf(out, "%-13s %s  %s  %s\n", token, r.From.Format("2006-01-02"), r.To.Format("2006-01-02"), label)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&today, "today", "", "anchor date as YYYY-MM-DD")
	return cmd
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Leganyst/cleaning-platform/internal/estimate"
	"github.com/Leganyst/cleaning-platform/internal/model"
	"github.com/Leganyst/cleaning-platform/internal/pricing"
)

func newEstimateCmd() *cobra.Command {
	var (
		in          estimate.Input
		pace        string
		serviceType string
	)
	c := &cobra.Command{
		Use:   "estimate",
		Short: "Estimate cleaning duration and price",
		RunE: func(cmd *cobra.Command, args []string) error {
			in.Pace = estimate.Pace(pace)
			res := estimate.Estimate(in)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "duration: %sh\n", res.Hours)
			if res.InputClamped {
				fmt.Fprintln(out, "note: some inputs were out of range and were clamped")
			}
			if res.OutputClamped {
				fmt.Fprintf(out, "note: raw estimate %.2fh was clamped\n", res.Raw)
			}

			if serviceType == "" {
				return nil
			}
			st, err := model.ParseServiceType(serviceType)
			if err != nil {
				return err
			}
			q, err := pricing.NewCalculator(nil).Quote(st, res.Hours)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "price: %s (%s/h)\n", q.Total.StringFixed(2), q.HourlyRate.StringFixed(2))
			return nil
		},
	}
	c.Flags().Float64Var(&in.PropertySizeM2, "size", 60, "property size, m2")
	c.Flags().IntVar(&in.Bedrooms, "bedrooms", 1, "number of bedrooms")
	c.Flags().IntVar(&in.Bathrooms, "bathrooms", 1, "number of bathrooms")
	c.Flags().IntVar(&in.DirtinessLevel, "dirtiness", 0, "dirtiness level 0..3")
	c.Flags().IntVar(&in.MonthsSinceLastClean, "months", 0, "months since last professional clean")
	c.Flags().StringVar(&pace, "pace", string(estimate.PaceStandard), "standard or quick")
	c.Flags().StringVar(&serviceType, "service-type", "", "service type for a price quote (regular, deep, move_in_out, business, construction)")
	return c
}

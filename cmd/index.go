package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/cleancredit/internal/dirtiness"
	"github.com/sells-group/cleancredit/internal/geo"
)

var indexCmd = &cobra.Command{
	Use:         "index",
	Short:       "Estimate the dirtiness index at a coordinate",
	Annotations: validates("estimator"),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		lat, _ := cmd.Flags().GetFloat64("lat")
		lng, _ := cmd.Flags().GetFloat64("lng")
		asJSON, _ := cmd.Flags().GetBool("json")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		e, err := loadEstimator(ctx, st)
		if err != nil {
			return err
		}

		est := e.Estimate(lat, lng)
		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(est)
		}

		_, _ = fmt.Fprintf(out, "dirtiness %.3f (%s, %s, nearest %.2f km)\n",
			est.Score, dirtiness.Band(est.Score), geo.ClassifyProximity(est.NearestKM, est.Shortcut), est.NearestKM)
		return nil
	},
}

func init() {
	indexCmd.Flags().Float64("lat", 0, "latitude")
	indexCmd.Flags().Float64("lng", 0, "longitude")
	indexCmd.Flags().Bool("json", false, "print the full estimate as JSON")
	_ = indexCmd.MarkFlagRequired("lat")
	_ = indexCmd.MarkFlagRequired("lng")
	rootCmd.AddCommand(indexCmd)
}

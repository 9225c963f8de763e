package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cleancredit/internal/reward"
)

var rewardCmd = &cobra.Command{
	Use:         "reward",
	Short:       "Compute the reward for a classified cleanup",
	Long:        "Scores a cleanup from a citizen category, a waste classification and a dirtiness index. Pass --lat/--lng instead of --index to derive the index from the observation store.",
	Annotations: validates("reward"),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		citizen, _ := cmd.Flags().GetString("citizen")
		class, _ := cmd.Flags().GetString("class")
		index, _ := cmd.Flags().GetFloat64("index")
		asJSON, _ := cmd.Flags().GetBool("json")

		if !cmd.Flags().Changed("index") {
			if !cmd.Flags().Changed("lat") || !cmd.Flags().Changed("lng") {
				return eris.New("either --index or both --lat and --lng are required")
			}
			lat, _ := cmd.Flags().GetFloat64("lat")
			lng, _ := cmd.Flags().GetFloat64("lng")
			if err := cfg.Validate("estimator"); err != nil {
				return err
			}

			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck

			e, err := loadEstimator(ctx, st)
			if err != nil {
				return err
			}
			index = e.Index(lat, lng)
		}

		q := reward.Query{
			Citizen:        reward.ParseCitizenCategory(citizen),
			Class:          reward.ParseClassification(class),
			DirtinessIndex: index,
		}
		if err := q.Validate(); err != nil {
			return err
		}

		res := loadEngine().Score(q)
		out := cmd.OutOrStdout()
		if asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		}

		_, _ = fmt.Fprintln(out, res.String())
		_, _ = fmt.Fprintf(out, "  base %.2f + cleanliness bonus %.2f (index %.3f, %s)\n",
			res.Base, res.Bonus, index, res.Source)
		return nil
	},
}

func init() {
	rewardCmd.Flags().String("citizen", "", "citizen category (taxpayer or ration_holder)")
	rewardCmd.Flags().String("class", "", "waste classification (recyclable or trash)")
	rewardCmd.Flags().Float64("index", 0, "dirtiness index in [0,1]")
	rewardCmd.Flags().Float64("lat", 0, "latitude to derive the index from")
	rewardCmd.Flags().Float64("lng", 0, "longitude to derive the index from")
	rewardCmd.Flags().Bool("json", false, "print the result as JSON")
	_ = rewardCmd.MarkFlagRequired("citizen")
	_ = rewardCmd.MarkFlagRequired("class")
	rootCmd.AddCommand(rewardCmd)
}

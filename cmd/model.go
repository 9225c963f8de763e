package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/cleancredit/internal/reward"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Inspect the reward model",
}

var modelCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Load the reward model and score a sample grid against the rule",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("path")
		if path == "" {
			path = cfg.Reward.ModelPath
		}

		m, err := reward.LoadModel(path)
		if err != nil {
			return eris.Wrap(err, "model check")
		}

		withModel := reward.NewEngine(m)
		ruleOnly := reward.NewEngine(nil)
		out := cmd.OutOrStdout()
		_, _ = fmt.Fprintf(out, "model %s loaded\n", path)

		var fallbacks int
		for _, q := range sampleQueries() {
			got := withModel.Score(q)
			want := ruleOnly.Score(q)
			if got.Source == reward.SourceRule {
				fallbacks++
			}
			_, _ = fmt.Fprintf(out, "  %-13s %-10s index=%.2f  model=%7.2f  rule=%7.2f  (%s)\n",
				q.Citizen, q.Class, q.DirtinessIndex, got.Value, want.Value, got.Source)
		}
		if fallbacks > 0 {
			return eris.Errorf("model fell back to the rule on %d sample queries", fallbacks)
		}
		return nil
	},
}

func init() {
	modelCheckCmd.Flags().String("path", "", "model file (default reward.model_path)")
	modelCmd.AddCommand(modelCheckCmd)
	rootCmd.AddCommand(modelCmd)
}

func sampleQueries() []reward.Query {
	var qs []reward.Query
	for _, c := range []reward.CitizenCategory{reward.Taxpayer, reward.RationHolder} {
		for _, cl := range []reward.Classification{reward.Recyclable, reward.Trash} {
			for _, idx := range []float64{0, 0.5, 1} {
				qs = append(qs, reward.Query{Citizen: c, Class: cl, DirtinessIndex: idx})
			}
		}
	}
	return qs
}

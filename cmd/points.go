package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cleancredit/internal/api"
	"github.com/sells-group/cleancredit/internal/dirtiness"
	"github.com/sells-group/cleancredit/internal/store"
)

var pointsCmd = &cobra.Command{
	Use:   "points",
	Short: "Manage dirtiness observations",
}

var pointsListCmd = &cobra.Command{
	Use:         "list",
	Short:       "List stored observations",
	Annotations: validates("store"),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		obs, err := store.LoadOrSeed(ctx, st)
		if err != nil {
			return err
		}
		formatObservations(cmd.OutOrStdout(), obs)
		return nil
	},
}

var pointsSeedCmd = &cobra.Command{
	Use:         "seed",
	Short:       "Write the default observation set",
	Annotations: validates("store"),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		force, _ := cmd.Flags().GetBool("force")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		existing, err := st.LoadObservations(ctx)
		if err != nil && !errors.Is(err, store.ErrNoObservationSet) {
			return eris.Wrap(err, "points seed: load")
		}
		if len(existing) > 0 && !force {
			return eris.Errorf("store already holds %d observations (use --force to replace)", len(existing))
		}

		seed := dirtiness.Seed()
		if err := st.SaveObservations(ctx, seed); err != nil {
			return eris.Wrap(err, "points seed: save")
		}
		zap.L().Info("seeded observations", zap.Int("count", len(seed)), zap.Int("replaced", len(existing)))
		return nil
	},
}

var pointsExportCmd = &cobra.Command{
	Use:         "export",
	Short:       "Export observations as JSON or GeoJSON",
	Annotations: validates("store"),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		format, _ := cmd.Flags().GetString("format")
		outPath, _ := cmd.Flags().GetString("out")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		obs, err := store.LoadOrSeed(ctx, st)
		if err != nil {
			return err
		}

		data, err := encodeObservations(obs, format)
		if err != nil {
			return err
		}

		if outPath == "" {
			_, err = cmd.OutOrStdout().Write(append(data, '\n'))
			return err
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return eris.Wrapf(err, "points export: write %s", outPath)
		}
		zap.L().Info("exported observations", zap.String("path", outPath), zap.String("format", format))
		return nil
	},
}

func init() {
	pointsSeedCmd.Flags().Bool("force", false, "replace existing observations")
	pointsExportCmd.Flags().String("format", "json", "output format (json or geojson)")
	pointsExportCmd.Flags().String("out", "", "output file (default stdout)")

	pointsCmd.AddCommand(pointsListCmd, pointsSeedCmd, pointsExportCmd)
	rootCmd.AddCommand(pointsCmd)
}

func encodeObservations(obs []dirtiness.Observation, format string) ([]byte, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(obs, "", "  ")
		return data, eris.Wrap(err, "points export: encode json")
	case "geojson":
		data, err := api.FeatureCollection(obs).MarshalJSON()
		return data, eris.Wrap(err, "points export: encode geojson")
	default:
		return nil, eris.Errorf("unsupported format %q (json, geojson)", format)
	}
}

func formatObservations(out io.Writer, obs []dirtiness.Observation) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tLAT\tLNG\tSCORE\tBAND")
	_, _ = fmt.Fprintln(w, "-\t---\t---\t-----\t----")
	for i, o := range obs {
		_, _ = fmt.Fprintf(w, "%d\t%.4f\t%.4f\t%.2f\t%s\n", i+1, o.Lat, o.Lng, o.Score, dirtiness.Band(o.Score))
	}
	_ = w.Flush()
}

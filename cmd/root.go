package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/cleancredit/internal/config"
)

// validateAnnotation names the config.Validate mode a command needs.
// Commands without it (model check, help) run on any config.
const validateAnnotation = "cleancredit/validate"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "cleancredit",
	Short: "Dirtiness estimation and cleanup reward scoring",
	Long:  "Estimates locality dirtiness from geotagged samples and converts waste classifications into citizen reward credits.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}

		if mode, ok := cmd.Annotations[validateAnnotation]; ok {
			if err := cfg.Validate(mode); err != nil {
				zap.L().Error("invalid config", zap.String("command", cmd.CommandPath()), zap.Error(err))
				return eris.Wrapf(err, "%s", cmd.CommandPath())
			}
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// validates marks cmd as needing the given config.Validate mode.
func validates(mode string) map[string]string {
	return map[string]string{validateAnnotation: mode}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

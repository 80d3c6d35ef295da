package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/veil/internal/config"
	"github.com/andresmejia3/veil/internal/logging"
	"github.com/andresmejia3/veil/internal/utils"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	// Cfg is the loaded configuration shared by subcommands.
	Cfg *config.Config

	cfgFile   string
	settings  *viper.Viper = config.New()
	logCloser io.Closer
)

// flagKeys maps command-line flags to config keys. A flag only overrides the
// config when it is set explicitly.
var flagKeys = map[string]string{
	"log-level":      "log.level",
	"log-format":     "log.format",
	"log-file":       "log.file",
	"input":          "source.input",
	"format":         "source.format",
	"source":         "source.kind",
	"frame-width":    "source.width",
	"frame-height":   "source.height",
	"fps":            "source.fps",
	"detector":       "detector.backend",
	"script":         "detector.script",
	"cascade":        "detector.cascade",
	"accuracy":       "detector.accuracy",
	"max-faces":      "detector.max_results",
	"min-face":       "detector.min_face_size",
	"display-width":  "display.width",
	"display-height": "display.height",
	"fit":            "display.fit",
	"orient":         "display.orientation",
	"blur":           "blur.enabled",
	"style":          "blur.style",
	"strength":       "blur.strength",
	"outline":        "blur.outline",
	"policy":         "pipeline.policy",
	"output":         "output.target",
}

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "veil",
	Short:   "Live face blur overlay pipeline",
	Version: Version,
	// Errors are printed once, either by the command's own error box or by Execute.
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadDotEnv(""); err != nil {
			return err
		}

		var bindErr error
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			if key, ok := flagKeys[f.Name]; ok && bindErr == nil {
				bindErr = settings.BindPFlag(key, f)
			}
		})
		if bindErr != nil {
			return bindErr
		}

		cfg, err := config.Load(settings, cfgFile)
		if err != nil {
			return err
		}
		Cfg = cfg

		logCloser, err = logging.Init(logrus.StandardLogger(), cfg.Log)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func Execute() {
	// Cancel on Ctrl+C (SIGINT) or kill (SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !utils.Reported(err) {
			utils.ShowError("Command failed", err, nil)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (yaml, toml or json)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format: text, json, nested")
	rootCmd.PersistentFlags().String("log-file", "", "Also write logs to this rotating file")
}

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/antoinenguyen27/siren/pkg/config"
	"github.com/antoinenguyen27/siren/pkg/db"
	"github.com/antoinenguyen27/siren/pkg/logger"
	"github.com/antoinenguyen27/siren/pkg/presenter"
	"github.com/antoinenguyen27/siren/pkg/telemetry"
)

var (
	// cfg is loaded before any subcommand runs.
	cfg             config.Config
	shutdownTracing telemetry.ShutdownFunc
)

func init() {
	baseDir, err := db.BaseDir()
	if err != nil {
		baseDir = ".siren"
	}
	if err := config.Setup(viper.GetViper(), baseDir); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "siren",
	Short: "Voice-driven browser automation server",
	Long: `Siren learns browser skills from narrated demonstrations and replays them
when asked by voice. Run "siren serve" to start the API used by the browser extension.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		cfg = loaded

		if err := logger.SetLogLevel(cfg.Log.Level); err != nil {
			return err
		}
		logger.SetLogFormat(cfg.Log.Format)

		shutdownTracing, err = initTracing(cmd.Context(), cfg.Tracing)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if shutdownTracing == nil {
			return
		}
		if err := shutdownTracing(context.Background()); err != nil {
			logger.G(cmd.Context()).WithError(err).Warn("failed to flush traces")
		}
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (panic, fatal, error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().String("log-format", "fmt", "Log format (fmt or json)")
	rootCmd.PersistentFlags().Bool("quiet", false, "Suppress informational output")

	viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	cobra.OnInitialize(func() {
		if quiet, err := rootCmd.PersistentFlags().GetBool("quiet"); err == nil {
			presenter.SetQuiet(quiet)
		}
	})

	rootCmd.AddCommand(withTracing(serveCmd))
	rootCmd.AddCommand(skillsCmd)
	rootCmd.AddCommand(withTracing(historyCmd))
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		presenter.Error(err, "siren failed")
		os.Exit(1)
	}
}

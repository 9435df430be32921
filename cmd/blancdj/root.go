package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/blancdj/internal/config"
)

var (
	cfg          config.Config
	cfgFile      string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "blancdj",
	Short: "Two-deck live mixing engine",
	Long: `blancdj mixes two decks through a crossfader into a limited master bus
and routes the master to any number of output devices, a recording and
network listeners at once.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)
		if cmd.Name() == "version" {
			return nil
		}
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file (BLANCDJ_* env vars override it)")
	rootCmd.PersistentFlags().CountVarP(&verboseLevel, "verbose", "v", "more logging (-v debug, -vv debug with source)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(devicesCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(versionCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if level >= 1 {
		opts.Level = slog.LevelDebug
	}
	if level >= 2 {
		opts.AddSource = true
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
}

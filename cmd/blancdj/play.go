package main

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/blancdj/internal/recorder"
)

var playCmd = &cobra.Command{
	Use:   "play <deck-a-file> [deck-b-file]",
	Short: "Play one or two files headless and exit when they end",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		sinks, _ := flags.GetStringSlice("sink")
		recordDir, _ := flags.GetString("record")
		formatName, _ := flags.GetString("format")

		c := cfg
		if len(sinks) > 0 {
			c.Sinks = sinks
		}
		if flags.Changed("xfade") {
			c.Crossfade, _ = flags.GetFloat64("xfade")
		}
		if recordDir != "" {
			c.RecordDir = recordDir
		}
		if err := c.Validate(); err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()

		e, closeEngine := startEngine(c)
		defer closeEngine()
		e.SetAutoAdvance(false)

		decks := e.DeckIDs()[:len(args)]
		for i, path := range args {
			if err := e.LoadFile(decks[i], path); err != nil {
				return fmt.Errorf("deck %s: %w", decks[i], err)
			}
		}

		ended := make(chan string, len(decks))
		e.OnTrackEnd(func(id string) {
			select {
			case ended <- id:
			default:
			}
		})

		if recordDir != "" {
			if formatName == "" {
				formatName = c.RecordFormat
			}
			f, err := recorder.ParseFormat(formatName)
			if err != nil {
				return err
			}
			if _, err := e.Recorder.Start(f); err != nil {
				return err
			}
			defer func() {
				sess, err := e.Recorder.Stop()
				if err != nil {
					slog.Error("recording failed", "err", err)
					return
				}
				fmt.Fprintf(cmd.OutOrStdout(), "recorded %s (%.1fs)\n", sess.File, sess.Duration().Seconds())
			}()
		}

		go e.Run(ctx)
		for _, id := range decks {
			d, _ := e.Deck(id)
			d.Play()
		}

		for remaining := len(decks); remaining > 0; remaining-- {
			select {
			case <-ctx.Done():
				slog.Info("interrupted")
				return nil
			case id := <-ended:
				slog.Info("deck finished", "deck", id)
			}
		}
		return nil
	},
}

func init() {
	playCmd.Flags().StringSlice("sink", nil, "sink ids to route the master to (see 'blancdj devices')")
	playCmd.Flags().String("record", "", "record the mix into this directory")
	playCmd.Flags().String("format", "", "recording format: wav or opus (default from config)")
	playCmd.Flags().Float64("xfade", 0.5, "crossfader position, 0 = deck A only, 1 = deck B only")
}

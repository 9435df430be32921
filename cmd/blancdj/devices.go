package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/satindergrewal/blancdj/internal/router"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List output devices the master can be routed to",
	RunE: func(cmd *cobra.Command, args []string) error {
		pa, err := router.NewPortAudio()
		if err != nil {
			return err
		}
		defer pa.Close()

		sinks, err := pa.Devices()
		if err != nil {
			return fmt.Errorf("failed to list devices: %w", err)
		}
		def, _ := pa.DefaultSink()

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tLABEL\tDEFAULT")
		for _, s := range sinks {
			mark := ""
			if s.ID == def {
				mark = "*"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", s.ID, s.Label, mark)
		}
		return tw.Flush()
	},
}

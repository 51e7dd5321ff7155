package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/empath/internal/config"
	"github.com/MikeSquared-Agency/empath/internal/emotion"
)

func newVocabCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vocab",
		Short: "Print the label registry: native labels and their canonical targets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, _, err := loadFusion(cmd, config.ProfilePath())
			if err != nil {
				return err
			}
			reg := engine.Registry()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "MODALITY\tNATIVE\tCANONICAL")
			fmt.Fprintln(w, "--------\t------\t---------")
			for _, row := range reg.Table() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", row.Modality, row.Native, row.Canonical)
			}
			w.Flush()

			for _, m := range emotion.Modalities {
				if missing := reg.Unreachable(m); len(missing) > 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "\n%s never predicts: %s", m, strings.Join(missing, ", "))
				}
			}
			fmt.Fprintln(cmd.OutOrStdout())
			return nil
		},
	}
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/empath/internal/config"
	"github.com/MikeSquared-Agency/empath/internal/emotion"
	"github.com/MikeSquared-Agency/empath/internal/slots"
)

func newFuseCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "fuse <snapshot.json>",
		Short: "Fuse a saved snapshot of the three modality slots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := readSnapshot(args[0])
			if err != nil {
				return err
			}
			engine, adapter, err := loadFusion(cmd, config.ProfilePath())
			if err != nil {
				return err
			}
			res, err := engine.Fuse(snap)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintln(out, adapter.FromResult(res).Text)
			fmt.Fprintln(out)
			fmt.Fprintln(out, adapter.Detail(res))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw result as JSON")
	return cmd
}

func readSnapshot(path string) (slots.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return slots.Snapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snap slots.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return slots.Snapshot{}, fmt.Errorf("parse snapshot: %w", err)
	}
	// slots keyed by position may omit their modality
	for _, s := range []struct {
		slot *slots.Slot
		m    emotion.Modality
	}{{&snap.Face, emotion.Face}, {&snap.Audio, emotion.Audio}, {&snap.Text, emotion.Text}} {
		if s.slot.Modality == "" {
			s.slot.Modality = s.m
		}
	}
	return snap, nil
}

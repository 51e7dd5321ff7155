package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MikeSquared-Agency/empath/internal/config"
	"github.com/MikeSquared-Agency/empath/internal/fusion"
	"github.com/MikeSquared-Agency/empath/internal/present"
)

// loadFusion builds the engine and adapter from the --profile flag, falling
// back to the path in the environment.
func loadFusion(cmd *cobra.Command, fallback string) (*fusion.Engine, *present.Adapter, error) {
	path, _ := cmd.Flags().GetString("profile")
	if path == "" {
		path = fallback
	}
	profile, err := config.LoadProfile(path)
	if err != nil {
		return nil, nil, err
	}
	reg, err := profile.Registry()
	if err != nil {
		return nil, nil, fmt.Errorf("label registry: %w", err)
	}
	weights, err := profile.FusionWeights()
	if err != nil {
		return nil, nil, fmt.Errorf("fusion weights: %w", err)
	}
	engine, err := fusion.NewEngine(weights, reg)
	if err != nil {
		return nil, nil, err
	}
	return engine, present.NewAdapter(profile.Icons), nil
}

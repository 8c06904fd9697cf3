package main

import (
	"fmt"
	"os"

	"github.com/i5heu/geohive"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed [fixture.json]",
	Short: "Load owners, datasets, places and submissions from a JSON fixture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()

		return withInstance(cmd.Context(), func(g *geohive.GeoHive) error {
			stats, err := g.Seed(cmd.Context(), f)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d owners, %d datasets, %d places, %d submissions\n",
				stats.Owners, stats.Datasets, stats.Places, stats.Submissions)
			return nil
		})
	},
}

package main

import (
	"fmt"
	"strconv"

	"github.com/i5heu/geohive"
	"github.com/spf13/cobra"
)

var renameTo string

func init() {
	invalidateDatasetCmd.Flags().StringVar(&renameTo, "rename", "", "Change the dataset slug before invalidating")
	invalidateSetCmd.Flags().StringVar(&renameTo, "rename", "", "Rename the submission set before invalidating")
	_ = invalidateSetCmd.MarkFlagRequired("rename")

	invalidateCmd.AddCommand(invalidateDatasetCmd, invalidateSetCmd, invalidateAllCmd)
}

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Drop cached path parameters",
}

var invalidateDatasetCmd = &cobra.Command{
	Use:   "dataset [owner] [slug]",
	Short: "Drop the cached paths of a dataset and everything below it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withInstance(ctx, func(g *geohive.GeoHive) error {
			if renameTo != "" {
				if err := g.RenameDataset(ctx, args[0], args[1], renameTo); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "renamed %s/%s to %s\n", args[0], args[1], renameTo)
				return nil
			}
			n, err := g.InvalidateDataset(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "invalidated %d entries\n", n)
			return nil
		})
	},
}

var invalidateSetCmd = &cobra.Command{
	Use:   "set [place-id] [name]",
	Short: "Rename a submission set and drop the cached paths of its submissions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		placeID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("place id: %w", err)
		}
		ctx := cmd.Context()
		return withInstance(ctx, func(g *geohive.GeoHive) error {
			if err := g.RenameSubmissionSet(ctx, placeID, args[1], renameTo); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "renamed set %s on place %d to %s\n", args[1], placeID, renameTo)
			return nil
		})
	},
}

var invalidateAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Drop every cached path",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		return withInstance(ctx, func(g *geohive.GeoHive) error {
			return g.FlushCache(ctx)
		})
	},
}

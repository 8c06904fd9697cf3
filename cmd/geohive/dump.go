package main

import (
	"errors"
	"os"

	"github.com/i5heu/geohive"
	"github.com/i5heu/geohive/pkg/render"
	"github.com/spf13/cobra"
)

var dumpFlags struct {
	flags   render.Flags
	workers int
}

func init() {
	f := dumpCmd.Flags()
	f.BoolVar(&dumpFlags.flags.IncludePrivate, "include-private", false, "Include private attributes")
	f.BoolVar(&dumpFlags.flags.IncludeInvisible, "include-invisible", false, "Include invisible places and submissions")
	f.BoolVar(&dumpFlags.flags.IncludeSubmissions, "include-submissions", false, "Inline submissions instead of summaries")
	f.IntVarP(&dumpFlags.workers, "workers", "w", 0, "Datasets rendered in parallel (default: 3 per CPU)")
}

var dumpCmd = &cobra.Command{
	Use:   "dump [owner] [output.json.xz]",
	Short: "Render every dataset of an owner to an xz-compressed JSON file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := os.Create(args[1])
		if err != nil {
			return err
		}

		err = withInstance(cmd.Context(), func(g *geohive.GeoHive) error {
			return g.Dump(cmd.Context(), args[0], out, geohive.DumpOptions{
				Flags:   dumpFlags.flags,
				Workers: dumpFlags.workers,
			})
		})
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return errors.Join(err, os.Remove(args[1]))
		}
		return nil
	},
}

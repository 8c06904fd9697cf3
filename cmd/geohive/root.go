package main

import (
	"context"
	"fmt"
	"os"

	"github.com/i5heu/geohive"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "geohive",
	Short:         "Hierarchical geodata API",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level")

	rootCmd.AddCommand(serveCmd, seedCmd, dumpCmd, invalidateCmd)
}

func loadConfig() (geohive.Config, error) {
	var conf geohive.Config
	if configPath != "" {
		var err error
		if conf, err = geohive.LoadConfig(configPath); err != nil {
			return conf, err
		}
	}
	if logLevel != "" {
		conf.Log.Level = logLevel
	}
	return conf, nil
}

// open loads the config and starts an instance. The caller closes it.
func open(ctx context.Context) (*geohive.GeoHive, error) {
	conf, err := loadConfig()
	if err != nil {
		return nil, err
	}
	g, err := geohive.New(conf)
	if err != nil {
		return nil, err
	}
	if err := g.Start(ctx); err != nil {
		return nil, err
	}
	return g, nil
}

// withInstance runs fn against a started instance and closes it afterwards.
func withInstance(ctx context.Context, fn func(g *geohive.GeoHive) error) (err error) {
	g, err := open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := g.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(g)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

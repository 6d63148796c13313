package main

import (
	"fmt"
	"io"
	"os"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"mlserve/internal/config"
	"mlserve/internal/registry"
)

// options collects flag values; empty strings leave file/env values alone.
type options struct {
	configPath string
	logLevel   string
	addr       string
	storeDir   string
	dataDir    string
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "mlserve",
		Short:         "Train, store and serve ML models over HTTP",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to a .yaml/.yml/.toml/.json config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults MLSERVE_LOG_LEVEL or info)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(opts)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	for _, c := range []*cobra.Command{root, serve} {
		c.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (default :8000)")
		c.Flags().StringVar(&opts.storeDir, "store-dir", "", "Directory for model artifacts and metadata.json (default models)")
		c.Flags().StringVar(&opts.dataDir, "data-dir", "", "Directory for training data snapshots (default data)")
	}
	root.RunE = serve.RunE

	types := &cobra.Command{
		Use:   "types",
		Short: "Print the trainable model types as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := json.MarshalIndent(registry.Default().DescribeAll(), "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
	ver := &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "mlserve", version)
		},
	}
	root.AddCommand(serve, types, ver)
	return root
}

// resolveConfig layers file, environment and flags, then fills defaults.
func resolveConfig(opts *options) (config.Config, error) {
	var cfg config.Config
	if opts.configPath != "" {
		c, err := config.Load(opts.configPath)
		if err != nil {
			return cfg, err
		}
		cfg = c
	}
	if err := config.ApplyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.LogLevel, opts.logLevel)
	override(&cfg.Addr, opts.addr)
	override(&cfg.StoreDir, opts.storeDir)
	override(&cfg.DataDir, opts.dataDir)
	return config.ExpandPaths(config.WithDefaults(cfg))
}

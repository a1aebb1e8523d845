package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/AnatoleLucet/sigbridge/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the sigbridge CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "sigbridge",
		Short: "sigbridge - reactive bridge engine",
		Long:  "Tools to exercise the bridge between signal computations and component stores.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "log to stderr")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "", "config file")

	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}

// load reads the configuration and builds the logger the flags ask for.
func (o *RootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return nil, nil, err
	}

	if !o.Verbose {
		return cfg, zap.NewNop(), nil
	}

	log, err := cfg.NewLogger()
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/objectledge/coral/internal/config"
	"github.com/objectledge/coral/internal/ir"
	"github.com/objectledge/coral/internal/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string
	DBPath     string

	// Config is the effective configuration, loaded before any
	// subcommand runs.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the coral CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "coral",
		Version: ir.CoralVersion,
		Short:   "coral - resource schema and query tool",
		Long: `Manage a coral resource class graph and run RML queries against it.

Schemas are written in CUE and applied to a SQLite database. Queries use
the FIND RESOURCE language and are compiled to SQL.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup()
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default: coral.toml in the project)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "database path (overrides config)")

	// Add subcommands
	cmd.AddCommand(NewSchemaCommand(opts))
	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewConfigCommand(opts))

	return cmd
}

// setup validates the global flags, loads the configuration and
// initializes logging.
func (o *RootOptions) setup() error {
	if !isValidFormat(o.Format) {
		return fmt.Errorf("invalid format %q: must be one of %v", o.Format, ValidFormats)
	}

	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.DBPath != "" {
		cfg.Database.Path = o.DBPath
	}
	o.Config = cfg

	level := cfg.Log.Level
	if o.Verbose {
		level = "debug"
	}
	if err := logger.Initialize(cfg.Log.JSON, level); err != nil {
		return WrapExitError(ExitCommandError, "failed to initialize logger", err)
	}
	return nil
}

// effectiveConfig returns the loaded configuration, or the defaults when a command
// runs without the root command (as in tests).
func (o *RootOptions) effectiveConfig() *config.Config {
	if o.Config == nil {
		o.Config = config.Default()
		if o.DBPath != "" {
			o.Config.Database.Path = o.DBPath
		}
	}
	return o.Config
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

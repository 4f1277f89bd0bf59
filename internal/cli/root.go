package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath  string
	Database    string
	MetricsFile string
	Verbose     bool
	Format      string // "json" | "text"

	// TraceIDs allows overriding the trace id generator (for testing).
	// If nil, defaults to UUIDv7TraceIDs.
	TraceIDs TraceIDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the geostore CLI.
func NewRootCommand() *cobra.Command {
	return NewRootCommandWithOptions(&RootOptions{})
}

// NewRootCommandWithOptions creates the root command around opts, so tests
// can preset fields flags do not cover.
func NewRootCommandWithOptions(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "geostore",
		Short: "Content-addressed geometry store",
		Long: `geostore stores GeoJSON geometries under the MD5 hash of their canonical
serialization, so identical shapes are saved once. Records carry an
antimeridian-correct bounding box and their area in hectares; legacy ids
are redirected to content hashes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Validate format flag
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "config file (.cue, .yaml or .yml)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "SQLite database path (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.MetricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewSaveCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewFindCommand(opts))
	cmd.AddCommand(NewAreaCommand(opts))
	cmd.AddCommand(NewAdminCommand(opts))
	cmd.AddCommand(NewRedirectCommand(opts))

	return cmd
}

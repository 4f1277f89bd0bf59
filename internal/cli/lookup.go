package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print the record for a hash or legacy id",
		Long: `Print the record stored under id.

Legacy ids are redirected to their content hash first. A record saved
without a bounding box gets one computed and persisted on this read.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) (any, error) {
				return a.svc.FindByID(ctx, args[0])
			})
		},
	}
}

// NewFindCommand creates the find command.
func NewFindCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "find <id>...",
		Short: "Look up several records at once",
		Long: `Look up every id, following redirects, and print the records found.

Duplicate and blank ids are ignored. The number of records returned is
capped by limits.maxGeostoresFoundById; geostoresFound always lists every
hash that was found.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) (any, error) {
				return a.svc.FindByIDs(ctx, args)
			})
		},
	}
}

// NewAreaCommand creates the area command.
func NewAreaCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "area [file|-]",
		Short: "Measure a GeoJSON payload without storing it",
		Long: `Print the bounding box and area in hectares of a GeoJSON payload.

Nothing is written to the store. Use "-" (or no argument) to read from stdin.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			return run(cmd, rootOpts, func(ctx context.Context, a *app) (any, error) {
				payload, err := readPayload(cmd, src)
				if err != nil {
					return nil, err
				}
				return a.svc.Area(ctx, payload)
			})
		},
	}
}

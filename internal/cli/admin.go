package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/geostore/internal/boundary"
	"github.com/roach88/geostore/internal/geoerr"
)

// NewAdminCommand creates the admin command group.
func NewAdminCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative and land-use boundaries",
		Long: `Look up GADM boundaries and land-use features.

Boundaries are served from the store when a record with the same iso, ids
and simplification threshold exists; otherwise they are fetched from the
feature server, saved and returned.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newAdminNationalCommand(rootOpts))
	cmd.AddCommand(newAdminSubnationalCommand(rootOpts))
	cmd.AddCommand(newAdminRegionalCommand(rootOpts))
	cmd.AddCommand(newAdminUseCommand(rootOpts))
	cmd.AddCommand(newAdminListCommand(rootOpts))

	return cmd
}

func newAdminNationalCommand(rootOpts *RootOptions) *cobra.Command {
	var simplify string
	cmd := &cobra.Command{
		Use:           "national <iso>",
		Short:         "Country boundary",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) (any, error) {
				thresh, err := boundary.ParseThreshold(simplify)
				if err != nil {
					return nil, err
				}
				c, err := a.catalog()
				if err != nil {
					return nil, err
				}
				return c.National(ctx, args[0], thresh)
			})
		},
	}
	addSimplifyFlag(cmd, &simplify)
	return cmd
}

func newAdminSubnationalCommand(rootOpts *RootOptions) *cobra.Command {
	var simplify string
	cmd := &cobra.Command{
		Use:           "subnational <iso> <id1>",
		Short:         "First-level administrative boundary",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) (any, error) {
				id1, err := parseID("id1", args[1])
				if err != nil {
					return nil, err
				}
				thresh, err := boundary.ParseThreshold(simplify)
				if err != nil {
					return nil, err
				}
				c, err := a.catalog()
				if err != nil {
					return nil, err
				}
				return c.Subnational(ctx, args[0], id1, thresh)
			})
		},
	}
	addSimplifyFlag(cmd, &simplify)
	return cmd
}

func newAdminRegionalCommand(rootOpts *RootOptions) *cobra.Command {
	var simplify string
	cmd := &cobra.Command{
		Use:           "regional <iso> <id1> <id2>",
		Short:         "Second-level administrative boundary",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) (any, error) {
				id1, err := parseID("id1", args[1])
				if err != nil {
					return nil, err
				}
				id2, err := parseID("id2", args[2])
				if err != nil {
					return nil, err
				}
				thresh, err := boundary.ParseThreshold(simplify)
				if err != nil {
					return nil, err
				}
				c, err := a.catalog()
				if err != nil {
					return nil, err
				}
				return c.Admin2(ctx, args[0], id1, id2, thresh)
			})
		},
	}
	addSimplifyFlag(cmd, &simplify)
	return cmd
}

func newAdminUseCommand(rootOpts *RootOptions) *cobra.Command {
	var simplify string
	cmd := &cobra.Command{
		Use:           "use <table> <id>",
		Short:         "Land-use feature from a feature server table",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) (any, error) {
				id, err := parseID("id", args[1])
				if err != nil {
					return nil, err
				}
				thresh, err := boundary.ParseUseThreshold(simplify)
				if err != nil {
					return nil, err
				}
				c, err := a.catalog()
				if err != nil {
					return nil, err
				}
				return c.Use(ctx, args[0], id, thresh)
			})
		},
	}
	cmd.Flags().StringVar(&simplify, "simplify", "", "simplification threshold (positive number)")
	return cmd
}

func newAdminListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List stored country boundaries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) (any, error) {
				return a.svc.NationalList(ctx)
			})
		},
	}
}

func addSimplifyFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVar(dst, "simplify", "",
		`simplification threshold in (0, 1]; "true" uses the per-country default`)
}

func parseID(name, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, geoerr.InvalidArgument(fmt.Sprintf("%s must be an integer, got %q", name, s))
	}
	return n, nil
}

package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/roach88/geostore/internal/redirect"
)

// ImportResult is the output of redirect import.
type ImportResult struct {
	File     string `json:"file"`
	Imported int    `json:"imported"`
}

// Resolution pairs a requested id with the hash it resolves to.
type Resolution struct {
	ID         string `json:"id"`
	Hash       string `json:"hash"`
	Redirected bool   `json:"redirected"`
}

// NewRedirectCommand creates the redirect command group.
func NewRedirectCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "redirect",
		Short: "Manage legacy id redirects",
		Long: `Legacy geostore ids are mapped to content hashes through a redirect
table. Lookups consult it before the store; an id with no entry is treated
as a hash.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newRedirectImportCommand(rootOpts))
	cmd.AddCommand(newRedirectResolveCommand(rootOpts))

	return cmd
}

func newRedirectImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load redirects from a YAML file",
		Long: `Load redirects from a YAML file of the form

  redirects:
    - old_id: 5a2b...
      hash: 0f1e...

Entries are written in order; a later entry for the same old_id wins.
Import stops at the first invalid entry.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) (any, error) {
				entries, err := redirect.LoadFile(args[0])
				if err != nil {
					return nil, WrapExitError(ExitCommandError, "failed to load redirects", err)
				}
				n, err := redirect.Import(ctx, a.repo, entries)
				if err != nil {
					return nil, err
				}
				a.logger.Info("redirects_imported", "file", args[0], "count", n)
				return &ImportResult{File: args[0], Imported: n}, nil
			})
		},
	}
}

func newRedirectResolveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "resolve <id>...",
		Short:         "Show the hash each id resolves to",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, rootOpts, func(ctx context.Context, a *app) (any, error) {
				ids := redirect.Normalize(args)
				out := make([]Resolution, 0, len(ids))
				for _, id := range ids {
					hash, err := a.redirects.Resolve(ctx, id)
					if err != nil {
						return nil, err
					}
					out = append(out, Resolution{ID: id, Hash: hash, Redirected: hash != id})
				}
				return out, nil
			})
		},
	}
}

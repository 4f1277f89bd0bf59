package cli

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/geostore/internal/geostore"
	"github.com/roach88/geostore/internal/model"
)

type saveOptions struct {
	providerType   string
	providerTable  string
	providerUser   string
	providerFilter string
	lock           bool
	info           string
}

// NewSaveCommand creates the save command.
func NewSaveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &saveOptions{}

	cmd := &cobra.Command{
		Use:   "save [file|-]",
		Short: "Store a GeoJSON geometry and print its record",
		Long: `Store a GeoJSON Geometry, Feature or FeatureCollection.

The payload is canonicalized and stored under the MD5 hash of its canonical
serialization. Saving identical content again returns the existing record;
provider and info are overwritten when supplied and kept otherwise, and the
lock follows the latest save. Use "-" (or no argument) to read from stdin.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			return run(cmd, rootOpts, func(ctx context.Context, a *app) (any, error) {
				meta, err := opts.metadata()
				if err != nil {
					return nil, err
				}
				payload, err := readPayload(cmd, src)
				if err != nil {
					return nil, err
				}
				return a.svc.Save(ctx, payload, meta)
			})
		},
	}

	cmd.Flags().StringVar(&opts.providerType, "provider-type", "", "provider type recorded with the geometry")
	cmd.Flags().StringVar(&opts.providerTable, "provider-table", "", "provider table")
	cmd.Flags().StringVar(&opts.providerUser, "provider-user", "", "provider user")
	cmd.Flags().StringVar(&opts.providerFilter, "provider-filter", "", "provider filter")
	cmd.Flags().BoolVar(&opts.lock, "lock", false, "mark the record as locked")
	cmd.Flags().StringVar(&opts.info, "info", "", `info object as JSON, e.g. '{"iso":"BRA"}'`)

	return cmd
}

func (o *saveOptions) metadata() (geostore.Metadata, error) {
	meta := geostore.Metadata{Lock: o.lock}

	if o.providerType != "" || o.providerTable != "" || o.providerUser != "" || o.providerFilter != "" {
		meta.Provider = &model.Provider{
			Type:   o.providerType,
			Table:  o.providerTable,
			User:   o.providerUser,
			Filter: o.providerFilter,
		}
	}

	if strings.TrimSpace(o.info) != "" {
		var info model.Info
		dec := json.NewDecoder(strings.NewReader(o.info))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&info); err != nil {
			return meta, WrapExitError(ExitCommandError, "invalid --info", err)
		}
		meta.Info = &info
	}
	return meta, nil
}

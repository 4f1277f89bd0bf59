package redirect

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/geostore/internal/geoerr"
	"github.com/roach88/geostore/internal/model"
)

// Writer stores redirect entries.
type Writer interface {
	PutRedirect(ctx context.Context, oldID, hash string) error
}

// File is the on-disk redirect list:
//
//	redirects:
//	  - old_id: 5812c6b4c4d5b3000a7b2c1d
//	    hash: 2a277dbf04c342bdbc989884d74ef10d
type File struct {
	Redirects []model.Redirect `yaml:"redirects"`
}

var hashPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// LoadFile reads and validates a redirect file.
func LoadFile(path string) ([]model.Redirect, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read redirect file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a redirect document. Unknown fields are rejected.
func Parse(data []byte) ([]model.Redirect, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, geoerr.InvalidArgument(fmt.Sprintf("malformed redirect file: %v", err))
	}

	for i := range f.Redirects {
		r := &f.Redirects[i]
		r.OldID = strings.TrimSpace(r.OldID)
		r.Hash = strings.ToLower(strings.TrimSpace(r.Hash))
		if err := Validate(*r); err != nil {
			return nil, fmt.Errorf("redirect %d: %w", i, err)
		}
	}
	return f.Redirects, nil
}

// Validate checks one entry. A redirect must not point at itself.
func Validate(r model.Redirect) error {
	if r.OldID == "" {
		return geoerr.InvalidArgument("old_id required")
	}
	if !hashPattern.MatchString(r.Hash) {
		return geoerr.InvalidArgument(fmt.Sprintf("hash %q is not a 32-character hex digest", r.Hash))
	}
	if r.OldID == r.Hash {
		return geoerr.InvalidArgument(fmt.Sprintf("redirect %q points at itself", r.OldID))
	}
	return nil
}

// Import writes entries in order and returns how many were stored. A later
// entry for the same old id replaces an earlier one.
func Import(ctx context.Context, w Writer, entries []model.Redirect) (int, error) {
	for i, r := range entries {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := Validate(r); err != nil {
			return i, fmt.Errorf("redirect %d: %w", i, err)
		}
		if err := w.PutRedirect(ctx, r.OldID, r.Hash); err != nil {
			return i, fmt.Errorf("import redirect %s: %w", r.OldID, err)
		}
	}
	return len(entries), nil
}

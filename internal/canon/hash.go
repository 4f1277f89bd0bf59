package canon

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// Hash returns the content id of fc: the lowercase hex MD5 of its canonical
// serialization. There is no domain prefix, so ids keep the 32-hex format of
// legacy ids.
func Hash(fc *geojson.FeatureCollection) (string, error) {
	canonical, err := MarshalCanonical(fc)
	if err != nil {
		return "", fmt.Errorf("hash: failed to marshal: %w", err)
	}
	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:]), nil
}

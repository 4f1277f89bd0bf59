package canon

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces the canonical serialization of fc.
// CRITICAL: This is the ONLY encoding that may be hashed.
//
// Differences from json.Marshal:
//  1. Members appear in a fixed order: type, features / type, properties,
//     geometry / type, coordinates (or geometries)
//  2. Property keys are sorted by UTF-16 code units
//  3. Strings are NFC normalized and not HTML escaped
//  4. Numbers use ECMAScript formatting; NaN and Inf are rejected
func MarshalCanonical(fc *geojson.FeatureCollection) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"type":"FeatureCollection","features":[`)
	if fc != nil {
		for i, f := range fc.Features {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeFeature(&buf, f); err != nil {
				return nil, fmt.Errorf("features[%d]: %w", i, err)
			}
		}
	}
	buf.WriteString(`]}`)
	return buf.Bytes(), nil
}

func writeFeature(buf *bytes.Buffer, f *geojson.Feature) error {
	if f == nil {
		buf.WriteString("null")
		return nil
	}
	buf.WriteString(`{"type":"Feature","properties":`)
	if f.Properties == nil {
		buf.WriteString("null")
	} else if err := writeObject(buf, f.Properties); err != nil {
		return fmt.Errorf("properties: %w", err)
	}
	buf.WriteString(`,"geometry":`)
	if err := writeGeometry(buf, f.Geometry); err != nil {
		return fmt.Errorf("geometry: %w", err)
	}
	buf.WriteByte('}')
	return nil
}

func writeGeometry(buf *bytes.Buffer, g orb.Geometry) error {
	switch g := g.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case orb.Collection:
		buf.WriteString(`{"type":"GeometryCollection","geometries":[`)
		for i, member := range g {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeGeometry(buf, member); err != nil {
				return fmt.Errorf("geometries[%d]: %w", i, err)
			}
		}
		buf.WriteString(`]}`)
		return nil
	case orb.Ring:
		return writeGeometry(buf, orb.Polygon{g})
	case orb.Bound:
		return writeGeometry(buf, g.ToPolygon())
	}

	buf.WriteString(`{"type":`)
	buf.WriteString(strconv.Quote(g.GeoJSONType()))
	buf.WriteString(`,"coordinates":`)
	if err := writeCoordinates(buf, g); err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

func writeCoordinates(buf *bytes.Buffer, g orb.Geometry) error {
	switch g := g.(type) {
	case orb.Point:
		return writePoint(buf, g)
	case orb.MultiPoint:
		return writePoints(buf, g)
	case orb.LineString:
		return writePoints(buf, g)
	case orb.MultiLineString:
		return writeNested(buf, len(g), func(i int) error { return writePoints(buf, g[i]) })
	case orb.Polygon:
		return writeNested(buf, len(g), func(i int) error { return writePoints(buf, g[i]) })
	case orb.MultiPolygon:
		return writeNested(buf, len(g), func(i int) error {
			return writeNested(buf, len(g[i]), func(j int) error { return writePoints(buf, g[i][j]) })
		})
	}
	return fmt.Errorf("unsupported geometry for canonical JSON: %T", g)
}

func writeNested(buf *bytes.Buffer, n int, elem func(int) error) error {
	buf.WriteByte('[')
	for i := 0; i < n; i++ {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := elem(i); err != nil {
			return fmt.Errorf("[%d]: %w", i, err)
		}
	}
	buf.WriteByte(']')
	return nil
}

func writePoints[P ~[]orb.Point](buf *bytes.Buffer, pts P) error {
	return writeNested(buf, len(pts), func(i int) error { return writePoint(buf, pts[i]) })
}

func writePoint(buf *bytes.Buffer, p orb.Point) error {
	x, err := formatNumber(p[0])
	if err != nil {
		return err
	}
	y, err := formatNumber(p[1])
	if err != nil {
		return err
	}
	buf.WriteByte('[')
	buf.WriteString(x)
	buf.WriteByte(',')
	buf.WriteString(y)
	buf.WriteByte(']')
	return nil
}

// writeValue encodes a decoded JSON property value.
func writeValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		buf.Write(marshalString(val))
	case float64:
		s, err := formatNumber(val)
		if err != nil {
			return err
		}
		buf.WriteString(s)
	case float32:
		return writeValue(buf, float64(val))
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return fmt.Errorf("number %q: %w", val, err)
		}
		return writeValue(buf, f)
	case []any:
		return writeNested(buf, len(val), func(i int) error { return writeValue(buf, val[i]) })
	case map[string]any:
		return writeObject(buf, val)
	case geojson.Properties:
		return writeObject(buf, val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeObject[M ~map[string]any](buf *bytes.Buffer, obj M) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(marshalString(k))
		buf.WriteByte(':')
		if err := writeValue(buf, obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// formatNumber renders f the way ECMAScript Number.prototype.toString does
// for the values JSON can carry.
func formatNumber(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("non-finite number forbidden in canonical JSON: %v", f)
	}
	if f == 0 {
		return "0", nil
	}

	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}

	// 'e' yields e.g. "1e-07"; ECMAScript drops the exponent's leading zeros.
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "e")
	sign, digits := exp[:1], strings.TrimLeft(exp[1:], "0")
	return mantissa + "e" + sign + digits, nil
}

// marshalString encodes s as a JSON string after NFC normalization.
// Only quote, backslash and control characters are escaped.
func marshalString(s string) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(norm.NFC.String(s))

	out := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	return unescapeLineSeparators(out)
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters. Escaped backslashes are copied
// as a pair so "\\u2028" text survives.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		if data[i+1] == 'u' && i+5 < len(data) && string(data[i+2:i+5]) == "202" {
			switch data[i+5] {
			case '8':
				out = append(out, "\u2028"...)
				i += 5
				continue
			case '9':
				out = append(out, "\u2029"...)
				i += 5
				continue
			}
		}
		out = append(out, data[i], data[i+1])
		i++
	}
	return out
}

// compareKeys orders strings by UTF-16 code units as RFC 8785 requires.
// Go's native string comparison works on UTF-8 bytes and disagrees for
// characters outside the BMP.
func compareKeys(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	for i := 0; i < min(len(a16), len(b16)); i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	return len(a16) - len(b16)
}

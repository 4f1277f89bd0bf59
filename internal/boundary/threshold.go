package boundary

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/geostore/internal/geoerr"
)

// Countries large enough to need a coarser default simplification.
var bigCountries = map[string]bool{
	"USA": true,
	"RUS": true,
	"CAN": true,
	"CHN": true,
	"BRA": true,
	"IDN": true,
}

// DefaultThreshold returns the simplification threshold used when a request
// gives none: 0.1 for big countries and 0.005 otherwise at level 0, divided
// by 10 at level 1 and by 100 at level 2.
func DefaultThreshold(iso string, level int) float64 {
	base := 0.005
	if bigCountries[strings.ToUpper(iso)] {
		base = 0.1
	}
	switch level {
	case 0:
		return base
	case 1:
		return base / 10
	}
	return base / 100
}

// ParseThreshold reads an administrative simplify parameter. "" and "true"
// select the default (nil); a number must lie in (0, 1].
func ParseThreshold(s string) (*float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "true" {
		return nil, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, invalid(`bad syntax for simplify: must be "true" or a number`)
	}
	if v <= 0 || v > 1 {
		return nil, invalid(fmt.Sprintf("bad threshold for simplify %v: must be in range (0, 1]", v))
	}
	return &v, nil
}

// ParseUseThreshold reads a land-use simplify parameter: "" for none, or a
// positive number.
func ParseUseThreshold(s string) (*float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return nil, invalid("bad syntax for simplify: must be a positive number")
	}
	return &v, nil
}

func checkISO(iso string) error {
	if len(iso) != 3 {
		return invalid(fmt.Sprintf("iso %q must be a three-letter country code", iso))
	}
	return nil
}

func invalid(msg string) error {
	return geoerr.InvalidArgument(msg)
}

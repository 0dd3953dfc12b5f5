package models

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultSADamping is the damping, in percent, assumed for spectral acceleration
const DefaultSADamping = 5.0

// IMT is an intensity measure type. Period and Damping are only meaningful for SA.
type IMT struct {
	Name    string  `json:"name"`
	Period  float64 `json:"period,omitempty"`
	Damping float64 `json:"damping,omitempty"`
}

// ParseIMT parses strings such as "PGA", "PGV" or "SA(0.2)"
func ParseIMT(s string) (IMT, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return IMT{}, fmt.Errorf("empty intensity measure type")
	}

	if strings.HasPrefix(s, "SA(") && strings.HasSuffix(s, ")") {
		period, err := strconv.ParseFloat(s[3:len(s)-1], 64)
		if err != nil {
			return IMT{}, fmt.Errorf("invalid SA period in %q: %w", s, err)
		}
		if period <= 0 {
			return IMT{}, fmt.Errorf("SA period must be positive in %q", s)
		}
		return IMT{Name: "SA", Period: period, Damping: DefaultSADamping}, nil
	}

	if strings.ContainsAny(s, "() ") {
		return IMT{}, fmt.Errorf("invalid intensity measure type %q", s)
	}
	return IMT{Name: s}, nil
}

// IsSA reports whether the IMT is spectral acceleration
func (i IMT) IsSA() bool {
	return i.Name == "SA"
}

// String renders the IMT in the form accepted by ParseIMT
func (i IMT) String() string {
	if i.IsSA() {
		return "SA(" + strconv.FormatFloat(i.Period, 'f', -1, 64) + ")"
	}
	return i.Name
}

package mp4

import (
	"fmt"
	"math"
	"strconv"
)

// DefaultTimescaleBase is the timescale every header is normalised to when
// no explicit scale is given.
const DefaultTimescaleBase = 30000

// Scale is an optional multiplier applied to timescale and duration.
// The zero value is AutoScale: each box derives its own factor from its
// original timescale. An explicit factor, including 0, is used verbatim.
type Scale struct {
	factor float64
	set    bool
}

// AutoScale requests the per-box default factor.
var AutoScale = Scale{}

// ExplicitScale returns a Scale that always applies f.
func ExplicitScale(f float64) Scale {
	return Scale{factor: f, set: true}
}

// ParseScale parses a decimal factor such as "2" or "0.5".
func ParseScale(s string) (Scale, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return AutoScale, fmt.Errorf("parse scale %q: %w", s, err)
	}
	return ExplicitScale(f), nil
}

// IsSet reports whether an explicit factor was supplied.
func (s Scale) IsSet() bool { return s.set }

// Factor returns the explicit factor and whether one was supplied.
func (s Scale) Factor() (float64, bool) { return s.factor, s.set }

func (s Scale) String() string {
	if !s.set {
		return "auto"
	}
	return strconv.FormatFloat(s.factor, 'g', -1, 64)
}

// Resolve returns the factor to apply to a box whose original timescale is
// oldTimescale: the explicit factor when set, otherwise
// DefaultTimescaleBase / oldTimescale. A non-finite result, such as the
// default for a zero timescale, yields ErrInvalidScale.
func (s Scale) Resolve(oldTimescale uint32) (float64, error) {
	f := s.factor
	if !s.set {
		if oldTimescale == 0 {
			return 0, fmt.Errorf("%w: cannot derive default from timescale 0", ErrInvalidScale)
		}
		f = DefaultTimescaleBase / float64(oldTimescale)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidScale, f)
	}
	return f, nil
}

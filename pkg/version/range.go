package version

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRange is returned for ranges whose start lies after their end.
var ErrInvalidRange = errors.New("invalid version range")

// Range is an inclusive interval of versions. An unbounded range has no
// end. The zero value is [0,∞), i.e. always present.
type Range struct {
	Start   Version
	End     Version
	bounded bool
}

// Always returns the range containing every version.
func Always() Range { return Range{} }

// Since returns [start,∞).
func Since(start Version) Range { return Range{Start: start} }

// Between returns [start,end].
func Between(start, end Version) Range { return Range{Start: start, End: end, bounded: true} }

// Until returns [0,end].
func Until(end Version) Range { return Between(Unversioned, end) }

// Bounded reports whether the range has an end.
func (r Range) Bounded() bool { return r.bounded }

// Contains reports whether v lies within the range.
func (r Range) Contains(v Version) bool {
	if v < r.Start {
		return false
	}
	return !r.bounded || v <= r.End
}

// Covers reports whether every version of other also lies within r.
func (r Range) Covers(other Range) bool {
	if other.Start < r.Start {
		return false
	}
	if !r.bounded {
		return true
	}
	return other.bounded && other.End <= r.End
}

// Intersect returns the versions common to both ranges. ok is false when
// they are disjoint.
func (r Range) Intersect(other Range) (out Range, ok bool) {
	out.Start = max(r.Start, other.Start)
	switch {
	case r.bounded && other.bounded:
		out.End, out.bounded = min(r.End, other.End), true
	case r.bounded:
		out.End, out.bounded = r.End, true
	case other.bounded:
		out.End, out.bounded = other.End, true
	}
	if out.bounded && out.Start > out.End {
		return Range{}, false
	}
	return out, true
}

// Max returns the largest version explicitly mentioned by the range.
func (r Range) Max() Version {
	if r.bounded {
		return max(r.Start, r.End)
	}
	return r.Start
}

// Validate checks that start <= end for bounded ranges.
func (r Range) Validate() error {
	if r.bounded && r.Start > r.End {
		return fmt.Errorf("%w: start %d is after end %d", ErrInvalidRange, r.Start, r.End)
	}
	return nil
}

func (r Range) String() string {
	if !r.bounded {
		return fmt.Sprintf("[%d,∞)", r.Start)
	}
	return fmt.Sprintf("[%d,%d]", r.Start, r.End)
}

// ParseRange parses the String form of a range. "[2,∞)", "[2,)" and "2.."
// are unbounded, "[2,4]" and "2..4" are bounded.
func ParseRange(s string) (Range, error) {
	s = strings.TrimSpace(s)
	var lo, hi string
	switch {
	case strings.HasPrefix(s, "[") && (strings.HasSuffix(s, ")") || strings.HasSuffix(s, "]")):
		parts := strings.SplitN(s[1:len(s)-1], ",", 2)
		if len(parts) != 2 {
			return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
		}
		lo, hi = parts[0], parts[1]
		if strings.HasSuffix(s, ")") {
			if hi = strings.TrimSpace(hi); hi != "" && hi != "∞" && hi != "inf" {
				return Range{}, fmt.Errorf("%w: open end must be unbounded in %q", ErrInvalidRange, s)
			}
			hi = ""
		}
	case strings.Contains(s, ".."):
		lo, hi, _ = strings.Cut(s, "..")
	default:
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, s)
	}

	start, err := Parse(strings.TrimSpace(lo))
	if err != nil {
		return Range{}, err
	}
	if hi = strings.TrimSpace(hi); hi == "" {
		return Since(start), nil
	}
	end, err := Parse(hi)
	if err != nil {
		return Range{}, err
	}
	r := Between(start, end)
	return r, r.Validate()
}

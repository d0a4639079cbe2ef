package filter

import (
	"fmt"
	"math"
	"strconv"
)

// Range bounds a range step, by rank position or by score.
//
// Rank bounds are zero-based and inclusive; a negative Finish means "through
// the last member". Score bounds are inclusive. Desc reverses the order the
// source is ranked in, which changes which members a rank window selects.
type Range struct {
	Scored bool
	Start  int
	Finish int
	Min    float64
	Max    float64
	Order  Order
}

// ByRank returns the rank window [start, finish].
func ByRank(start, finish int) Range {
	return Range{Start: start, Finish: finish, Order: Asc}
}

// ByScore returns the score window [min, max].
func ByScore(min, max float64) Range {
	return Range{Scored: true, Min: min, Max: max, Order: Asc}
}

// Desc returns r ranked in descending order.
func (r Range) Desc() Range {
	r.Order = Desc
	return r
}

// Open reports whether a rank range runs through the last member.
func (r Range) Open() bool {
	return !r.Scored && r.Finish < 0
}

// Validate checks the bounds.
func (r Range) Validate() error {
	if r.Order != Asc && r.Order != Desc {
		return fmt.Errorf("range: unknown order %q", r.Order)
	}
	if r.Scored {
		switch {
		case math.IsNaN(r.Min) || math.IsNaN(r.Max):
			return fmt.Errorf("range: score bounds must be numbers")
		case r.Min > r.Max:
			return fmt.Errorf("range: min score %g greater than max %g", r.Min, r.Max)
		}
		return nil
	}
	switch {
	case r.Start < 0:
		return fmt.Errorf("range: start rank %d is negative", r.Start)
	case r.Finish >= 0 && r.Finish < r.Start:
		return fmt.Errorf("range: finish rank %d before start %d", r.Finish, r.Start)
	}
	return nil
}

// Contains reports whether a member at rank pos with the given score lies in
// the range.
func (r Range) Contains(pos int, score float64) bool {
	if r.Scored {
		return score >= r.Min && score <= r.Max
	}
	return pos >= r.Start && (r.Finish < 0 || pos <= r.Finish)
}

func (r Range) String() string {
	var s string
	if r.Scored {
		s = "score " + strconv.FormatFloat(r.Min, 'g', -1, 64) + ".." + strconv.FormatFloat(r.Max, 'g', -1, 64)
	} else {
		finish := "end"
		if r.Finish >= 0 {
			finish = strconv.Itoa(r.Finish)
		}
		s = "rank " + strconv.Itoa(r.Start) + ".." + finish
	}
	if r.Order == Desc {
		s += " desc"
	}
	return s
}

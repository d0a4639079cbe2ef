package harness

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/zermelo/internal/filter"
)

// Step is one chain step of a query. A step either sorts or filters: Sort
// excludes every other field except Order. A filter step with Rank or
// Score is a range step.
type Step struct {
	// Op is intersect, union or diff. Empty means intersect.
	Op    string         `yaml:"op,omitempty"`
	Attrs map[string]any `yaml:"attrs,omitempty"`

	// Rank is [start, finish]; a negative finish runs through the last
	// member.
	Rank []int `yaml:"rank,omitempty"`

	// Score is [min, max].
	Score []float64 `yaml:"score,omitempty"`

	// Order applies to Sort and Rank. Empty means asc.
	Order string `yaml:"order,omitempty"`

	Sort string `yaml:"sort,omitempty"`
}

func (s Step) validate() error {
	if _, err := filter.ParseOrder(s.Order); err != nil {
		return err
	}
	if s.Sort != "" {
		if s.Op != "" || s.Attrs != nil || s.Rank != nil || s.Score != nil {
			return fmt.Errorf("sort step takes only an order")
		}
		return nil
	}
	if s.Op != "" {
		if _, err := filter.ParseOp(s.Op); err != nil {
			return err
		}
	}
	switch {
	case s.Rank != nil && s.Score != nil:
		return fmt.Errorf("step has both rank and score bounds")
	case s.Rank != nil && len(s.Rank) != 2:
		return fmt.Errorf("rank needs [start, finish], got %d bounds", len(s.Rank))
	case s.Score != nil && len(s.Score) != 2:
		return fmt.Errorf("score needs [min, max], got %d bounds", len(s.Score))
	case s.Rank == nil && s.Score == nil && len(s.Attrs) == 0:
		return fmt.Errorf("step needs attrs, a range or a sort")
	}
	return nil
}

func (s Step) op() filter.Op {
	if s.Op == "" {
		return filter.OpIntersect
	}
	return filter.Op(s.Op)
}

// rangeOf returns the step's range, if it has one.
func (s Step) rangeOf() (filter.Range, bool) {
	var r filter.Range
	switch {
	case s.Rank != nil:
		r = filter.ByRank(s.Rank[0], s.Rank[1])
	case s.Score != nil:
		r = filter.ByScore(s.Score[0], s.Score[1])
	default:
		return r, false
	}
	if s.Order == string(filter.Desc) {
		r = r.Desc()
	}
	return r, true
}

// Apply appends steps to chain. Invalid steps surface as the chain's
// builder error.
func Apply(chain *filter.Chain, steps []Step) *filter.Chain {
	for _, s := range steps {
		chain = applyStep(chain, s)
	}
	return chain
}

func applyStep(c *filter.Chain, s Step) *filter.Chain {
	if s.Sort != "" {
		order, _ := filter.ParseOrder(s.Order)
		return c.Sort(s.Sort, order)
	}

	attrs := filter.Attrs(s.Attrs)
	if r, ok := s.rangeOf(); ok {
		switch s.op() {
		case filter.OpUnion:
			return c.UnionRange(r, attrs)
		case filter.OpDiff:
			return c.DiffRange(r, attrs)
		default:
			return c.IntersectRange(r, attrs)
		}
	}
	switch s.op() {
	case filter.OpUnion:
		return c.Union(attrs)
	case filter.OpDiff:
		return c.Diff(attrs)
	default:
		return c.Intersect(attrs)
	}
}

// ParseStep parses the command-line form of a step:
//
//	sort:name[:desc]
//	intersect:active=true,name=Jane
//	union:@score=1..5
//	diff:@rank=0..2,active=true:desc
//
// The op is intersect, union or diff. @rank and @score bound a range step;
// an open rank finish ("@rank=3..") runs through the last member. A
// trailing :asc or :desc sets the order.
func ParseStep(text string) (Step, error) {
	head, body, ok := strings.Cut(text, ":")
	if !ok || body == "" {
		return Step{}, fmt.Errorf("step %q must be <op>:<terms>", text)
	}

	var s Step
	switch {
	case strings.HasSuffix(body, ":desc"):
		s.Order, body = string(filter.Desc), strings.TrimSuffix(body, ":desc")
	case strings.HasSuffix(body, ":asc"):
		s.Order, body = string(filter.Asc), strings.TrimSuffix(body, ":asc")
	}

	if head == "sort" {
		if body == "" || strings.ContainsAny(body, ",=:") {
			return Step{}, fmt.Errorf("sort step %q must be sort:<attr>[:asc|desc]", text)
		}
		s.Sort = body
		return s, nil
	}
	if _, err := filter.ParseOp(head); err != nil {
		return Step{}, err
	}
	s.Op = head

	for _, term := range strings.Split(body, ",") {
		key, val, ok := strings.Cut(term, "=")
		if !ok || key == "" {
			return Step{}, fmt.Errorf("step term %q must be <attr>=<value>", term)
		}
		switch key {
		case "@rank":
			start, finish, err := parseRank(val)
			if err != nil {
				return Step{}, err
			}
			s.Rank = []int{start, finish}
		case "@score":
			lo, hi, err := parseScore(val)
			if err != nil {
				return Step{}, err
			}
			s.Score = []float64{lo, hi}
		default:
			if s.Attrs == nil {
				s.Attrs = map[string]any{}
			}
			s.Attrs[key] = val
		}
	}

	if err := s.validate(); err != nil {
		return Step{}, fmt.Errorf("step %q: %w", text, err)
	}
	return s, nil
}

func parseRank(s string) (int, int, error) {
	lo, hi, ok := strings.Cut(s, "..")
	if !ok {
		return 0, 0, fmt.Errorf("rank %q must be <start>..<finish>", s)
	}
	start, err := strconv.Atoi(lo)
	if err != nil {
		return 0, 0, fmt.Errorf("rank start %q: %w", lo, err)
	}
	if hi == "" {
		return start, -1, nil
	}
	finish, err := strconv.Atoi(hi)
	if err != nil {
		return 0, 0, fmt.Errorf("rank finish %q: %w", hi, err)
	}
	return start, finish, nil
}

func parseScore(s string) (float64, float64, error) {
	lo, hi, ok := strings.Cut(s, "..")
	if !ok {
		return 0, 0, fmt.Errorf("score %q must be <min>..<max>", s)
	}
	minScore, err := strconv.ParseFloat(lo, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("score min %q: %w", lo, err)
	}
	maxScore, err := strconv.ParseFloat(hi, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("score max %q: %w", hi, err)
	}
	return minScore, maxScore, nil
}

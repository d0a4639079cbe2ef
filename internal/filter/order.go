package filter

import (
	"sort"
	"strings"

	"github.com/roach88/zermelo/internal/record"
	"github.com/roach88/zermelo/internal/value"
)

// OrderIDs sorts ids in place by the attribute of s. Values come from
// lookup; missing values sort first in ascending order. Ties, and sorting by
// the id itself, fall back to ascending id order.
func OrderIDs(ids []string, s SortStep, lookup func(id string) (value.Value, error)) error {
	if s.Attr == record.IDAttribute {
		sort.SliceStable(ids, func(i, j int) bool {
			if s.Order == Desc {
				return ids[i] > ids[j]
			}
			return ids[i] < ids[j]
		})
		return nil
	}

	vals := make(map[string]value.Value, len(ids))
	for _, id := range ids {
		v, err := lookup(id)
		if err != nil {
			return err
		}
		vals[id] = v
	}

	sort.SliceStable(ids, func(i, j int) bool {
		c := value.Compare(vals[ids[i]], vals[ids[j]])
		if s.Order == Desc {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return strings.Compare(ids[i], ids[j]) < 0
	})
	return nil
}

package setstore

import (
	"math"

	sorted "github.com/tobshub/go-sortedmap"
)

// ZMember is one scored member of a sorted set.
type ZMember struct {
	Member string
	Score  float64
}

func zmemberLess(a, b ZMember) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Member < b.Member
}

// zset keeps members ordered by (score, member).
type zset struct {
	m *sorted.SortedMap[string, ZMember]
}

func newZSet() *zset {
	return &zset{m: sorted.New[string, ZMember](0, zmemberLess)}
}

func (z *zset) add(member string, score float64) bool {
	zm := ZMember{Member: member, Score: score}
	if z.m.Insert(member, zm) {
		return true
	}
	z.m.Replace(member, zm)
	return false
}

// ordered returns every member in ascending (score, member) order.
func (z *zset) ordered() []ZMember {
	out := make([]ZMember, 0, z.m.Len())
	z.m.IterFunc(false, func(rec sorted.Record[string, ZMember]) bool {
		out = append(out, rec.Val)
		return true
	})
	return out
}

// byRank returns the members ranked start through stop, stopping the walk
// once stop is reached.
func (z *zset) byRank(start, stop int, reverse bool) []string {
	var out []string
	rank := 0
	z.m.IterFunc(reverse, func(rec sorted.Record[string, ZMember]) bool {
		if rank >= start {
			out = append(out, rec.Val.Member)
		}
		rank++
		return rank <= stop
	})
	return out
}

// byScore walks only the members between the score bounds. Members are
// never empty, so a bound with an empty member sorts before every member
// of its score.
func (z *zset) byScore(min, max float64, reverse bool) []string {
	lower := ZMember{Score: min}
	upper := ZMember{Score: math.Nextafter(max, math.Inf(1))}

	var out []string
	err := z.m.BoundedIterFunc(reverse, lower, upper, func(rec sorted.Record[string, ZMember]) bool {
		// a zero bound reads as unbounded
		switch score := rec.Val.Score; {
		case score < min:
			return !reverse
		case score > max:
			return reverse
		}
		out = append(out, rec.Val.Member)
		return true
	})
	if err != nil {
		// nothing within the bounds
		return nil
	}
	return out
}

func (s *Store) sortedSet(key string) (*zset, error) {
	if err := s.check(key, TypeZSet); err != nil {
		return nil, err
	}
	return s.zsets[key], nil
}

// ZAdd sets the score of member in the sorted set at key. It reports whether
// the member is new.
func (s *Store) ZAdd(key string, score float64, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, err := s.sortedSet(key)
	if err != nil {
		return false, err
	}
	if z == nil {
		z = newZSet()
		s.zsets[key] = z
	}
	return z.add(member, score), nil
}

// ZRem removes members from the sorted set at key and returns how many were
// there.
func (s *Store) ZRem(key string, members ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	z, err := s.sortedSet(key)
	if err != nil || z == nil {
		return 0, err
	}
	n := 0
	for _, m := range members {
		if z.m.Delete(m) {
			n++
		}
	}
	if z.m.Len() == 0 {
		delete(s.zsets, key)
	}
	return n, nil
}

// ZScore returns the score of member in the sorted set at key.
func (s *Store) ZScore(key, member string) (float64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, err := s.sortedSet(key)
	if err != nil || z == nil {
		return 0, false, err
	}
	zm, ok := z.m.Get(member)
	return zm.Score, ok, nil
}

// ZCard returns the size of the sorted set at key.
func (s *Store) ZCard(key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, err := s.sortedSet(key)
	if err != nil || z == nil {
		return 0, err
	}
	return z.m.Len(), nil
}

// ZMembers returns every member with its score in ascending order.
func (s *Store) ZMembers(key string) ([]ZMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, err := s.sortedSet(key)
	if err != nil || z == nil {
		return nil, err
	}
	return z.ordered(), nil
}

// ZRangeByRank returns the members ranked start through stop, inclusive and
// zero-based. A negative stop means the last member. With reverse set, ranks
// count from the highest score and members are returned highest first.
func (s *Store) ZRangeByRank(key string, start, stop int, reverse bool) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, err := s.sortedSet(key)
	if err != nil || z == nil {
		return nil, err
	}

	n := z.m.Len()
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start < 0 {
		start = 0
	}
	if start > stop {
		return nil, nil
	}
	return z.byRank(start, stop, reverse), nil
}

// ZRangeByScore returns the members with min <= score <= max, lowest first,
// or highest first with reverse set.
func (s *Store) ZRangeByScore(key string, min, max float64, reverse bool) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	z, err := s.sortedSet(key)
	if err != nil || z == nil {
		return nil, err
	}

	return z.byScore(min, max, reverse), nil
}

package setstore

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/roach88/zermelo/internal/logging"
)

// ErrWrongType is returned when a command is used on a key holding another
// kind of structure.
var ErrWrongType = errors.New("operation against a key holding the wrong kind of value")

// Type names the kind of structure a key holds.
type Type string

const (
	TypeNone Type = "none"
	TypeSet  Type = "set"
	TypeZSet Type = "zset"
	TypeHash Type = "hash"
)

// Options configures a Store.
type Options struct {
	Logger *slog.Logger
}

// Store is the in-process set store. The zero value is not usable; call New.
type Store struct {
	mu sync.RWMutex

	// members are interned to dense uint32 ids for the bitmaps
	intern map[string]uint32
	names  []string

	sets   map[string]*roaring.Bitmap
	zsets  map[string]*zset
	hashes map[string]map[string]string

	logger *slog.Logger
}

// New creates an empty store.
func New(opts Options) *Store {
	return &Store{
		intern: make(map[string]uint32),
		sets:   make(map[string]*roaring.Bitmap),
		zsets:  make(map[string]*zset),
		hashes: make(map[string]map[string]string),
		logger: logging.Component(opts.Logger, "setstore"),
	}
}

func (s *Store) typeOf(key string) Type {
	if _, ok := s.sets[key]; ok {
		return TypeSet
	}
	if _, ok := s.zsets[key]; ok {
		return TypeZSet
	}
	if _, ok := s.hashes[key]; ok {
		return TypeHash
	}
	return TypeNone
}

func (s *Store) check(key string, want Type) error {
	if t := s.typeOf(key); t != TypeNone && t != want {
		return ErrWrongType
	}
	return nil
}

func (s *Store) id(member string) uint32 {
	if id, ok := s.intern[member]; ok {
		return id
	}
	id := uint32(len(s.names))
	s.intern[member] = id
	s.names = append(s.names, member)
	return id
}

func (s *Store) lookup(member string) (uint32, bool) {
	id, ok := s.intern[member]
	return id, ok
}

func (s *Store) decode(bm *roaring.Bitmap) []string {
	out := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, s.names[it.Next()])
	}
	sort.Strings(out)
	return out
}

// bitmap returns the set at key, nil when missing.
func (s *Store) bitmap(key string) (*roaring.Bitmap, error) {
	if err := s.check(key, TypeSet); err != nil {
		return nil, err
	}
	return s.sets[key], nil
}

func (s *Store) storeSet(key string, bm *roaring.Bitmap) {
	delete(s.zsets, key)
	delete(s.hashes, key)
	if bm == nil || bm.IsEmpty() {
		delete(s.sets, key)
		return
	}
	s.sets[key] = bm
}

// Type returns the kind of structure at key.
func (s *Store) Type(key string) Type {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.typeOf(key)
}

// Exists reports whether key holds any structure.
func (s *Store) Exists(key string) bool {
	return s.Type(key) != TypeNone
}

// Del removes keys and returns how many existed.
func (s *Store) Del(keys ...string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, key := range keys {
		if s.typeOf(key) == TypeNone {
			continue
		}
		delete(s.sets, key)
		delete(s.zsets, key)
		delete(s.hashes, key)
		n++
	}
	return n
}

// Keys returns every key starting with prefix, sorted.
func (s *Store) Keys(prefix string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	add := func(key string) {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	for key := range s.sets {
		add(key)
	}
	for key := range s.zsets {
		add(key)
	}
	for key := range s.hashes {
		add(key)
	}
	sort.Strings(out)
	return out
}

// SAdd adds members to the set at key and returns how many were new.
func (s *Store) SAdd(key string, members ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bm, err := s.bitmap(key)
	if err != nil {
		return 0, err
	}
	if bm == nil {
		bm = roaring.New()
	}
	n := 0
	for _, m := range members {
		if bm.CheckedAdd(s.id(m)) {
			n++
		}
	}
	s.storeSet(key, bm)
	return n, nil
}

// SRem removes members from the set at key and returns how many were there.
func (s *Store) SRem(key string, members ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bm, err := s.bitmap(key)
	if err != nil || bm == nil {
		return 0, err
	}
	n := 0
	for _, m := range members {
		if id, ok := s.lookup(m); ok && bm.CheckedRemove(id) {
			n++
		}
	}
	s.storeSet(key, bm)
	return n, nil
}

// SMove moves member from src to dst atomically. It reports false, and
// changes nothing, when member is not in src.
func (s *Store) SMove(src, dst, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, err := s.bitmap(src)
	if err != nil {
		return false, err
	}
	to, err := s.bitmap(dst)
	if err != nil {
		return false, err
	}
	id, ok := s.lookup(member)
	if !ok || from == nil || !from.Contains(id) {
		return false, nil
	}
	if src == dst {
		return true, nil
	}
	if to == nil {
		to = roaring.New()
	}
	to.Add(id)
	from.Remove(id)
	s.storeSet(dst, to)
	s.storeSet(src, from)
	return true, nil
}

// SIsMember reports whether member is in the set at key.
func (s *Store) SIsMember(key, member string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bm, err := s.bitmap(key)
	if err != nil || bm == nil {
		return false, err
	}
	id, ok := s.lookup(member)
	return ok && bm.Contains(id), nil
}

// SMembers returns the members of the set at key, sorted.
func (s *Store) SMembers(key string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bm, err := s.bitmap(key)
	if err != nil || bm == nil {
		return nil, err
	}
	return s.decode(bm), nil
}

// SCard returns the size of the set at key.
func (s *Store) SCard(key string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bm, err := s.bitmap(key)
	if err != nil || bm == nil {
		return 0, err
	}
	return int(bm.GetCardinality()), nil
}

// operands loads the sets at keys; missing keys yield empty bitmaps.
func (s *Store) operands(keys []string) ([]*roaring.Bitmap, error) {
	out := make([]*roaring.Bitmap, len(keys))
	for i, key := range keys {
		bm, err := s.bitmap(key)
		if err != nil {
			return nil, err
		}
		if bm == nil {
			bm = roaring.New()
		}
		out[i] = bm
	}
	return out, nil
}

// SInterStore stores the intersection of the sets at keys in dst and returns
// its size. dst may be one of keys.
func (s *Store) SInterStore(dst string, keys ...string) (int, error) {
	return s.combine(dst, keys, func(acc, next *roaring.Bitmap) { acc.And(next) })
}

// SUnionStore stores the union of the sets at keys in dst and returns its
// size.
func (s *Store) SUnionStore(dst string, keys ...string) (int, error) {
	return s.combine(dst, keys, func(acc, next *roaring.Bitmap) { acc.Or(next) })
}

// SDiffStore stores the members of the first key's set that are in none of
// the others in dst and returns its size.
func (s *Store) SDiffStore(dst string, keys ...string) (int, error) {
	return s.combine(dst, keys, func(acc, next *roaring.Bitmap) { acc.AndNot(next) })
}

func (s *Store) combine(dst string, keys []string, op func(acc, next *roaring.Bitmap)) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(dst, TypeSet); err != nil {
		return 0, err
	}
	sets, err := s.operands(keys)
	if err != nil {
		return 0, err
	}
	acc := roaring.New()
	if len(sets) > 0 {
		acc = sets[0].Clone()
		for _, next := range sets[1:] {
			op(acc, next)
		}
	}
	s.storeSet(dst, acc)
	return int(acc.GetCardinality()), nil
}

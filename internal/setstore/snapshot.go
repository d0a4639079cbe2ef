package setstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// snapshotVersion is bumped whenever the snapshot layout changes.
const snapshotVersion = 1

type snapshot struct {
	Version int                          `msgpack:"version"`
	Sets    map[string][]string          `msgpack:"sets"`
	ZSets   map[string][]snapshotZMember `msgpack:"zsets"`
	Hashes  map[string]map[string]string `msgpack:"hashes"`
}

type snapshotZMember struct {
	Member string  `msgpack:"m"`
	Score  float64 `msgpack:"s"`
}

// WriteSnapshot writes the whole store to w.
func (s *Store) WriteSnapshot(w io.Writer) error {
	s.mu.RLock()
	snap := snapshot{
		Version: snapshotVersion,
		Sets:    make(map[string][]string, len(s.sets)),
		ZSets:   make(map[string][]snapshotZMember, len(s.zsets)),
		Hashes:  make(map[string]map[string]string, len(s.hashes)),
	}
	for key, bm := range s.sets {
		snap.Sets[key] = s.decode(bm)
	}
	for key, z := range s.zsets {
		ms := z.ordered()
		out := make([]snapshotZMember, len(ms))
		for i, zm := range ms {
			out[i] = snapshotZMember{Member: zm.Member, Score: zm.Score}
		}
		snap.ZSets[key] = out
	}
	for key, h := range s.hashes {
		snap.Hashes[key] = h
	}
	// encode while still holding the read lock; hashes are shared
	data, err := msgpack.Marshal(&snap)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	enc, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("snapshot compressor: %w", err)
	}
	if _, err := enc.Write(data); err != nil {
		_ = enc.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

// ReadSnapshot replaces the store contents with the snapshot read from r.
func (s *Store) ReadSnapshot(r io.Reader) error {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return fmt.Errorf("snapshot decompressor: %w", err)
	}
	defer dec.Close()

	var snap snapshot
	if err := msgpack.NewDecoder(dec).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("snapshot version %d not supported (want %d)", snap.Version, snapshotVersion)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.intern = make(map[string]uint32)
	s.names = nil
	s.sets = make(map[string]*roaring.Bitmap, len(snap.Sets))
	s.zsets = make(map[string]*zset, len(snap.ZSets))
	s.hashes = make(map[string]map[string]string, len(snap.Hashes))

	// intern members in a stable order so reloading is deterministic
	keys := make([]string, 0, len(snap.Sets))
	for key := range snap.Sets {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		bm := roaring.New()
		for _, m := range snap.Sets[key] {
			bm.Add(s.id(m))
		}
		s.storeSet(key, bm)
	}
	for key, ms := range snap.ZSets {
		if len(ms) == 0 {
			continue
		}
		z := newZSet()
		for _, zm := range ms {
			z.add(zm.Member, zm.Score)
		}
		s.zsets[key] = z
	}
	for key, h := range snap.Hashes {
		if len(h) > 0 {
			s.hashes[key] = h
		}
	}

	s.logger.Debug("snapshot loaded", "sets", len(s.sets), "zsets", len(s.zsets), "hashes", len(s.hashes))
	return nil
}

// SaveFile writes a snapshot to path atomically: it writes a temp file in the
// same directory and renames it over path.
func (s *Store) SaveFile(path string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".setstore-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if err := s.WriteSnapshot(tmp); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

// OpenFile creates a store loaded from the snapshot at path. A missing file
// yields an empty store.
func OpenFile(path string, opts Options) (*Store, error) {
	s := New(opts)
	f, err := os.Open(filepath.Clean(path))
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	if err := s.ReadSnapshot(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

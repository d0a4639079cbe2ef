package setstore

import "maps"

func (s *Store) hash(key string) (map[string]string, error) {
	if err := s.check(key, TypeHash); err != nil {
		return nil, err
	}
	return s.hashes[key], nil
}

// HSet sets fields of the hash at key.
func (s *Store) HSet(key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := s.hash(key)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		return nil
	}
	if h == nil {
		h = make(map[string]string, len(fields))
		s.hashes[key] = h
	}
	maps.Copy(h, fields)
	return nil
}

// HDel removes fields from the hash at key and returns how many existed.
func (s *Store) HDel(key string, fields ...string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := s.hash(key)
	if err != nil || h == nil {
		return 0, err
	}
	n := 0
	for _, f := range fields {
		if _, ok := h[f]; ok {
			delete(h, f)
			n++
		}
	}
	if len(h) == 0 {
		delete(s.hashes, key)
	}
	return n, nil
}

// HGet returns one field of the hash at key.
func (s *Store) HGet(key, field string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, err := s.hash(key)
	if err != nil || h == nil {
		return "", false, err
	}
	v, ok := h[field]
	return v, ok, nil
}

// HGetAll returns a copy of the hash at key; nil when missing.
func (s *Store) HGetAll(key string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, err := s.hash(key)
	if err != nil || h == nil {
		return nil, err
	}
	return maps.Clone(h), nil
}

package logstore

import "github.com/tinytelemetry/logdex/internal/model"

var _ model.ReadAPI = (*Store)(nil)
var _ model.LogWriter = (*Store)(nil)
var _ model.Rebuilder = (*Store)(nil)

// FetchAll returns every record in ascending index order.
func (s *Store) FetchAll() ([]model.IndexedRecord, error) {
	return s.All(), nil
}

// FetchByLevel returns the records in bucket, in ingest order.
func (s *Store) FetchByLevel(bucket string) ([]model.IndexedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.levels.Lookup(bucket)
	if err != nil {
		return nil, err
	}
	return s.resolve(ids), nil
}

// SearchByWord returns the records whose message contains word.
func (s *Store) SearchByWord(word string) ([]model.IndexedRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids, err := s.words.Search(word)
	if err != nil {
		return nil, err
	}
	return s.resolve(ids), nil
}

// resolve maps indices to records, skipping any that do not resolve.
func (s *Store) resolve(ids []uint64) []model.IndexedRecord {
	out := make([]model.IndexedRecord, 0, len(ids))
	for _, idx := range ids {
		rec, ok := s.lookup(idx)
		if !ok {
			continue
		}
		out = append(out, model.IndexedRecord{Index: idx, Record: rec})
	}
	return out
}

// Envelope returns the legacy fetch-all shape, taken under one read lock.
func (s *Store) Envelope() (model.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.Envelope{
		Filters: s.levels.Snapshot(),
		Records: s.all(),
	}, nil
}

// Stats summarizes the store.
func (s *Store) Stats() (model.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	buckets := make(map[string]int, len(model.Buckets))
	for _, name := range model.Buckets {
		buckets[name] = s.levels.Len(name)
	}
	return model.Stats{
		Records:  len(s.records),
		LastIdx:  uint64(len(s.records)),
		Buckets:  buckets,
		Words:    s.words.Len(),
		Backend:  s.backend.Name(),
		Persists: s.persist,
	}, nil
}

// Snapshot captures the records, filters and word index under one read lock.
func (s *Store) Snapshot() (model.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return model.Snapshot{
		Logs: model.Envelope{
			Filters: s.levels.Snapshot(),
			Records: s.all(),
		},
		Words: s.words.Snapshot(),
	}, nil
}

package memstore

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"labelscan/internal/domain"
)

// HistoryStore keeps scans in memory for the lifetime of the process.
type HistoryStore struct {
	mu       sync.RWMutex
	scans    map[string]domain.Scan
	byDigest map[string]string
	maxScans int
}

// NewHistoryStore creates an empty store. When maxScans is positive the
// oldest scans are dropped once it is exceeded.
func NewHistoryStore(maxScans int) *HistoryStore {
	return &HistoryStore{
		scans:    make(map[string]domain.Scan),
		byDigest: make(map[string]string),
		maxScans: maxScans,
	}
}

func (s *HistoryStore) Put(scan domain.Scan) error {
	if scan.ID == "" {
		return errors.New("scan id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.scans[scan.ID]; ok {
		s.forgetDigest(old)
	}
	s.scans[scan.ID] = scan
	if scan.ImageDigest != "" {
		s.byDigest[scan.ImageDigest] = scan.ID
	}

	if s.maxScans > 0 && len(s.scans) > s.maxScans {
		ordered := s.ordered()
		for _, old := range ordered[s.maxScans:] {
			s.forgetDigest(old)
			delete(s.scans, old.ID)
		}
	}
	return nil
}

func (s *HistoryStore) Get(id string) (domain.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scan, ok := s.scans[id]
	if !ok {
		return domain.Scan{}, fmt.Errorf("%w: %s", domain.ErrScanNotFound, id)
	}
	return scan, nil
}

func (s *HistoryStore) FindByDigest(digest string) (domain.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byDigest[digest]
	if !ok {
		return domain.Scan{}, fmt.Errorf("%w: digest %s", domain.ErrScanNotFound, digest)
	}
	return s.scans[id], nil
}

// List returns up to limit scans, newest first. A limit <= 0 returns all.
func (s *HistoryStore) List(limit int) ([]domain.Scan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	scans := s.ordered()
	if limit > 0 && len(scans) > limit {
		scans = scans[:limit]
	}
	return scans, nil
}

func (s *HistoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	scan, ok := s.scans[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrScanNotFound, id)
	}
	s.forgetDigest(scan)
	delete(s.scans, id)
	return nil
}

func (s *HistoryStore) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.scans), nil
}

func (s *HistoryStore) Close() error {
	return nil
}

// ordered returns the scans newest first. Callers hold the lock.
func (s *HistoryStore) ordered() []domain.Scan {
	scans := make([]domain.Scan, 0, len(s.scans))
	for _, scan := range s.scans {
		scans = append(scans, scan)
	}
	sort.Slice(scans, func(i, j int) bool {
		if !scans[i].CreatedAt.Equal(scans[j].CreatedAt) {
			return scans[i].CreatedAt.After(scans[j].CreatedAt)
		}
		return scans[i].ID > scans[j].ID
	})
	return scans
}

func (s *HistoryStore) forgetDigest(scan domain.Scan) {
	if id, ok := s.byDigest[scan.ImageDigest]; ok && id == scan.ID {
		delete(s.byDigest, scan.ImageDigest)
	}
}

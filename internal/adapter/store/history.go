package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"go.etcd.io/bbolt"
	"labelscan/internal/domain"
)

var (
	bucketScans      = []byte("scans")
	bucketScanOrder  = []byte("scan_order")
	bucketScanDigest = []byte("scan_digests")
	bucketMeta       = []byte("meta")
)

// ErrScanNotFound is returned when no scan has the requested ID.
var ErrScanNotFound = domain.ErrScanNotFound

// HistoryStore persists scans in a bbolt file. Scans are ordered by
// creation time through a secondary bucket keyed by big-endian unix nanos.
type HistoryStore struct {
	db *bbolt.DB
}

func NewHistoryStore(path string) (*HistoryStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketScans, bucketScanOrder, bucketMeta}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &HistoryStore{db: db}, nil
}

func (s *HistoryStore) DB() *bbolt.DB {
	return s.db
}

func orderKey(scan domain.Scan) []byte {
	key := make([]byte, 8, 8+len(scan.ID))
	binary.BigEndian.PutUint64(key, uint64(scan.CreatedAt.UnixNano()))
	return append(key, scan.ID...)
}

func (s *HistoryStore) Put(scan domain.Scan) error {
	if scan.ID == "" {
		return errors.New("scan id is required")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		scans := tx.Bucket(bucketScans)

		if existing := scans.Get([]byte(scan.ID)); existing != nil {
			var old domain.Scan
			if err := json.Unmarshal(existing, &old); err == nil {
				if err := removeSecondary(tx, old); err != nil {
					return err
				}
			}
		}

		data, err := json.Marshal(scan)
		if err != nil {
			return err
		}
		if err := scans.Put([]byte(scan.ID), data); err != nil {
			return err
		}
		if err := tx.Bucket(bucketScanOrder).Put(orderKey(scan), []byte(scan.ID)); err != nil {
			return err
		}
		if digests := tx.Bucket(bucketScanDigest); digests != nil && scan.ImageDigest != "" {
			return digests.Put([]byte(scan.ImageDigest), []byte(scan.ID))
		}
		return nil
	})
}

func removeSecondary(tx *bbolt.Tx, scan domain.Scan) error {
	if err := tx.Bucket(bucketScanOrder).Delete(orderKey(scan)); err != nil {
		return err
	}
	digests := tx.Bucket(bucketScanDigest)
	if digests == nil || scan.ImageDigest == "" {
		return nil
	}
	if id := digests.Get([]byte(scan.ImageDigest)); id != nil && string(id) == scan.ID {
		return digests.Delete([]byte(scan.ImageDigest))
	}
	return nil
}

func (s *HistoryStore) Get(id string) (domain.Scan, error) {
	var scan domain.Scan
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(bucketScans).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrScanNotFound, id)
		}
		return json.Unmarshal(data, &scan)
	})
	return scan, err
}

// FindByDigest returns the latest scan of an image with the given digest.
func (s *HistoryStore) FindByDigest(digest string) (domain.Scan, error) {
	var id []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketScanDigest)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(digest)); v != nil {
			id = append(id, v...)
		}
		return nil
	})
	if err != nil {
		return domain.Scan{}, err
	}
	if id == nil {
		return domain.Scan{}, fmt.Errorf("%w: digest %s", ErrScanNotFound, digest)
	}
	return s.Get(string(id))
}

func (s *HistoryStore) List(limit int) ([]domain.Scan, error) {
	var scans []domain.Scan
	err := s.db.View(func(tx *bbolt.Tx) error {
		byID := tx.Bucket(bucketScans)
		c := tx.Bucket(bucketScanOrder).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(scans) >= limit {
				break
			}
			data := byID.Get(v)
			if data == nil {
				continue
			}
			var scan domain.Scan
			if err := json.Unmarshal(data, &scan); err != nil {
				continue
			}
			scans = append(scans, scan)
		}
		return nil
	})
	return scans, err
}

func (s *HistoryStore) Delete(id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		scans := tx.Bucket(bucketScans)
		data := scans.Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", ErrScanNotFound, id)
		}
		var scan domain.Scan
		if err := json.Unmarshal(data, &scan); err != nil {
			return err
		}
		if err := removeSecondary(tx, scan); err != nil {
			return err
		}
		return scans.Delete([]byte(id))
	})
}

func (s *HistoryStore) Count() (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketScans).Stats().KeyN
		return nil
	})
	return n, err
}

// Clear removes every scan but keeps the schema information.
func (s *HistoryStore) Clear() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketScans, bucketScanOrder, bucketScanDigest} {
			if tx.Bucket(name) == nil {
				continue
			}
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *HistoryStore) Close() error {
	return s.db.Close()
}

package port

import "labelscan/internal/domain"

type HistoryStore interface {
	Put(scan domain.Scan) error

	Get(id string) (domain.Scan, error)

	// FindByDigest returns the latest scan of the image with this sha256
	// digest.
	FindByDigest(digest string) (domain.Scan, error)

	// List returns up to limit scans, newest first. A limit <= 0 returns all.
	List(limit int) ([]domain.Scan, error)

	Delete(id string) error

	Count() (int, error)

	Close() error
}

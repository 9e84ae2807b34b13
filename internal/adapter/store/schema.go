package store

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
	"labelscan/internal/domain"
)

// CurrentSchemaVersion is the current schema version.
// Increment this when making breaking changes to the storage format.
const CurrentSchemaVersion = 2

var (
	keySchemaVersion = []byte("schema_version")
	keyKnowledge     = []byte("knowledge_fingerprint")
)

// SchemaInfo stores the schema version and the fingerprint of the
// knowledge base the stored scans were produced with.
type SchemaInfo struct {
	Version   int    `json:"version"`
	Knowledge string `json:"knowledge"`
}

// GetSchemaInfo retrieves the current schema info from the database.
func (s *HistoryStore) GetSchemaInfo() (*SchemaInfo, error) {
	var info SchemaInfo
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)
		if b == nil {
			return nil
		}

		if versionData := b.Get(keySchemaVersion); versionData != nil {
			if err := json.Unmarshal(versionData, &info.Version); err != nil {
				info.Version = 1
			}
		}
		if fp := b.Get(keyKnowledge); fp != nil {
			info.Knowledge = string(fp)
		}
		return nil
	})
	return &info, err
}

// SetSchemaInfo stores the schema info in the database.
func (s *HistoryStore) SetSchemaInfo(info *SchemaInfo) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketMeta)

		versionData, err := json.Marshal(info.Version)
		if err != nil {
			return err
		}
		if err := b.Put(keySchemaVersion, versionData); err != nil {
			return err
		}
		return b.Put(keyKnowledge, []byte(info.Knowledge))
	})
}

// SchemaStatus describes the result of a schema check.
type SchemaStatus struct {
	NeedsMigration   bool
	Incompatible     bool
	KnowledgeChanged bool
	OldVersion       int
	NewVersion       int
	Reason           string
}

// CheckSchema compares the stored schema with this build and the given
// knowledge base fingerprint.
func (s *HistoryStore) CheckSchema(knowledge string) (*SchemaStatus, error) {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return nil, fmt.Errorf("failed to get schema info: %w", err)
	}

	status := &SchemaStatus{
		OldVersion: info.Version,
		NewVersion: CurrentSchemaVersion,
	}

	switch {
	case info.Version == 0:
		status.NeedsMigration = true
		status.Reason = "initializing schema version"
	case info.Version < CurrentSchemaVersion:
		status.NeedsMigration = true
		status.Reason = fmt.Sprintf("schema upgrade from v%d to v%d", info.Version, CurrentSchemaVersion)
	case info.Version > CurrentSchemaVersion:
		status.Incompatible = true
		status.Reason = fmt.Sprintf("database created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
		return status, nil
	}

	if info.Knowledge != "" && info.Knowledge != knowledge {
		status.KnowledgeChanged = true
		if status.Reason == "" {
			status.Reason = "knowledge base changed since last run"
		}
	}

	return status, nil
}

// Migrate runs pending migrations and records the knowledge fingerprint.
func (s *HistoryStore) Migrate(knowledge string) error {
	info, err := s.GetSchemaInfo()
	if err != nil {
		return err
	}
	if info.Version > CurrentSchemaVersion {
		return fmt.Errorf("database created by newer version (v%d > v%d)", info.Version, CurrentSchemaVersion)
	}

	for v := info.Version; v < CurrentSchemaVersion; v++ {
		if err := s.runMigration(v, v+1); err != nil {
			return fmt.Errorf("migration from v%d to v%d failed: %w", v, v+1, err)
		}
	}

	return s.SetSchemaInfo(&SchemaInfo{
		Version:   CurrentSchemaVersion,
		Knowledge: knowledge,
	})
}

func (s *HistoryStore) runMigration(from, to int) error {
	switch {
	case from == 0 && to == 1:
		return nil
	case from == 1 && to == 2:
		// v2 adds the image digest lookup; backfill it from stored scans.
		return s.db.Update(func(tx *bbolt.Tx) error {
			digests, err := tx.CreateBucketIfNotExists(bucketScanDigest)
			if err != nil {
				return err
			}
			scans := tx.Bucket(bucketScans)
			c := tx.Bucket(bucketScanOrder).Cursor()
			for k, v := c.First(); k != nil; k, v = c.Next() {
				data := scans.Get(v)
				if data == nil {
					continue
				}
				var scan domain.Scan
				if err := json.Unmarshal(data, &scan); err != nil {
					continue
				}
				if scan.ImageDigest == "" {
					continue
				}
				if err := digests.Put([]byte(scan.ImageDigest), []byte(scan.ID)); err != nil {
					return err
				}
			}
			return nil
		})
	default:
		return nil
	}
}

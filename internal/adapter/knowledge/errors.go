package knowledge

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRecord matches every *InvalidRecordError.
	ErrInvalidRecord = errors.New("invalid ingredient record")

	// ErrEmptyKnowledgeBase also matches ErrInvalidRecord.
	ErrEmptyKnowledgeBase = fmt.Errorf("%w: knowledge base has no records", ErrInvalidRecord)
)

// InvalidRecordError reports a structurally invalid knowledge base entry.
// Position is the record's zero-based offset in the source sequence.
type InvalidRecordError struct {
	Position int
	ID       string
	Reason   string
}

func (e *InvalidRecordError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("record %d: %s", e.Position, e.Reason)
	}
	return fmt.Sprintf("record %d (id %s): %s", e.Position, e.ID, e.Reason)
}

func (e *InvalidRecordError) Is(target error) bool {
	return target == ErrInvalidRecord
}

package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CheckpointOutcome records how the batch behind a checkpoint finished
type CheckpointOutcome string

const (
	// OutcomeOK means every record in the batch was acknowledged
	OutcomeOK CheckpointOutcome = "OK"
	// OutcomePartial means some records in the batch were skipped as failed
	OutcomePartial CheckpointOutcome = "PARTIAL"
	// OutcomeDone marks the entity's scan as finished for the run. The next
	// session rescans the entity from the top and relies on fingerprint skip,
	// so records changed after a completed run are picked up again.
	OutcomeDone CheckpointOutcome = "DONE"
)

// Checkpoint is a durable marker of the last successfully processed position
// within an entity type's sync order. The log is append-only; the latest
// checkpoint per entity type is the resume point for a new session.
type Checkpoint struct {
	ID          uuid.UUID
	Pairing     string
	Entity      EntityType
	Cursor      string
	Outcome     CheckpointOutcome
	CommittedAt time.Time
}

// NewCheckpoint creates a checkpoint for the given position
func NewCheckpoint(pairing string, entity EntityType, cursor string, outcome CheckpointOutcome) (*Checkpoint, error) {
	if !entity.IsValid() {
		return nil, ErrInvalidEntityType
	}
	return &Checkpoint{
		ID:          uuid.New(),
		Pairing:     pairing,
		Entity:      entity,
		Cursor:      cursor,
		Outcome:     outcome,
		CommittedAt: time.Now(),
	}, nil
}

// CheckpointStore persists the append-only sync log. Commit must be durable
// before the corresponding acknowledgment is returned to the client: a crash
// between sending a batch and committing its checkpoint must cause the same
// batch to be regenerated on restart, never assumed done.
type CheckpointStore interface {
	// Commit appends a checkpoint. Cursors for a given (pairing, entity) are
	// monotonically non-decreasing within a scan cycle; a regressing cursor
	// is rejected with ErrCheckpointRegression. An OutcomeDone marker closes
	// the cycle, and the first commit after it may carry any cursor.
	Commit(ctx context.Context, cp *Checkpoint) error

	// Latest returns the most recent checkpoint for an entity type, or
	// ErrCheckpointNotFound when the entity has never been synced.
	Latest(ctx context.Context, pairing string, entity EntityType) (*Checkpoint, error)

	// History returns committed checkpoints for a pairing, newest first,
	// bounded by limit.
	History(ctx context.Context, pairing string, limit int) ([]Checkpoint, error)

	// Reset removes all checkpoints for a pairing so the next session starts
	// from the beginning. Identity mappings are untouched.
	Reset(ctx context.Context, pairing string) error
}

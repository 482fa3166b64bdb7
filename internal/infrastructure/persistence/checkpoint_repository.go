package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/qbridge/backend/internal/domain/sync"
	"github.com/qbridge/backend/internal/infrastructure/persistence/models"
)

// GormCheckpointStore implements sync.CheckpointStore using GORM. The log is
// append-only: Commit only ever inserts, and the resume point is the newest
// row per (pairing, entity).
type GormCheckpointStore struct {
	db *gorm.DB
}

// NewGormCheckpointStore creates a new GormCheckpointStore
func NewGormCheckpointStore(db *gorm.DB) *GormCheckpointStore {
	return &GormCheckpointStore{db: db}
}

// Commit appends a checkpoint after verifying cursor monotonicity against the
// latest committed row. The read and insert run in one transaction; only one
// session per pairing commits at a time, so this cannot deadlock with itself.
func (s *GormCheckpointStore) Commit(ctx context.Context, cp *sync.Checkpoint) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var latest models.CheckpointModel
		err := tx.
			Where("pairing = ? AND entity = ?", cp.Pairing, cp.Entity).
			Order("committed_at DESC").
			First(&latest).Error
		switch {
		case err == nil:
			// a DONE marker closes the scan cycle; ordering restarts after it
			closing := cp.Outcome == sync.OutcomeDone
			newCycle := latest.Outcome == sync.OutcomeDone
			if !closing && !newCycle && cp.Cursor < latest.Cursor {
				return sync.ErrCheckpointRegression
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			// first checkpoint for this entity
		default:
			return err
		}
		return tx.Create(models.CheckpointModelFromDomain(cp)).Error
	})
}

// Latest returns the resume point for an entity type
func (s *GormCheckpointStore) Latest(ctx context.Context, pairing string, entity sync.EntityType) (*sync.Checkpoint, error) {
	var model models.CheckpointModel
	if err := s.db.WithContext(ctx).
		Where("pairing = ? AND entity = ?", pairing, entity).
		Order("committed_at DESC").
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, sync.ErrCheckpointNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// History returns committed checkpoints for a pairing, newest first
func (s *GormCheckpointStore) History(ctx context.Context, pairing string, limit int) ([]sync.Checkpoint, error) {
	if limit <= 0 {
		limit = 50
	}
	var checkpointModels []models.CheckpointModel
	if err := s.db.WithContext(ctx).
		Where("pairing = ?", pairing).
		Order("committed_at DESC").
		Limit(limit).
		Find(&checkpointModels).Error; err != nil {
		return nil, err
	}

	checkpoints := make([]sync.Checkpoint, len(checkpointModels))
	for i, model := range checkpointModels {
		checkpoints[i] = *model.ToDomain()
	}
	return checkpoints, nil
}

// Reset drops the whole log for a pairing. The next session starts every
// entity type from the beginning; identity mappings keep it idempotent.
func (s *GormCheckpointStore) Reset(ctx context.Context, pairing string) error {
	return s.db.WithContext(ctx).
		Delete(&models.CheckpointModel{}, "pairing = ?", pairing).Error
}

// Ensure GormCheckpointStore implements sync.CheckpointStore
var _ sync.CheckpointStore = (*GormCheckpointStore)(nil)

package persistence

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qbridge/backend/internal/domain/mapping"
	"github.com/qbridge/backend/internal/domain/sync"
	"github.com/qbridge/backend/internal/infrastructure/persistence/models"
)

// GormIdentityMappingRepository implements mapping.Repository using GORM
type GormIdentityMappingRepository struct {
	db *gorm.DB
}

// NewGormIdentityMappingRepository creates a new GormIdentityMappingRepository
func NewGormIdentityMappingRepository(db *gorm.DB) *GormIdentityMappingRepository {
	return &GormIdentityMappingRepository{db: db}
}

// Resolve finds the mapping for a source identifier
func (r *GormIdentityMappingRepository) Resolve(ctx context.Context, pairing string, entity sync.EntityType, sourceID string) (*mapping.IdentityMapping, error) {
	var model models.IdentityMappingModel
	if err := r.db.WithContext(ctx).
		Where("pairing = ? AND entity = ? AND source_id = ?", pairing, entity, sourceID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mapping.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// ResolveDestination finds the mapping that owns a destination identifier
func (r *GormIdentityMappingRepository) ResolveDestination(ctx context.Context, pairing string, entity sync.EntityType, destinationID string) (*mapping.IdentityMapping, error) {
	var model models.IdentityMappingModel
	if err := r.db.WithContext(ctx).
		Where("pairing = ? AND entity = ? AND destination_id = ?", pairing, entity, destinationID).
		First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, mapping.ErrMappingNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Record upserts a mapping keyed by (pairing, entity, source_id). A repeated
// source id refreshes the existing row instead of inserting a duplicate.
func (r *GormIdentityMappingRepository) Record(ctx context.Context, im *mapping.IdentityMapping) error {
	model := models.IdentityMappingModelFromDomain(im)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "pairing"}, {Name: "entity"}, {Name: "source_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"destination_id", "fingerprint", "last_synced_at", "outcome", "updated_at",
			}),
		}).
		Create(model).Error
}

// CountByEntity returns the number of mappings per entity type
func (r *GormIdentityMappingRepository) CountByEntity(ctx context.Context, pairing string) (map[sync.EntityType]int64, error) {
	type row struct {
		Entity sync.EntityType
		Total  int64
	}
	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&models.IdentityMappingModel{}).
		Select("entity, COUNT(*) AS total").
		Where("pairing = ?", pairing).
		Group("entity").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(map[sync.EntityType]int64, len(rows))
	for _, r := range rows {
		counts[r.Entity] = r.Total
	}
	return counts, nil
}

// Ensure GormIdentityMappingRepository implements mapping.Repository
var _ mapping.Repository = (*GormIdentityMappingRepository)(nil)

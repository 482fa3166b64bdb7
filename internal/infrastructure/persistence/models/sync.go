package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/qbridge/backend/internal/domain/mapping"
	"github.com/qbridge/backend/internal/domain/sync"
)

// IdentityMappingModel is the persistence model for the IdentityMapping
// domain entity.
type IdentityMappingModel struct {
	ID            uuid.UUID       `gorm:"type:uuid;primary_key"`
	Pairing       string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_identity_mapping_source,priority:1"`
	Entity        sync.EntityType `gorm:"type:varchar(20);not null;uniqueIndex:idx_identity_mapping_source,priority:2"`
	SourceID      string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_identity_mapping_source,priority:3"`
	DestinationID string          `gorm:"type:varchar(100);not null;index:idx_identity_mapping_destination"`
	Fingerprint   string          `gorm:"type:varchar(64);not null"`
	LastSyncedAt  time.Time       `gorm:"not null"`
	Outcome       string          `gorm:"type:varchar(20);not null"`
	CreatedAt     time.Time       `gorm:"not null"`
	UpdatedAt     time.Time       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (IdentityMappingModel) TableName() string {
	return "identity_mappings"
}

// ToDomain converts the persistence model to a domain IdentityMapping entity.
func (m *IdentityMappingModel) ToDomain() *mapping.IdentityMapping {
	return &mapping.IdentityMapping{
		ID:            m.ID,
		Pairing:       m.Pairing,
		Entity:        m.Entity,
		SourceID:      m.SourceID,
		DestinationID: m.DestinationID,
		Fingerprint:   m.Fingerprint,
		LastSyncedAt:  m.LastSyncedAt,
		Outcome:       m.Outcome,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain IdentityMapping entity.
func (m *IdentityMappingModel) FromDomain(im *mapping.IdentityMapping) {
	m.ID = im.ID
	m.Pairing = im.Pairing
	m.Entity = im.Entity
	m.SourceID = im.SourceID
	m.DestinationID = im.DestinationID
	m.Fingerprint = im.Fingerprint
	m.LastSyncedAt = im.LastSyncedAt
	m.Outcome = im.Outcome
	m.CreatedAt = im.CreatedAt
	m.UpdatedAt = im.UpdatedAt
}

// IdentityMappingModelFromDomain creates a new persistence model from a domain entity.
func IdentityMappingModelFromDomain(im *mapping.IdentityMapping) *IdentityMappingModel {
	m := &IdentityMappingModel{}
	m.FromDomain(im)
	return m
}

// CheckpointModel is the persistence model for the append-only sync log.
// Rows are inserted, never updated or deleted, except by a manual reset.
type CheckpointModel struct {
	ID          uuid.UUID              `gorm:"type:uuid;primary_key"`
	Pairing     string                 `gorm:"type:varchar(100);not null;index:idx_checkpoint_position,priority:1"`
	Entity      sync.EntityType        `gorm:"type:varchar(20);not null;index:idx_checkpoint_position,priority:2"`
	Cursor      string                 `gorm:"type:varchar(100);not null"`
	Outcome     sync.CheckpointOutcome `gorm:"type:varchar(10);not null"`
	CommittedAt time.Time              `gorm:"not null;index:idx_checkpoint_position,priority:3"`
}

// TableName returns the table name for GORM
func (CheckpointModel) TableName() string {
	return "checkpoints"
}

// ToDomain converts the persistence model to a domain Checkpoint.
func (m *CheckpointModel) ToDomain() *sync.Checkpoint {
	return &sync.Checkpoint{
		ID:          m.ID,
		Pairing:     m.Pairing,
		Entity:      m.Entity,
		Cursor:      m.Cursor,
		Outcome:     m.Outcome,
		CommittedAt: m.CommittedAt,
	}
}

// CheckpointModelFromDomain creates a new persistence model from a domain Checkpoint.
func CheckpointModelFromDomain(cp *sync.Checkpoint) *CheckpointModel {
	return &CheckpointModel{
		ID:          cp.ID,
		Pairing:     cp.Pairing,
		Entity:      cp.Entity,
		Cursor:      cp.Cursor,
		Outcome:     cp.Outcome,
		CommittedAt: cp.CommittedAt,
	}
}

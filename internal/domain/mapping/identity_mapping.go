package mapping

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/qbridge/backend/internal/domain/shared"
	"github.com/qbridge/backend/internal/domain/sync"
)

// Identity mapping domain errors
var (
	ErrMappingNotFound       = shared.NewDomainError("MAPPING_NOT_FOUND", "No identity mapping for this source record")
	ErrMappingInvalidEntity  = shared.NewDomainError("MAPPING_INVALID_ENTITY", "Invalid entity type for identity mapping")
	ErrMappingInvalidSource  = shared.NewDomainError("MAPPING_INVALID_SOURCE", "Source identifier must not be empty")
	ErrMappingInvalidDestine = shared.NewDomainError("MAPPING_INVALID_DESTINATION", "Destination identifier must not be empty")
)

// ---------------------------------------------------------------------------
// IdentityMapping Entity
// ---------------------------------------------------------------------------

// IdentityMapping links a record's native identifier in the source system to
// the identifier the destination system assigned on first creation. For a
// given (pairing, entity type, source id) there is at most one destination
// id; the resolver relies on this to turn "create" into "update". Mappings
// are never deleted automatically, only through manual reconciliation.
type IdentityMapping struct {
	ID uuid.UUID
	// Pairing identifies the remote-system pairing this mapping belongs to
	Pairing string
	// Entity is the record's entity type
	Entity sync.EntityType
	// SourceID is the identifier the record carries in its system of origin
	SourceID string
	// DestinationID is the identifier assigned by the receiving system
	DestinationID string
	// Fingerprint is a content hash used to detect whether a previously
	// synced record has changed
	Fingerprint string
	// LastSyncedAt is when this record last flowed through a session
	LastSyncedAt time.Time
	// Outcome records the result of the last sync of this record
	Outcome string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewIdentityMapping creates a mapping for a freshly created destination record
func NewIdentityMapping(pairing string, entity sync.EntityType, sourceID, destinationID, fingerprint string) (*IdentityMapping, error) {
	if !entity.IsValid() {
		return nil, ErrMappingInvalidEntity
	}
	if sourceID == "" {
		return nil, ErrMappingInvalidSource
	}
	if destinationID == "" {
		return nil, ErrMappingInvalidDestine
	}
	now := time.Now()
	return &IdentityMapping{
		ID:            uuid.New(),
		Pairing:       pairing,
		Entity:        entity,
		SourceID:      sourceID,
		DestinationID: destinationID,
		Fingerprint:   fingerprint,
		LastSyncedAt:  now,
		Outcome:       "synced",
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Refresh updates the mapping after a successful re-sync of the same native id
func (m *IdentityMapping) Refresh(fingerprint string) {
	now := time.Now()
	m.Fingerprint = fingerprint
	m.LastSyncedAt = now
	m.Outcome = "synced"
	m.UpdatedAt = now
}

// UpToDate reports whether a record with the given fingerprint needs no re-sync
func (m *IdentityMapping) UpToDate(fingerprint string) bool {
	return m.Fingerprint != "" && m.Fingerprint == fingerprint
}

// ---------------------------------------------------------------------------
// Fingerprint
// ---------------------------------------------------------------------------

// Fingerprint computes the content hash of a source record: SHA-256 over the
// record's fields in sorted key order. Field order on the wire therefore
// never affects change detection.
func Fingerprint(record map[string]string) string {
	keys := make([]string, 0, len(record))
	for k := range record {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write([]byte(record[k]))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// ---------------------------------------------------------------------------
// Repository Interface
// ---------------------------------------------------------------------------

// Repository persists identity mappings. The store serializes writes; only
// one session per pairing is active at a time, so no finer locking is needed.
type Repository interface {
	// Resolve maps a source identifier to its mapping, or ErrMappingNotFound
	Resolve(ctx context.Context, pairing string, entity sync.EntityType, sourceID string) (*IdentityMapping, error)

	// ResolveDestination maps a destination identifier back to its mapping
	ResolveDestination(ctx context.Context, pairing string, entity sync.EntityType, destinationID string) (*IdentityMapping, error)

	// Record upserts a mapping. Calling it twice with the same
	// (pairing, entity, source id) updates rather than duplicates.
	Record(ctx context.Context, m *IdentityMapping) error

	// CountByEntity returns the number of mappings per entity type
	CountByEntity(ctx context.Context, pairing string) (map[sync.EntityType]int64, error)
}

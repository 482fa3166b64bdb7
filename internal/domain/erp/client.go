// Package erp defines the boundary to the remote ERP system. The ERP's own
// storage and business logic live behind this interface; the bridge only
// reads with filters and writes keyed by destination identifiers.
package erp

import (
	"context"

	"github.com/qbridge/backend/internal/domain/shared"
	"github.com/qbridge/backend/internal/domain/sync"
)

// Remote API error taxonomy. Transient errors are retried with the same work
// item up to a bounded count; rejections are never retried.
var (
	// ErrUnavailable covers timeouts and rate limits; treated as transient
	ErrUnavailable = shared.NewDomainError("ERP_UNAVAILABLE", "Remote ERP API did not respond in time")
	// ErrRejected covers server-side validation failures; never retried
	ErrRejected = shared.NewDomainError("ERP_REJECTED", "Remote ERP API rejected the payload")
	// ErrRecordNotFound means no remote record matches the lookup
	ErrRecordNotFound = shared.NewDomainError("ERP_RECORD_NOT_FOUND", "No remote record matches")
	// ErrAuthFailed means the configured ERP credentials were refused
	ErrAuthFailed = shared.NewDomainError("ERP_AUTH_FAILED", "Remote ERP API authentication failed")
)

// Payload is a translated record body keyed by destination field names
type Payload = map[string]any

// Page is one page of a filtered read
type Page struct {
	Records []Payload
	// Total is the number of records matching the filter, across all pages
	Total int
}

// Client is the remote ERP API collaborator. Every call carries a bounded
// timeout via ctx; a deadline overrun surfaces as ErrUnavailable.
type Client interface {
	// FindByNativeID looks up the destination id of a record carrying the
	// given native source identifier, or ErrRecordNotFound. Used to adopt
	// records that exist remotely but have no local identity mapping.
	FindByNativeID(ctx context.Context, entity sync.EntityType, nativeID string) (string, error)

	// List reads a page of records for an entity type
	List(ctx context.Context, entity sync.EntityType, offset, limit int) (*Page, error)

	// Create inserts a record and returns the destination id it was assigned.
	// The native source id is stored on the remote record so FindByNativeID
	// can recover lost mappings.
	Create(ctx context.Context, entity sync.EntityType, nativeID string, payload Payload) (string, error)

	// Update replaces a record addressed by its destination id
	Update(ctx context.Context, entity sync.EntityType, destinationID string, payload Payload) error

	// Ping verifies connectivity and credentials
	Ping(ctx context.Context) error
}

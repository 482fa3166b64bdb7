package sync

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/qbridge/backend/internal/domain/erp"
	"github.com/qbridge/backend/internal/domain/mapping"
	syncdomain "github.com/qbridge/backend/internal/domain/sync"
	"github.com/qbridge/backend/internal/infrastructure/qbd"
)

// BatchResult summarizes one processed batch
type BatchResult struct {
	// Processed counts records the batch carried, including skipped ones
	Processed int
	// Failed counts records skipped after a per-record failure
	Failed int
	// Upserts counts remote creates plus updates actually performed
	Upserts int
	// Cursor is the highest position key applied, empty for an empty batch
	Cursor string
}

// Processor applies one batch of source records to the remote system. Each
// record is translated, resolved against the identity map and upserted;
// failures are isolated to the record that caused them.
type Processor struct {
	mappings    mapping.Repository
	erp         erp.Client
	table       *mapping.Table
	retryBudget int
	logger      *zap.Logger
}

// NewProcessor creates a new Processor
func NewProcessor(mappings mapping.Repository, erpClient erp.Client, table *mapping.Table, retryBudget int, logger *zap.Logger) *Processor {
	if retryBudget <= 0 {
		retryBudget = 3
	}
	return &Processor{
		mappings:    mappings,
		erp:         erpClient,
		table:       table,
		retryBudget: retryBudget,
		logger:      logger,
	}
}

// ProcessBatch applies the records in position-key order so the resulting
// cursor is the high-water mark of everything applied. It returns an error
// only when the remote system is unreachable; per-record problems are
// counted and skipped.
func (p *Processor) ProcessBatch(ctx context.Context, pairing string, entity syncdomain.EntityType, records []qbd.Record) (*BatchResult, error) {
	sorted := make([]qbd.Record, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		return positionKey(entity, sorted[i]) < positionKey(entity, sorted[j])
	})

	result := &BatchResult{}
	for _, record := range sorted {
		result.Processed++
		applied, err := p.applyRecord(ctx, pairing, entity, record)
		if err != nil {
			if errors.Is(err, erp.ErrUnavailable) {
				// nothing past this point was applied; the committed cursor
				// stays behind the failure so a retry replays from here
				return nil, err
			}
			p.logger.Warn("record skipped",
				zap.String("entity", string(entity)),
				zap.String("native_id", record.NativeID),
				zap.Error(err))
			result.Failed++
		} else if applied {
			result.Upserts++
		}
		result.Cursor = positionKey(entity, record)
	}
	return result, nil
}

// applyRecord upserts one record. The reported bool is false when the record
// was already up to date and nothing was written.
func (p *Processor) applyRecord(ctx context.Context, pairing string, entity syncdomain.EntityType, record qbd.Record) (bool, error) {
	fingerprint := mapping.Fingerprint(record.Fields)

	existing, err := p.mappings.Resolve(ctx, pairing, entity, record.NativeID)
	switch {
	case err == nil:
		if existing.UpToDate(fingerprint) {
			return false, nil
		}
	case errors.Is(err, mapping.ErrMappingNotFound):
		existing = nil
	default:
		return false, err
	}

	payload, err := mapping.Translate(p.table, entity, record.Fields, mapping.DirectionOutbound)
	if err != nil {
		return false, err
	}

	if existing != nil {
		if err := p.withRetries(ctx, func() error {
			return p.erp.Update(ctx, entity, existing.DestinationID, payload)
		}); err != nil {
			return false, err
		}
		existing.Refresh(fingerprint)
		return true, p.mappings.Record(ctx, existing)
	}

	destinationID, err := p.createOrAdopt(ctx, entity, record.NativeID, payload)
	if err != nil {
		return false, err
	}
	created, err := mapping.NewIdentityMapping(pairing, entity, record.NativeID, destinationID, fingerprint)
	if err != nil {
		return false, err
	}
	return true, p.mappings.Record(ctx, created)
}

// createOrAdopt prefers adopting a remote record that already carries this
// native id, so a lost identity map never produces remote duplicates.
func (p *Processor) createOrAdopt(ctx context.Context, entity syncdomain.EntityType, nativeID string, payload erp.Payload) (string, error) {
	var destinationID string
	err := p.withRetries(ctx, func() error {
		id, findErr := p.erp.FindByNativeID(ctx, entity, nativeID)
		if findErr == nil {
			destinationID = id
			return p.erp.Update(ctx, entity, id, payload)
		}
		if !errors.Is(findErr, erp.ErrRecordNotFound) {
			return findErr
		}
		id, createErr := p.erp.Create(ctx, entity, nativeID, payload)
		if createErr != nil {
			return createErr
		}
		destinationID = id
		return nil
	})
	return destinationID, err
}

// withRetries reruns fn on transient failures, up to the retry budget
func (p *Processor) withRetries(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < p.retryBudget; attempt++ {
		if err = fn(); err == nil || !errors.Is(err, erp.ErrUnavailable) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return err
}

// positionKey is the record's place in the entity's sync order: the unique
// full name for list entities, the transaction id otherwise.
func positionKey(entity syncdomain.EntityType, record qbd.Record) string {
	switch entity {
	case syncdomain.EntityItem, syncdomain.EntityCustomer, syncdomain.EntityVendor:
		if name, ok := record.Fields["FullName"]; ok && name != "" {
			return name
		}
		if name, ok := record.Fields["Name"]; ok && name != "" {
			return name
		}
	}
	return record.NativeID
}

package sync

import (
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Session Status
// ---------------------------------------------------------------------------

// Status represents the lifecycle state of a synchronization session
type Status string

const (
	// StatusAuthenticating means credentials are being checked
	StatusAuthenticating Status = "AUTHENTICATING"
	// StatusInProgress means the session is serving work
	StatusInProgress Status = "IN_PROGRESS"
	// StatusWaitingForMore means a batch has been issued but not acknowledged
	StatusWaitingForMore Status = "WAITING_FOR_MORE"
	// StatusCompleted means all entity types are exhausted
	StatusCompleted Status = "COMPLETED"
	// StatusError means the session hit an unrecoverable failure
	StatusError Status = "ERROR"
	// StatusAborted means the client closed the session or it idled out
	StatusAborted Status = "ABORTED"
)

// IsTerminal returns true when no further work can flow through the session
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusAborted
}

// ---------------------------------------------------------------------------
// WorkItem
// ---------------------------------------------------------------------------

// WorkItem is one unit of work awaiting acknowledgment. The protocol is
// strictly request/acknowledge in lockstep, so a session carries at most one
// WorkItem at a time.
type WorkItem struct {
	// Seq is the sequence number within the session
	Seq int
	// Entity is the entity type this item covers
	Entity EntityType
	// NativeID is the source identifier, when a single record is addressed
	NativeID string
	// Payload is the translated request body handed to the polling client
	Payload string
	// RetryCount counts transport-level retries of this item
	RetryCount int
}

// EntityProgress holds per-entity-type counters for a session
type EntityProgress struct {
	Sent   int
	Acked  int
	Failed int
}

// ---------------------------------------------------------------------------
// Session Aggregate
// ---------------------------------------------------------------------------

// Session is one authenticated synchronization session. It is owned
// exclusively by the session table and is never shared between pairings.
type Session struct {
	// Ticket is the opaque token the polling client presents on every call
	Ticket string
	// Pairing identifies the (desktop company file, remote system) pair
	Pairing string
	// User is the authenticated client credential reference
	User string
	// Status is the current lifecycle state
	Status Status
	// EntityIndex points into the fixed entity priority order
	EntityIndex int
	// Cursor is the last committed native-id position within the current entity
	Cursor string
	// Outstanding is the single in-flight work item, nil when idle
	Outstanding *WorkItem
	// PendingRetry holds a transport-failed item awaiting re-issue on the
	// next work request
	PendingRetry *WorkItem
	// IteratorID continues a server-side result iterator within the current
	// entity type
	IteratorID string
	// Progress holds per-entity counters
	Progress map[EntityType]*EntityProgress
	// LastError is the bounded message returned by the last-error operation
	LastError string
	// CompanyFile is reported by the client on the first work request
	CompanyFile string
	// ClientWireVersion is the client's wire-format version, e.g. "13.0"
	ClientWireVersion string
	// RemainingHint is the count of records left in the current entity, as
	// reported by the last acknowledgment; -1 when unknown
	RemainingHint int

	CreatedAt      time.Time
	LastActivityAt time.Time

	reported int // high-water mark keeping progress monotone
	seq      int
}

// NewSession creates a fresh InProgress session with a new ticket
func NewSession(pairing, user string) *Session {
	now := time.Now()
	progress := make(map[EntityType]*EntityProgress, len(EntityOrder()))
	for _, e := range EntityOrder() {
		progress[e] = &EntityProgress{}
	}
	return &Session{
		Ticket:         uuid.NewString(),
		Pairing:        pairing,
		User:           user,
		Status:         StatusInProgress,
		Progress:       progress,
		LastError:      "No error",
		RemainingHint:  -1,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// Touch records client activity for idle-timeout accounting
func (s *Session) Touch() {
	s.LastActivityAt = time.Now()
}

// IdleFor reports how long the session has been without client activity
func (s *Session) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}

// CurrentEntity returns the entity type the cursor sits on, or false when
// every entity type is exhausted.
func (s *Session) CurrentEntity() (EntityType, bool) {
	order := EntityOrder()
	if s.EntityIndex >= len(order) {
		return "", false
	}
	return order[s.EntityIndex], true
}

// NextSeq returns the sequence number the next issued item will carry.
// Payloads embed it as the request id before Issue is called.
func (s *Session) NextSeq() int {
	return s.seq + 1
}

// Issue records a new outstanding work item. The lockstep invariant is
// enforced here: issuing while another item is outstanding is a protocol
// violation.
func (s *Session) Issue(entity EntityType, payload, nativeID string) (*WorkItem, error) {
	if s.Status.IsTerminal() {
		return nil, ErrSessionFinished
	}
	if s.Outstanding != nil {
		return nil, ErrProtocolViolation
	}
	s.seq++
	item := &WorkItem{
		Seq:      s.seq,
		Entity:   entity,
		NativeID: nativeID,
		Payload:  payload,
	}
	s.Outstanding = item
	s.Status = StatusWaitingForMore
	s.Progress[entity].Sent++
	s.Touch()
	return item, nil
}

// Reissue puts a previously acknowledged-with-transport-failure item back in
// flight without consuming a new sequence number.
func (s *Session) Reissue(item *WorkItem) error {
	if s.Outstanding != nil {
		return ErrProtocolViolation
	}
	s.Outstanding = item
	s.Status = StatusWaitingForMore
	s.Touch()
	return nil
}

// Acknowledge validates a result against the outstanding item and clears it.
// The caller decides afterwards whether the item succeeded or failed.
func (s *Session) Acknowledge(seq int) (*WorkItem, error) {
	if s.Outstanding == nil {
		return nil, ErrNoOutstandingItem
	}
	if s.Outstanding.Seq != seq {
		return nil, ErrSequenceMismatch
	}
	item := s.Outstanding
	s.Outstanding = nil
	s.Status = StatusInProgress
	s.Touch()
	return item, nil
}

// AdvanceEntity moves the cursor to the next entity type in priority order
// and resets the intra-entity cursor.
func (s *Session) AdvanceEntity() {
	s.EntityIndex++
	s.Cursor = ""
	s.IteratorID = ""
	s.RemainingHint = -1
	if _, ok := s.CurrentEntity(); !ok {
		s.Status = StatusCompleted
	}
}

// Fail moves the session to the Error state with a bounded message
func (s *Session) Fail(message string) {
	s.Status = StatusError
	s.LastError = boundMessage(message)
	s.Outstanding = nil
	s.PendingRetry = nil
	s.Touch()
}

// Abort discards the session. Committed checkpoints stay valid, so a new
// session resumes from the last committed cursor.
func (s *Session) Abort() {
	s.Status = StatusAborted
	s.Outstanding = nil
	s.PendingRetry = nil
	s.Touch()
}

// RecordError keeps a bounded last-error message without changing state
func (s *Session) RecordError(message string) {
	s.LastError = boundMessage(message)
}

// ---------------------------------------------------------------------------
// Progress
// ---------------------------------------------------------------------------

// ProgressPercent derives the single scalar the polling client displays:
// (completed entity types * 100 + intra-entity percentage) / total entity
// types. The value is clamped so successive readings never regress.
func (s *Session) ProgressPercent() int {
	total := len(EntityOrder())
	if s.Status == StatusCompleted {
		s.reported = 100
		return 100
	}

	intra := 0
	if entity, ok := s.CurrentEntity(); ok && s.RemainingHint >= 0 {
		acked := s.Progress[entity].Acked + s.Progress[entity].Failed
		if acked+s.RemainingHint > 0 {
			intra = acked * 100 / (acked + s.RemainingHint)
		}
	}

	pct := (s.EntityIndex*100 + intra) / total
	if pct > 99 {
		pct = 99 // 100 is reserved for a completed queue
	}
	if pct < s.reported {
		pct = s.reported
	}
	s.reported = pct
	return pct
}

// boundMessage truncates operator-facing messages so the polling client's
// fixed-size error field never overflows.
func boundMessage(msg string) string {
	const maxErrorLen = 512
	if len(msg) > maxErrorLen {
		return msg[:maxErrorLen]
	}
	return msg
}

// Package sync drives synchronization sessions against the polling desktop
// client. The service methods mirror the client's SOAP operations one to
// one; the transport layer only unwraps envelopes and forwards here.
package sync

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"github.com/qbridge/backend/internal/domain/erp"
	"github.com/qbridge/backend/internal/domain/mapping"
	syncdomain "github.com/qbridge/backend/internal/domain/sync"
	"github.com/qbridge/backend/internal/infrastructure/qbd"
)

// Authenticate result tokens understood by the polling client
const (
	// AuthResultWork means a session was opened and work is waiting
	AuthResultWork = ""
	// AuthResultNone means credentials are fine but there is nothing to do
	AuthResultNone = "none"
	// AuthResultBusy asks the client to retry later
	AuthResultBusy = "busy"
	// AuthResultInvalid means the credentials were rejected
	AuthResultInvalid = "nvu"
)

// ServerWireVersion is reported to version-probing clients
const ServerWireVersion = "1.0.0"

// Config carries the session engine settings
type Config struct {
	// User and Password authenticate the polling client
	User     string
	Password string
	// Pairing identifies the (company file, remote system) pair this server
	// instance serves
	Pairing string
	// BatchSize bounds each desktop query
	BatchSize int
	// RetryBudget bounds transport retries per work item and remote retries
	// per record
	RetryBudget int
	// IdleTimeout evicts sessions without client activity
	IdleTimeout time.Duration
	// NameFilter optionally restricts list queries to a name prefix
	NameFilter string
	// WireVersion is the desktop query format version
	WireVersion string
}

// SessionService implements the polling protocol operations
type SessionService struct {
	// mu serializes every session-touching operation. The protocol is
	// lockstep with a single client, so one lock costs nothing and keeps the
	// idle sweeper and the operator API off sessions a handler is mutating.
	mu          stdsync.Mutex
	cfg         Config
	store       *SessionStore
	checkpoints syncdomain.CheckpointStore
	processor   *Processor
	logger      *zap.Logger
}

// NewSessionService creates a new SessionService
func NewSessionService(
	cfg Config,
	store *SessionStore,
	checkpoints syncdomain.CheckpointStore,
	mappings mapping.Repository,
	erpClient erp.Client,
	table *mapping.Table,
	logger *zap.Logger,
) *SessionService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.RetryBudget <= 0 {
		cfg.RetryBudget = 3
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	return &SessionService{
		cfg:         cfg,
		store:       store,
		checkpoints: checkpoints,
		processor:   NewProcessor(mappings, erpClient, table, cfg.RetryBudget, logger),
		logger:      logger,
	}
}

// ---------------------------------------------------------------------------
// Protocol operations
// ---------------------------------------------------------------------------

// Authenticate opens a session. It returns the ticket and the result token;
// per protocol the call itself never errors, bad credentials are a token.
func (s *SessionService) Authenticate(ctx context.Context, user, password string) (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.credentialsMatch(user, password) {
		s.logger.Warn("authentication rejected", zap.String("user", user))
		return "", AuthResultInvalid
	}

	// lazily evict idle sessions so a crashed client never wedges the pairing
	s.store.EvictIdle(time.Now(), s.cfg.IdleTimeout)

	if active, ok := s.store.ActiveForPairing(s.cfg.Pairing); ok {
		s.logger.Info("pairing busy, rejecting second session",
			zap.String("pairing", s.cfg.Pairing),
			zap.String("active_ticket", active.Ticket))
		return "", AuthResultBusy
	}

	session := syncdomain.NewSession(s.cfg.Pairing, user)
	s.store.Put(session)
	s.logger.Info("session opened",
		zap.String("ticket", session.Ticket),
		zap.String("pairing", session.Pairing))
	return session.Ticket, AuthResultWork
}

// SendRequest returns the next desktop query payload, or the empty string
// when the run is complete. Calling it while a batch is still outstanding is
// a protocol violation and fails the session.
func (s *SessionService) SendRequest(ctx context.Context, ticket, companyFile, wireVersion string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.store.Get(ticket)
	if !ok {
		return "", syncdomain.ErrInvalidTicket
	}
	if session.Status.IsTerminal() {
		return "", nil
	}
	if session.Outstanding != nil {
		s.logger.Error("next batch requested with one outstanding",
			zap.String("ticket", ticket),
			zap.Int("outstanding_seq", session.Outstanding.Seq))
		session.Fail("Protocol violation: batch requested while another is outstanding")
		return "", syncdomain.ErrProtocolViolation
	}

	// the client reports its environment on the first work request
	if session.CompanyFile == "" && companyFile != "" {
		session.CompanyFile = companyFile
	}
	if session.ClientWireVersion == "" && wireVersion != "" {
		session.ClientWireVersion = wireVersion
	}

	// a transport-failed item goes back out unchanged before any new work
	if item := session.PendingRetry; item != nil {
		session.PendingRetry = nil
		if err := session.Reissue(item); err != nil {
			return "", err
		}
		s.logger.Info("work item re-issued",
			zap.String("ticket", ticket),
			zap.String("entity", string(item.Entity)),
			zap.Int("attempt", item.RetryCount))
		return item.Payload, nil
	}

	entity, ok := session.CurrentEntity()
	if !ok {
		return "", nil
	}

	cursor, err := s.resumeCursor(ctx, session, entity)
	if err != nil {
		session.Fail(fmt.Sprintf("Checkpoint read failed: %v", err))
		return "", err
	}

	payload, err := qbd.BuildQueryRequest(qbd.QueryRequest{
		Entity:      entity,
		RequestID:   session.NextSeq(),
		MaxReturned: s.cfg.BatchSize,
		AfterName:   cursor,
		NameFilter:  s.cfg.NameFilter,
		IteratorID:  session.IteratorID,
		WireVersion: s.wireVersion(session),
	})
	if err != nil {
		session.Fail(fmt.Sprintf("Request build failed: %v", err))
		return "", err
	}

	if _, err := session.Issue(entity, payload, ""); err != nil {
		return "", err
	}
	s.logger.Debug("work item issued",
		zap.String("ticket", ticket),
		zap.String("entity", string(entity)),
		zap.String("cursor", cursor))
	return payload, nil
}

// ReceiveResponse acknowledges the outstanding batch and returns the overall
// progress percentage. The response's echoed request id must match the
// outstanding item's sequence number; a stale one fails the session. A
// transport-level failure reported by the client puts the same item back in
// flight until its retry budget runs out.
func (s *SessionService) ReceiveResponse(ctx context.Context, ticket, payload, hresult, message string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.store.Get(ticket)
	if !ok {
		return 0, syncdomain.ErrInvalidTicket
	}
	outstanding := session.Outstanding
	if outstanding == nil {
		session.Fail("Unexpected response: no outstanding batch")
		return 0, syncdomain.ErrNoOutstandingItem
	}

	if hresult != "" {
		item, err := session.Acknowledge(outstanding.Seq)
		if err != nil {
			return 0, err
		}
		return s.handleTransportFailure(session, item, hresult, message)
	}

	resp, err := qbd.ParseResponse(payload)
	if err != nil {
		session.Fail(fmt.Sprintf("Malformed response payload: %v", err))
		return 0, err
	}

	// responses without an echoed request id are taken on trust
	seq := resp.RequestID
	if seq < 0 {
		seq = outstanding.Seq
	}
	item, err := session.Acknowledge(seq)
	if err != nil {
		session.Fail(fmt.Sprintf("Unexpected response: %v", err))
		return 0, err
	}
	if !resp.OK() {
		session.RecordError(fmt.Sprintf("Desktop query failed with status %d: %s", resp.StatusCode, resp.StatusMessage))
		session.AdvanceEntity() // skip the entity the desktop cannot serve
		return session.ProgressPercent(), nil
	}

	result, err := s.processor.ProcessBatch(ctx, session.Pairing, item.Entity, resp.Records)
	if err != nil {
		// remote system is down; the batch was not applied, fail the run
		session.Fail(fmt.Sprintf("Remote system unavailable: %v", err))
		return 0, err
	}

	// the checkpoint must be durable before the client learns the batch is
	// done, otherwise a crash here would silently skip these records
	if result.Processed > 0 {
		outcome := syncdomain.OutcomeOK
		if result.Failed > 0 {
			outcome = syncdomain.OutcomePartial
		}
		cp, cpErr := syncdomain.NewCheckpoint(session.Pairing, item.Entity, result.Cursor, outcome)
		if cpErr == nil {
			cpErr = s.checkpoints.Commit(ctx, cp)
		}
		if cpErr != nil {
			session.Fail(fmt.Sprintf("Checkpoint commit failed: %v", cpErr))
			return 0, cpErr
		}
		session.Cursor = result.Cursor
	}

	progress := session.Progress[item.Entity]
	progress.Acked += result.Processed - result.Failed
	progress.Failed += result.Failed
	session.RemainingHint = resp.Remaining
	session.IteratorID = resp.IteratorID
	if result.Failed > 0 {
		session.RecordError(fmt.Sprintf("%d record(s) skipped in %s", result.Failed, item.Entity))
	}

	if s.entityExhausted(resp) {
		// close the entity's scan cycle so the next run rescans from the top
		// instead of resuming past records that may have changed since
		done, doneErr := syncdomain.NewCheckpoint(session.Pairing, item.Entity, session.Cursor, syncdomain.OutcomeDone)
		if doneErr == nil {
			doneErr = s.checkpoints.Commit(ctx, done)
		}
		if doneErr != nil {
			session.Fail(fmt.Sprintf("Checkpoint commit failed: %v", doneErr))
			return 0, doneErr
		}
		session.AdvanceEntity()
	}

	pct := session.ProgressPercent()
	s.logger.Info("batch acknowledged",
		zap.String("ticket", ticket),
		zap.String("entity", string(item.Entity)),
		zap.Int("records", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Int("progress", pct))
	return pct, nil
}

// LastError returns the bounded message for the client's error dialog
func (s *SessionService) LastError(ctx context.Context, ticket string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.store.Get(ticket)
	if !ok {
		return "", syncdomain.ErrInvalidTicket
	}
	session.Touch()
	return session.LastError, nil
}

// CloseConnection ends the session. Completed sessions acknowledge success;
// anything else is treated as a client-side abort. Either way committed
// checkpoints survive and the next session resumes behind them.
func (s *SessionService) CloseConnection(ctx context.Context, ticket string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.store.Get(ticket)
	if !ok {
		return "", syncdomain.ErrInvalidTicket
	}
	if !session.Status.IsTerminal() {
		session.Abort()
	}
	s.store.Remove(ticket)
	s.logger.Info("session closed",
		zap.String("ticket", ticket),
		zap.String("status", string(session.Status)))
	return "OK", nil
}

// ConnectionError is reported when the client cannot open its company file.
// There is no alternative file to suggest, so the answer is always to stop.
func (s *SessionService) ConnectionError(ctx context.Context, ticket, hresult, message string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.store.Get(ticket)
	if !ok {
		return "", syncdomain.ErrInvalidTicket
	}
	session.Fail(fmt.Sprintf("Connection error %s: %s", hresult, message))
	s.logger.Warn("client connection error",
		zap.String("ticket", ticket),
		zap.String("hresult", hresult),
		zap.String("message", message))
	return "done", nil
}

// ServerVersion reports this server's version string
func (s *SessionService) ServerVersion(ctx context.Context) string {
	return ServerWireVersion
}

// ClientVersion inspects the client's version. The empty string accepts any
// client; blocking old clients is a deliberate non-feature.
func (s *SessionService) ClientVersion(ctx context.Context, version string) string {
	s.logger.Debug("client version reported", zap.String("version", version))
	return ""
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *SessionService) credentialsMatch(user, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.cfg.User))
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Password))
	return userOK&passOK == 1
}

// resumeCursor picks the in-session cursor when mid-entity, otherwise the
// durable checkpoint for the entity.
func (s *SessionService) resumeCursor(ctx context.Context, session *syncdomain.Session, entity syncdomain.EntityType) (string, error) {
	if session.Cursor != "" {
		return session.Cursor, nil
	}
	cp, err := s.checkpoints.Latest(ctx, session.Pairing, entity)
	if err != nil {
		if errors.Is(err, syncdomain.ErrCheckpointNotFound) {
			return "", nil
		}
		return "", err
	}
	if cp.Outcome == syncdomain.OutcomeDone {
		// the last run finished this entity; rescan from the top and let
		// fingerprint skip pass over the unchanged records
		return "", nil
	}
	return cp.Cursor, nil
}

func (s *SessionService) handleTransportFailure(session *syncdomain.Session, item *syncdomain.WorkItem, hresult, message string) (int, error) {
	item.RetryCount++
	session.RecordError(fmt.Sprintf("Transport failure %s: %s", hresult, message))
	if item.RetryCount >= s.processor.retryBudget {
		s.logger.Error("work item exhausted its retries",
			zap.String("ticket", session.Ticket),
			zap.String("entity", string(item.Entity)),
			zap.Int("retries", item.RetryCount))
		session.Fail(fmt.Sprintf("Batch failed after %d attempts: %s", item.RetryCount, message))
		return session.ProgressPercent(), nil
	}
	session.PendingRetry = item
	s.logger.Warn("work item re-queued after transport failure",
		zap.String("ticket", session.Ticket),
		zap.String("entity", string(item.Entity)),
		zap.Int("attempt", item.RetryCount))
	return session.ProgressPercent(), nil
}

// wireVersion prefers the version the client reported over the configured one
func (s *SessionService) wireVersion(session *syncdomain.Session) string {
	if session.ClientWireVersion != "" {
		return session.ClientWireVersion
	}
	return s.cfg.WireVersion
}

// entityExhausted decides whether the current entity has no more records: an
// explicit zero remaining count, or a short batch with no hint at all.
func (s *SessionService) entityExhausted(resp *qbd.Response) bool {
	if resp.Remaining == 0 {
		return true
	}
	return resp.Remaining < 0 && len(resp.Records) < s.cfg.BatchSize
}

// SweepIdleSessions evicts idle sessions; wired to a background ticker
func (s *SessionService) SweepIdleSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ticket := range s.store.EvictIdle(time.Now(), s.cfg.IdleTimeout) {
		s.logger.Info("idle session evicted", zap.String("ticket", ticket))
	}
}

// Busy reports whether a session currently holds the pairing
func (s *SessionService) Busy() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, busy := s.store.ActiveForPairing(s.cfg.Pairing)
	return busy
}

// ActiveSessions returns the number of tracked sessions
func (s *SessionService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Len()
}

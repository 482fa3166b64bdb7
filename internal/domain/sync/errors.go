package sync

import "github.com/qbridge/backend/internal/domain/shared"

// Session and checkpoint domain errors
var (
	ErrInvalidCredentials   = shared.NewDomainError("INVALID_CREDENTIALS", "Authentication failed")
	ErrInvalidTicket        = shared.NewDomainError("INVALID_TICKET", "Unknown or expired session ticket")
	ErrSessionBusy          = shared.NewDomainError("SESSION_BUSY", "Another session is already in progress for this pairing")
	ErrProtocolViolation    = shared.NewDomainError("PROTOCOL_VIOLATION", "Request issued while a batch is still outstanding")
	ErrNoOutstandingItem    = shared.NewDomainError("NO_OUTSTANDING_ITEM", "Result received with no batch outstanding")
	ErrSequenceMismatch     = shared.NewDomainError("SEQUENCE_MISMATCH", "Result does not match the outstanding work item")
	ErrSessionFinished      = shared.NewDomainError("SESSION_FINISHED", "Session is no longer accepting work")
	ErrInvalidEntityType    = shared.NewDomainError("INVALID_ENTITY_TYPE", "Unsupported entity type")
	ErrCheckpointNotFound   = shared.NewDomainError("CHECKPOINT_NOT_FOUND", "No checkpoint recorded for entity type")
	ErrCheckpointRegression = shared.NewDomainError("CHECKPOINT_REGRESSION", "Checkpoint cursor would move backwards")
)

package store

import (
	"context"
	"errors"

	"github.com/voicekit/support-bot/internal/domain"
)

// SchemaVersion is the record layout version written by the providers. The
// orchestrator refuses to run against a store that declares anything else.
const SchemaVersion = 2

var (
	// ErrTicketNotFound signals that an update targeted an unknown ticket
	// and the caller should insert instead.
	ErrTicketNotFound = errors.New("ticket not found")
	// ErrBlacklistNotFound signals a missing blacklist entry.
	ErrBlacklistNotFound = errors.New("blacklist entry not found")
	// ErrSchemaMismatch signals persisted data written by an incompatible version.
	ErrSchemaMismatch = errors.New("store schema version mismatch")
)

// TicketField names the queryable ticket attributes.
type TicketField string

const (
	FieldID        TicketField = "id"
	FieldIssuer    TicketField = "issuer"
	FieldSupporter TicketField = "supporter"
	FieldStatus    TicketField = "status"
)

// Provider is the durable key/value persistence contract consumed by the
// support orchestrator. Implementations assign ticket IDs on first insert.
type Provider interface {
	Setup(ctx context.Context, namespace string) error
	Version() int

	IsBlacklisted(ctx context.Context, uid string) (bool, error)
	GetBlacklistEntry(ctx context.Context, uid string) (*domain.BlacklistEntry, error)
	AddBlacklist(ctx context.Context, entry domain.BlacklistEntry) error
	RemoveBlacklist(ctx context.Context, uid string) error
	BlacklistEntries(ctx context.Context) ([]domain.BlacklistEntry, error)

	AddTicket(ctx context.Context, t *domain.Ticket) (uint64, error)
	UpdateTicket(ctx context.Context, t *domain.Ticket) (uint64, error)
	TicketsBy(ctx context.Context, field TicketField, value string) ([]*domain.Ticket, error)
	RemoveTicket(ctx context.Context, id uint64) error

	Reset(ctx context.Context) error
	Close() error
}

func matchesField(rec domain.TicketRecord, field TicketField, value string) bool {
	switch field {
	case FieldID:
		return uintString(rec.ID) == value
	case FieldIssuer:
		return rec.Issuer == value
	case FieldSupporter:
		return rec.Supporter == value
	case FieldStatus:
		return rec.Status == value
	default:
		return false
	}
}

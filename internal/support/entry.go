package support

import (
	"context"

	"github.com/voicekit/support-bot/internal/domain"
	apperrors "github.com/voicekit/support-bot/pkg/util"
)

// Entry wraps one open ticket awaiting supporter pickup in the shared queue.
type Entry struct {
	sup    *Support
	ticket *domain.Ticket
	taken  bool
}

// Taken reports whether the entry was already elevated.
func (e *Entry) Taken() bool {
	return e.taken
}

// Ticket returns the wrapped ticket.
func (e *Entry) Ticket() *domain.Ticket {
	return e.ticket
}

// Elevate promotes the entry into a session: the supporter assignment is
// persisted first, then the entry leaves the shared queue exactly once, the
// session starts, and every sibling offer is cancelled. A failed persist
// leaves the entry queued and unassigned, still claimable by any supporter.
func (e *Entry) Elevate(ctx context.Context, supporterUID string) error {
	if e.taken {
		return apperrors.NewConflict("ticket already taken", map[string]any{"ticket_id": e.ticket.ID})
	}
	e.ticket.Supporter = supporterUID
	if _, err := e.sup.persistTicket(ctx, e.ticket); err != nil {
		e.ticket.Supporter = ""
		return apperrors.NewInternalError(err)
	}
	if !e.sup.removeEntry(e) {
		return apperrors.NewConflict("ticket already taken", map[string]any{"ticket_id": e.ticket.ID})
	}
	e.taken = true
	sess := newSession(e.sup, e.ticket)
	e.sup.sessions = append(e.sup.sessions, sess)
	if err := sess.Start(ctx); err != nil {
		return err
	}
	e.sup.cancelSiblingOffers(ctx, e, supporterUID)
	return nil
}

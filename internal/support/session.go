package support

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/voicekit/support-bot/internal/domain"
	apperrors "github.com/voicekit/support-bot/pkg/util"
)

// Session is the live pairing of requester and supporter after acceptance,
// until resolution.
type Session struct {
	sup    *Support
	ticket *domain.Ticket
}

func newSession(sup *Support, ticket *domain.Ticket) *Session {
	return &Session{sup: sup, ticket: ticket}
}

// Ticket returns the session's ticket.
func (s *Session) Ticket() *domain.Ticket {
	return s.ticket
}

// Start moves both parties into the department channel. If either party is
// offline the move is logged and skipped; the ticket stays assigned and the
// session stays active, a recoverable inconsistency rather than a failure.
func (s *Session) Start(ctx context.Context) error {
	requester, requesterOnline := s.sup.session.ClientByUID(s.ticket.Issuer)
	supporter, supporterOnline := s.sup.session.ClientByUID(s.ticket.Supporter)
	if !requesterOnline || !supporterOnline {
		s.sup.logger.Warn("session party offline, skipping channel move",
			zap.Uint64("ticket_id", s.ticket.ID),
			zap.Bool("requester_online", requesterOnline),
			zap.Bool("supporter_online", supporterOnline))
		return nil
	}
	channelID := s.ticket.Role.ChannelID
	if err := s.sup.session.MoveClient(requester.UID, channelID); err != nil {
		s.sup.logger.Warn("failed to move requester", zap.Uint64("ticket_id", s.ticket.ID), zap.Error(err))
		return nil
	}
	if err := s.sup.session.MoveClient(supporter.UID, channelID); err != nil {
		s.sup.logger.Warn("failed to move supporter", zap.Uint64("ticket_id", s.ticket.ID), zap.Error(err))
	}
	return nil
}

// Resolve closes the session: the ticket is closed and persisted first, then
// the session leaves the active list and the requester is prompted to rate.
// A failed persist reopens the ticket and keeps the session active, so the
// supporter can retry and the requester never hears of an unrecorded close.
func (s *Session) Resolve(ctx context.Context, text string) error {
	s.ticket.Close(text, s.sup.now())
	if _, err := s.sup.persistTicket(ctx, s.ticket); err != nil {
		s.ticket.Reopen()
		return apperrors.NewInternalError(err)
	}
	if !s.sup.removeSession(s) {
		return apperrors.NewNotFound("session", map[string]any{"ticket_id": s.ticket.ID})
	}
	if err := s.sup.session.SendPrivate(s.ticket.Issuer,
		fmt.Sprintf("Your ticket #%d was resolved: %s\nRate your experience with !rate %d <0-%d> within %d days.",
			s.ticket.ID, text, s.ticket.ID, domain.MaxRating, int(domain.RatingWindow.Hours())/24)); err != nil {
		s.sup.logger.Warn("failed to send rating prompt", zap.Uint64("ticket_id", s.ticket.ID), zap.Error(err))
	}
	return nil
}

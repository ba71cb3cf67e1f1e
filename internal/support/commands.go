package support

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/voicekit/support-bot/internal/bot"
	"github.com/voicekit/support-bot/internal/domain"
	"github.com/voicekit/support-bot/internal/host"
	"github.com/voicekit/support-bot/internal/store"
	apperrors "github.com/voicekit/support-bot/pkg/util"
)

// devActionResetStore is the only implemented dev action bit.
const devActionResetStore = 0x01

// RegisterCommands binds the chat-command surface to the router.
func (s *Support) RegisterCommands(r *bot.Router) {
	r.Register("request", 1, "request <department>", nil, s.cmdRequest)
	r.Register("describe", 1, "describe <issue>", nil, s.cmdDescribe)
	r.Register("accept", 0, "accept", s.permActiveOffer, s.cmdAccept)
	r.Register("decline", 0, "decline", s.permActiveOffer, s.cmdDecline)
	r.Register("rate", 2, "rate <ticket> <rating>", nil, s.cmdRate)
	r.Register("view", 0, "view", nil, s.cmdView)
	r.Register("resolve", 1, "resolve <reason>", s.permActiveSession, s.cmdResolve)
	r.Register("tickets", 0, "tickets [any|open|closed]", s.permViewTickets, s.cmdTickets)
	r.Register("dev", 1, "dev <action>", s.permDeveloper, s.cmdDev)
}

// Only the client whose queue currently has an offer awaiting a decision may
// accept or decline.
func (s *Support) permActiveOffer(client host.Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue, ok := s.offers[client.UID]
	if !ok {
		return false
	}
	active, ok := queue.Active()
	return ok && active.Pending()
}

func (s *Support) permActiveSession(client host.Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessionBySupporter(client.UID)
	return ok
}

func (s *Support) permViewTickets(client host.Client) bool {
	for _, role := range s.roles.Matching(client.ServerGroups, "") {
		if role.CanViewAllTickets {
			return true
		}
	}
	return false
}

func (s *Support) permDeveloper(client host.Client) bool {
	for _, role := range s.roles.Matching(client.ServerGroups, "") {
		if role.IsDeveloper {
			return true
		}
	}
	return false
}

func (s *Support) cmdRequest(ctx context.Context, client host.Client, args []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.requests[client.UID]
	if !ok {
		return apperrors.NewNotFound("support request", map[string]any{"uid": client.UID})
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return apperrors.NewValidationError("the department must be a number", nil)
	}
	return rc.SetInquiry(ctx, index)
}

func (s *Support) cmdDescribe(ctx context.Context, client host.Client, args []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rc, ok := s.requests[client.UID]
	if !ok {
		return apperrors.NewNotFound("support request", map[string]any{"uid": client.UID})
	}
	return rc.SetIssue(ctx, strings.Join(args, " "))
}

func (s *Support) cmdAccept(ctx context.Context, client host.Client, args []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue, ok := s.offers[client.UID]
	if !ok {
		return nil
	}
	active, ok := queue.Active()
	if !ok {
		return nil
	}
	return active.Accept(ctx)
}

func (s *Support) cmdDecline(ctx context.Context, client host.Client, args []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue, ok := s.offers[client.UID]
	if !ok {
		return nil
	}
	active, ok := queue.Active()
	if !ok {
		return nil
	}
	return active.Decline(ctx)
}

func (s *Support) cmdRate(ctx context.Context, client host.Client, args []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rating, err := strconv.Atoi(args[1])
	if err != nil || rating < 0 || rating > domain.MaxRating {
		return apperrors.NewValidationError(fmt.Sprintf("the rating must be between 0 and %d", domain.MaxRating), nil)
	}
	tickets, err := s.store.TicketsBy(ctx, store.FieldID, args[0])
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if len(tickets) == 0 || tickets[0].Issuer != client.UID {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": args[0]})
	}
	ticket := tickets[0]
	if !ticket.RatableAt(s.now()) {
		return apperrors.NewValidationError("the rating window for this ticket has closed", nil)
	}
	ticket.Rating = &rating
	if _, err := s.persistTicket(ctx, ticket); err != nil {
		return apperrors.NewInternalError(err)
	}
	return s.session.SendPrivate(client.UID, fmt.Sprintf("Thanks, ticket #%d rated %d/%d.", ticket.ID, rating, domain.MaxRating))
}

func (s *Support) cmdView(ctx context.Context, client host.Client, args []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tickets, err := s.store.TicketsBy(ctx, store.FieldIssuer, client.UID)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if len(tickets) == 0 {
		return s.session.SendPrivate(client.UID, "You have no tickets.")
	}
	return s.session.SendPrivate(client.UID, formatTicketList(tickets))
}

func (s *Support) cmdResolve(ctx context.Context, client host.Client, args []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessionBySupporter(client.UID)
	if !ok {
		return apperrors.NewNotFound("support session", map[string]any{"uid": client.UID})
	}
	return sess.Resolve(ctx, strings.Join(args, " "))
}

func (s *Support) cmdTickets(ctx context.Context, client host.Client, args []string) error {
	state := "open"
	if len(args) > 0 {
		state = args[0]
	}
	tickets, err := s.TicketsByState(ctx, state)
	if err != nil {
		return err
	}
	if len(tickets) == 0 {
		return s.session.SendPrivate(client.UID, fmt.Sprintf("No %s tickets.", state))
	}
	return s.session.SendPrivate(client.UID, formatTicketList(tickets))
}

func (s *Support) cmdDev(ctx context.Context, client host.Client, args []string) error {
	actions, err := strconv.Atoi(args[0])
	if err != nil {
		return apperrors.NewValidationError("the dev action must be a number", nil)
	}
	if actions&devActionResetStore != 0 {
		if err := s.store.Reset(ctx); err != nil {
			return apperrors.NewInternalError(err)
		}
		return s.session.SendPrivate(client.UID, "Ticket store reset.")
	}
	return nil
}

func formatTicketList(tickets []*domain.Ticket) string {
	var b strings.Builder
	for _, t := range tickets {
		fmt.Fprintf(&b, "#%d [%s] %s", t.ID, t.Role.Name, t.Status)
		if t.Supporter != "" {
			fmt.Fprintf(&b, " (supporter %s)", t.Supporter)
		}
		fmt.Fprintf(&b, ": %s\n", t.Issue)
	}
	return strings.TrimRight(b.String(), "\n")
}

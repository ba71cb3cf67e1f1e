package support

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/voicekit/support-bot/internal/challenge"
	"github.com/voicekit/support-bot/internal/domain"
	"github.com/voicekit/support-bot/internal/host"
)

// requestState enumerates the requester dialogue.
type requestState int

const (
	stateAskInquiry requestState = iota
	stateDescribeIssue
	stateDone
)

// requestComplete hands the finished ticket back to the orchestrator.
type requestComplete func(ctx context.Context, rc *RequestChallenge, ticket *domain.Ticket) error

// RequestChallenge walks one requester through choosing a department and
// describing their issue, producing a persisted open ticket. At most one
// instance exists per requester.
type RequestChallenge struct {
	machine    *challenge.Machine[requestState]
	sup        *Support
	client     host.Client
	ticket     *domain.Ticket
	onComplete requestComplete
}

func newRequestChallenge(sup *Support, client host.Client, onComplete requestComplete) *RequestChallenge {
	rc := &RequestChallenge{
		sup:        sup,
		client:     client,
		ticket:     domain.NewTicket(client.UID),
		onComplete: onComplete,
	}
	m := challenge.New(stateAskInquiry)
	m.Register(stateAskInquiry, rc.askInquiry)
	m.Register(stateDescribeIssue, rc.askIssue)
	m.Register(stateDone, rc.complete)
	rc.machine = m
	return rc
}

// Start issues (or re-issues) the prompt for the current dialogue state.
func (rc *RequestChallenge) Start(ctx context.Context) error {
	return rc.machine.Trigger(ctx)
}

// SetInquiry records the chosen department by zero-based index. An invalid
// index re-issues the department prompt without advancing.
func (rc *RequestChallenge) SetInquiry(ctx context.Context, index int) error {
	if rc.machine.State() != stateAskInquiry {
		return nil
	}
	role, ok := rc.sup.roles.At(index)
	if !ok {
		return rc.machine.Trigger(ctx)
	}
	rc.ticket.Role = role
	return rc.machine.Advance(ctx, stateDescribeIssue)
}

// SetIssue records the issue description. Text shorter than the minimum
// re-issues the describe prompt without advancing.
func (rc *RequestChallenge) SetIssue(ctx context.Context, text string) error {
	if rc.machine.State() != stateDescribeIssue {
		return nil
	}
	text = strings.TrimSpace(text)
	if len(text) < domain.MinIssueLength {
		return rc.machine.Trigger(ctx)
	}
	rc.ticket.Issue = text
	return rc.machine.Advance(ctx, stateDone)
}

func (rc *RequestChallenge) askInquiry(ctx context.Context) error {
	var b strings.Builder
	b.WriteString("Welcome to support. Choose a department with !request <number>:\n")
	for i, role := range rc.sup.roles.All() {
		fmt.Fprintf(&b, "[%d] %s (%d supporters online)\n", i, role.Name, rc.sup.onlineRoleCount(role))
	}
	return rc.sup.session.SendPrivate(rc.client.UID, b.String())
}

func (rc *RequestChallenge) askIssue(ctx context.Context) error {
	return rc.sup.session.SendPrivate(rc.client.UID,
		fmt.Sprintf("Describe your issue with !describe <text> (at least %d characters).", domain.MinIssueLength))
}

func (rc *RequestChallenge) complete(ctx context.Context) error {
	rc.ticket.Created = rc.sup.now()
	rc.ticket.Status = domain.TicketStatusOpen
	id, err := rc.sup.store.AddTicket(ctx, rc.ticket)
	if err != nil {
		return fmt.Errorf("persist ticket: %w", err)
	}
	if err := rc.sup.session.SendPrivate(rc.client.UID,
		fmt.Sprintf("Ticket #%d created for department %q. A supporter will contact you shortly.", id, rc.ticket.Role.Name)); err != nil {
		rc.sup.logger.Warn("failed to notify requester", zap.Error(err))
	}
	return rc.onComplete(ctx, rc, rc.ticket)
}

package support

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/voicekit/support-bot/internal/challenge"
)

// offerState enumerates the supporter offer dialogue.
type offerState int

const (
	offerWaiting offerState = iota
	offerRequest
	offerAccept
	offerDecline
	offerTimeout
	offerComplete
	offerUnresolved
)

// ResponseChallenge offers one open ticket to one candidate supporter.
// Several instances referencing the same entry may exist across different
// supporters' queues; the first accept elevates the entry and the siblings
// are cancelled.
type ResponseChallenge struct {
	machine   *challenge.Machine[offerState]
	sup       *Support
	entry     *Entry
	supporter string
	deadline  time.Time
	taken     bool
}

func newResponseChallenge(sup *Support, entry *Entry, supporterUID string) *ResponseChallenge {
	rc := &ResponseChallenge{
		sup:       sup,
		entry:     entry,
		supporter: supporterUID,
	}
	m := challenge.New(offerWaiting)
	m.Register(offerRequest, rc.promptRequest)
	m.Register(offerAccept, rc.onAccept)
	m.Register(offerDecline, rc.onDecline)
	m.Register(offerTimeout, rc.onTimeout)
	rc.machine = m
	return rc
}

// Start advances the offer to the request state. Called by the supporter's
// queue when this offer becomes the active one.
func (rc *ResponseChallenge) Start(ctx context.Context) error {
	rc.deadline = rc.sup.now().Add(rc.sup.cfg.OfferTimeout())
	return rc.machine.Advance(ctx, offerRequest)
}

// Pending reports whether the offer sits in the request state awaiting a
// supporter decision.
func (rc *ResponseChallenge) Pending() bool {
	return rc.machine.State() == offerRequest
}

// Expired reports whether the offer outlived its deadline.
func (rc *ResponseChallenge) Expired(now time.Time) bool {
	return rc.Pending() && !rc.deadline.IsZero() && now.After(rc.deadline)
}

// Accept elevates the offered ticket. A stale offer (ticket already taken)
// is refused gracefully and the supporter's queue advances.
func (rc *ResponseChallenge) Accept(ctx context.Context) error {
	if !rc.Pending() {
		return nil
	}
	if rc.taken || rc.entry.Taken() {
		if err := rc.sup.session.SendPrivate(rc.supporter, "That ticket was already taken by another supporter."); err != nil {
			rc.sup.logger.Warn("failed to notify supporter", zap.Error(err))
		}
		return rc.sup.advanceOffers(ctx, rc.supporter)
	}
	return rc.machine.Advance(ctx, offerAccept)
}

// Decline passes on the offer and advances the supporter's queue; other
// supporters' offers for the same ticket are untouched.
func (rc *ResponseChallenge) Decline(ctx context.Context) error {
	if !rc.Pending() {
		return nil
	}
	return rc.machine.Advance(ctx, offerDecline)
}

// Timeout expires the offer, behaving like a decline.
func (rc *ResponseChallenge) Timeout(ctx context.Context) error {
	if !rc.Pending() {
		return nil
	}
	return rc.machine.Advance(ctx, offerTimeout)
}

// markTaken flags the offer stale after a sibling accepted the same ticket,
// notifying the supporter when the offer was already on their screen.
func (rc *ResponseChallenge) markTaken(ctx context.Context) {
	wasPending := rc.Pending()
	rc.taken = true
	if wasPending {
		if err := rc.sup.session.SendPrivate(rc.supporter, fmt.Sprintf("Ticket #%d was taken by another supporter.", rc.entry.ticket.ID)); err != nil {
			rc.sup.logger.Warn("failed to notify supporter", zap.Error(err))
		}
	}
}

func (rc *ResponseChallenge) promptRequest(ctx context.Context) error {
	t := rc.entry.ticket
	return rc.sup.session.SendPrivate(rc.supporter,
		fmt.Sprintf("Support request #%d [%s]: %q\nAnswer with !accept or !decline.", t.ID, t.Role.Name, t.Issue))
}

// onAccept elevates the entry. The supporter's queue advances even when
// elevation fails: the offer is consumed either way, and the ticket stays in
// the shared queue on failure.
func (rc *ResponseChallenge) onAccept(ctx context.Context) error {
	err := rc.entry.Elevate(ctx, rc.supporter)
	if advErr := rc.sup.advanceOffers(ctx, rc.supporter); advErr != nil && err == nil {
		err = advErr
	}
	return err
}

func (rc *ResponseChallenge) onDecline(ctx context.Context) error {
	return rc.sup.advanceOffers(ctx, rc.supporter)
}

func (rc *ResponseChallenge) onTimeout(ctx context.Context) error {
	if err := rc.sup.session.SendPrivate(rc.supporter, fmt.Sprintf("Offer for ticket #%d expired.", rc.entry.ticket.ID)); err != nil {
		rc.sup.logger.Warn("failed to notify supporter", zap.Error(err))
	}
	return rc.sup.advanceOffers(ctx, rc.supporter)
}

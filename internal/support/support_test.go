package support

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/voicekit/support-bot/internal/config"
	"github.com/voicekit/support-bot/internal/domain"
	"github.com/voicekit/support-bot/internal/host"
	"github.com/voicekit/support-bot/internal/store"
	apperrors "github.com/voicekit/support-bot/pkg/util"
)

const (
	supportChannel  = 100
	hardwareChannel = 101
	softwareChannel = 102
)

var baseTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	sup     *Support
	session *host.MemorySession
	store   *store.BoltProvider

	requester host.Client
	s1        host.Client
	s2        host.Client
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	roles, err := domain.NewRoleSet([]*domain.Role{
		{Name: "hardware", ServerGroups: []uint64{10}, ChannelID: hardwareChannel},
		{Name: "software", ServerGroups: []uint64{20}, ChannelID: softwareChannel, CanViewAllTickets: true},
	})
	if err != nil {
		t.Fatalf("role set: %v", err)
	}

	session := host.NewMemorySession()
	session.AddChannel(supportChannel, "Support")
	session.AddChannel(hardwareChannel, "Hardware")
	session.AddChannel(softwareChannel, "Software")

	provider, err := store.NewBoltProvider(t.TempDir(), roles, zap.NewNop())
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	t.Cleanup(func() { provider.Close() })

	sup := NewSupport(Dependencies{
		Session: session,
		Store:   provider,
		Roles:   roles,
		Logger:  zap.NewNop(),
		Config: config.SupportConfig{
			ChannelID:           supportChannel,
			ChannelNameTemplate: "Support | %count% online",
			CommandPrefix:       "!",
			OfferTimeoutSeconds: 120,
			SweepSeconds:        30,
		},
	})
	if err := sup.Setup(context.Background(), "test"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	sup.now = func() time.Time { return baseTime }

	f := &fixture{
		sup:       sup,
		session:   session,
		store:     provider,
		requester: host.Client{UID: "u1", Nickname: "Uwe", ChannelID: supportChannel},
		s1:        host.Client{UID: "s1", Nickname: "Sam", ChannelID: supportChannel, ServerGroups: []uint64{10}},
		s2:        host.Client{UID: "s2", Nickname: "Sue", ChannelID: supportChannel, ServerGroups: []uint64{10}},
	}
	session.Connect(f.requester)
	session.Connect(f.s1)
	session.Connect(f.s2)
	return f
}

// openTicket drives the requester dialogue up to a created ticket fanned out
// to both hardware supporters.
func (f *fixture) openTicket(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	if err := f.sup.RequestSupport(ctx, f.requester); err != nil {
		t.Fatalf("request support: %v", err)
	}
	if err := f.sup.cmdRequest(ctx, f.requester, []string{"0"}); err != nil {
		t.Fatalf("choose department: %v", err)
	}
	if err := f.sup.cmdDescribe(ctx, f.requester, []string{"my", "printer", "is", "on", "fire"}); err != nil {
		t.Fatalf("describe: %v", err)
	}
}

func lastMessage(t *testing.T, s *host.MemorySession, uid string) string {
	t.Helper()
	msgs := s.MessagesTo(uid)
	if len(msgs) == 0 {
		t.Fatalf("no messages sent to %s", uid)
	}
	return msgs[len(msgs)-1].Text
}

func TestFullLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.sup.RequestSupport(ctx, f.requester); err != nil {
		t.Fatalf("request support: %v", err)
	}
	if got := lastMessage(t, f.session, "u1"); !strings.Contains(got, "[0] hardware") {
		t.Fatalf("department prompt missing: %q", got)
	}

	if err := f.sup.cmdRequest(ctx, f.requester, []string{"0"}); err != nil {
		t.Fatalf("choose department: %v", err)
	}
	if got := lastMessage(t, f.session, "u1"); !strings.Contains(got, "Describe your issue") {
		t.Fatalf("describe prompt missing: %q", got)
	}

	if err := f.sup.cmdDescribe(ctx, f.requester, []string{"my", "printer", "is", "on", "fire"}); err != nil {
		t.Fatalf("describe: %v", err)
	}
	if got := lastMessage(t, f.session, "u1"); !strings.Contains(got, "Ticket #1 created") {
		t.Fatalf("creation notice missing: %q", got)
	}

	// Both hardware supporters get the offer, the software channel stays quiet.
	for _, uid := range []string{"s1", "s2"} {
		if got := lastMessage(t, f.session, uid); !strings.Contains(got, "Support request #1 [hardware]") {
			t.Fatalf("offer to %s missing: %q", uid, got)
		}
	}
	if stats := f.sup.Stats(); stats.QueueDepth != 1 || stats.PendingRequests != 0 {
		t.Fatalf("after creation: %+v", stats)
	}

	if err := f.sup.cmdAccept(ctx, f.s1, nil); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if stats := f.sup.Stats(); stats.QueueDepth != 0 || stats.ActiveSessions != 1 {
		t.Fatalf("after accept: %+v", stats)
	}

	// Both parties were moved into the department channel.
	for _, uid := range []string{"u1", "s1"} {
		c, _ := f.session.ClientByUID(uid)
		if c.ChannelID != hardwareChannel {
			t.Fatalf("%s in channel %d, want %d", uid, c.ChannelID, hardwareChannel)
		}
	}
	// The sibling offer was cancelled with a notice.
	if got := lastMessage(t, f.session, "s2"); !strings.Contains(got, "taken by another supporter") {
		t.Fatalf("sibling cancel notice missing: %q", got)
	}

	if err := f.sup.cmdResolve(ctx, f.s1, []string{"replaced", "the", "toner"}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := lastMessage(t, f.session, "u1"); !strings.Contains(got, "resolved: replaced the toner") {
		t.Fatalf("resolution notice missing: %q", got)
	}
	closed, err := f.store.TicketsBy(ctx, store.FieldStatus, string(domain.TicketStatusClosed))
	if err != nil || len(closed) != 1 || closed[0].Supporter != "s1" {
		t.Fatalf("closed tickets: %v err %v", closed, err)
	}

	if err := f.sup.cmdRate(ctx, f.requester, []string{"1", "4"}); err != nil {
		t.Fatalf("rate: %v", err)
	}
	rated, err := f.store.TicketsBy(ctx, store.FieldID, "1")
	if err != nil || len(rated) != 1 || rated[0].Rating == nil || *rated[0].Rating != 4 {
		t.Fatalf("rating not persisted: %v err %v", rated, err)
	}
}

func TestShortIssueReprompts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.sup.RequestSupport(ctx, f.requester); err != nil {
		t.Fatalf("request support: %v", err)
	}
	if err := f.sup.cmdRequest(ctx, f.requester, []string{"0"}); err != nil {
		t.Fatalf("choose department: %v", err)
	}
	if err := f.sup.cmdDescribe(ctx, f.requester, []string{"halp"}); err != nil {
		t.Fatalf("short describe: %v", err)
	}

	if got := lastMessage(t, f.session, "u1"); !strings.Contains(got, "Describe your issue") {
		t.Fatalf("expected re-prompt, got %q", got)
	}
	open, err := f.store.TicketsBy(ctx, store.FieldStatus, string(domain.TicketStatusOpen))
	if err != nil || len(open) != 0 {
		t.Fatalf("no ticket must be persisted yet: %v err %v", open, err)
	}

	if err := f.sup.cmdDescribe(ctx, f.requester, []string{"my", "printer", "is", "on", "fire"}); err != nil {
		t.Fatalf("describe retry: %v", err)
	}
	if got := lastMessage(t, f.session, "u1"); !strings.Contains(got, "Ticket #1 created") {
		t.Fatalf("ticket not created after retry: %q", got)
	}
}

func TestInvalidDepartmentReprompts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.sup.RequestSupport(ctx, f.requester); err != nil {
		t.Fatalf("request support: %v", err)
	}
	if err := f.sup.cmdRequest(ctx, f.requester, []string{"7"}); err != nil {
		t.Fatalf("invalid department: %v", err)
	}
	if got := lastMessage(t, f.session, "u1"); !strings.Contains(got, "Choose a department") {
		t.Fatalf("expected department re-prompt, got %q", got)
	}
}

func TestRepeatedRequestReprompts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.sup.RequestSupport(ctx, f.requester); err != nil {
		t.Fatalf("first request: %v", err)
	}
	before := len(f.session.MessagesTo("u1"))
	if err := f.sup.RequestSupport(ctx, f.requester); err != nil {
		t.Fatalf("second request: %v", err)
	}
	msgs := f.session.MessagesTo("u1")
	if len(msgs) != before+1 || !strings.Contains(msgs[len(msgs)-1].Text, "Choose a department") {
		t.Fatalf("expected one more department prompt, got %v", msgs)
	}
	if stats := f.sup.Stats(); stats.PendingRequests != 1 {
		t.Fatalf("only one pending dialogue expected: %+v", stats)
	}
}

func TestDeclineLeavesOtherOffersAlone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openTicket(t)

	if err := f.sup.cmdDecline(ctx, f.s2, nil); err != nil {
		t.Fatalf("decline: %v", err)
	}
	if stats := f.sup.Stats(); stats.QueueDepth != 1 || stats.ActiveSessions != 0 {
		t.Fatalf("decline must not touch the ticket: %+v", stats)
	}

	if err := f.sup.cmdAccept(ctx, f.s1, nil); err != nil {
		t.Fatalf("accept after sibling decline: %v", err)
	}
	if stats := f.sup.Stats(); stats.QueueDepth != 0 || stats.ActiveSessions != 1 {
		t.Fatalf("accept must still work: %+v", stats)
	}
}

func TestSecondAcceptIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openTicket(t)

	if err := f.sup.cmdAccept(ctx, f.s1, nil); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if err := f.sup.cmdAccept(ctx, f.s2, nil); err != nil {
		t.Fatalf("stale accept: %v", err)
	}
	if stats := f.sup.Stats(); stats.ActiveSessions != 1 {
		t.Fatalf("only one session may exist: %+v", stats)
	}
	session, ok := f.sup.sessionBySupporter("s1")
	if !ok || session.Ticket().Supporter != "s1" {
		t.Fatal("first accepter must own the ticket")
	}
}

// flakyProvider fails ticket updates on demand to exercise persist-failure
// branches.
type flakyProvider struct {
	*store.BoltProvider
	failUpdates bool
}

func (p *flakyProvider) UpdateTicket(ctx context.Context, ticket *domain.Ticket) (uint64, error) {
	if p.failUpdates {
		return 0, errors.New("update rejected")
	}
	return p.BoltProvider.UpdateTicket(ctx, ticket)
}

func TestAcceptPersistFailureKeepsTicketQueued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flaky := &flakyProvider{BoltProvider: f.store}
	f.sup.store = flaky

	f.openTicket(t)
	flaky.failUpdates = true

	err := f.sup.cmdAccept(ctx, f.s1, nil)
	if !apperrors.IsCode(err, "INTERNAL_ERROR") {
		t.Fatalf("expected INTERNAL_ERROR, got %v", err)
	}
	// The ticket stays in the shared queue, unassigned, with no session.
	if stats := f.sup.Stats(); stats.QueueDepth != 1 || stats.ActiveSessions != 0 {
		t.Fatalf("after failed accept: %+v", stats)
	}
	if len(f.sup.entries) != 1 || f.sup.entries[0].Taken() || f.sup.entries[0].Ticket().Supporter != "" {
		t.Fatalf("entry must stay claimable: %+v", f.sup.entries[0])
	}
	open, err2 := f.store.TicketsBy(ctx, store.FieldStatus, string(domain.TicketStatusOpen))
	if err2 != nil || len(open) != 1 || open[0].Supporter != "" {
		t.Fatalf("stored ticket must stay unassigned: %v err %v", open, err2)
	}
	// s1's offer is consumed but the queue is not wedged.
	if queue := f.sup.offers["s1"]; queue.Len() != 0 {
		t.Fatalf("s1 queue must advance past the failed offer, len %d", queue.Len())
	}

	// Another supporter can still claim the ticket once the store recovers.
	flaky.failUpdates = false
	if err := f.sup.cmdAccept(ctx, f.s2, nil); err != nil {
		t.Fatalf("accept after recovery: %v", err)
	}
	if stats := f.sup.Stats(); stats.QueueDepth != 0 || stats.ActiveSessions != 1 {
		t.Fatalf("after recovered accept: %+v", stats)
	}
	sess, ok := f.sup.sessionBySupporter("s2")
	if !ok || sess.Ticket().Supporter != "s2" {
		t.Fatal("recovering supporter must own the ticket")
	}
}

func TestResolvePersistFailureKeepsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	flaky := &flakyProvider{BoltProvider: f.store}
	f.sup.store = flaky

	f.openTicket(t)
	if err := f.sup.cmdAccept(ctx, f.s1, nil); err != nil {
		t.Fatalf("accept: %v", err)
	}
	requesterMsgs := len(f.session.MessagesTo("u1"))
	flaky.failUpdates = true

	err := f.sup.cmdResolve(ctx, f.s1, []string{"replaced", "the", "toner"})
	if !apperrors.IsCode(err, "INTERNAL_ERROR") {
		t.Fatalf("expected INTERNAL_ERROR, got %v", err)
	}
	// The session stays active and the requester was not told anything.
	if stats := f.sup.Stats(); stats.ActiveSessions != 1 {
		t.Fatalf("after failed resolve: %+v", stats)
	}
	if got := len(f.session.MessagesTo("u1")); got != requesterMsgs {
		t.Fatalf("requester must not be notified of an unrecorded close, messages %d -> %d", requesterMsgs, got)
	}
	stored, err2 := f.store.TicketsBy(ctx, store.FieldID, "1")
	if err2 != nil || len(stored) != 1 || stored[0].Status != domain.TicketStatusOpen {
		t.Fatalf("stored ticket must stay open: %v err %v", stored, err2)
	}

	// The supporter retries once the store recovers.
	flaky.failUpdates = false
	if err := f.sup.cmdResolve(ctx, f.s1, []string{"replaced", "the", "toner"}); err != nil {
		t.Fatalf("resolve after recovery: %v", err)
	}
	if got := lastMessage(t, f.session, "u1"); !strings.Contains(got, "resolved: replaced the toner") {
		t.Fatalf("resolution notice missing: %q", got)
	}
	closed, err2 := f.store.TicketsBy(ctx, store.FieldStatus, string(domain.TicketStatusClosed))
	if err2 != nil || len(closed) != 1 {
		t.Fatalf("closed tickets: %v err %v", closed, err2)
	}
}

func TestBlacklistedRequesterIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry := domain.BlacklistEntry{UID: "u1", Expires: baseTime.Add(time.Hour), Reason: "abuse", InvokedBy: "admin"}
	if err := f.store.AddBlacklist(ctx, entry); err != nil {
		t.Fatalf("add blacklist: %v", err)
	}

	err := f.sup.RequestSupport(ctx, f.requester)
	if !apperrors.IsCode(err, "BLACKLISTED") {
		t.Fatalf("expected BLACKLISTED, got %v", err)
	}
	if stats := f.sup.Stats(); stats.PendingRequests != 0 {
		t.Fatalf("no dialogue must start: %+v", stats)
	}
	if msgs := f.session.MessagesTo("u1"); len(msgs) != 0 {
		t.Fatalf("blacklisted client must not be prompted: %v", msgs)
	}
}

func TestRateOutsideWindowRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role, _ := f.sup.roles.ByName("hardware")
	ticket := domain.NewTicket("u1")
	ticket.Issue = "printer is on fire"
	ticket.Role = role
	ticket.Created = baseTime
	ticket.Close("done", baseTime)
	if _, err := f.store.AddTicket(ctx, ticket); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}

	f.sup.now = func() time.Time { return baseTime.Add(domain.RatingWindow + time.Hour) }
	err := f.sup.cmdRate(ctx, f.requester, []string{"1", "4"})
	if !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}

	f.sup.now = func() time.Time { return baseTime.Add(time.Hour) }
	if err := f.sup.cmdRate(ctx, f.requester, []string{"1", "4"}); err != nil {
		t.Fatalf("rate inside window: %v", err)
	}
}

func TestRateForeignTicketRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	role, _ := f.sup.roles.ByName("hardware")
	ticket := domain.NewTicket("someone-else")
	ticket.Issue = "printer is on fire"
	ticket.Role = role
	ticket.Created = baseTime
	ticket.Close("done", baseTime)
	if _, err := f.store.AddTicket(ctx, ticket); err != nil {
		t.Fatalf("seed ticket: %v", err)
	}

	err := f.sup.cmdRate(ctx, f.requester, []string{"1", "4"})
	if !apperrors.IsCode(err, "NOT_FOUND") {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}

func TestRateBoundsChecked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, raw := range []string{"6", "-1", "five"} {
		err := f.sup.cmdRate(ctx, f.requester, []string{"1", raw})
		if !apperrors.IsCode(err, "VALIDATION_FAILED") {
			t.Fatalf("rating %q: expected VALIDATION_FAILED, got %v", raw, err)
		}
	}
}

func TestSweepTimesOutPendingOffers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openTicket(t)

	// Before the deadline nothing happens.
	f.sup.SweepOffers(ctx, baseTime.Add(time.Minute))
	if got := lastMessage(t, f.session, "s1"); strings.Contains(got, "expired") {
		t.Fatalf("offer expired too early: %q", got)
	}

	f.sup.SweepOffers(ctx, baseTime.Add(3*time.Minute))
	for _, uid := range []string{"s1", "s2"} {
		if got := lastMessage(t, f.session, uid); !strings.Contains(got, "Offer for ticket #1 expired") {
			t.Fatalf("timeout notice to %s missing: %q", uid, got)
		}
	}
	// The ticket stays open in the shared queue.
	if stats := f.sup.Stats(); stats.QueueDepth != 1 || stats.ActiveSessions != 0 {
		t.Fatalf("after sweep: %+v", stats)
	}
}

func TestPruneBlacklistRemovesExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	expired := domain.BlacklistEntry{UID: "old", Expires: baseTime.Add(-time.Hour)}
	active := domain.BlacklistEntry{UID: "cur", Expires: baseTime.Add(time.Hour)}
	for _, e := range []domain.BlacklistEntry{expired, active} {
		if err := f.store.AddBlacklist(ctx, e); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	f.sup.PruneBlacklist(ctx, baseTime)
	if listed, _ := f.store.IsBlacklisted(ctx, "old"); listed {
		t.Fatal("expired entry must be pruned")
	}
	if listed, _ := f.store.IsBlacklisted(ctx, "cur"); !listed {
		t.Fatal("active entry must survive")
	}
}

func TestSupportCountChangeRenamesChannel(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.sup.cfg.DynamicChannelName = true

	if err := f.sup.SupportCountChange(ctx); err != nil {
		t.Fatalf("count change: %v", err)
	}
	name, err := f.session.ChannelName(supportChannel)
	if err != nil || name != "Support | 2 online" {
		t.Fatalf("channel name %q err %v", name, err)
	}

	f.session.Disconnect("s2")
	if err := f.sup.SupportCountChange(ctx); err != nil {
		t.Fatalf("count change after disconnect: %v", err)
	}
	if name, _ := f.session.ChannelName(supportChannel); name != "Support | 1 online" {
		t.Fatalf("channel name %q", name)
	}
}

func TestSupportCountChangeRejectsOverlongName(t *testing.T) {
	f := newFixture(t)
	f.sup.cfg.DynamicChannelName = true
	f.sup.cfg.ChannelNameTemplate = strings.Repeat("x", host.MaxChannelNameLength+1)

	if err := f.sup.SupportCountChange(context.Background()); err == nil {
		t.Fatal("over-long rendered name must be an error")
	}
	if name, _ := f.session.ChannelName(supportChannel); name != "Support" {
		t.Fatalf("channel must keep its old name, got %q", name)
	}
}

func TestViewAndTicketsCommands(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.sup.cmdView(ctx, f.requester, nil); err != nil {
		t.Fatalf("view empty: %v", err)
	}
	if got := lastMessage(t, f.session, "u1"); got != "You have no tickets." {
		t.Fatalf("empty view: %q", got)
	}

	f.openTicket(t)
	if err := f.sup.cmdView(ctx, f.requester, nil); err != nil {
		t.Fatalf("view: %v", err)
	}
	if got := lastMessage(t, f.session, "u1"); !strings.Contains(got, "#1 [hardware] open") {
		t.Fatalf("view listing: %q", got)
	}

	if err := f.sup.cmdTickets(ctx, f.s1, []string{"closed"}); err != nil {
		t.Fatalf("tickets closed: %v", err)
	}
	if got := lastMessage(t, f.session, "s1"); got != "No closed tickets." {
		t.Fatalf("closed listing: %q", got)
	}
	err := f.sup.cmdTickets(ctx, f.s1, []string{"bogus"})
	if !apperrors.IsCode(err, "VALIDATION_FAILED") {
		t.Fatalf("expected VALIDATION_FAILED, got %v", err)
	}
}

func TestDevResetClearsStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.openTicket(t)

	if err := f.sup.cmdDev(ctx, f.s1, []string{"1"}); err != nil {
		t.Fatalf("dev reset: %v", err)
	}
	open, err := f.store.TicketsBy(ctx, store.FieldStatus, string(domain.TicketStatusOpen))
	if err != nil || len(open) != 0 {
		t.Fatalf("store not reset: %v err %v", open, err)
	}
	if got := lastMessage(t, f.session, "s1"); got != "Ticket store reset." {
		t.Fatalf("reset notice: %q", got)
	}
}

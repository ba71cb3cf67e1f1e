// Package support implements the support-ticket protocol: requesters are
// walked through a dialogue that produces a ticket, open tickets are offered
// to on-duty supporters one at a time per supporter, and accepted tickets
// become live sessions that resolve into closed tickets.
package support

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voicekit/support-bot/internal/challenge"
	"github.com/voicekit/support-bot/internal/config"
	"github.com/voicekit/support-bot/internal/domain"
	"github.com/voicekit/support-bot/internal/events"
	"github.com/voicekit/support-bot/internal/host"
	"github.com/voicekit/support-bot/internal/store"
	apperrors "github.com/voicekit/support-bot/pkg/util"
)

// requiredStoreVersion is the store schema version this orchestrator was
// written against. Setup refuses providers declaring anything else.
const requiredStoreVersion = 2

// Support owns all roles, the open-ticket queue, pending request challenges,
// per-supporter offer queues and active sessions. Its command handlers and
// event callbacks are the plugin's public surface.
//
// All mutation is serialized through mu, making sweeper and status-API entry
// equivalent to a host event on the single event goroutine.
type Support struct {
	mu      sync.Mutex
	logger  *zap.Logger
	cfg     config.SupportConfig
	session host.Session
	store   store.Provider
	roles   *domain.RoleSet

	entries  []*Entry
	requests map[string]*RequestChallenge
	offers   map[string]*challenge.Queue[*ResponseChallenge]
	sessions []*Session

	now func() time.Time
}

// Dependencies bundles orchestrator collaborators.
type Dependencies struct {
	Session host.Session
	Store   store.Provider
	Roles   *domain.RoleSet
	Logger  *zap.Logger
	Config  config.SupportConfig
}

// NewSupport creates the orchestrator.
func NewSupport(deps Dependencies) *Support {
	return &Support{
		logger:   deps.Logger,
		cfg:      deps.Config,
		session:  deps.Session,
		store:    deps.Store,
		roles:    deps.Roles,
		requests: make(map[string]*RequestChallenge),
		offers:   make(map[string]*challenge.Queue[*ResponseChallenge]),
		now:      time.Now,
	}
}

// Setup prepares the store and validates configuration. Failing here is
// fatal for the plugin.
func (s *Support) Setup(ctx context.Context, namespace string) error {
	if s.roles.Len() == 0 {
		return fmt.Errorf("no support roles configured")
	}
	if version := s.store.Version(); version != requiredStoreVersion {
		return fmt.Errorf("store version %d does not match required version %d", version, requiredStoreVersion)
	}
	if err := s.store.Setup(ctx, namespace); err != nil {
		return fmt.Errorf("store setup: %w", err)
	}
	return nil
}

// IsBlacklisted delegates to the storage provider.
func (s *Support) IsBlacklisted(ctx context.Context, uid string) (bool, error) {
	return s.store.IsBlacklisted(ctx, uid)
}

// BlacklistEntry delegates to the storage provider.
func (s *Support) BlacklistEntry(ctx context.Context, uid string) (*domain.BlacklistEntry, error) {
	return s.store.GetBlacklistEntry(ctx, uid)
}

// ClientSupportRoles returns every configured role matching the client,
// optionally filtered to one department.
func (s *Support) ClientSupportRoles(client host.Client, department string) []*domain.Role {
	return s.roles.Matching(client.ServerGroups, department)
}

// RequestSupport begins the protocol for a requester. Blacklisted clients
// fail fast; a requester with a dialogue already pending is re-prompted.
func (s *Support) RequestSupport(ctx context.Context, client host.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestSupport(ctx, client)
}

func (s *Support) requestSupport(ctx context.Context, client host.Client) error {
	blacklisted, err := s.store.IsBlacklisted(ctx, client.UID)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if blacklisted {
		entry, err := s.store.GetBlacklistEntry(ctx, client.UID)
		reason := ""
		if err == nil && entry != nil {
			reason = entry.Reason
		}
		return apperrors.NewBlacklisted(client.UID, reason)
	}
	if pending, ok := s.requests[client.UID]; ok {
		return pending.Start(ctx)
	}
	rc := newRequestChallenge(s, client, s.finishRequest)
	s.requests[client.UID] = rc
	return rc.Start(ctx)
}

// finishRequest is the completion callback handed to every RequestChallenge:
// the finished ticket enters the shared open queue and fans out to
// supporters.
func (s *Support) finishRequest(ctx context.Context, rc *RequestChallenge, ticket *domain.Ticket) error {
	delete(s.requests, rc.client.UID)
	return s.addQueue(ctx, ticket)
}

// addQueue enqueues an open ticket and offers it to every online supporter
// of its department.
func (s *Support) addQueue(ctx context.Context, ticket *domain.Ticket) error {
	entry := &Entry{sup: s, ticket: ticket}
	s.entries = append(s.entries, entry)

	for _, client := range s.session.OnlineClients() {
		if client.UID == ticket.Issuer {
			continue
		}
		if !ticket.Role.Member(client.ServerGroups) {
			continue
		}
		queue, ok := s.offers[client.UID]
		if !ok {
			queue = challenge.NewQueue[*ResponseChallenge]()
			s.offers[client.UID] = queue
		}
		if err := queue.Add(ctx, newResponseChallenge(s, entry, client.UID)); err != nil {
			s.logger.Error("failed to offer ticket",
				zap.Uint64("ticket_id", ticket.ID),
				zap.String("supporter", client.UID),
				zap.Error(err))
		}
	}
	return nil
}

// removeEntry takes the entry out of the open queue. Returns false when the
// entry was already removed, which makes elevation first-accept-wins.
func (s *Support) removeEntry(entry *Entry) bool {
	for i, e := range s.entries {
		if e == entry {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return true
		}
	}
	return false
}

// advanceOffers clears the supporter's active offer and starts the next one.
func (s *Support) advanceOffers(ctx context.Context, supporterUID string) error {
	queue, ok := s.offers[supporterUID]
	if !ok {
		return nil
	}
	return queue.StopActive(ctx)
}

// cancelSiblingOffers removes every other supporter's offer for the entry
// once it has been elevated.
func (s *Support) cancelSiblingOffers(ctx context.Context, entry *Entry, acceptedBy string) {
	for uid, queue := range s.offers {
		if uid == acceptedBy {
			continue
		}
		cancelled, err := queue.Cancel(ctx, func(rc *ResponseChallenge) bool {
			return rc.entry == entry
		})
		if err != nil {
			s.logger.Error("failed to cancel stale offer", zap.String("supporter", uid), zap.Error(err))
		}
		for _, rc := range cancelled {
			rc.markTaken(ctx)
		}
	}
}

// removeSession drops a resolved session from the active list.
func (s *Support) removeSession(sess *Session) bool {
	for i, active := range s.sessions {
		if active == sess {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			return true
		}
	}
	return false
}

// sessionBySupporter finds the active session a supporter is handling.
func (s *Support) sessionBySupporter(uid string) (*Session, bool) {
	for _, sess := range s.sessions {
		if sess.ticket.Supporter == uid {
			return sess, true
		}
	}
	return nil, false
}

// persistTicket updates the ticket, falling back to insert when the store
// does not know the ID.
func (s *Support) persistTicket(ctx context.Context, ticket *domain.Ticket) (uint64, error) {
	id, err := s.store.UpdateTicket(ctx, ticket)
	if errors.Is(err, store.ErrTicketNotFound) {
		return s.store.AddTicket(ctx, ticket)
	}
	return id, err
}

// SupportCountChange recomputes the online supporter count and, when dynamic
// naming is enabled, renames the support channel. An over-long rendered name
// is a configuration error surfaced here rather than silently truncated.
func (s *Support) SupportCountChange(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supportCountChange(ctx)
}

func (s *Support) supportCountChange(ctx context.Context) error {
	count := s.onlineSupporterCount()
	if !s.cfg.DynamicChannelName {
		return nil
	}
	name := strings.ReplaceAll(s.cfg.ChannelNameTemplate, "%count%", strconv.Itoa(count))
	if len(name) > host.MaxChannelNameLength {
		return fmt.Errorf("rendered channel name %q exceeds host limit of %d characters", name, host.MaxChannelNameLength)
	}
	if current, err := s.session.ChannelName(s.cfg.ChannelID); err != nil {
		return fmt.Errorf("support channel %d: %w", s.cfg.ChannelID, err)
	} else if current == name {
		return nil
	}
	return s.session.RenameChannel(s.cfg.ChannelID, name)
}

// onlineSupporterCount counts distinct online clients holding any support role.
func (s *Support) onlineSupporterCount() int {
	count := 0
	for _, client := range s.session.OnlineClients() {
		if len(s.roles.Matching(client.ServerGroups, "")) > 0 {
			count++
		}
	}
	return count
}

// onlineRoleCount counts online members of one department.
func (s *Support) onlineRoleCount(role *domain.Role) int {
	count := 0
	for _, client := range s.session.OnlineClients() {
		if role.Member(client.ServerGroups) {
			count++
		}
	}
	return count
}

// RegisterHandlers subscribes the orchestrator to host events.
func (s *Support) RegisterHandlers(dispatcher events.Dispatcher) {
	dispatcher.Subscribe(events.EventClientMoved, s.handleClientMoved)
	dispatcher.Subscribe(events.EventClientConnected, s.handleClientConnected)
	dispatcher.Subscribe(events.EventSupporterPresence, s.handleSupporterPresence)
}

func (s *Support) handleClientMoved(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ClientMovedPayload)
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.roles.Matching(payload.Client.ServerGroups, "")) > 0 {
		return s.supportCountChange(ctx)
	}
	if payload.ToChannel == s.cfg.ChannelID {
		err := s.requestSupport(ctx, payload.Client)
		if apperrors.IsCode(err, "BLACKLISTED") {
			s.logger.Info("blacklisted client entered support channel", zap.String("uid", payload.Client.UID))
			return nil
		}
		return err
	}
	return nil
}

func (s *Support) handleClientConnected(ctx context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supportCountChange(ctx)
}

func (s *Support) handleSupporterPresence(ctx context.Context, event events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.supportCountChange(ctx)
}

// SweepOffers times out offers that sat in the request state past the
// configured deadline; the ticket stays open in the shared queue.
func (s *Support) SweepOffers(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cfg.OfferTimeout() <= 0 {
		return
	}
	for uid, queue := range s.offers {
		active, ok := queue.Active()
		if !ok || !active.Expired(now) {
			continue
		}
		if err := active.Timeout(ctx); err != nil {
			s.logger.Error("failed to time out offer", zap.String("supporter", uid), zap.Error(err))
		}
	}
}

// PruneBlacklist removes expired blacklist entries.
func (s *Support) PruneBlacklist(ctx context.Context, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.store.BlacklistEntries(ctx)
	if err != nil {
		s.logger.Error("failed to list blacklist", zap.Error(err))
		return
	}
	for _, entry := range entries {
		if !entry.Expired(now) {
			continue
		}
		if err := s.store.RemoveBlacklist(ctx, entry.UID); err != nil {
			s.logger.Error("failed to prune blacklist entry", zap.String("uid", entry.UID), zap.Error(err))
		}
	}
}

// Snapshot is a read-only view of the orchestrator for the status API.
type Snapshot struct {
	QueueDepth       int `json:"queue_depth"`
	PendingRequests  int `json:"pending_requests"`
	ActiveSessions   int `json:"active_sessions"`
	OnlineSupporters int `json:"online_supporters"`
}

// Stats snapshots queue and session counts.
func (s *Support) Stats() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		QueueDepth:       len(s.entries),
		PendingRequests:  len(s.requests),
		ActiveSessions:   len(s.sessions),
		OnlineSupporters: s.onlineSupporterCount(),
	}
}

// TicketsByState fetches stored tickets filtered by "open", "closed" or "any".
func (s *Support) TicketsByState(ctx context.Context, state string) ([]*domain.Ticket, error) {
	switch state {
	case "", "open":
		return s.store.TicketsBy(ctx, store.FieldStatus, string(domain.TicketStatusOpen))
	case "closed":
		return s.store.TicketsBy(ctx, store.FieldStatus, string(domain.TicketStatusClosed))
	case "any":
		open, err := s.store.TicketsBy(ctx, store.FieldStatus, string(domain.TicketStatusOpen))
		if err != nil {
			return nil, err
		}
		closed, err := s.store.TicketsBy(ctx, store.FieldStatus, string(domain.TicketStatusClosed))
		if err != nil {
			return nil, err
		}
		return append(open, closed...), nil
	default:
		return nil, apperrors.NewValidationError("unknown ticket state", map[string]any{"state": state})
	}
}

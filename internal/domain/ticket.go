package domain

import (
	"strings"
	"time"
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen   TicketStatus = "open"
	TicketStatusClosed TicketStatus = "closed"
)

const (
	// MinIssueLength is the shortest accepted issue description.
	MinIssueLength = 10
	// MaxRating bounds the satisfaction rating.
	MaxRating = 5
	// RatingWindow is how long after resolution a requester may still rate.
	RatingWindow = 48 * time.Hour
)

// Ticket is the persistent unit of support work.
type Ticket struct {
	ID           uint64
	Issuer       string
	Issue        string
	Role         *Role
	Status       TicketStatus
	Created      time.Time
	Supporter    string
	ResolvedText string
	Resolved     time.Time
	Rating       *int
}

// NewTicket creates an empty open ticket stamped with its issuer.
func NewTicket(issuer string) *Ticket {
	return &Ticket{
		Issuer: issuer,
		Status: TicketStatusOpen,
	}
}

// Valid reports whether the ticket carries everything a usable ticket needs.
func (t *Ticket) Valid() bool {
	return t != nil &&
		t.Issuer != "" &&
		strings.TrimSpace(t.Issue) != "" &&
		t.Role != nil &&
		!t.Created.IsZero()
}

// Close marks the ticket resolved.
func (t *Ticket) Close(text string, at time.Time) {
	t.Status = TicketStatusClosed
	t.ResolvedText = text
	t.Resolved = at
}

// Reopen reverts a close that could not be persisted.
func (t *Ticket) Reopen() {
	t.Status = TicketStatusOpen
	t.ResolvedText = ""
	t.Resolved = time.Time{}
}

// RatableAt reports whether a rating may still be recorded at the given time.
func (t *Ticket) RatableAt(now time.Time) bool {
	if t.Status != TicketStatusClosed || t.Resolved.IsZero() {
		return false
	}
	return now.Sub(t.Resolved) <= RatingWindow
}

// TicketRecord is the flat store representation of a ticket. The role is
// serialized as a department-name back-reference.
type TicketRecord struct {
	ID           uint64 `json:"id"`
	Issuer       string `json:"issuer"`
	Issue        string `json:"issue"`
	Role         string `json:"role"`
	Status       string `json:"status"`
	Created      int64  `json:"created"`
	Supporter    string `json:"supporter,omitempty"`
	ResolvedText string `json:"resolved_text,omitempty"`
	Resolved     int64  `json:"resolved,omitempty"`
	Rating       *int   `json:"rating,omitempty"`
}

// Record converts the ticket into its store representation.
func (t *Ticket) Record() TicketRecord {
	rec := TicketRecord{
		ID:           t.ID,
		Issuer:       t.Issuer,
		Issue:        t.Issue,
		Status:       string(t.Status),
		Supporter:    t.Supporter,
		ResolvedText: t.ResolvedText,
		Rating:       t.Rating,
	}
	if t.Role != nil {
		rec.Role = t.Role.Name
	}
	if !t.Created.IsZero() {
		rec.Created = t.Created.Unix()
	}
	if !t.Resolved.IsZero() {
		rec.Resolved = t.Resolved.Unix()
	}
	return rec
}

// TicketFromRecord reconstructs a ticket, resolving the department
// back-reference against the live role set. A department that no longer
// exists resolves to the deleted-role sentinel.
func TicketFromRecord(rec TicketRecord, roles *RoleSet) *Ticket {
	role, ok := roles.ByName(rec.Role)
	if !ok {
		role = DeletedRole()
	}
	t := &Ticket{
		ID:           rec.ID,
		Issuer:       rec.Issuer,
		Issue:        rec.Issue,
		Role:         role,
		Status:       TicketStatus(rec.Status),
		Supporter:    rec.Supporter,
		ResolvedText: rec.ResolvedText,
		Rating:       rec.Rating,
	}
	if rec.Created > 0 {
		t.Created = time.Unix(rec.Created, 0)
	}
	if rec.Resolved > 0 {
		t.Resolved = time.Unix(rec.Resolved, 0)
	}
	return t
}

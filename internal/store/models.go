package store

import (
	"time"

	"collab/api/internal/rbac"
)

type Document struct {
	ID        string
	TenantID  string
	TeamID    string
	Title     string
	Content   string
	OwnerID   string
	Version   int
	LockedBy  string
	LockedAt  *time.Time
	CreatedAt time.Time
	UpdatedBy string
	UpdatedAt time.Time
}

func (d Document) Locked() bool {
	return d.LockedBy != ""
}

// DocumentVersion is an immutable snapshot; stores never update or delete one.
type DocumentVersion struct {
	ID         string
	DocumentID string
	Number     int
	Content    string
	AuthorID   string
	Comment    string
	CreatedAt  time.Time
}

type DocumentPermission struct {
	DocumentID string
	UserID     string
	Level      rbac.Level
	GrantedAt  time.Time
}

type SessionKind string
type SessionStatus string

const (
	SessionKindConference  SessionKind = "conference"
	SessionKindScreenShare SessionKind = "screen_share"
)

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionActive    SessionStatus = "active"
	SessionEnded     SessionStatus = "ended"
	SessionCancelled SessionStatus = "cancelled"
)

type Session struct {
	ID          string
	TenantID    string
	Kind        SessionKind
	Title       string
	OrganizerID string
	Status      SessionStatus
	Capacity    int
	Locked      bool
	JoinCode    string
	ScheduledAt *time.Time
	StartedAt   *time.Time
	EndedAt     *time.Time
	CreatedAt   time.Time
	// Revision increments on every session row update and guards
	// conditional writes.
	Revision int64
}

// Closed reports whether the session accepts no further joins or moderation.
func (s Session) Closed() bool {
	return s.Status == SessionEnded || s.Status == SessionCancelled
}

type Participant struct {
	ID         string
	SessionID  string
	UserID     string
	Role       rbac.Role
	JoinedAt   time.Time
	LeftAt     *time.Time
	Muted      bool
	HasControl bool
	Kicked     bool
}

func (p Participant) Active() bool {
	return p.LeftAt == nil
}

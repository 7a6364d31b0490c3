package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"collab/api/internal/rbac"
	"collab/api/internal/store"
	"collab/api/internal/util"
)

type CreateSessionInput struct {
	Kind        store.SessionKind `json:"kind"`
	Title       string            `json:"title"`
	Capacity    int               `json:"capacity"`
	ScheduledAt *time.Time        `json:"scheduledAt"`
}

// CreateSession registers a session. Conferences start scheduled; screen
// shares start active with the organizer joined as owner holding control.
func (s *Service) CreateSession(ctx context.Context, actor Actor, input CreateSessionInput) (store.Session, error) {
	if err := actor.validate(); err != nil {
		return store.Session{}, err
	}
	if input.Kind != store.SessionKindConference && input.Kind != store.SessionKindScreenShare {
		return store.Session{}, validationError("kind must be conference or screen_share")
	}
	capacity := input.Capacity
	if capacity == 0 {
		capacity = s.cfg.DefaultSessionCapacity
	}
	if capacity < 1 {
		return store.Session{}, validationError("capacity must be at least 1")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = "Untitled session"
	}

	now := s.now()
	session := store.Session{
		ID:          util.NewID("ses"),
		TenantID:    actor.TenantID,
		Kind:        input.Kind,
		Title:       title,
		OrganizerID: actor.UserID,
		Status:      store.SessionScheduled,
		Capacity:    capacity,
		JoinCode:    util.NewJoinCode(),
		ScheduledAt: input.ScheduledAt,
		CreatedAt:   now,
	}

	var owner *store.Participant
	if input.Kind == store.SessionKindScreenShare {
		session.Status = store.SessionActive
		session.StartedAt = &now
		owner = &store.Participant{
			ID:         util.NewID("par"),
			SessionID:  session.ID,
			UserID:     actor.UserID,
			Role:       rbac.RoleOwner,
			JoinedAt:   now,
			HasControl: true,
		}
	}

	if err := s.store.CreateSession(ctx, session, owner); err != nil {
		return store.Session{}, persistenceError("create session", err)
	}
	log.Printf("session %s (%s) created by %s", session.ID, session.Kind, actor.UserID)
	return session, nil
}

// GetSession returns nil when the session does not exist in the actor's tenant.
func (s *Service) GetSession(ctx context.Context, actor Actor, sessionID string) (*store.Session, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	session, err := s.loadSession(ctx, actor, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// JoinSession adds the actor as a participant. Joining again while already
// active succeeds without a second row.
func (s *Service) JoinSession(ctx context.Context, actor Actor, sessionID string) (store.Session, error) {
	if err := actor.validate(); err != nil {
		return store.Session{}, err
	}

	var joined store.Session
	err := s.withLease(ctx, sessionKey(sessionID), func() error {
		session, err := s.loadSession(ctx, actor, sessionID)
		if err != nil {
			return err
		}
		if session.Closed() {
			return forbiddenError("session is " + string(session.Status))
		}

		_, err = s.store.GetActiveParticipant(ctx, session.ID, actor.UserID)
		if err == nil {
			joined = session
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return persistenceError("get participant", err)
		}

		kicked, err := s.store.HasKickedParticipant(ctx, session.ID, actor.UserID)
		if err != nil {
			return persistenceError("check kicked participant", err)
		}
		if kicked {
			return forbiddenError("you were removed from this session")
		}
		if session.Locked {
			return domainError(ErrLocked.Status, CodeLocked, "session is locked against new joins", map[string]any{"sessionId": session.ID})
		}
		count, err := s.store.CountActiveParticipants(ctx, session.ID)
		if err != nil {
			return persistenceError("count participants", err)
		}
		if count >= session.Capacity {
			return capacityError(session.ID, session.Capacity)
		}

		participant := store.Participant{
			ID:        util.NewID("par"),
			SessionID: session.ID,
			UserID:    actor.UserID,
			Role:      joinRole(session, actor.UserID),
			JoinedAt:  s.now(),
		}
		err = s.store.InsertParticipant(ctx, participant)
		if err != nil && !errors.Is(err, store.ErrDuplicate) {
			return persistenceError("join session", err)
		}
		if err == nil {
			log.Printf("user %s joined session %s as %s", actor.UserID, session.ID, participant.Role)
		}
		joined = session
		return nil
	})
	if err != nil {
		return store.Session{}, err
	}
	return joined, nil
}

func joinRole(session store.Session, userID string) rbac.Role {
	if session.OrganizerID == userID {
		return rbac.RoleOwner
	}
	if session.Kind == store.SessionKindScreenShare {
		return rbac.RoleViewer
	}
	return rbac.RoleParticipant
}

// LeaveSession marks the actor's active row as left. It returns false when
// the actor is not in the session.
func (s *Service) LeaveSession(ctx context.Context, actor Actor, sessionID string) (bool, error) {
	if err := actor.validate(); err != nil {
		return false, err
	}

	var left bool
	err := s.withLease(ctx, sessionKey(sessionID), func() error {
		session, err := s.loadSession(ctx, actor, sessionID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		participant, err := s.store.GetActiveParticipant(ctx, session.ID, actor.UserID)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return persistenceError("get participant", err)
		}

		now := s.now()
		participant.LeftAt = &now
		participant.HasControl = false
		if err := s.store.UpdateParticipant(ctx, participant); err != nil {
			return persistenceError("leave session", err)
		}
		left = true
		return nil
	})
	return left, err
}

// StartSession moves a scheduled session to active. Only the organizer may
// start it.
func (s *Service) StartSession(ctx context.Context, actor Actor, sessionID string) (store.Session, error) {
	if err := actor.validate(); err != nil {
		return store.Session{}, err
	}

	var started store.Session
	err := s.withLease(ctx, sessionKey(sessionID), func() error {
		session, err := s.loadSession(ctx, actor, sessionID)
		if err != nil {
			return err
		}
		if session.OrganizerID != actor.UserID {
			return forbiddenError("only the organizer can start the session")
		}
		if session.Status != store.SessionScheduled {
			return domainError(ErrConflict.Status, CodeConflict, "session is already "+string(session.Status), map[string]any{"sessionId": session.ID})
		}

		now := s.now()
		session.Status = store.SessionActive
		session.StartedAt = &now
		started, err = s.updateSession(ctx, session)
		return err
	})
	if err != nil {
		return store.Session{}, err
	}
	log.Printf("session %s started by %s", started.ID, actor.UserID)
	return started, nil
}

// EndSession closes an active session and marks every active participant as
// left in one store transaction. It returns false when the session is
// missing, the actor is not the organizer, or the session is not active.
func (s *Service) EndSession(ctx context.Context, actor Actor, sessionID string) (bool, error) {
	return s.closeSession(ctx, actor, sessionID, store.SessionActive, store.SessionEnded)
}

// CancelSession closes a session that never started.
func (s *Service) CancelSession(ctx context.Context, actor Actor, sessionID string) (bool, error) {
	return s.closeSession(ctx, actor, sessionID, store.SessionScheduled, store.SessionCancelled)
}

func (s *Service) closeSession(ctx context.Context, actor Actor, sessionID string, from, to store.SessionStatus) (bool, error) {
	if err := actor.validate(); err != nil {
		return false, err
	}

	var closed bool
	err := s.withLease(ctx, sessionKey(sessionID), func() error {
		session, err := s.loadSession(ctx, actor, sessionID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if session.OrganizerID != actor.UserID || session.Status != from {
			return nil
		}

		now := s.now()
		session.Status = to
		session.EndedAt = &now
		_, err = s.store.EndSession(ctx, session)
		if errors.Is(err, store.ErrConflict) {
			return conflictError("session", session.ID, err)
		}
		if err != nil {
			return persistenceError("close session", err)
		}
		closed = true
		log.Printf("session %s %s by %s", session.ID, to, actor.UserID)
		return nil
	})
	return closed, err
}

// LockSession blocks new joins. Organizer or moderators only.
func (s *Service) LockSession(ctx context.Context, actor Actor, sessionID string) (store.Session, error) {
	return s.setSessionLocked(ctx, actor, sessionID, true)
}

func (s *Service) UnlockSession(ctx context.Context, actor Actor, sessionID string) (store.Session, error) {
	return s.setSessionLocked(ctx, actor, sessionID, false)
}

func (s *Service) setSessionLocked(ctx context.Context, actor Actor, sessionID string, locked bool) (store.Session, error) {
	if err := actor.validate(); err != nil {
		return store.Session{}, err
	}

	var updated store.Session
	err := s.withLease(ctx, sessionKey(sessionID), func() error {
		session, err := s.loadSession(ctx, actor, sessionID)
		if err != nil {
			return err
		}
		if session.Closed() {
			return forbiddenError("session is " + string(session.Status))
		}
		if err := s.requireModerator(ctx, session, actor); err != nil {
			return err
		}
		if session.Locked == locked {
			updated = session
			return nil
		}
		session.Locked = locked
		updated, err = s.updateSession(ctx, session)
		return err
	})
	if err != nil {
		return store.Session{}, err
	}
	return updated, nil
}

// ListParticipants is visible to the organizer and active participants.
func (s *Service) ListParticipants(ctx context.Context, actor Actor, sessionID string, activeOnly bool) ([]store.Participant, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	session, err := s.loadSession(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if session.OrganizerID != actor.UserID {
		if _, err := s.activeParticipant(ctx, session.ID, actor.UserID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, forbiddenError("only session members can list participants")
			}
			return nil, err
		}
	}
	items, err := s.store.ListParticipants(ctx, session.ID, activeOnly)
	if err != nil {
		return nil, persistenceError("list participants", err)
	}
	return items, nil
}

func (s *Service) updateSession(ctx context.Context, session store.Session) (store.Session, error) {
	updated, err := s.store.UpdateSession(ctx, session)
	if errors.Is(err, store.ErrConflict) {
		return store.Session{}, conflictError("session", session.ID, err)
	}
	if errors.Is(err, store.ErrNotFound) {
		return store.Session{}, notFoundError("session", session.ID)
	}
	if err != nil {
		return store.Session{}, persistenceError("update session", err)
	}
	return updated, nil
}

// loadSession hides sessions of other tenants behind NOT_FOUND.
func (s *Service) loadSession(ctx context.Context, actor Actor, sessionID string) (store.Session, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Session{}, notFoundError("session", sessionID)
	}
	if err != nil {
		return store.Session{}, persistenceError("get session", err)
	}
	if session.TenantID != actor.TenantID {
		return store.Session{}, notFoundError("session", sessionID)
	}
	return session, nil
}

func (s *Service) activeParticipant(ctx context.Context, sessionID, userID string) (store.Participant, error) {
	participant, err := s.store.GetActiveParticipant(ctx, sessionID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Participant{}, notFoundError("participant", userID)
	}
	if err != nil {
		return store.Participant{}, persistenceError("get participant", err)
	}
	return participant, nil
}

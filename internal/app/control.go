package app

import (
	"context"
	"errors"
	"log"

	"collab/api/internal/auth"
	"collab/api/internal/rbac"
	"collab/api/internal/store"
)

// GrantControl hands floor control to the target. Every other non-owner
// holder loses it in the same store transaction.
func (s *Service) GrantControl(ctx context.Context, actor Actor, sessionID, targetUserID string) (store.Participant, error) {
	var target store.Participant
	err := s.moderate(ctx, actor, sessionID, targetUserID, rbac.ActionControl, func(session store.Session, participant store.Participant) error {
		err := s.store.AssignControl(ctx, session.ID, participant.ID)
		if errors.Is(err, store.ErrNotFound) {
			return notFoundError("participant", targetUserID)
		}
		if err != nil {
			return persistenceError("grant control", err)
		}
		participant.HasControl = true
		target = participant
		log.Printf("session %s control handed to %s by %s", session.ID, participant.UserID, actor.UserID)
		return nil
	})
	if err != nil {
		return store.Participant{}, err
	}
	return target, nil
}

// RevokeControl clears the flag on the target whether or not it was set.
func (s *Service) RevokeControl(ctx context.Context, actor Actor, sessionID, targetUserID string) (store.Participant, error) {
	return s.updateTarget(ctx, actor, sessionID, targetUserID, rbac.ActionControl, "revoke control", func(p *store.Participant) {
		p.HasControl = false
	})
}

func (s *Service) MuteParticipant(ctx context.Context, actor Actor, sessionID, targetUserID string) (store.Participant, error) {
	return s.updateTarget(ctx, actor, sessionID, targetUserID, rbac.ActionModerate, "mute participant", func(p *store.Participant) {
		p.Muted = true
	})
}

func (s *Service) UnmuteParticipant(ctx context.Context, actor Actor, sessionID, targetUserID string) (store.Participant, error) {
	return s.updateTarget(ctx, actor, sessionID, targetUserID, rbac.ActionModerate, "unmute participant", func(p *store.Participant) {
		p.Muted = false
	})
}

// KickParticipant removes the target and marks the row as kicked so the user
// cannot join again. The organizer cannot be kicked.
func (s *Service) KickParticipant(ctx context.Context, actor Actor, sessionID, targetUserID string) (store.Participant, error) {
	var kicked store.Participant
	err := s.moderate(ctx, actor, sessionID, targetUserID, rbac.ActionModerate, func(session store.Session, participant store.Participant) error {
		if participant.UserID == session.OrganizerID {
			return forbiddenError("the organizer cannot be kicked")
		}
		now := s.now()
		participant.LeftAt = &now
		participant.Kicked = true
		participant.HasControl = false
		if err := s.store.UpdateParticipant(ctx, participant); err != nil {
			return persistenceError("kick participant", err)
		}
		kicked = participant
		log.Printf("session %s: %s kicked by %s", session.ID, participant.UserID, actor.UserID)
		return nil
	})
	if err != nil {
		return store.Participant{}, err
	}
	return kicked, nil
}

// PromoteModerator gives the target the moderator role. Organizer only.
func (s *Service) PromoteModerator(ctx context.Context, actor Actor, sessionID, targetUserID string) (store.Participant, error) {
	var promoted store.Participant
	err := s.moderate(ctx, actor, sessionID, targetUserID, rbac.ActionControl, func(session store.Session, participant store.Participant) error {
		if participant.Role == rbac.RoleOwner {
			return validationError("the organizer already owns the session")
		}
		participant.Role = rbac.RoleModerator
		if err := s.store.UpdateParticipant(ctx, participant); err != nil {
			return persistenceError("promote moderator", err)
		}
		promoted = participant
		return nil
	})
	if err != nil {
		return store.Participant{}, err
	}
	return promoted, nil
}

// IssueAccessToken returns a signed credential for the media transport. The
// actor must be an active participant.
func (s *Service) IssueAccessToken(ctx context.Context, actor Actor, sessionID string) (string, error) {
	if err := actor.validate(); err != nil {
		return "", err
	}
	session, err := s.loadSession(ctx, actor, sessionID)
	if err != nil {
		return "", err
	}
	if session.Closed() {
		return "", forbiddenError("session is " + string(session.Status))
	}
	participant, err := s.activeParticipant(ctx, session.ID, actor.UserID)
	if errors.Is(err, ErrNotFound) {
		return "", forbiddenError("join the session before requesting a token")
	}
	if err != nil {
		return "", err
	}

	token, err := auth.IssueSessionToken([]byte(s.cfg.SessionTokenSecret), session.ID, session.TenantID,
		participant.UserID, participant.Role, s.now(), s.cfg.SessionTokenTTL())
	if err != nil {
		return "", persistenceError("issue access token", err)
	}
	return token, nil
}

func (s *Service) updateTarget(ctx context.Context, actor Actor, sessionID, targetUserID string, action rbac.Action, op string, apply func(*store.Participant)) (store.Participant, error) {
	var updated store.Participant
	err := s.moderate(ctx, actor, sessionID, targetUserID, action, func(_ store.Session, participant store.Participant) error {
		apply(&participant)
		if err := s.store.UpdateParticipant(ctx, participant); err != nil {
			return persistenceError(op, err)
		}
		updated = participant
		return nil
	})
	if err != nil {
		return store.Participant{}, err
	}
	return updated, nil
}

// moderate runs fn under the session lease once the session is open, the
// actor may perform action, and the target is an active participant.
func (s *Service) moderate(ctx context.Context, actor Actor, sessionID, targetUserID string, action rbac.Action, fn func(store.Session, store.Participant) error) error {
	if err := actor.validate(); err != nil {
		return err
	}
	return s.withLease(ctx, sessionKey(sessionID), func() error {
		session, err := s.loadSession(ctx, actor, sessionID)
		if err != nil {
			return err
		}
		if session.Closed() {
			return forbiddenError("session is " + string(session.Status))
		}
		switch action {
		case rbac.ActionControl:
			if session.OrganizerID != actor.UserID {
				return forbiddenError("only the organizer can do this")
			}
		default:
			if err := s.requireModerator(ctx, session, actor); err != nil {
				return err
			}
		}
		participant, err := s.activeParticipant(ctx, session.ID, targetUserID)
		if err != nil {
			return err
		}
		return fn(session, participant)
	})
}

// requireModerator passes for the organizer and for active participants whose
// role allows moderation.
func (s *Service) requireModerator(ctx context.Context, session store.Session, actor Actor) error {
	if session.OrganizerID == actor.UserID {
		return nil
	}
	participant, err := s.activeParticipant(ctx, session.ID, actor.UserID)
	if errors.Is(err, ErrNotFound) {
		return forbiddenError("moderator role required")
	}
	if err != nil {
		return err
	}
	if !rbac.CanSession(participant.Role, rbac.ActionModerate) {
		return forbiddenError("moderator role required")
	}
	return nil
}

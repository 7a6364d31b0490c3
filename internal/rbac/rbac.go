// Package rbac defines the closed set of document permission levels and
// live-session roles, and which actions each of them allows.
package rbac

import (
	"errors"
	"fmt"
	"strings"
)

type Level string
type Role string
type Action string

const (
	LevelOwner Level = "owner"
	LevelWrite Level = "write"
	LevelRead  Level = "read"
)

const (
	RoleOwner       Role = "owner"
	RoleModerator   Role = "moderator"
	RoleParticipant Role = "participant"
	RoleViewer      Role = "viewer"
)

const (
	ActionRead     Action = "read"
	ActionWrite    Action = "write"
	ActionShare    Action = "share"
	ActionModerate Action = "moderate"
	ActionControl  Action = "control"
)

var (
	ErrUnknownLevel = errors.New("unknown permission level")
	ErrUnknownRole  = errors.New("unknown session role")
)

// WriteLevels are the levels allowed to append versions.
var WriteLevels = []Level{LevelOwner, LevelWrite}

// AnyLevel matches every permission row.
var AnyLevel = []Level{LevelOwner, LevelWrite, LevelRead}

// CanDocument reports whether a document permission level allows action.
func CanDocument(level Level, action Action) bool {
	switch level {
	case LevelOwner:
		return action == ActionRead || action == ActionWrite || action == ActionShare
	case LevelWrite:
		return action == ActionRead || action == ActionWrite
	case LevelRead:
		return action == ActionRead
	default:
		return false
	}
}

// CanSession reports whether a participant role allows action. Floor control
// handoff stays with the owner; moderators may only mute and kick.
func CanSession(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return action == ActionModerate || action == ActionControl
	case RoleModerator:
		return action == ActionModerate
	default:
		return false
	}
}

func ParseLevel(value string) (Level, error) {
	switch level := Level(strings.TrimSpace(value)); level {
	case LevelOwner, LevelWrite, LevelRead:
		return level, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownLevel, value)
	}
}

func ParseRole(value string) (Role, error) {
	switch role := Role(strings.TrimSpace(value)); role {
	case RoleOwner, RoleModerator, RoleParticipant, RoleViewer:
		return role, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, value)
	}
}

// Contains reports whether level is one of levels.
func Contains(levels []Level, level Level) bool {
	for _, candidate := range levels {
		if candidate == level {
			return true
		}
	}
	return false
}

package app

import (
	"context"
	"errors"
	"strings"

	"collab/api/internal/rbac"
	"collab/api/internal/store"
)

// GrantPermission creates or overwrites the user's permission row. Only the
// document owner may share, and the owner row itself is never rewritten.
func (s *Service) GrantPermission(ctx context.Context, actor Actor, documentID, userID string, level rbac.Level) (store.DocumentPermission, error) {
	if err := actor.validate(); err != nil {
		return store.DocumentPermission{}, err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return store.DocumentPermission{}, validationError("user is required")
	}
	parsed, err := rbac.ParseLevel(string(level))
	if err != nil {
		return store.DocumentPermission{}, validationError(err.Error())
	}
	if parsed == rbac.LevelOwner {
		return store.DocumentPermission{}, validationError("owner permission cannot be granted")
	}

	var granted store.DocumentPermission
	err = s.withLease(ctx, documentKey(documentID), func() error {
		doc, err := s.loadDocument(ctx, actor, documentID)
		if err != nil {
			return err
		}
		if err := s.requireLevel(ctx, doc.ID, actor.UserID, []rbac.Level{rbac.LevelOwner}, "only the owner can share this document"); err != nil {
			return err
		}

		err = s.store.UpsertPermission(ctx, store.DocumentPermission{
			DocumentID: doc.ID,
			UserID:     userID,
			Level:      parsed,
			GrantedAt:  s.now(),
		})
		switch {
		case errors.Is(err, store.ErrConflict):
			return validationError("owner permission cannot be changed")
		case errors.Is(err, store.ErrNotFound):
			return notFoundError("document", doc.ID)
		case err != nil:
			return persistenceError("grant permission", err)
		}

		granted, err = s.store.GetPermission(ctx, doc.ID, userID)
		if err != nil {
			return persistenceError("get permission", err)
		}
		return nil
	})
	if err != nil {
		return store.DocumentPermission{}, err
	}
	return granted, nil
}

// RevokePermission deletes the user's row. It returns false when there is no
// row or the row is the owner's.
func (s *Service) RevokePermission(ctx context.Context, actor Actor, documentID, userID string) (bool, error) {
	if err := actor.validate(); err != nil {
		return false, err
	}

	var revoked bool
	err := s.withLease(ctx, documentKey(documentID), func() error {
		doc, err := s.loadDocument(ctx, actor, documentID)
		if err != nil {
			return err
		}
		if err := s.requireLevel(ctx, doc.ID, actor.UserID, []rbac.Level{rbac.LevelOwner}, "only the owner can revoke access"); err != nil {
			return err
		}
		revoked, err = s.store.DeletePermission(ctx, doc.ID, strings.TrimSpace(userID))
		if err != nil {
			return persistenceError("revoke permission", err)
		}
		return nil
	})
	return revoked, err
}

// CheckPermission reports whether userID holds one of levels on the document.
func (s *Service) CheckPermission(ctx context.Context, documentID, userID string, levels ...rbac.Level) (bool, error) {
	permission, err := s.store.GetPermission(ctx, documentID, userID)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, persistenceError("check permission", err)
	}
	return rbac.Contains(levels, permission.Level), nil
}

func (s *Service) ListPermissions(ctx context.Context, actor Actor, documentID string) ([]store.DocumentPermission, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	doc, err := s.loadDocument(ctx, actor, documentID)
	if err != nil {
		return nil, err
	}
	if err := s.requireLevel(ctx, doc.ID, actor.UserID, rbac.AnyLevel, "read access required"); err != nil {
		return nil, err
	}
	items, err := s.store.ListPermissions(ctx, doc.ID)
	if err != nil {
		return nil, persistenceError("list permissions", err)
	}
	return items, nil
}

func (s *Service) requireLevel(ctx context.Context, documentID, userID string, levels []rbac.Level, message string) error {
	ok, err := s.CheckPermission(ctx, documentID, userID, levels...)
	if err != nil {
		return err
	}
	if !ok {
		return forbiddenError(message)
	}
	return nil
}

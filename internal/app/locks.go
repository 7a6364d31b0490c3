package app

import (
	"context"
	"errors"
	"log"

	"collab/api/internal/rbac"
)

// LockDocument takes the advisory edit lock. It returns false when the
// document is missing or already locked by anyone, the actor included.
// It runs under the document lease so it cannot interleave with a write.
func (s *Service) LockDocument(ctx context.Context, actor Actor, documentID string) (bool, error) {
	if err := actor.validate(); err != nil {
		return false, err
	}

	var locked bool
	err := s.withLease(ctx, documentKey(documentID), func() error {
		doc, err := s.loadDocument(ctx, actor, documentID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := s.requireLevel(ctx, doc.ID, actor.UserID, rbac.WriteLevels, "write access required"); err != nil {
			return err
		}

		locked, err = s.store.LockDocument(ctx, doc.ID, actor.UserID, s.now())
		if err != nil {
			return persistenceError("lock document", err)
		}
		if locked {
			log.Printf("document %s locked by %s", doc.ID, actor.UserID)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return locked, nil
}

// UnlockDocument releases the lock only for its holder.
func (s *Service) UnlockDocument(ctx context.Context, actor Actor, documentID string) (bool, error) {
	if err := actor.validate(); err != nil {
		return false, err
	}

	var unlocked bool
	err := s.withLease(ctx, documentKey(documentID), func() error {
		doc, err := s.loadDocument(ctx, actor, documentID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		unlocked, err = s.store.UnlockDocument(ctx, doc.ID, actor.UserID)
		if err != nil {
			return persistenceError("unlock document", err)
		}
		if unlocked {
			log.Printf("document %s unlocked by %s", doc.ID, actor.UserID)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return unlocked, nil
}

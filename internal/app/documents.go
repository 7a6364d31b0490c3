package app

import (
	"context"
	"errors"
	"log"
	"strings"

	"collab/api/internal/rbac"
	"collab/api/internal/store"
	"collab/api/internal/util"
)

const (
	initialVersionComment = "Initial version"
	updateVersionComment  = "Document updated"
	manualVersionComment  = "Manual checkpoint"
)

type CreateDocumentInput struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	TeamID  string `json:"teamId"`
}

// CreateDocument writes the document at version 1, its first version and the
// creator's owner permission in one store transaction.
func (s *Service) CreateDocument(ctx context.Context, actor Actor, input CreateDocumentInput) (store.Document, error) {
	if err := actor.validate(); err != nil {
		return store.Document{}, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return store.Document{}, validationError("title is required")
	}

	now := s.now()
	doc := store.Document{
		ID:        util.NewID("doc"),
		TenantID:  actor.TenantID,
		TeamID:    strings.TrimSpace(input.TeamID),
		Title:     title,
		Content:   input.Content,
		OwnerID:   actor.UserID,
		Version:   1,
		CreatedAt: now,
		UpdatedBy: actor.UserID,
		UpdatedAt: now,
	}
	version := store.DocumentVersion{
		ID:         util.NewID("ver"),
		DocumentID: doc.ID,
		Number:     1,
		Content:    doc.Content,
		AuthorID:   actor.UserID,
		Comment:    initialVersionComment,
		CreatedAt:  now,
	}
	owner := store.DocumentPermission{
		DocumentID: doc.ID,
		UserID:     actor.UserID,
		Level:      rbac.LevelOwner,
		GrantedAt:  now,
	}
	if err := s.store.CreateDocument(ctx, doc, version, owner); err != nil {
		return store.Document{}, persistenceError("create document", err)
	}

	log.Printf("document %s created by %s", doc.ID, actor.UserID)
	s.archiveVersion(ctx, version)
	return doc, nil
}

// UpdateDocument replaces the content and appends the next version. The
// caller needs write access and, if the document is locked, must hold the lock.
func (s *Service) UpdateDocument(ctx context.Context, actor Actor, documentID, content string) (store.Document, error) {
	if err := actor.validate(); err != nil {
		return store.Document{}, err
	}

	var updated store.Document
	err := s.withLease(ctx, documentKey(documentID), func() error {
		doc, err := s.loadDocument(ctx, actor, documentID)
		if err != nil {
			return err
		}
		if doc.Locked() && doc.LockedBy != actor.UserID {
			return lockedError(doc.ID, doc.LockedBy)
		}
		if err := s.requireLevel(ctx, doc.ID, actor.UserID, rbac.WriteLevels, "write access required"); err != nil {
			return err
		}
		updated, _, err = s.appendVersion(ctx, doc, actor, content, updateVersionComment)
		if errors.Is(err, ErrConflict) {
			if current, loadErr := s.loadDocument(ctx, actor, doc.ID); loadErr == nil && current.Locked() && current.LockedBy != actor.UserID {
				return lockedError(current.ID, current.LockedBy)
			}
		}
		return err
	})
	if err != nil {
		return store.Document{}, err
	}
	return updated, nil
}

// CreateVersion records a manual checkpoint. It skips the edit lock check but
// still requires write access.
func (s *Service) CreateVersion(ctx context.Context, actor Actor, documentID, content, comment string) (store.DocumentVersion, error) {
	if err := actor.validate(); err != nil {
		return store.DocumentVersion{}, err
	}
	comment = strings.TrimSpace(comment)
	if comment == "" {
		comment = manualVersionComment
	}

	var version store.DocumentVersion
	err := s.withLease(ctx, documentKey(documentID), func() error {
		doc, err := s.loadDocument(ctx, actor, documentID)
		if err != nil {
			return err
		}
		if err := s.requireLevel(ctx, doc.ID, actor.UserID, rbac.WriteLevels, "write access required"); err != nil {
			return err
		}
		_, version, err = s.appendVersion(ctx, doc, actor, content, comment)
		return err
	})
	if err != nil {
		return store.DocumentVersion{}, err
	}
	return version, nil
}

// GetDocument returns nil when the document does not exist in the actor's
// tenant.
func (s *Service) GetDocument(ctx context.Context, actor Actor, documentID string) (*store.Document, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	doc, err := s.loadDocument(ctx, actor, documentID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.requireLevel(ctx, doc.ID, actor.UserID, rbac.AnyLevel, "read access required"); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *Service) ListDocuments(ctx context.Context, actor Actor) ([]store.Document, error) {
	if err := actor.validate(); err != nil {
		return nil, err
	}
	items, err := s.store.ListDocumentsForUser(ctx, actor.TenantID, actor.UserID)
	if err != nil {
		return nil, persistenceError("list documents", err)
	}
	return items, nil
}

// ListVersions returns the version chain newest first.
func (s *Service) ListVersions(ctx context.Context, actor Actor, documentID string) ([]store.DocumentVersion, error) {
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
	versions, err := s.store.ListVersions(ctx, doc.ID)
	if err != nil {
		return nil, persistenceError("list versions", err)
	}
	return versions, nil
}

// appendVersion must run under the document lease.
func (s *Service) appendVersion(ctx context.Context, doc store.Document, actor Actor, content, comment string) (store.Document, store.DocumentVersion, error) {
	now := s.now()
	version := store.DocumentVersion{
		ID:         util.NewID("ver"),
		DocumentID: doc.ID,
		Number:     doc.Version + 1,
		Content:    content,
		AuthorID:   actor.UserID,
		Comment:    comment,
		CreatedAt:  now,
	}
	updated := doc
	updated.Content = content
	updated.Version = version.Number
	updated.UpdatedBy = actor.UserID
	updated.UpdatedAt = now

	err := s.store.AppendVersion(ctx, updated, version, doc.Version)
	switch {
	case errors.Is(err, store.ErrConflict):
		return store.Document{}, store.DocumentVersion{}, conflictError("document", doc.ID, err)
	case errors.Is(err, store.ErrNotFound):
		return store.Document{}, store.DocumentVersion{}, notFoundError("document", doc.ID)
	case err != nil:
		return store.Document{}, store.DocumentVersion{}, persistenceError("append version", err)
	}

	log.Printf("document %s moved to version %d by %s", doc.ID, version.Number, actor.UserID)
	s.archiveVersion(ctx, version)
	return updated, version, nil
}

// loadDocument hides documents of other tenants behind NOT_FOUND.
func (s *Service) loadDocument(ctx context.Context, actor Actor, documentID string) (store.Document, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if errors.Is(err, store.ErrNotFound) {
		return store.Document{}, notFoundError("document", documentID)
	}
	if err != nil {
		return store.Document{}, persistenceError("get document", err)
	}
	if doc.TenantID != actor.TenantID {
		return store.Document{}, notFoundError("document", documentID)
	}
	return doc, nil
}

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"collab/api/internal/rbac"
)

// MemoryStore keeps every entity in process memory. Reads and writes hand out
// copies so callers never alias stored state.
type MemoryStore struct {
	mu           sync.RWMutex
	documents    map[string]Document
	versions     map[string][]DocumentVersion
	permissions  map[string]map[string]DocumentPermission
	sessions     map[string]Session
	participants map[string][]Participant
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		documents:    make(map[string]Document),
		versions:     make(map[string][]DocumentVersion),
		permissions:  make(map[string]map[string]DocumentPermission),
		sessions:     make(map[string]Session),
		participants: make(map[string][]Participant),
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) CreateDocument(_ context.Context, doc Document, version DocumentVersion, owner DocumentPermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.documents[doc.ID]; exists {
		return fmt.Errorf("create document %q: %w", doc.ID, ErrDuplicate)
	}
	if version.DocumentID != doc.ID || version.Number != doc.Version {
		return fmt.Errorf("create document %q: initial version does not match document", doc.ID)
	}
	s.documents[doc.ID] = cloneDocument(doc)
	s.versions[doc.ID] = []DocumentVersion{version}
	s.permissions[doc.ID] = map[string]DocumentPermission{owner.UserID: owner}
	return nil
}

func (s *MemoryStore) GetDocument(_ context.Context, documentID string) (Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDocument(doc), nil
}

func (s *MemoryStore) ListDocumentsForUser(_ context.Context, tenantID, userID string) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Document, 0)
	for documentID, grants := range s.permissions {
		if _, ok := grants[userID]; !ok {
			continue
		}
		doc := s.documents[documentID]
		if doc.TenantID != tenantID {
			continue
		}
		items = append(items, cloneDocument(doc))
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	return items, nil
}

func (s *MemoryStore) AppendVersion(_ context.Context, doc Document, version DocumentVersion, expectedVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.documents[doc.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Version != expectedVersion || version.Number != expectedVersion+1 {
		return ErrConflict
	}
	if current.LockedBy != doc.LockedBy {
		return ErrConflict
	}
	current.Content = doc.Content
	current.Version = version.Number
	current.UpdatedBy = doc.UpdatedBy
	current.UpdatedAt = doc.UpdatedAt
	s.documents[doc.ID] = current
	s.versions[doc.ID] = append(s.versions[doc.ID], version)
	return nil
}

func (s *MemoryStore) ListVersions(_ context.Context, documentID string) ([]DocumentVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chain := s.versions[documentID]
	items := make([]DocumentVersion, 0, len(chain))
	for i := len(chain) - 1; i >= 0; i-- {
		items = append(items, chain[i])
	}
	return items, nil
}

func (s *MemoryStore) LockDocument(_ context.Context, documentID, userID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok || doc.Locked() {
		return false, nil
	}
	doc.LockedBy = userID
	doc.LockedAt = &at
	s.documents[documentID] = doc
	return true, nil
}

func (s *MemoryStore) UnlockDocument(_ context.Context, documentID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok || doc.LockedBy != userID || userID == "" {
		return false, nil
	}
	doc.LockedBy = ""
	doc.LockedAt = nil
	s.documents[documentID] = doc
	return true, nil
}

func (s *MemoryStore) UpsertPermission(_ context.Context, permission DocumentPermission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	grants, ok := s.permissions[permission.DocumentID]
	if !ok {
		return ErrNotFound
	}
	existing, ok := grants[permission.UserID]
	if !ok {
		grants[permission.UserID] = permission
		return nil
	}
	if existing.Level == rbac.LevelOwner {
		return ErrConflict
	}
	existing.Level = permission.Level
	grants[permission.UserID] = existing
	return nil
}

func (s *MemoryStore) GetPermission(_ context.Context, documentID, userID string) (DocumentPermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	permission, ok := s.permissions[documentID][userID]
	if !ok {
		return DocumentPermission{}, ErrNotFound
	}
	return permission, nil
}

func (s *MemoryStore) DeletePermission(_ context.Context, documentID, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	grants := s.permissions[documentID]
	permission, ok := grants[userID]
	if !ok || permission.Level == rbac.LevelOwner {
		return false, nil
	}
	delete(grants, userID)
	return true, nil
}

func (s *MemoryStore) ListPermissions(_ context.Context, documentID string) ([]DocumentPermission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]DocumentPermission, 0, len(s.permissions[documentID]))
	for _, permission := range s.permissions[documentID] {
		items = append(items, permission)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].GrantedAt.Equal(items[j].GrantedAt) {
			return items[i].UserID < items[j].UserID
		}
		return items[i].GrantedAt.Before(items[j].GrantedAt)
	})
	return items, nil
}

func (s *MemoryStore) CreateSession(_ context.Context, session Session, owner *Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("create session %q: %w", session.ID, ErrDuplicate)
	}
	s.sessions[session.ID] = cloneSession(session)
	if owner != nil {
		s.participants[session.ID] = []Participant{cloneParticipant(*owner)}
	}
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return cloneSession(session), nil
}

func (s *MemoryStore) UpdateSession(_ context.Context, session Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[session.ID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if current.Revision != session.Revision {
		return Session{}, ErrConflict
	}
	session.Revision++
	s.sessions[session.ID] = cloneSession(session)
	return cloneSession(session), nil
}

func (s *MemoryStore) EndSession(_ context.Context, session Session) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[session.ID]
	if !ok {
		return Session{}, ErrNotFound
	}
	if current.Revision != session.Revision || session.EndedAt == nil {
		return Session{}, ErrConflict
	}
	session.Revision++
	s.sessions[session.ID] = cloneSession(session)

	endedAt := *session.EndedAt
	participants := s.participants[session.ID]
	for i := range participants {
		if participants[i].LeftAt == nil {
			left := endedAt
			participants[i].LeftAt = &left
			participants[i].HasControl = false
		}
	}
	return cloneSession(session), nil
}

func (s *MemoryStore) InsertParticipant(_ context.Context, participant Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[participant.SessionID]; !ok {
		return ErrNotFound
	}
	for _, existing := range s.participants[participant.SessionID] {
		if existing.UserID == participant.UserID && existing.LeftAt == nil {
			return ErrDuplicate
		}
	}
	s.participants[participant.SessionID] = append(s.participants[participant.SessionID], cloneParticipant(participant))
	return nil
}

func (s *MemoryStore) GetActiveParticipant(_ context.Context, sessionID, userID string) (Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, participant := range s.participants[sessionID] {
		if participant.UserID == userID && participant.LeftAt == nil {
			return cloneParticipant(participant), nil
		}
	}
	return Participant{}, ErrNotFound
}

func (s *MemoryStore) ListParticipants(_ context.Context, sessionID string, activeOnly bool) ([]Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]Participant, 0, len(s.participants[sessionID]))
	for _, participant := range s.participants[sessionID] {
		if activeOnly && participant.LeftAt != nil {
			continue
		}
		items = append(items, cloneParticipant(participant))
	}
	return items, nil
}

func (s *MemoryStore) CountActiveParticipants(_ context.Context, sessionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, participant := range s.participants[sessionID] {
		if participant.LeftAt == nil {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) HasKickedParticipant(_ context.Context, sessionID, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, participant := range s.participants[sessionID] {
		if participant.UserID == userID && participant.Kicked {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) UpdateParticipant(_ context.Context, participant Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	participants := s.participants[participant.SessionID]
	for i := range participants {
		if participants[i].ID == participant.ID {
			participants[i] = cloneParticipant(participant)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) AssignControl(_ context.Context, sessionID, participantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	participants := s.participants[sessionID]
	target := -1
	for i := range participants {
		if participants[i].ID == participantID && participants[i].LeftAt == nil {
			target = i
		}
	}
	if target < 0 {
		return ErrNotFound
	}
	for i := range participants {
		if i != target && participants[i].Role != rbac.RoleOwner {
			participants[i].HasControl = false
		}
	}
	participants[target].HasControl = true
	return nil
}

func cloneDocument(doc Document) Document {
	if doc.LockedAt != nil {
		lockedAt := *doc.LockedAt
		doc.LockedAt = &lockedAt
	}
	return doc
}

func cloneSession(session Session) Session {
	session.ScheduledAt = cloneTime(session.ScheduledAt)
	session.StartedAt = cloneTime(session.StartedAt)
	session.EndedAt = cloneTime(session.EndedAt)
	return session
}

func cloneParticipant(participant Participant) Participant {
	participant.LeftAt = cloneTime(participant.LeftAt)
	return participant
}

func cloneTime(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

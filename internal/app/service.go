package app

import (
	"context"
	"log"
	"strings"
	"time"

	"collab/api/internal/archive"
	"collab/api/internal/config"
	"collab/api/internal/lease"
	"collab/api/internal/store"
)

// Actor is the identity every operation runs on behalf of. It is resolved by
// the caller; the service never looks up a current user on its own.
type Actor struct {
	TenantID string
	UserID   string
}

func (a Actor) validate() error {
	if strings.TrimSpace(a.TenantID) == "" || strings.TrimSpace(a.UserID) == "" {
		return validationError("actor tenant and user are required")
	}
	return nil
}

// DataStore is the persistence surface the service needs. Both
// store.PostgresStore and store.MemoryStore satisfy it.
type DataStore interface {
	Ping(context.Context) error

	CreateDocument(context.Context, store.Document, store.DocumentVersion, store.DocumentPermission) error
	GetDocument(context.Context, string) (store.Document, error)
	ListDocumentsForUser(context.Context, string, string) ([]store.Document, error)
	AppendVersion(context.Context, store.Document, store.DocumentVersion, int) error
	ListVersions(context.Context, string) ([]store.DocumentVersion, error)
	LockDocument(context.Context, string, string, time.Time) (bool, error)
	UnlockDocument(context.Context, string, string) (bool, error)

	UpsertPermission(context.Context, store.DocumentPermission) error
	GetPermission(context.Context, string, string) (store.DocumentPermission, error)
	DeletePermission(context.Context, string, string) (bool, error)
	ListPermissions(context.Context, string) ([]store.DocumentPermission, error)

	CreateSession(context.Context, store.Session, *store.Participant) error
	GetSession(context.Context, string) (store.Session, error)
	UpdateSession(context.Context, store.Session) (store.Session, error)
	EndSession(context.Context, store.Session) (store.Session, error)

	InsertParticipant(context.Context, store.Participant) error
	GetActiveParticipant(context.Context, string, string) (store.Participant, error)
	ListParticipants(context.Context, string, bool) ([]store.Participant, error)
	CountActiveParticipants(context.Context, string) (int, error)
	HasKickedParticipant(context.Context, string, string) (bool, error)
	UpdateParticipant(context.Context, store.Participant) error
	AssignControl(context.Context, string, string) error
}

type Service struct {
	cfg     config.Config
	store   DataStore
	locks   lease.Locker
	archive archive.Archiver
	now     func() time.Time
}

// New wires the service. A nil locker falls back to in-process leases and a
// nil archiver disables version mirroring.
func New(cfg config.Config, dataStore DataStore, locker lease.Locker, archiver archive.Archiver) *Service {
	if locker == nil {
		locker = lease.NewLocalLocker()
	}
	if archiver == nil {
		archiver = archive.Nop{}
	}
	if cfg.DefaultSessionCapacity < 1 {
		cfg.DefaultSessionCapacity = 50
	}
	if cfg.SessionTokenTTLSeconds < 1 {
		cfg.SessionTokenTTLSeconds = 3600
	}
	return &Service{
		cfg:     cfg,
		store:   dataStore,
		locks:   locker,
		archive: archiver,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// withLease runs fn while holding the lease on key.
func (s *Service) withLease(ctx context.Context, key string, fn func() error) error {
	release, err := s.locks.Acquire(ctx, key)
	if err != nil {
		return persistenceError("acquire "+key, err)
	}
	defer release()
	return fn()
}

func documentKey(documentID string) string {
	return "document:" + documentID
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func (s *Service) archiveVersion(ctx context.Context, version store.DocumentVersion) {
	if err := s.archive.ArchiveVersion(ctx, version); err != nil {
		log.Printf("archive version %s#%d: %v", version.DocumentID, version.Number, err)
	}
}

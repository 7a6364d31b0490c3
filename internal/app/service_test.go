package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"collab/api/internal/config"
	"collab/api/internal/lease"
	"collab/api/internal/store"
)

var (
	alice = Actor{TenantID: "tenant-1", UserID: "alice"}
	bob   = Actor{TenantID: "tenant-1", UserID: "bob"}
	carol = Actor{TenantID: "tenant-1", UserID: "carol"}
	dave  = Actor{TenantID: "tenant-1", UserID: "dave"}
	eve   = Actor{TenantID: "tenant-2", UserID: "eve"}
)

type recordingArchiver struct {
	mu       sync.Mutex
	versions []store.DocumentVersion
	err      error
}

func (a *recordingArchiver) ArchiveVersion(_ context.Context, version store.DocumentVersion) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.versions = append(a.versions, version)
	return a.err
}

func (a *recordingArchiver) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.versions)
}

func testConfig() config.Config {
	return config.Config{
		IdentitySecret:         "identity-secret",
		SessionTokenSecret:     "session-secret",
		SessionTokenTTLSeconds: 600,
		DefaultSessionCapacity: 10,
	}
}

func newTestService(t *testing.T) (*Service, *store.MemoryStore, *recordingArchiver) {
	t.Helper()
	memory := store.NewMemoryStore()
	archiver := &recordingArchiver{}
	return New(testConfig(), memory, lease.NewLocalLocker(), archiver), memory, archiver
}

// failingStore wraps MemoryStore and injects errors into selected writes.
type failingStore struct {
	*store.MemoryStore
	createDocumentErr error
	appendVersionErr  error
	pingErr           error
}

func (f *failingStore) CreateDocument(ctx context.Context, doc store.Document, version store.DocumentVersion, owner store.DocumentPermission) error {
	if f.createDocumentErr != nil {
		return f.createDocumentErr
	}
	return f.MemoryStore.CreateDocument(ctx, doc, version, owner)
}

func (f *failingStore) AppendVersion(ctx context.Context, doc store.Document, version store.DocumentVersion, expected int) error {
	if f.appendVersionErr != nil {
		return f.appendVersionErr
	}
	return f.MemoryStore.AppendVersion(ctx, doc, version, expected)
}

func (f *failingStore) Ping(ctx context.Context) error {
	if f.pingErr != nil {
		return f.pingErr
	}
	return f.MemoryStore.Ping(ctx)
}

func TestNewAppliesDefaults(t *testing.T) {
	svc := New(config.Config{}, store.NewMemoryStore(), nil, nil)
	if svc.cfg.DefaultSessionCapacity != 50 {
		t.Fatalf("expected default capacity 50, got %d", svc.cfg.DefaultSessionCapacity)
	}
	if svc.cfg.SessionTokenTTLSeconds != 3600 {
		t.Fatalf("expected default token ttl 3600, got %d", svc.cfg.SessionTokenTTLSeconds)
	}
	if _, ok := svc.locks.(*lease.LocalLocker); !ok {
		t.Fatalf("expected local locker fallback, got %T", svc.locks)
	}
}

func TestOperationsRequireActorIdentity(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.CreateDocument(context.Background(), Actor{UserID: "alice"}, CreateDocumentInput{Title: "Roadmap"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation without tenant, got %v", err)
	}
	_, err = svc.JoinSession(context.Background(), Actor{TenantID: "tenant-1"}, "ses_1")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation without user, got %v", err)
	}
}

type stuckLocker struct{}

func (stuckLocker) Acquire(ctx context.Context, key string) (lease.Release, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestLeaseTimeoutSurfacesAsPersistenceError(t *testing.T) {
	memory := store.NewMemoryStore()
	svc := New(testConfig(), memory, stuckLocker{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.UpdateDocument(ctx, alice, "doc_1", "v2")
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cause context.Canceled, got %v", err)
	}
}

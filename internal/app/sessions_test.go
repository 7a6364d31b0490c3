package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"collab/api/internal/auth"
	"collab/api/internal/rbac"
	"collab/api/internal/store"
)

func createConference(t *testing.T, svc *Service, capacity int) store.Session {
	t.Helper()
	session, err := svc.CreateSession(context.Background(), alice, CreateSessionInput{
		Kind:     store.SessionKindConference,
		Title:    "Weekly sync",
		Capacity: capacity,
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return session
}

func mustJoin(t *testing.T, svc *Service, actor Actor, sessionID string) {
	t.Helper()
	if _, err := svc.JoinSession(context.Background(), actor, sessionID); err != nil {
		t.Fatalf("JoinSession(%s) error = %v", actor.UserID, err)
	}
}

func activeCount(t *testing.T, memory *store.MemoryStore, sessionID string) int {
	t.Helper()
	count, err := memory.CountActiveParticipants(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("CountActiveParticipants() error = %v", err)
	}
	return count
}

func TestCreateSessionDefaults(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, alice, CreateSessionInput{Kind: store.SessionKindConference})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.Status != store.SessionScheduled || session.Title != "Untitled session" || session.Capacity != 10 {
		t.Fatalf("unexpected session: %+v", session)
	}
	if len(session.JoinCode) != 10 {
		t.Fatalf("expected 10 character join code, got %q", session.JoinCode)
	}

	if _, err := svc.CreateSession(ctx, alice, CreateSessionInput{Kind: "webinar"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown kind, got %v", err)
	}
	if _, err := svc.CreateSession(ctx, alice, CreateSessionInput{Kind: store.SessionKindConference, Capacity: -1}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for negative capacity, got %v", err)
	}
}

func TestScreenShareStartsWithOwnerInControl(t *testing.T) {
	svc, memory, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, alice, CreateSessionInput{Kind: store.SessionKindScreenShare, Capacity: 3})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if session.Status != store.SessionActive || session.StartedAt == nil {
		t.Fatalf("expected active screen share, got %+v", session)
	}
	owner, err := memory.GetActiveParticipant(ctx, session.ID, "alice")
	if err != nil {
		t.Fatalf("GetActiveParticipant() error = %v", err)
	}
	if owner.Role != rbac.RoleOwner || !owner.HasControl {
		t.Fatalf("unexpected owner participant: %+v", owner)
	}

	mustJoin(t, svc, bob, session.ID)
	viewer, _ := memory.GetActiveParticipant(ctx, session.ID, "bob")
	if viewer.Role != rbac.RoleViewer {
		t.Fatalf("expected viewer role, got %s", viewer.Role)
	}
}

func TestJoinFullSessionFailsWithCapacity(t *testing.T) {
	svc, memory, _ := newTestService(t)
	ctx := context.Background()

	session, err := svc.CreateSession(ctx, alice, CreateSessionInput{Kind: store.SessionKindScreenShare, Capacity: 1})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	_, err = svc.JoinSession(ctx, bob, session.ID)
	if !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
	if got := activeCount(t, memory, session.ID); got != 1 {
		t.Fatalf("expected 1 active participant, got %d", got)
	}
}

func TestConcurrentJoinsNeverExceedCapacity(t *testing.T) {
	svc, memory, _ := newTestService(t)
	ctx := context.Background()
	session := createConference(t, svc, 3)

	var wg sync.WaitGroup
	var mu sync.Mutex
	joined, full := 0, 0
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := Actor{TenantID: "tenant-1", UserID: "user-" + string(rune('a'+i))}
			_, err := svc.JoinSession(ctx, actor, session.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				joined++
			case errors.Is(err, ErrCapacity):
				full++
			default:
				t.Errorf("JoinSession() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if joined != 3 || full != 9 {
		t.Fatalf("expected 3 joins and 9 capacity errors, got %d and %d", joined, full)
	}
	if got := activeCount(t, memory, session.ID); got != 3 {
		t.Fatalf("expected 3 active participants, got %d", got)
	}
}

func TestJoinIsIdempotentForActiveParticipant(t *testing.T) {
	svc, memory, _ := newTestService(t)
	ctx := context.Background()
	session := createConference(t, svc, 2)

	mustJoin(t, svc, alice, session.ID)
	mustJoin(t, svc, bob, session.ID)
	mustJoin(t, svc, bob, session.ID)
	if got := activeCount(t, memory, session.ID); got != 2 {
		t.Fatalf("expected 2 active participants, got %d", got)
	}

	organizer, _ := memory.GetActiveParticipant(ctx, session.ID, "alice")
	member, _ := memory.GetActiveParticipant(ctx, session.ID, "bob")
	if organizer.Role != rbac.RoleOwner || member.Role != rbac.RoleParticipant {
		t.Fatalf("unexpected roles: %s, %s", organizer.Role, member.Role)
	}
}

func TestLockedSessionRejectsNewJoins(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	session := createConference(t, svc, 5)
	mustJoin(t, svc, bob, session.ID)

	if _, err := svc.LockSession(ctx, bob, session.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected participant lock to be forbidden, got %v", err)
	}
	locked, err := svc.LockSession(ctx, alice, session.ID)
	if err != nil || !locked.Locked {
		t.Fatalf("LockSession() = %+v, %v", locked, err)
	}
	if _, err := svc.JoinSession(ctx, carol, session.ID); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}
	mustJoin(t, svc, bob, session.ID)

	if _, err := svc.UnlockSession(ctx, alice, session.ID); err != nil {
		t.Fatalf("UnlockSession() error = %v", err)
	}
	mustJoin(t, svc, carol, session.ID)
}

func TestStartSessionOrganizerOnlyAndOnce(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	session := createConference(t, svc, 5)

	if _, err := svc.StartSession(ctx, bob, session.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	started, err := svc.StartSession(ctx, alice, session.ID)
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	if started.Status != store.SessionActive || started.StartedAt == nil {
		t.Fatalf("unexpected started session: %+v", started)
	}
	if _, err := svc.StartSession(ctx, alice, session.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on second start, got %v", err)
	}
}

func TestEndSessionMarksEveryoneLeft(t *testing.T) {
	svc, memory, _ := newTestService(t)
	ctx := context.Background()
	session := createConference(t, svc, 5)
	if _, err := svc.StartSession(ctx, alice, session.ID); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	for _, actor := range []Actor{alice, bob, carol} {
		mustJoin(t, svc, actor, session.ID)
	}

	if ended, err := svc.EndSession(ctx, bob, session.ID); err != nil || ended {
		t.Fatalf("non-organizer EndSession() = %v, %v", ended, err)
	}
	ended, err := svc.EndSession(ctx, alice, session.ID)
	if err != nil || !ended {
		t.Fatalf("EndSession() = %v, %v", ended, err)
	}

	current, _ := svc.GetSession(ctx, alice, session.ID)
	if current.Status != store.SessionEnded || current.EndedAt == nil {
		t.Fatalf("unexpected ended session: %+v", current)
	}
	rows, err := memory.ListParticipants(ctx, session.ID, false)
	if err != nil {
		t.Fatalf("ListParticipants() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 participant rows, got %d", len(rows))
	}
	for _, row := range rows {
		if row.Active() || row.HasControl {
			t.Fatalf("participant still active after end: %+v", row)
		}
	}

	if _, err := svc.JoinSession(ctx, dave, session.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden joining ended session, got %v", err)
	}
	if ended, _ := svc.EndSession(ctx, alice, session.ID); ended {
		t.Fatal("expected second EndSession to report false")
	}
}

func TestEndSessionRequiresActiveStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	session := createConference(t, svc, 5)

	if ended, err := svc.EndSession(ctx, alice, session.ID); err != nil || ended {
		t.Fatalf("EndSession(scheduled) = %v, %v", ended, err)
	}
	if ended, err := svc.EndSession(ctx, alice, "ses_missing"); err != nil || ended {
		t.Fatalf("EndSession(missing) = %v, %v", ended, err)
	}
}

func TestCancelScheduledSession(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	session := createConference(t, svc, 5)

	cancelled, err := svc.CancelSession(ctx, alice, session.ID)
	if err != nil || !cancelled {
		t.Fatalf("CancelSession() = %v, %v", cancelled, err)
	}
	current, _ := svc.GetSession(ctx, alice, session.ID)
	if current.Status != store.SessionCancelled {
		t.Fatalf("expected cancelled status, got %s", current.Status)
	}
	if _, err := svc.StartSession(ctx, alice, session.ID); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict starting cancelled session, got %v", err)
	}
	if _, err := svc.JoinSession(ctx, bob, session.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden joining cancelled session, got %v", err)
	}
}

func TestLeaveSession(t *testing.T) {
	svc, memory, _ := newTestService(t)
	ctx := context.Background()
	session := createConference(t, svc, 5)
	mustJoin(t, svc, bob, session.ID)

	left, err := svc.LeaveSession(ctx, bob, session.ID)
	if err != nil || !left {
		t.Fatalf("LeaveSession() = %v, %v", left, err)
	}
	if left, _ := svc.LeaveSession(ctx, bob, session.ID); left {
		t.Fatal("expected second leave to report false")
	}
	if got := activeCount(t, memory, session.ID); got != 0 {
		t.Fatalf("expected no active participants, got %d", got)
	}
	mustJoin(t, svc, bob, session.ID)
	if got := activeCount(t, memory, session.ID); got != 1 {
		t.Fatalf("expected rejoin after leave, got %d active", got)
	}
}

func TestSessionsAreTenantScoped(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	session := createConference(t, svc, 5)

	got, err := svc.GetSession(ctx, eve, session.ID)
	if err != nil || got != nil {
		t.Fatalf("GetSession(other tenant) = %v, %v", got, err)
	}
	if _, err := svc.JoinSession(ctx, eve, session.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound across tenants, got %v", err)
	}
}

func TestListParticipantsMembersOnly(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	session := createConference(t, svc, 5)
	mustJoin(t, svc, bob, session.ID)

	if _, err := svc.ListParticipants(ctx, carol, session.ID, true); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for outsider, got %v", err)
	}
	items, err := svc.ListParticipants(ctx, bob, session.ID, true)
	if err != nil {
		t.Fatalf("ListParticipants() error = %v", err)
	}
	if len(items) != 1 || items[0].UserID != "bob" {
		t.Fatalf("unexpected participants: %+v", items)
	}
}

func startedConference(t *testing.T, svc *Service, members ...Actor) store.Session {
	t.Helper()
	session := createConference(t, svc, 10)
	if _, err := svc.StartSession(context.Background(), alice, session.ID); err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	mustJoin(t, svc, alice, session.ID)
	for _, member := range members {
		mustJoin(t, svc, member, session.ID)
	}
	return session
}

func controlHolders(t *testing.T, memory *store.MemoryStore, sessionID string) []string {
	t.Helper()
	rows, err := memory.ListParticipants(context.Background(), sessionID, true)
	if err != nil {
		t.Fatalf("ListParticipants() error = %v", err)
	}
	var holders []string
	for _, row := range rows {
		if row.HasControl && row.Role != rbac.RoleOwner {
			holders = append(holders, row.UserID)
		}
	}
	return holders
}

func TestGrantControlMovesSingleHolder(t *testing.T) {
	svc, memory, _ := newTestService(t)
	ctx := context.Background()
	session := startedConference(t, svc, bob, carol)

	if _, err := svc.GrantControl(ctx, alice, session.ID, "bob"); err != nil {
		t.Fatalf("GrantControl(bob) error = %v", err)
	}
	granted, err := svc.GrantControl(ctx, alice, session.ID, "carol")
	if err != nil {
		t.Fatalf("GrantControl(carol) error = %v", err)
	}
	if !granted.HasControl {
		t.Fatalf("expected carol to hold control: %+v", granted)
	}
	holders := controlHolders(t, memory, session.ID)
	if len(holders) != 1 || holders[0] != "carol" {
		t.Fatalf("expected carol as only holder, got %v", holders)
	}

	revoked, err := svc.RevokeControl(ctx, alice, session.ID, "carol")
	if err != nil || revoked.HasControl {
		t.Fatalf("RevokeControl() = %+v, %v", revoked, err)
	}
	if holders := controlHolders(t, memory, session.ID); len(holders) != 0 {
		t.Fatalf("expected no holders after revoke, got %v", holders)
	}
}

func TestConcurrentControlGrantsLeaveOneHolder(t *testing.T) {
	svc, memory, _ := newTestService(t)
	ctx := context.Background()
	session := startedConference(t, svc, bob, carol, dave)

	var wg sync.WaitGroup
	for _, target := range []string{"bob", "carol", "dave", "bob", "carol", "dave"} {
		wg.Add(1)
		go func(target string) {
			defer wg.Done()
			if _, err := svc.GrantControl(ctx, alice, session.ID, target); err != nil {
				t.Errorf("GrantControl(%s) error = %v", target, err)
			}
		}(target)
	}
	wg.Wait()

	if holders := controlHolders(t, memory, session.ID); len(holders) != 1 {
		t.Fatalf("expected exactly one holder, got %v", holders)
	}
}

func TestScreenShareOwnerKeepsControl(t *testing.T) {
	svc, memory, _ := newTestService(t)
	ctx := context.Background()
	session, err := svc.CreateSession(ctx, alice, CreateSessionInput{Kind: store.SessionKindScreenShare, Capacity: 3})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	mustJoin(t, svc, bob, session.ID)

	if _, err := svc.GrantControl(ctx, alice, session.ID, "bob"); err != nil {
		t.Fatalf("GrantControl() error = %v", err)
	}
	owner, _ := memory.GetActiveParticipant(ctx, session.ID, "alice")
	if !owner.HasControl {
		t.Fatal("expected screen share owner to keep control")
	}
}

func TestControlRequiresOrganizerAndActiveTarget(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	session := startedConference(t, svc, bob, carol)

	if _, err := svc.GrantControl(ctx, bob, session.ID, "carol"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if _, err := svc.GrantControl(ctx, alice, session.ID, "dave"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for inactive target, got %v", err)
	}
}

func TestModeratorCanMuteAndKick(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	session := startedConference(t, svc, bob, carol, dave)

	if _, err := svc.MuteParticipant(ctx, bob, session.ID, "carol"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected participant mute to be forbidden, got %v", err)
	}
	if _, err := svc.PromoteModerator(ctx, bob, session.ID, "bob"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected self promotion to be forbidden, got %v", err)
	}
	promoted, err := svc.PromoteModerator(ctx, alice, session.ID, "bob")
	if err != nil || promoted.Role != rbac.RoleModerator {
		t.Fatalf("PromoteModerator() = %+v, %v", promoted, err)
	}

	muted, err := svc.MuteParticipant(ctx, bob, session.ID, "carol")
	if err != nil || !muted.Muted {
		t.Fatalf("MuteParticipant() = %+v, %v", muted, err)
	}
	unmuted, err := svc.UnmuteParticipant(ctx, bob, session.ID, "carol")
	if err != nil || unmuted.Muted {
		t.Fatalf("UnmuteParticipant() = %+v, %v", unmuted, err)
	}

	if _, err := svc.KickParticipant(ctx, bob, session.ID, "alice"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected kicking organizer to be forbidden, got %v", err)
	}
	kicked, err := svc.KickParticipant(ctx, bob, session.ID, "dave")
	if err != nil || !kicked.Kicked || kicked.Active() {
		t.Fatalf("KickParticipant() = %+v, %v", kicked, err)
	}
	if _, err := svc.JoinSession(ctx, dave, session.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected kicked user to be refused, got %v", err)
	}
}

func TestIssueAccessTokenForParticipant(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	session := startedConference(t, svc, bob)

	if _, err := svc.IssueAccessToken(ctx, carol, session.ID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non participant, got %v", err)
	}
	token, err := svc.IssueAccessToken(ctx, bob, session.ID)
	if err != nil {
		t.Fatalf("IssueAccessToken() error = %v", err)
	}
	claims, err := auth.ParseSessionToken([]byte("session-secret"), token)
	if err != nil {
		t.Fatalf("ParseSessionToken() error = %v", err)
	}
	if claims.SessionID != session.ID || claims.UserID() != "bob" || claims.Role != rbac.RoleParticipant {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

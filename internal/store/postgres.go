package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"collab/api/internal/rbac"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const documentColumns = `id, tenant_id, COALESCE(team_id, ''), title, content, owner_id, version, COALESCE(locked_by, ''), locked_at, created_at, updated_by, updated_at`

func (s *PostgresStore) CreateDocument(ctx context.Context, doc Document, version DocumentVersion, owner DocumentPermission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create document: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO documents (id, tenant_id, team_id, title, content, owner_id, version, created_at, updated_by, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9, $10)
	`, doc.ID, doc.TenantID, doc.TeamID, doc.Title, doc.Content, doc.OwnerID, doc.Version, doc.CreatedAt, doc.UpdatedBy, doc.UpdatedAt); err != nil {
		return fmt.Errorf("insert document: %w", mapWriteError(err))
	}
	if err := insertVersion(ctx, tx, version); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO document_permissions (document_id, user_id, level, granted_at)
		VALUES ($1, $2, $3, $4)
	`, owner.DocumentID, owner.UserID, string(owner.Level), owner.GrantedAt); err != nil {
		return fmt.Errorf("insert owner permission: %w", mapWriteError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, documentID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) ListDocumentsForUser(ctx context.Context, tenantID, userID string) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.tenant_id, COALESCE(d.team_id, ''), d.title, d.content, d.owner_id, d.version,
		       COALESCE(d.locked_by, ''), d.locked_at, d.created_at, d.updated_by, d.updated_at
		FROM documents d
		JOIN document_permissions p ON p.document_id = d.id
		WHERE d.tenant_id=$1 AND p.user_id=$2
		ORDER BY d.updated_at DESC
	`, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

// AppendVersion moves the document from expectedVersion to version.Number and
// records the snapshot in one transaction. A document that moved on since it
// was read, or whose edit lock no longer matches doc.LockedBy, yields
// ErrConflict.
func (s *PostgresStore) AppendVersion(ctx context.Context, doc Document, version DocumentVersion, expectedVersion int) error {
	if version.Number != expectedVersion+1 {
		return ErrConflict
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin append version: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE documents
		SET content=$3, version=$4, updated_by=$5, updated_at=$6
		WHERE id=$1 AND version=$2 AND locked_by IS NOT DISTINCT FROM NULLIF($7, '')
	`, doc.ID, expectedVersion, doc.Content, version.Number, doc.UpdatedBy, doc.UpdatedAt, doc.LockedBy)
	if err != nil {
		return fmt.Errorf("update document version: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document version rows: %w", err)
	}
	if affected == 0 {
		return ErrConflict
	}
	if err := insertVersion(ctx, tx, version); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append version: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListVersions(ctx context.Context, documentID string) ([]DocumentVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, number, content, author_id, comment, created_at
		FROM document_versions
		WHERE document_id=$1
		ORDER BY number DESC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]DocumentVersion, 0)
	for rows.Next() {
		var item DocumentVersion
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.Number, &item.Content, &item.AuthorID, &item.Comment, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate versions: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) LockDocument(ctx context.Context, documentID, userID string, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET locked_by=$2, locked_at=$3
		WHERE id=$1 AND locked_by IS NULL
	`, documentID, userID, at)
	if err != nil {
		return false, fmt.Errorf("lock document: %w", err)
	}
	return affectedAny(result, "lock document")
}

func (s *PostgresStore) UnlockDocument(ctx context.Context, documentID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE documents SET locked_by=NULL, locked_at=NULL
		WHERE id=$1 AND locked_by=$2
	`, documentID, userID)
	if err != nil {
		return false, fmt.Errorf("unlock document: %w", err)
	}
	return affectedAny(result, "unlock document")
}

// UpsertPermission never rewrites an owner row; such an attempt yields
// ErrConflict.
func (s *PostgresStore) UpsertPermission(ctx context.Context, permission DocumentPermission) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO document_permissions (document_id, user_id, level, granted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (document_id, user_id) DO UPDATE SET level=EXCLUDED.level
		WHERE document_permissions.level <> 'owner'
	`, permission.DocumentID, permission.UserID, string(permission.Level), permission.GrantedAt)
	if err != nil {
		return fmt.Errorf("upsert permission: %w", mapWriteError(err))
	}
	changed, err := affectedAny(result, "upsert permission")
	if err != nil {
		return err
	}
	if !changed {
		return ErrConflict
	}
	return nil
}

func (s *PostgresStore) GetPermission(ctx context.Context, documentID, userID string) (DocumentPermission, error) {
	var item DocumentPermission
	var level string
	err := s.db.QueryRowContext(ctx, `
		SELECT document_id, user_id, level, granted_at
		FROM document_permissions
		WHERE document_id=$1 AND user_id=$2
	`, documentID, userID).Scan(&item.DocumentID, &item.UserID, &level, &item.GrantedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return DocumentPermission{}, ErrNotFound
	}
	if err != nil {
		return DocumentPermission{}, fmt.Errorf("get permission: %w", err)
	}
	if item.Level, err = rbac.ParseLevel(level); err != nil {
		return DocumentPermission{}, fmt.Errorf("get permission: %w", err)
	}
	return item, nil
}

func (s *PostgresStore) DeletePermission(ctx context.Context, documentID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM document_permissions
		WHERE document_id=$1 AND user_id=$2 AND level <> 'owner'
	`, documentID, userID)
	if err != nil {
		return false, fmt.Errorf("delete permission: %w", err)
	}
	return affectedAny(result, "delete permission")
}

func (s *PostgresStore) ListPermissions(ctx context.Context, documentID string) ([]DocumentPermission, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document_id, user_id, level, granted_at
		FROM document_permissions
		WHERE document_id=$1
		ORDER BY granted_at ASC, user_id ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list permissions: %w", err)
	}
	defer rows.Close()

	items := make([]DocumentPermission, 0)
	for rows.Next() {
		var item DocumentPermission
		var level string
		if err := rows.Scan(&item.DocumentID, &item.UserID, &level, &item.GrantedAt); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		if item.Level, err = rbac.ParseLevel(level); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate permissions: %w", err)
	}
	return items, nil
}

const sessionColumns = `id, tenant_id, kind, title, organizer_id, status, capacity, locked, join_code, scheduled_at, started_at, ended_at, created_at, revision`

func (s *PostgresStore) CreateSession(ctx context.Context, session Session, owner *Participant) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, tenant_id, kind, title, organizer_id, status, capacity, locked, join_code, scheduled_at, started_at, created_at, revision)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, session.ID, session.TenantID, string(session.Kind), session.Title, session.OrganizerID, string(session.Status),
		session.Capacity, session.Locked, session.JoinCode, nullTime(session.ScheduledAt), nullTime(session.StartedAt),
		session.CreatedAt, session.Revision); err != nil {
		return fmt.Errorf("insert session: %w", mapWriteError(err))
	}
	if owner != nil {
		if err := insertParticipant(ctx, tx, *owner); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id=$1`, sessionID)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

// UpdateSession writes status, lock and timestamps when the stored revision
// still matches session.Revision.
func (s *PostgresStore) UpdateSession(ctx context.Context, session Session) (Session, error) {
	if err := updateSessionRow(ctx, s.db, session); err != nil {
		return Session{}, err
	}
	session.Revision++
	return session, nil
}

func (s *PostgresStore) EndSession(ctx context.Context, session Session) (Session, error) {
	if session.EndedAt == nil {
		return Session{}, ErrConflict
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Session{}, fmt.Errorf("begin end session: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := updateSessionRow(ctx, tx, session); err != nil {
		return Session{}, err
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE session_participants
		SET left_at=$2, has_control=FALSE
		WHERE session_id=$1 AND left_at IS NULL
	`, session.ID, *session.EndedAt); err != nil {
		return Session{}, fmt.Errorf("release participants: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Session{}, fmt.Errorf("commit end session: %w", err)
	}
	session.Revision++
	return session, nil
}

func (s *PostgresStore) InsertParticipant(ctx context.Context, participant Participant) error {
	return insertParticipant(ctx, s.db, participant)
}

const participantColumns = `id, session_id, user_id, role, joined_at, left_at, muted, has_control, kicked`

func (s *PostgresStore) GetActiveParticipant(ctx context.Context, sessionID, userID string) (Participant, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+participantColumns+`
		FROM session_participants
		WHERE session_id=$1 AND user_id=$2 AND left_at IS NULL
	`, sessionID, userID)
	participant, err := scanParticipant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Participant{}, ErrNotFound
	}
	if err != nil {
		return Participant{}, fmt.Errorf("get participant: %w", err)
	}
	return participant, nil
}

func (s *PostgresStore) ListParticipants(ctx context.Context, sessionID string, activeOnly bool) ([]Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+participantColumns+`
		FROM session_participants
		WHERE session_id=$1 AND (NOT $2::boolean OR left_at IS NULL)
		ORDER BY joined_at ASC, id ASC
	`, sessionID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	items := make([]Participant, 0)
	for rows.Next() {
		participant, err := scanParticipant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		items = append(items, participant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate participants: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) CountActiveParticipants(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM session_participants WHERE session_id=$1 AND left_at IS NULL
	`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count participants: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) HasKickedParticipant(ctx context.Context, sessionID, userID string) (bool, error) {
	var kicked bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM session_participants WHERE session_id=$1 AND user_id=$2 AND kicked)
	`, sessionID, userID).Scan(&kicked)
	if err != nil {
		return false, fmt.Errorf("check kicked participant: %w", err)
	}
	return kicked, nil
}

func (s *PostgresStore) UpdateParticipant(ctx context.Context, participant Participant) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE session_participants
		SET role=$2, left_at=$3, muted=$4, has_control=$5, kicked=$6
		WHERE id=$1
	`, participant.ID, string(participant.Role), nullTime(participant.LeftAt), participant.Muted, participant.HasControl, participant.Kicked)
	if err != nil {
		return fmt.Errorf("update participant: %w", err)
	}
	changed, err := affectedAny(result, "update participant")
	if err != nil {
		return err
	}
	if !changed {
		return ErrNotFound
	}
	return nil
}

// AssignControl hands floor control to participantID, clearing it from every
// other non-owner participant of the session in the same transaction.
func (s *PostgresStore) AssignControl(ctx context.Context, sessionID, participantID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin assign control: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		UPDATE session_participants
		SET has_control=FALSE
		WHERE session_id=$1 AND id <> $2 AND role <> 'owner' AND has_control
	`, sessionID, participantID); err != nil {
		return fmt.Errorf("clear control: %w", err)
	}
	result, err := tx.ExecContext(ctx, `
		UPDATE session_participants
		SET has_control=TRUE
		WHERE session_id=$1 AND id=$2 AND left_at IS NULL
	`, sessionID, participantID)
	if err != nil {
		return fmt.Errorf("grant control: %w", err)
	}
	changed, err := affectedAny(result, "grant control")
	if err != nil {
		return err
	}
	if !changed {
		return ErrNotFound
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit assign control: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(...any) error
}

func insertVersion(ctx context.Context, exec execer, version DocumentVersion) error {
	if _, err := exec.ExecContext(ctx, `
		INSERT INTO document_versions (id, document_id, number, content, author_id, comment, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, version.ID, version.DocumentID, version.Number, version.Content, version.AuthorID, version.Comment, version.CreatedAt); err != nil {
		if errors.Is(mapWriteError(err), ErrDuplicate) {
			return ErrConflict
		}
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

func insertParticipant(ctx context.Context, exec execer, participant Participant) error {
	if _, err := exec.ExecContext(ctx, `
		INSERT INTO session_participants (id, session_id, user_id, role, joined_at, muted, has_control, kicked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, participant.ID, participant.SessionID, participant.UserID, string(participant.Role), participant.JoinedAt,
		participant.Muted, participant.HasControl, participant.Kicked); err != nil {
		return fmt.Errorf("insert participant: %w", mapWriteError(err))
	}
	return nil
}

func updateSessionRow(ctx context.Context, exec execer, session Session) error {
	result, err := exec.ExecContext(ctx, `
		UPDATE sessions
		SET status=$3, locked=$4, started_at=$5, ended_at=$6, revision=revision+1
		WHERE id=$1 AND revision=$2
	`, session.ID, session.Revision, string(session.Status), session.Locked, nullTime(session.StartedAt), nullTime(session.EndedAt))
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	changed, err := affectedAny(result, "update session")
	if err != nil {
		return err
	}
	if !changed {
		return ErrConflict
	}
	return nil
}

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	var lockedAt sql.NullTime
	if err := row.Scan(&doc.ID, &doc.TenantID, &doc.TeamID, &doc.Title, &doc.Content, &doc.OwnerID, &doc.Version,
		&doc.LockedBy, &lockedAt, &doc.CreatedAt, &doc.UpdatedBy, &doc.UpdatedAt); err != nil {
		return Document{}, err
	}
	doc.LockedAt = timePtr(lockedAt)
	return doc, nil
}

func scanSession(row rowScanner) (Session, error) {
	var session Session
	var kind, status string
	var scheduledAt, startedAt, endedAt sql.NullTime
	if err := row.Scan(&session.ID, &session.TenantID, &kind, &session.Title, &session.OrganizerID, &status,
		&session.Capacity, &session.Locked, &session.JoinCode, &scheduledAt, &startedAt, &endedAt,
		&session.CreatedAt, &session.Revision); err != nil {
		return Session{}, err
	}
	session.Kind = SessionKind(kind)
	session.Status = SessionStatus(status)
	session.ScheduledAt = timePtr(scheduledAt)
	session.StartedAt = timePtr(startedAt)
	session.EndedAt = timePtr(endedAt)
	return session, nil
}

func scanParticipant(row rowScanner) (Participant, error) {
	var participant Participant
	var role string
	var leftAt sql.NullTime
	if err := row.Scan(&participant.ID, &participant.SessionID, &participant.UserID, &role, &participant.JoinedAt,
		&leftAt, &participant.Muted, &participant.HasControl, &participant.Kicked); err != nil {
		return Participant{}, err
	}
	parsed, err := rbac.ParseRole(role)
	if err != nil {
		return Participant{}, err
	}
	participant.Role = parsed
	participant.LeftAt = timePtr(leftAt)
	return participant, nil
}

func affectedAny(result sql.Result, action string) (bool, error) {
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%s rows: %w", action, err)
	}
	return affected > 0, nil
}

// mapWriteError turns unique violations into ErrDuplicate.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}

func timePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}

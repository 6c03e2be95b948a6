package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/anonto42/nano-midea/notifier/internal/models"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// sqliteMigration holds a single schema migration with its target version and SQL.
type sqliteMigration struct {
	version int
	sql     string
}

// sqliteMigrations is the ordered list of schema migrations, versions sequential from 1.
var sqliteMigrations = []sqliteMigration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_threads (
	id                 TEXT PRIMARY KEY,
	thread_key         TEXT NOT NULL UNIQUE,
	recipient_id       TEXT NOT NULL,
	kind               TEXT NOT NULL,
	subject_post_id    TEXT NOT NULL DEFAULT '',
	subject_comment_id TEXT NOT NULL DEFAULT '',
	actors             TEXT NOT NULL DEFAULT '[]',
	message            TEXT NOT NULL,
	is_read            INTEGER NOT NULL DEFAULT 0,
	version            INTEGER NOT NULL,
	created_at         INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_threads_recipient_read ON notification_threads(recipient_id, is_read);
CREATE INDEX IF NOT EXISTS idx_threads_recipient_updated ON notification_threads(recipient_id, updated_at);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
}

// threadRow is the SQLite shape of a thread; timestamps are unix nanoseconds.
type threadRow struct {
	ID               string           `db:"id"`
	ThreadKey        string           `db:"thread_key"`
	RecipientID      string           `db:"recipient_id"`
	Kind             string           `db:"kind"`
	SubjectPostID    string           `db:"subject_post_id"`
	SubjectCommentID string           `db:"subject_comment_id"`
	Actors           models.ActorList `db:"actors"`
	Message          string           `db:"message"`
	IsRead           bool             `db:"is_read"`
	Version          int64            `db:"version"`
	CreatedAt        int64            `db:"created_at"`
	UpdatedAt        int64            `db:"updated_at"`
}

func (r threadRow) toModel() *models.NotificationThread {
	return &models.NotificationThread{
		ID:          r.ID,
		ThreadKey:   r.ThreadKey,
		RecipientID: r.RecipientID,
		Kind:        models.NotificationKind(r.Kind),
		Subject:     models.Subject{PostID: r.SubjectPostID, CommentID: r.SubjectCommentID},
		Actors:      r.Actors,
		Message:     r.Message,
		Read:        r.IsRead,
		Version:     r.Version,
		CreatedAt:   time.Unix(0, r.CreatedAt).UTC(),
		UpdatedAt:   time.Unix(0, r.UpdatedAt).UTC(),
	}
}

const threadColumns = `id, thread_key, recipient_id, kind, subject_post_id, subject_comment_id,
	actors, message, is_read, version, created_at, updated_at`

// SQLiteNotificationRepository implements NotificationRepository on an embedded
// SQLite database for single-node deployments.
type SQLiteNotificationRepository struct {
	db *sqlx.DB
}

// NewSQLiteNotificationRepository opens (or creates) the database at dbPath and
// runs pending migrations. ":memory:" gives a throwaway database.
func NewSQLiteNotificationRepository(dbPath string) (*SQLiteNotificationRepository, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	// One connection: an in-memory database lives per connection, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	r := &SQLiteNotificationRepository{db: db}
	if err := r.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return r, nil
}

func (r *SQLiteNotificationRepository) runMigrations() error {
	currentVersion := 0

	var tableCount int
	err := r.db.Get(&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'")
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}
	if tableCount > 0 {
		if err := r.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version"); err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range sqliteMigrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := r.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}
	return nil
}

func (r *SQLiteNotificationRepository) FindByKey(ctx context.Context, key models.ThreadKey) (*models.NotificationThread, error) {
	return r.get(ctx, "SELECT "+threadColumns+" FROM notification_threads WHERE thread_key = ?", key.String())
}

func (r *SQLiteNotificationRepository) FindByID(ctx context.Context, id string) (*models.NotificationThread, error) {
	return r.get(ctx, "SELECT "+threadColumns+" FROM notification_threads WHERE id = ?", id)
}

func (r *SQLiteNotificationRepository) get(ctx context.Context, query string, arg any) (*models.NotificationThread, error) {
	var row threadRow
	if err := r.db.GetContext(ctx, &row, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading thread: %w", err)
	}
	return row.toModel(), nil
}

func (r *SQLiteNotificationRepository) Create(ctx context.Context, thread *models.NotificationThread) error {
	if thread.ID == "" {
		thread.ID = uuid.NewString()
	}
	thread.ThreadKey = thread.Key().String()
	thread.Version = 1

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_threads (`+threadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_key) DO NOTHING`,
		thread.ID, thread.ThreadKey, thread.RecipientID, string(thread.Kind),
		thread.Subject.PostID, thread.Subject.CommentID,
		thread.Actors, thread.Message, thread.Read, thread.Version,
		thread.CreatedAt.UnixNano(), thread.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("creating thread: %w", err)
	}
	return conflictUnlessAffected(res)
}

func (r *SQLiteNotificationRepository) Update(ctx context.Context, thread *models.NotificationThread, expectedVersion int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE notification_threads
		SET actors = ?, message = ?, is_read = ?, updated_at = ?, version = ?
		WHERE id = ? AND version = ?`,
		thread.Actors, thread.Message, thread.Read, thread.UpdatedAt.UnixNano(), expectedVersion+1,
		thread.ID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("updating thread %s: %w", thread.ID, err)
	}
	if err := conflictUnlessAffected(res); err != nil {
		return err
	}
	thread.Version = expectedVersion + 1
	return nil
}

func (r *SQLiteNotificationRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	res, err := r.db.ExecContext(ctx,
		"DELETE FROM notification_threads WHERE id = ? AND version = ?", id, expectedVersion)
	if err != nil {
		return fmt.Errorf("deleting thread %s: %w", id, err)
	}
	return conflictUnlessAffected(res)
}

func (r *SQLiteNotificationRepository) ListByRecipient(ctx context.Context, recipientID string, skip, limit int) ([]models.NotificationThread, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM notification_threads WHERE recipient_id = ?", recipientID); err != nil {
		return nil, 0, fmt.Errorf("counting threads: %w", err)
	}

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	var rows []threadRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+threadColumns+` FROM notification_threads
		WHERE recipient_id = ?
		ORDER BY updated_at DESC, id DESC
		LIMIT ? OFFSET ?`, recipientID, limit, skip)
	if err != nil {
		return nil, 0, fmt.Errorf("listing threads: %w", err)
	}

	threads := make([]models.NotificationThread, 0, len(rows))
	for _, row := range rows {
		threads = append(threads, *row.toModel())
	}
	return threads, total, nil
}

func (r *SQLiteNotificationRepository) CountUnread(ctx context.Context, recipientID string) (int64, error) {
	var count int64
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM notification_threads WHERE recipient_id = ? AND is_read = 0", recipientID)
	if err != nil {
		return 0, fmt.Errorf("counting unread threads: %w", err)
	}
	return count, nil
}

func (r *SQLiteNotificationRepository) MarkAllAsRead(ctx context.Context, recipientID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notification_threads
		SET is_read = 1, updated_at = ?, version = version + 1
		WHERE recipient_id = ? AND is_read = 0`,
		time.Now().UnixNano(), recipientID)
	if err != nil {
		return fmt.Errorf("marking threads read: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (r *SQLiteNotificationRepository) Close(ctx context.Context) error {
	return r.db.Close()
}

func conflictUnlessAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

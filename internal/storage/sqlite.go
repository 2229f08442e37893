package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	kit "postbot/internal/transport"
	logx "postbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Posts ----

const postColumns = `id, title, keywords, body, media_kind, media_ref, status, publish_at, format, created_by, created_at, updated_at`

func (s *sqliteStore) CreatePost(ctx context.Context, p *Post) error {
	// Timestamps are stored as UnixMilli so comparisons and ordering are
	// numeric, like publish_at. Truncate so the in-memory copy matches a
	// later re-read.
	now := time.Now().UTC().Truncate(time.Millisecond)
	if p.Status == "" {
		p.Status = StatusDraft
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO posts(title, keywords, body, media_kind, media_ref, status, publish_at, format, created_by, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		nullStr(p.Title), nullStr(p.Keywords), p.Body, string(p.MediaKind), p.MediaRef,
		string(p.Status), millisPtr(p.PublishAt), p.Format, p.CreatedBy,
		now.UnixMilli(), now.UnixMilli(),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	s.log.Debug("post created", logx.Int64("post_id", id), logx.String("format", p.Format))
	return nil
}

func (s *sqliteStore) GetPost(ctx context.Context, id int64) (*Post, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *sqliteStore) UpdatePostContent(ctx context.Context, id int64, title, keywords, body string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET title = ?, keywords = ?, body = ?, updated_at = ? WHERE id = ?`,
		nullStr(title), nullStr(keywords), body, time.Now().UTC().UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) SetPostMedia(ctx context.Context, id int64, kind kit.MediaKind, ref string) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown media kind %q", kind)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET media_kind = ?, media_ref = ?, updated_at = ? WHERE id = ?`,
		string(kind), ref, time.Now().UTC().UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *sqliteStore) DeletePost(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.log.Debug("post deleted", logx.Int64("post_id", id))
	}
	return n > 0, nil
}

// ---- Status transitions ----

func (s *sqliteStore) MarkScheduled(ctx context.Context, id int64, at time.Time) (bool, error) {
	// Published is terminal: never pull a post back out of it here.
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET status = ?, publish_at = ?, updated_at = ?
		 WHERE id = ? AND status != ?`,
		string(StatusScheduled), at.UnixMilli(), time.Now().UTC().UnixMilli(),
		id, string(StatusPublished),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) MarkPublished(ctx context.Context, id int64) (bool, error) {
	// Conditional flip: zero rows affected means another path (timer vs sweep)
	// already published or cancelled this post.
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET status = ?, publish_at = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(StatusPublished), time.Now().UTC().UnixMilli(),
		id, string(StatusScheduled),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *sqliteStore) ResetToDraft(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE posts SET status = ?, publish_at = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		string(StatusDraft), time.Now().UTC().UnixMilli(),
		id, string(StatusScheduled),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ---- Queries ----

func (s *sqliteStore) ListPostsByStatus(ctx context.Context, status Status, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	// Scheduled posts read best in fire order; everything else newest-first.
	order := `created_at DESC`
	if status == StatusScheduled {
		order = `publish_at ASC`
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE status = ? ORDER BY `+order+` LIMIT ?`,
		string(status), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPosts(rows)
}

func (s *sqliteStore) ListDuePosts(ctx context.Context, before time.Time, limit int) ([]Post, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts
		 WHERE status = ? AND publish_at IS NOT NULL AND publish_at <= ?
		 ORDER BY publish_at ASC LIMIT ?`,
		string(StatusScheduled), before.UnixMilli(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPosts(rows)
}

// ---- Events ----

func (s *sqliteStore) AppendEvent(ctx context.Context, e Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events(post_id, action, actor_id, note, created_at) VALUES(?,?,?,?,?)`,
		e.PostID, e.Action, e.ActorID, nullStr(e.Note), e.CreatedAt.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) ListEventsByPost(ctx context.Context, postID int64) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, post_id, action, actor_id, note, created_at FROM events
		 WHERE post_id = ? ORDER BY created_at DESC`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *sqliteStore) ListEventsSince(ctx context.Context, since time.Time, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = -1 // sqlite: no limit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, post_id, action, actor_id, note, created_at FROM events
		 WHERE created_at >= ? ORDER BY created_at DESC LIMIT ?`,
		since.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectEvents(rows)
}

func (s *sqliteStore) CountEvents(ctx context.Context, action string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM events WHERE action = ? AND created_at >= ?`,
		action, since.UnixMilli()).Scan(&n)
	return n, err
}

func (s *sqliteStore) TopPostsByClicks(ctx context.Context, since time.Time, limit int) ([]PostClicks, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, COALESCE(p.title, ''), COUNT(e.id) AS clicks
		 FROM posts p JOIN events e ON e.post_id = p.id
		 WHERE e.action = ? AND e.created_at >= ?
		 GROUP BY p.id, p.title ORDER BY clicks DESC LIMIT ?`,
		ActionClick, since.UnixMilli(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PostClicks
	for rows.Next() {
		var pc PostClicks
		if err := rows.Scan(&pc.PostID, &pc.Title, &pc.Clicks); err != nil {
			return nil, err
		}
		out = append(out, pc)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CountPostsByFormat(ctx context.Context, since time.Time) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT format, COUNT(*) FROM posts WHERE created_at >= ? GROUP BY format`,
		since.UnixMilli())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var format string
		var n int
		if err := rows.Scan(&format, &n); err != nil {
			return nil, err
		}
		out[format] = n
	}
	return out, rows.Err()
}

// ---- Users ----

func (s *sqliteStore) UpsertUser(ctx context.Context, u User) error {
	now := time.Now().UTC().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(telegram_id, username, first_name, last_name, created_at, last_seen_at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(telegram_id) DO UPDATE SET
		   username = excluded.username,
		   first_name = excluded.first_name,
		   last_name = excluded.last_name,
		   last_seen_at = excluded.last_seen_at`,
		u.TelegramID, nullStr(u.Username), nullStr(u.FirstName), nullStr(u.LastName), now, now,
	)
	return err
}

func (s *sqliteStore) GetUser(ctx context.Context, telegramID int64) (*User, error) {
	var u User
	var username, first, last sql.NullString
	var created, seen int64
	err := s.db.QueryRowContext(ctx,
		`SELECT telegram_id, username, first_name, last_name, created_at, last_seen_at
		 FROM users WHERE telegram_id = ?`, telegramID).
		Scan(&u.TelegramID, &username, &first, &last, &created, &seen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.Username = username.String
	u.FirstName = first.String
	u.LastName = last.String
	u.CreatedAt = millisTime(created)
	u.LastSeenAt = millisTime(seen)
	return &u, nil
}

// ---- scan helpers ----

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(r rowScanner) (*Post, error) {
	var p Post
	var title, keywords, mediaKind, mediaRef, status, format sql.NullString
	var publishAt sql.NullInt64
	var created, updated int64
	err := r.Scan(&p.ID, &title, &keywords, &p.Body, &mediaKind, &mediaRef,
		&status, &publishAt, &format, &p.CreatedBy, &created, &updated)
	if err != nil {
		return nil, err
	}
	p.Title = title.String
	p.Keywords = keywords.String
	p.MediaKind = kit.MediaKind(mediaKind.String)
	p.MediaRef = mediaRef.String
	p.Status = Status(status.String)
	p.Format = format.String
	if publishAt.Valid {
		t := time.UnixMilli(publishAt.Int64).UTC()
		p.PublishAt = &t
	}
	p.CreatedAt = millisTime(created)
	p.UpdatedAt = millisTime(updated)
	return &p, nil
}

func collectPosts(rows *sql.Rows) ([]Post, error) {
	var out []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func collectEvents(rows *sql.Rows) ([]Event, error) {
	var out []Event
	for rows.Next() {
		var e Event
		var note sql.NullString
		var created int64
		if err := rows.Scan(&e.ID, &e.PostID, &e.Action, &e.ActorID, &note, &created); err != nil {
			return nil, err
		}
		e.Note = note.String
		e.CreatedAt = millisTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

func millisTime(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func millisPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

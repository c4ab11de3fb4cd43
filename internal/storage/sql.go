package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"  // Postgres driver registration.
	_ "modernc.org/sqlite" // SQLite driver registration.

	"feedforwarder/internal/model"
	"feedforwarder/migrations"
)

func init() {
	// modernc registers itself as "sqlite", which sqlx does not know by name.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DB implements Storage on top of SQLite or Postgres. Queries are written
// with '?' placeholders and rebound for the active driver.
type DB struct {
	db *sqlx.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*DB, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A ":memory:" database exists per connection, and SQLite serializes
	// writers anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db.DB, migrations.DialectSQLite); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{db: db}, nil
}

// NewPostgres connects to Postgres at dsn and runs pending migrations.
func NewPostgres(dsn string) (*DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	if err := migrations.Run(db.DB, migrations.DialectPostgres); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the underlying database connection.
func (s *DB) Close() error {
	return s.db.Close()
}

// UpsertUser returns the user with the given Telegram ID, creating it first if needed.
func (s *DB) UpsertUser(ctx context.Context, telegramID int64) (*model.User, error) {
	if _, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO users (telegram_id) VALUES (?) ON CONFLICT (telegram_id) DO NOTHING`),
		telegramID,
	); err != nil {
		return nil, storeErr("insert user", err)
	}

	var u model.User
	if err := s.db.GetContext(ctx, &u,
		s.db.Rebind(`SELECT id, telegram_id FROM users WHERE telegram_id = ?`), telegramID,
	); err != nil {
		return nil, storeErr("select user", err)
	}
	return &u, nil
}

// ListOwners returns the IDs of all users that own at least one source.
func (s *DB) ListOwners(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids,
		`SELECT DISTINCT user_id FROM sources ORDER BY user_id`,
	); err != nil {
		return nil, storeErr("list owners", err)
	}
	return ids, nil
}

// CreateSource inserts a source and populates its ID.
// It returns false if the user already has a source with the same URL.
func (s *DB) CreateSource(ctx context.Context, src *model.Source) (bool, error) {
	return s.insertReturningID(ctx, s.db, "insert source", &src.ID,
		`INSERT INTO sources (user_id, url) VALUES (?, ?)
		 ON CONFLICT (user_id, url) DO NOTHING RETURNING id`,
		src.UserID, src.URL,
	)
}

// CreateSourceWithFilters inserts a source together with its keyword
// filters in one transaction. It returns false, and stores nothing, if the
// user already has a source with the same URL.
func (s *DB) CreateSourceWithFilters(ctx context.Context, src *model.Source, keywords []string) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, storeErr("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	created, err := s.insertReturningID(ctx, tx, "insert source", &src.ID,
		`INSERT INTO sources (user_id, url) VALUES (?, ?)
		 ON CONFLICT (user_id, url) DO NOTHING RETURNING id`,
		src.UserID, src.URL,
	)
	if err != nil || !created {
		return false, err
	}

	for _, kw := range keywords {
		if _, err := tx.ExecContext(ctx,
			tx.Rebind(`INSERT INTO filters (source_id, keyword) VALUES (?, ?)
			 ON CONFLICT (source_id, keyword) DO NOTHING`),
			src.ID, kw,
		); err != nil {
			return false, storeErr("insert filter", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, storeErr("commit", err)
	}
	return true, nil
}

// GetSource returns the source of a user by URL.
func (s *DB) GetSource(ctx context.Context, userID int64, url string) (*model.Source, error) {
	var src model.Source
	err := s.db.GetContext(ctx, &src,
		s.db.Rebind(`SELECT id, user_id, url FROM sources WHERE user_id = ? AND url = ?`),
		userID, url,
	)
	if err != nil {
		return nil, lookupErr("get source", err)
	}
	return &src, nil
}

// GetSourceByID returns a single source by its ID.
func (s *DB) GetSourceByID(ctx context.Context, id int64) (*model.Source, error) {
	var src model.Source
	err := s.db.GetContext(ctx, &src,
		s.db.Rebind(`SELECT id, user_id, url FROM sources WHERE id = ?`), id,
	)
	if err != nil {
		return nil, lookupErr("get source", err)
	}
	return &src, nil
}

// ListSources returns all sources belonging to the given user.
func (s *DB) ListSources(ctx context.Context, userID int64) ([]model.Source, error) {
	var sources []model.Source
	if err := s.db.SelectContext(ctx, &sources,
		s.db.Rebind(`SELECT id, user_id, url FROM sources WHERE user_id = ? ORDER BY id`), userID,
	); err != nil {
		return nil, storeErr("list sources", err)
	}
	return sources, nil
}

// DeleteSource removes a source together with its targets, filters and sent records.
func (s *DB) DeleteSource(ctx context.Context, id int64) (bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, storeErr("begin tx", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"sent_articles", "filters", "targets"} {
		if _, err := tx.ExecContext(ctx,
			tx.Rebind(`DELETE FROM `+table+` WHERE source_id = ?`), id,
		); err != nil {
			return false, storeErr("delete "+table, err)
		}
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM sources WHERE id = ?`), id)
	if err != nil {
		return false, storeErr("delete source", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("rows affected", err)
	}

	if err := tx.Commit(); err != nil {
		return false, storeErr("commit", err)
	}
	return n > 0, nil
}

// CreateTarget inserts a target and populates its ID.
// It returns false if the chat is already a target of the source.
func (s *DB) CreateTarget(ctx context.Context, t *model.Target) (bool, error) {
	return s.insertReturningID(ctx, s.db, "insert target", &t.ID,
		`INSERT INTO targets (source_id, chat_id) VALUES (?, ?)
		 ON CONFLICT (source_id, chat_id) DO NOTHING RETURNING id`,
		t.SourceID, t.ChatID,
	)
}

// ListTargets returns all targets of the given source.
func (s *DB) ListTargets(ctx context.Context, sourceID int64) ([]model.Target, error) {
	var targets []model.Target
	if err := s.db.SelectContext(ctx, &targets,
		s.db.Rebind(`SELECT id, source_id, chat_id FROM targets WHERE source_id = ? ORDER BY id`), sourceID,
	); err != nil {
		return nil, storeErr("list targets", err)
	}
	return targets, nil
}

// DeleteTarget removes a chat from the targets of a source.
func (s *DB) DeleteTarget(ctx context.Context, sourceID, chatID int64) (bool, error) {
	return s.deleteRows(ctx, "delete target",
		`DELETE FROM targets WHERE source_id = ? AND chat_id = ?`, sourceID, chatID,
	)
}

// CreateFilter inserts a filter and populates its ID.
// It returns false if the keyword is already set on the source.
func (s *DB) CreateFilter(ctx context.Context, f *model.Filter) (bool, error) {
	return s.insertReturningID(ctx, s.db, "insert filter", &f.ID,
		`INSERT INTO filters (source_id, keyword) VALUES (?, ?)
		 ON CONFLICT (source_id, keyword) DO NOTHING RETURNING id`,
		f.SourceID, f.Keyword,
	)
}

// ListFilters returns all filters of the given source.
func (s *DB) ListFilters(ctx context.Context, sourceID int64) ([]model.Filter, error) {
	var filters []model.Filter
	if err := s.db.SelectContext(ctx, &filters,
		s.db.Rebind(`SELECT id, source_id, keyword FROM filters WHERE source_id = ? ORDER BY id`), sourceID,
	); err != nil {
		return nil, storeErr("list filters", err)
	}
	return filters, nil
}

// DeleteFilter removes a keyword from the filters of a source.
func (s *DB) DeleteFilter(ctx context.Context, sourceID int64, keyword string) (bool, error) {
	return s.deleteRows(ctx, "delete filter",
		`DELETE FROM filters WHERE source_id = ? AND keyword = ?`, sourceID, keyword,
	)
}

// MarkSent records that an article link has been delivered for a source.
// Marking an already marked link, or a link of a source that no longer
// exists, is a no-op.
func (s *DB) MarkSent(ctx context.Context, sourceID int64, link string) error {
	_, err := s.db.ExecContext(ctx,
		s.db.Rebind(`INSERT INTO sent_articles (source_id, link)
		 SELECT CAST(? AS BIGINT), CAST(? AS TEXT)
		 WHERE EXISTS (SELECT 1 FROM sources WHERE id = ?)
		 ON CONFLICT (source_id, link) DO NOTHING`),
		sourceID, link, sourceID,
	)
	if err != nil {
		return storeErr("mark sent", err)
	}
	return nil
}

// IsSent checks whether an article link has already been delivered for a source.
func (s *DB) IsSent(ctx context.Context, sourceID int64, link string) (bool, error) {
	var count int
	err := s.db.QueryRowxContext(ctx,
		s.db.Rebind(`SELECT COUNT(*) FROM sent_articles WHERE source_id = ? AND link = ?`),
		sourceID, link,
	).Scan(&count)
	if err != nil {
		return false, storeErr("check sent", err)
	}
	return count > 0, nil
}

// Stats returns the number of users, sources and targets.
func (s *DB) Stats(ctx context.Context) (*model.Stats, error) {
	var st model.Stats
	if err := s.db.GetContext(ctx, &st,
		`SELECT
		   (SELECT COUNT(*) FROM users)   AS users,
		   (SELECT COUNT(*) FROM sources) AS sources,
		   (SELECT COUNT(*) FROM targets) AS targets`,
	); err != nil {
		return nil, storeErr("stats", err)
	}
	return &st, nil
}

func (s *DB) insertReturningID(ctx context.Context, q sqlx.QueryerContext, op string, id *int64, query string, args ...any) (bool, error) {
	err := q.QueryRowxContext(ctx, s.db.Rebind(query), args...).Scan(id)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, storeErr(op, err)
	}
	return true, nil
}

func (s *DB) deleteRows(ctx context.Context, op, query string, args ...any) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return false, storeErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr(op, err)
	}
	return n > 0, nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}

func lookupErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return storeErr(op, err)
}

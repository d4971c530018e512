package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/internal/plugin"
)

const timeLayout = time.RFC3339Nano

const schema = `
CREATE TABLE IF NOT EXISTS disabled_plugins (
	guild_id TEXT NOT NULL,
	plugin   TEXT NOT NULL,
	PRIMARY KEY (guild_id, plugin)
);
CREATE TABLE IF NOT EXISTS invocations (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	guild_id       TEXT NOT NULL,
	channel_id     TEXT NOT NULL,
	user_id        TEXT NOT NULL,
	command        TEXT NOT NULL,
	args           TEXT NOT NULL,
	correlation_id TEXT NOT NULL,
	failed         INTEGER NOT NULL DEFAULT 0,
	at             TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS invocations_guild ON invocations (guild_id, id);
`

// SQLiteStore keeps guild state in SQLite.
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens the database at path and creates the schema.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path)
	}
	dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if _, err := sqlDB.ExecContext(ctx, schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *SQLiteStore) DisabledPlugins(ctx context.Context, guildID string) ([]plugin.Plugin, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT plugin FROM disabled_plugins WHERE guild_id = ?`, guildID)
	if err != nil {
		return nil, fmt.Errorf("query disabled plugins: %w", err)
	}
	defer rows.Close()

	disabled := make(map[plugin.Plugin]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if p, err := plugin.Parse(name); err == nil {
			disabled[p] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []plugin.Plugin
	for _, p := range plugin.All() {
		if disabled[p] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *SQLiteStore) SetPluginEnabled(ctx context.Context, guildID string, p plugin.Plugin, enabled bool) error {
	if err := checkToggle(guildID, p, enabled); err != nil {
		return err
	}
	var err error
	if enabled {
		_, err = s.sqlDB.ExecContext(ctx,
			`DELETE FROM disabled_plugins WHERE guild_id = ? AND plugin = ?`, guildID, p.String())
	} else {
		_, err = s.sqlDB.ExecContext(ctx,
			`INSERT OR IGNORE INTO disabled_plugins (guild_id, plugin) VALUES (?, ?)`, guildID, p.String())
	}
	if err != nil {
		return fmt.Errorf("toggle plugin %s: %w", p, err)
	}
	return nil
}

func (s *SQLiteStore) AppendInvocation(ctx context.Context, e command.HistoryEntry) error {
	e = normalizeEntry(e)

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO invocations (guild_id, channel_id, user_id, command, args, correlation_id, failed, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.GuildID, e.ChannelID, e.UserID, e.Command, e.Args, e.CorrelationID, e.Failed, e.At.Format(timeLayout),
	); err != nil {
		return fmt.Errorf("insert invocation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM invocations WHERE guild_id = ? AND id NOT IN (
		   SELECT id FROM invocations WHERE guild_id = ? ORDER BY id DESC LIMIT ?
		 )`,
		e.GuildID, e.GuildID, commandHistoryLimit,
	); err != nil {
		return fmt.Errorf("trim invocations: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) RecentInvocations(ctx context.Context, guildID string, limit int) ([]command.HistoryEntry, error) {
	if limit <= 0 {
		limit = commandHistoryLimit
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT channel_id, user_id, command, args, correlation_id, failed, at
		   FROM invocations WHERE guild_id = ? ORDER BY id DESC LIMIT ?`,
		guildID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query invocations: %w", err)
	}
	defer rows.Close()

	var out []command.HistoryEntry
	for rows.Next() {
		e := command.HistoryEntry{GuildID: guildID}
		var at string
		if err := rows.Scan(&e.ChannelID, &e.UserID, &e.Command, &e.Args, &e.CorrelationID, &e.Failed, &at); err != nil {
			return nil, err
		}
		e.At = parseTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the SQLite handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func parseTime(v string) time.Time {
	t, _ := time.Parse(timeLayout, v)
	return t
}

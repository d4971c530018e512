// Package storage persists per-guild plugin toggles and command history
// behind the store-uri configuration value.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/internal/plugin"
)

// commandHistoryLimit is how many invocations are kept per guild.
const commandHistoryLimit = 20

var (
	ErrUnsupportedURI = errors.New("unsupported store uri")
	ErrDefaultPlugin  = errors.New("default plugins cannot be disabled")
)

// Store is the persistence contract shared by both backends.
type Store interface {
	Ping(ctx context.Context) error
	DisabledPlugins(ctx context.Context, guildID string) ([]plugin.Plugin, error)
	SetPluginEnabled(ctx context.Context, guildID string, p plugin.Plugin, enabled bool) error
	AppendInvocation(ctx context.Context, e command.HistoryEntry) error
	// RecentInvocations returns up to limit entries, newest first.
	RecentInvocations(ctx context.Context, guildID string, limit int) ([]command.HistoryEntry, error)
	Close() error
}

// Open selects a backend by scheme: sqlite:// for SQLite, file:// or a bare
// path for the JSON document store. The store is pinged before returning.
func Open(ctx context.Context, uri string) (Store, error) {
	scheme, path, ok := strings.Cut(strings.TrimSpace(uri), "://")
	if !ok {
		scheme, path = "file", uri
	}
	if path == "" {
		return nil, fmt.Errorf("%w: %q has no path", ErrUnsupportedURI, uri)
	}

	var (
		s   Store
		err error
	)
	switch strings.ToLower(scheme) {
	case "file":
		s, err = OpenFile(path)
	case "sqlite", "sqlite3":
		s, err = OpenSQLite(ctx, path)
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedURI, scheme)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("ping store: %w", err)
	}
	return s, nil
}

func checkToggle(guildID string, p plugin.Plugin, enabled bool) error {
	if guildID == "" {
		return errors.New("guild id is required")
	}
	if !p.Valid() {
		return fmt.Errorf("%w: %s", command.ErrUnknownPlugin, p)
	}
	if !enabled && p.IsDefault() {
		return fmt.Errorf("%w: %s", ErrDefaultPlugin, p)
	}
	return nil
}

func normalizeEntry(e command.HistoryEntry) command.HistoryEntry {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	e.At = e.At.UTC()
	return e
}

// Package datastore is a JSON-file document store: an in-memory map of
// top-level keys, flushed to disk atomically on an interval and on Close.
package datastore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("datastore is closed")

const backupStamp = "20060102T150405.000000000"

type options struct {
	autosave time.Duration
	backups  int
	logger   zerolog.Logger
}

// Option configures Open.
type Option func(*options)

// WithAutosave flushes every d. 0 disables autosave; the default is 10s.
func WithAutosave(d time.Duration) Option { return func(o *options) { o.autosave = d } }

// WithBackups keeps the n most recent copies of the file as it was before
// each flush. The default is 3.
func WithBackups(n int) Option { return func(o *options) { o.backups = n } }

func WithLogger(l zerolog.Logger) Option { return func(o *options) { o.logger = l } }

// Store holds the documents. Mutations bump a revision; a flush writes only
// when the revision moved and the encoded contents differ from the file.
type Store struct {
	path string
	opts options

	mu       sync.RWMutex
	docs     map[string]json.RawMessage
	rev      uint64
	savedRev uint64
	savedSum uint64 // xxhash of the last written contents
	closed   bool

	flushMu sync.Mutex
	stop    context.CancelFunc
	done    chan struct{}
}

// Open loads the file at path, creating it and its directory when missing.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		return nil, errors.New("datastore: empty path")
	}
	o := options{
		autosave: 10 * time.Second,
		backups:  3,
		logger:   log.With().Str("component", "datastore").Logger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	s := &Store{path: path, opts: o, docs: make(map[string]json.RawMessage), done: make(chan struct{})}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := s.write([]byte("{}")); err != nil {
			return nil, fmt.Errorf("create empty store: %w", err)
		}
		s.savedSum = xxhash.Sum64String("{}")
	case err != nil:
		return nil, fmt.Errorf("read store: %w", err)
	default:
		if err := json.Unmarshal(raw, &s.docs); err != nil {
			return nil, fmt.Errorf("load store %s: %w", path, err)
		}
		if s.docs == nil {
			s.docs = make(map[string]json.RawMessage)
		}
		s.savedSum = xxhash.Sum64(raw)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	if o.autosave > 0 {
		go s.autosave(ctx)
	} else {
		close(s.done)
	}
	return s, nil
}

// Put stores value under key, replacing what was there.
func (s *Store) Put(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.docs[key] = raw
	s.rev++
	return nil
}

// Get decodes the value under key into out. It reports false when the key
// is absent.
func (s *Store) Get(key string, out any) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}
	raw, ok := s.docs[key]
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// Update is a locked read-modify-write of one key. fn receives the decoded
// current value (zero when absent) and returns whether to store it.
func Update[T any](s *Store, key string, fn func(v *T) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	var v T
	if raw, ok := s.docs[key]; ok {
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
	}
	if !fn(&v) {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %q: %w", key, err)
	}
	s.docs[key] = raw
	s.rev++
	return nil
}

func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.docs[key]; ok {
		delete(s.docs, key)
		s.rev++
	}
	return nil
}

// Keys returns the stored keys, sorted.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.docs))
	for k := range s.docs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Flush writes pending changes now.
func (s *Store) Flush() error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrClosed
	}
	return s.flush()
}

// Close stops autosave and writes pending changes.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.stop()
	<-s.done
	return s.flush()
}

func (s *Store) flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.RLock()
	rev := s.rev
	if rev == s.savedRev {
		s.mu.RUnlock()
		return nil
	}
	data, err := json.MarshalIndent(s.docs, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal store: %w", err)
	}
	sum := xxhash.Sum64(data)
	if sum == s.savedSum {
		// Mutated back to what is already on disk.
		s.mu.Lock()
		s.savedRev = rev
		s.mu.Unlock()
		return nil
	}

	if s.opts.backups > 0 {
		if err := s.backup(); err != nil {
			s.opts.logger.Warn().Err(err).Msg("failed to back up store")
		}
	}
	if err := s.write(data); err != nil {
		return err
	}

	s.mu.Lock()
	s.savedRev, s.savedSum = rev, sum
	s.mu.Unlock()
	return nil
}

// write replaces the file through a synced temp file in the same directory,
// then reads it back to confirm the bytes landed.
func (s *Store) write(data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}

	written, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("verify store: %w", err)
	}
	if !bytes.Equal(written, data) {
		return errors.New("verify store: contents differ from what was written")
	}
	return nil
}

// backup copies the current file aside and prunes the oldest copies.
func (s *Store) backup() error {
	current, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	name := s.path + ".bak-" + time.Now().UTC().Format(backupStamp)
	if err := os.WriteFile(name, current, 0o644); err != nil {
		return err
	}

	old, err := filepath.Glob(s.path + ".bak-*")
	if err != nil || len(old) <= s.opts.backups {
		return err
	}
	slices.Sort(old)
	for _, p := range old[:len(old)-s.opts.backups] {
		if err := os.Remove(p); err != nil {
			s.opts.logger.Debug().Err(err).Str("path", p).Msg("failed to prune backup")
		}
	}
	return nil
}

func (s *Store) autosave(ctx context.Context) {
	defer close(s.done)
	t := time.NewTicker(s.opts.autosave)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := s.flush(); err != nil {
				s.opts.logger.Error().Err(err).Msg("autosave failed")
			}
		}
	}
}

package storage

import (
	"context"
	"slices"

	"github.com/keshon/aegistrate/datastore"
	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/internal/plugin"
)

// guildRecord is the document kept per guild.
type guildRecord struct {
	DisabledPlugins []string        `json:"disabled_plugins"`
	CommandsHistory []historyRecord `json:"cmd_history"`
}

type historyRecord struct {
	ChannelID     string `json:"channel_id"`
	UserID        string `json:"user_id"`
	Command       string `json:"command"`
	Param         string `json:"param"`
	CorrelationID string `json:"correlation_id"`
	Failed        bool   `json:"failed,omitempty"`
	Datetime      string `json:"datetime"`
}

// FileStore keeps guild records in a datastore JSON file.
type FileStore struct {
	ds *datastore.Store
}

// OpenFile opens or creates the JSON store at path.
func OpenFile(path string) (*FileStore, error) {
	ds, err := datastore.Open(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{ds: ds}, nil
}

func guildKey(guildID string) string { return "guild:" + guildID }

// Ping flushes to disk, proving the file is writable.
func (s *FileStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.ds.Flush()
}

func (s *FileStore) record(guildID string) (guildRecord, error) {
	var rec guildRecord
	_, err := s.ds.Get(guildKey(guildID), &rec)
	return rec, err
}

func (s *FileStore) DisabledPlugins(ctx context.Context, guildID string) ([]plugin.Plugin, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := s.record(guildID)
	if err != nil {
		return nil, err
	}
	var out []plugin.Plugin
	for _, p := range plugin.All() {
		if slices.Contains(rec.DisabledPlugins, p.String()) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *FileStore) SetPluginEnabled(ctx context.Context, guildID string, p plugin.Plugin, enabled bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkToggle(guildID, p, enabled); err != nil {
		return err
	}
	name := p.String()
	return datastore.Update(s.ds, guildKey(guildID), func(rec *guildRecord) bool {
		i := slices.Index(rec.DisabledPlugins, name)
		switch {
		case enabled && i >= 0:
			rec.DisabledPlugins = slices.Delete(rec.DisabledPlugins, i, i+1)
		case !enabled && i < 0:
			rec.DisabledPlugins = append(rec.DisabledPlugins, name)
		default:
			return false
		}
		return true
	})
}

func (s *FileStore) AppendInvocation(ctx context.Context, e command.HistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e = normalizeEntry(e)
	return datastore.Update(s.ds, guildKey(e.GuildID), func(rec *guildRecord) bool {
		rec.CommandsHistory = append(rec.CommandsHistory, historyRecord{
			ChannelID:     e.ChannelID,
			UserID:        e.UserID,
			Command:       e.Command,
			Param:         e.Args,
			CorrelationID: e.CorrelationID,
			Failed:        e.Failed,
			Datetime:      e.At.Format(timeLayout),
		})
		if n := len(rec.CommandsHistory); n > commandHistoryLimit {
			rec.CommandsHistory = rec.CommandsHistory[n-commandHistoryLimit:]
		}
		return true
	})
}

func (s *FileStore) RecentInvocations(ctx context.Context, guildID string, limit int) ([]command.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, err := s.record(guildID)
	if err != nil {
		return nil, err
	}
	var out []command.HistoryEntry
	for i := len(rec.CommandsHistory) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		h := rec.CommandsHistory[i]
		out = append(out, command.HistoryEntry{
			GuildID:       guildID,
			ChannelID:     h.ChannelID,
			UserID:        h.UserID,
			Command:       h.Command,
			Args:          h.Param,
			CorrelationID: h.CorrelationID,
			Failed:        h.Failed,
			At:            parseTime(h.Datetime),
		})
	}
	return out, nil
}

func (s *FileStore) Close() error { return s.ds.Close() }

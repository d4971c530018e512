// Package cooldown tracks when each user may next invoke each command.
package cooldown

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog/log"
)

const shardCount = 64

// Source supplies the cooldown of a command by name.
type Source interface {
	Cooldown(command string) (time.Duration, bool)
}

// Decision is the result of CheckAndRecord.
type Decision struct {
	Eligible bool
	// Remaining is the wait until the next eligible invocation when blocked.
	Remaining time.Duration
}

type key struct {
	user    string
	command string
}

type shard struct {
	mu      sync.Mutex
	entries map[key]time.Time // eligibleAt
}

// Tracker holds next-eligible times per (user, command). Keys are spread over
// independently locked shards, so unrelated users rarely contend.
type Tracker struct {
	source Source
	shards [shardCount]shard
}

// NewTracker returns an empty tracker reading cooldowns from source.
func NewTracker(source Source) *Tracker {
	t := &Tracker{source: source}
	for i := range t.shards {
		t.shards[i].entries = make(map[key]time.Time)
	}
	return t
}

func (t *Tracker) shardFor(k key) *shard {
	return &t.shards[xxhash.Sum64String(k.user+"\x00"+k.command)%shardCount]
}

// CheckAndRecord atomically decides whether userID may invoke command at now
// and, if so, records the next eligible time. A blocked call mutates nothing.
// Commands without a cooldown are always eligible and never recorded.
func (t *Tracker) CheckAndRecord(userID, command string, now time.Time) Decision {
	cd, ok := t.source.Cooldown(command)
	if !ok || cd <= 0 {
		return Decision{Eligible: true}
	}

	k := key{user: userID, command: command}
	s := t.shardFor(k)

	s.mu.Lock()
	defer s.mu.Unlock()

	if eligibleAt, found := s.entries[k]; found && now.Before(eligibleAt) {
		return Decision{Remaining: eligibleAt.Sub(now)}
	}
	s.entries[k] = now.Add(cd)
	return Decision{Eligible: true}
}

// remaining reports the wait for userID on command without recording.
func (t *Tracker) remaining(userID, command string, now time.Time) time.Duration {
	k := key{user: userID, command: command}
	s := t.shardFor(k)

	s.mu.Lock()
	defer s.mu.Unlock()

	if eligibleAt, found := s.entries[k]; found && now.Before(eligibleAt) {
		return eligibleAt.Sub(now)
	}
	return 0
}

// Sweep drops entries that are eligible at now and returns how many it
// removed. Correctness never depends on it running.
func (t *Tracker) Sweep(now time.Time) int {
	removed := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for k, eligibleAt := range s.entries {
			if !now.Before(eligibleAt) {
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Len returns the number of live entries.
func (t *Tracker) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// RunSweeper clears expired cooldowns every interval until ctx is done.
func (t *Tracker) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := t.Sweep(now); n > 0 {
				log.Debug().Int("removed", n).Msg("swept expired cooldowns")
			}
		}
	}
}

package registration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/pkg/retrylimit"
)

var (
	// ErrSynchronization is wrapped by every per-command failure.
	ErrSynchronization = errors.New("synchronization failure")
	// ErrSyncSetup means the remote registry could not be read at all.
	ErrSyncSetup = errors.New("synchronization setup failure")
)

// Op is a remote registry mutation.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Action is one planned mutation.
type Action struct {
	Op         Op
	Name       string
	ID         string // remote id for updates and deletes
	Definition Definition
}

// Plan is the minimal set of mutations bringing the remote registry in line
// with the catalog, already in issue order.
type Plan struct {
	Creates   []Action
	Updates   []Action
	Deletes   []Action
	Unchanged []string
}

// Actions returns creates, then updates, then deletes.
func (p *Plan) Actions() []Action {
	out := make([]Action, 0, p.Len())
	out = append(out, p.Creates...)
	out = append(out, p.Updates...)
	return append(out, p.Deletes...)
}

// Len is the number of mutations.
func (p *Plan) Len() int { return len(p.Creates) + len(p.Updates) + len(p.Deletes) }

// SynchronizationFailure names the command whose mutation exhausted retries.
type SynchronizationFailure struct {
	Command string
	Op      Op
	Err     error
}

func (f *SynchronizationFailure) Error() string {
	return fmt.Sprintf("%s: %s /%s: %v", ErrSynchronization, f.Op, f.Command, f.Err)
}

func (f *SynchronizationFailure) Unwrap() []error { return []error{ErrSynchronization, f.Err} }

// Report summarises one Synchronize run.
type Report struct {
	Plan     *Plan
	Created  []string
	Updated  []string
	Deleted  []string
	Failures []*SynchronizationFailure
	Took     time.Duration
}

// Operations is the number of mutations that reached the platform.
func (r *Report) Operations() int { return len(r.Created) + len(r.Updated) + len(r.Deleted) }

// Catalog is the read side of command.Catalog the synchronizer needs.
type Catalog interface {
	All() []command.Descriptor
}

// Synchronizer pushes the catalog to a Platform.
type Synchronizer struct {
	platform Platform
	limiter  *retrylimit.Limiter
	policy   retrylimit.Policy
	mu       sync.Mutex
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithPolicy overrides the retry policy (default: 3 attempts, 500ms
// doubling, jittered).
func WithPolicy(p retrylimit.Policy) Option {
	return func(s *Synchronizer) { s.policy = p }
}

// WithLimiter overrides the adaptive rate limiter. nil disables limiting.
func WithLimiter(lim *retrylimit.Limiter) Option {
	return func(s *Synchronizer) { s.limiter = lim }
}

// New returns a Synchronizer for platform.
func New(platform Platform, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		platform: platform,
		limiter:  retrylimit.NewLimiter(5, 1, 20),
		policy:   retrylimit.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Plan computes the mutations without issuing them.
func (s *Synchronizer) Plan(ctx context.Context, catalog Catalog) (*Plan, error) {
	remote, err := s.list(ctx)
	if err != nil {
		return nil, err
	}
	return diff(catalog.All(), remote), nil
}

// Synchronize reconciles the remote registry with catalog: creates, then
// updates, then deletes. A mutation that still fails after retries is
// recorded in Report.Failures and does not stop the others. The returned
// error is non-nil only when the remote registry could not be listed.
func (s *Synchronizer) Synchronize(ctx context.Context, catalog Catalog) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	began := time.Now()
	plan, err := s.Plan(ctx, catalog)
	if err != nil {
		return nil, err
	}
	report := &Report{Plan: plan}

	if plan.Len() == 0 {
		log.Info().Int("commands", len(plan.Unchanged)).Msg("remote commands already up to date")
	}

	for _, a := range plan.Actions() {
		if err := ctx.Err(); err != nil {
			report.Failures = append(report.Failures, &SynchronizationFailure{Command: a.Name, Op: a.Op, Err: err})
			continue
		}
		done, err := s.apply(ctx, a)
		if err != nil {
			f := &SynchronizationFailure{Command: a.Name, Op: a.Op, Err: err}
			log.Error().Err(err).Str("command", a.Name).Str("op", string(a.Op)).
				Msg("command synchronization failed; it may be unreachable until the next sync")
			report.Failures = append(report.Failures, f)
			continue
		}
		switch done {
		case OpCreate:
			report.Created = append(report.Created, a.Name)
		case OpUpdate:
			report.Updated = append(report.Updated, a.Name)
		case OpDelete:
			report.Deleted = append(report.Deleted, a.Name)
		}
		if done != "" {
			log.Info().Str("command", a.Name).Str("op", string(done)).Msg("synchronized command")
		}
	}

	report.Took = time.Since(began)
	log.Info().
		Int("created", len(report.Created)).
		Int("updated", len(report.Updated)).
		Int("deleted", len(report.Deleted)).
		Int("unchanged", len(plan.Unchanged)).
		Int("failed", len(report.Failures)).
		Dur("took", report.Took).
		Msg("command synchronization finished")
	return report, nil
}

func (s *Synchronizer) list(ctx context.Context) ([]Snapshot, error) {
	var remote []Snapshot
	err := retrylimit.Do(ctx, s.limiter, s.policy, func(ctx context.Context) error {
		var err error
		remote, err = s.platform.ListCommands(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: list remote commands: %w", ErrSyncSetup, err)
	}
	return remote, nil
}

// lookup re-reads the remote registry and returns the named command.
func (s *Synchronizer) lookup(ctx context.Context, name string) (Snapshot, bool, error) {
	remote, err := s.platform.ListCommands(ctx)
	if err != nil {
		return Snapshot{}, false, err
	}
	for _, r := range remote {
		if r.Name == name {
			return r, true, nil
		}
	}
	return Snapshot{}, false, nil
}

// apply issues one action with retries. Before every retry the remote
// registry is re-read, since an operator may have changed it meanwhile; the
// action is then re-targeted: an update whose command vanished becomes a
// create, a create whose name appeared becomes an update, and a delete whose
// target is gone is complete. It returns the op that finally reached the
// platform, or "" when nothing was left to do.
func (s *Synchronizer) apply(ctx context.Context, a Action) (Op, error) {
	want := Hash(a.Definition)
	op, id := a.Op, a.ID
	attempt := 0

	err := retrylimit.Do(ctx, s.limiter, s.policy, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			current, found, err := s.lookup(ctx, a.Name)
			if err != nil {
				return err
			}
			switch {
			case a.Op == OpDelete && !found:
				op = ""
				return nil
			case a.Op == OpDelete:
				id = current.ID
			case !found:
				op = OpCreate
			case current.Hash == want:
				op = ""
				return nil
			default:
				op, id = OpUpdate, current.ID
			}
		}

		switch op {
		case OpCreate:
			_, err := s.platform.CreateCommand(ctx, a.Definition)
			return err
		case OpUpdate:
			return s.platform.UpdateCommand(ctx, id, a.Definition)
		case OpDelete:
			return s.platform.DeleteCommand(ctx, id)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return op, nil
}

// diff compares local descriptors with remote snapshots by name.
func diff(local []command.Descriptor, remote []Snapshot) *Plan {
	plan := &Plan{}

	remoteByName := make(map[string]Snapshot, len(remote))
	for _, r := range remote {
		if _, dup := remoteByName[r.Name]; dup {
			plan.Deletes = append(plan.Deletes, Action{Op: OpDelete, Name: r.Name, ID: r.ID})
			continue
		}
		remoteByName[r.Name] = r
	}

	localNames := make(map[string]struct{}, len(local))
	for _, d := range local {
		localNames[d.Name] = struct{}{}
		def := FromDescriptor(d)
		r, ok := remoteByName[d.Name]
		switch {
		case !ok:
			plan.Creates = append(plan.Creates, Action{Op: OpCreate, Name: d.Name, Definition: def})
		case r.Hash != Hash(def):
			plan.Updates = append(plan.Updates, Action{Op: OpUpdate, Name: d.Name, ID: r.ID, Definition: def})
		default:
			plan.Unchanged = append(plan.Unchanged, d.Name)
		}
	}

	for _, r := range remote {
		if _, keep := localNames[r.Name]; keep {
			continue
		}
		if remoteByName[r.Name].ID != r.ID {
			continue // already queued as a duplicate
		}
		plan.Deletes = append(plan.Deletes, Action{Op: OpDelete, Name: r.Name, ID: r.ID})
	}
	return plan
}

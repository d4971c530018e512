package registration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/internal/plugin"
	"github.com/keshon/aegistrate/pkg/cmd"
	"github.com/keshon/aegistrate/pkg/retrylimit"
)

type fakePlatform struct {
	mu       sync.Mutex
	nextID   int
	commands map[string]Definition // by id
	calls    []string

	listErr   error
	failNext map[string]int // "op:name" -> remaining failures
	onUpdate func(f *fakePlatform, id string)
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{commands: map[string]Definition{}, failNext: map[string]int{}}
}

func (f *fakePlatform) seed(def Definition) string {
	f.nextID++
	id := fmt.Sprintf("id-%d", f.nextID)
	f.commands[id] = def
	return id
}

func (f *fakePlatform) fail(op Op, name string, times int) {
	f.failNext[string(op)+":"+name] = times
}

func (f *fakePlatform) shouldFail(op Op, name string) error {
	k := string(op) + ":" + name
	if f.failNext[k] > 0 {
		f.failNext[k]--
		return errors.New("network down")
	}
	return nil
}

func (f *fakePlatform) ListCommands(context.Context) ([]Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]Snapshot, 0, len(f.commands))
	for id, def := range f.commands {
		out = append(out, Snapshot{ID: id, Name: def.Name, Hash: Hash(def)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakePlatform) CreateCommand(_ context.Context, def Definition) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "create:"+def.Name)
	if err := f.shouldFail(OpCreate, def.Name); err != nil {
		return "", err
	}
	return f.seed(def), nil
}

func (f *fakePlatform) UpdateCommand(_ context.Context, id string, def Definition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "update:"+def.Name)
	if f.onUpdate != nil {
		hook := f.onUpdate
		f.onUpdate = nil
		hook(f, id)
		return errors.New("unknown application command")
	}
	if err := f.shouldFail(OpUpdate, def.Name); err != nil {
		return err
	}
	if _, ok := f.commands[id]; !ok {
		return errors.New("unknown application command")
	}
	f.commands[id] = def
	return nil
}

func (f *fakePlatform) DeleteCommand(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := f.commands[id].Name
	f.calls = append(f.calls, "delete:"+name)
	if err := f.shouldFail(OpDelete, name); err != nil {
		return err
	}
	delete(f.commands, id)
	return nil
}

func (f *fakePlatform) takeCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.calls
	f.calls = nil
	return out
}

func fastRetry() Option {
	return WithPolicy(retrylimit.Policy{Attempts: 3, Backoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond, Factor: 2})
}

func newSync(p Platform) *Synchronizer {
	return New(p, fastRetry(), WithLimiter(nil))
}

var noop = cmd.HandlerFunc(func(context.Context, *cmd.Invocation) error { return nil })

func catalogOf(t *testing.T, descs ...command.Descriptor) *command.Catalog {
	t.Helper()
	for i := range descs {
		descs[i].Handler = noop
	}
	cat, _, err := command.BuildCatalog(map[plugin.Plugin]command.Contribution{
		plugin.Information: func() []command.Descriptor { return descs },
	})
	require.NoError(t, err)
	return cat
}

func TestSynchronizeOrdersCreateUpdateDelete(t *testing.T) {
	p := newFakePlatform()
	p.seed(Definition{Name: "ping", Description: "old text"})
	p.seed(Definition{Name: "obsolete", Description: "gone"})
	p.seed(Definition{Name: "about", Description: "About the bot"})

	cat := catalogOf(t,
		command.Descriptor{Name: "ping", Description: "Pong!"},
		command.Descriptor{Name: "about", Description: "About the bot"},
		command.Descriptor{Name: "roll", Description: "Roll dice", Cooldown: 5 * time.Second},
	)

	report, err := newSync(p).Synchronize(context.Background(), cat)
	require.NoError(t, err)

	assert.Equal(t, []string{"create:roll", "update:ping", "delete:obsolete"}, p.takeCalls())
	assert.Equal(t, []string{"roll"}, report.Created)
	assert.Equal(t, []string{"ping"}, report.Updated)
	assert.Equal(t, []string{"obsolete"}, report.Deleted)
	assert.Equal(t, []string{"about"}, report.Plan.Unchanged)
	assert.Empty(t, report.Failures)
}

func TestSynchronizeIsIdempotent(t *testing.T) {
	p := newFakePlatform()
	p.seed(Definition{Name: "stale", Description: "x"})
	cat := catalogOf(t,
		command.Descriptor{Name: "kick", Description: "Kick a member", Options: []command.Option{
			{Name: "member", Type: command.OptionUser, Required: true},
			{Name: "reason", Type: command.OptionString, Description: "Why"},
			{Name: "duration", Type: command.OptionDuration},
		}},
		command.Descriptor{Name: "ping", Description: "Pong!"},
	)
	s := newSync(p)

	first, err := s.Synchronize(context.Background(), cat)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Operations())
	p.takeCalls()

	second, err := s.Synchronize(context.Background(), cat)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Operations())
	assert.Empty(t, p.takeCalls())
	assert.ElementsMatch(t, []string{"kick", "ping"}, second.Plan.Unchanged)
}

func TestCooldownChangeDoesNotTriggerUpdate(t *testing.T) {
	p := newFakePlatform()
	p.seed(FromDescriptor(command.Descriptor{Name: "roll", Description: "Roll dice"}))

	cat := catalogOf(t, command.Descriptor{Name: "roll", Description: "Roll dice", Cooldown: time.Hour})
	report, err := newSync(p).Synchronize(context.Background(), cat)
	require.NoError(t, err)
	assert.Zero(t, report.Operations())
}

func TestSynchronizeRetriesTransientFailures(t *testing.T) {
	p := newFakePlatform()
	p.fail(OpCreate, "roll", 2)
	cat := catalogOf(t, command.Descriptor{Name: "roll", Description: "Roll dice"})

	report, err := newSync(p).Synchronize(context.Background(), cat)
	require.NoError(t, err)
	assert.Equal(t, []string{"roll"}, report.Created)
	assert.Empty(t, report.Failures)
	assert.Equal(t, []string{"create:roll", "create:roll", "create:roll"}, p.takeCalls())
}

func TestSynchronizeExhaustedRetriesIsNonFatal(t *testing.T) {
	p := newFakePlatform()
	p.fail(OpCreate, "roll", 10)
	cat := catalogOf(t,
		command.Descriptor{Name: "roll", Description: "Roll dice"},
		command.Descriptor{Name: "ping", Description: "Pong!"},
	)

	report, err := newSync(p).Synchronize(context.Background(), cat)
	require.NoError(t, err)
	require.Len(t, report.Failures, 1)

	f := report.Failures[0]
	assert.Equal(t, "roll", f.Command)
	assert.Equal(t, OpCreate, f.Op)
	assert.ErrorIs(t, f, ErrSynchronization)
	assert.ErrorIs(t, f, retrylimit.ErrMaxAttempts)
	assert.Equal(t, []string{"ping"}, report.Created)
}

func TestUpdateBecomesCreateWhenRemoteDeletedMeanwhile(t *testing.T) {
	p := newFakePlatform()
	p.seed(Definition{Name: "ping", Description: "old"})
	p.onUpdate = func(f *fakePlatform, id string) { delete(f.commands, id) }

	cat := catalogOf(t, command.Descriptor{Name: "ping", Description: "Pong!"})
	report, err := newSync(p).Synchronize(context.Background(), cat)
	require.NoError(t, err)

	assert.Equal(t, []string{"update:ping", "create:ping"}, p.takeCalls())
	assert.Equal(t, []string{"ping"}, report.Created)
	assert.Empty(t, report.Updated)

	again, err := newSync(p).Synchronize(context.Background(), cat)
	require.NoError(t, err)
	assert.Zero(t, again.Operations())
}

func TestDeleteOfVanishedCommandCompletes(t *testing.T) {
	p := newFakePlatform()
	id := p.seed(Definition{Name: "old", Description: "x"})
	p.fail(OpDelete, "old", 1)

	// The first delete fails; by the retry an operator has removed it.
	report, err := newSync(&vanishOnFailure{fakePlatform: p, id: id}).Synchronize(context.Background(), catalogOf(t))
	require.NoError(t, err)
	assert.Empty(t, report.Failures)
	assert.Empty(t, report.Deleted)
	assert.Equal(t, []string{"delete:old"}, p.takeCalls())
}

type vanishOnFailure struct {
	*fakePlatform
	id string
}

func (v *vanishOnFailure) DeleteCommand(ctx context.Context, id string) error {
	err := v.fakePlatform.DeleteCommand(ctx, id)
	if err != nil {
		v.mu.Lock()
		delete(v.commands, v.id)
		v.mu.Unlock()
	}
	return err
}

func TestListFailureIsSetupError(t *testing.T) {
	p := newFakePlatform()
	p.listErr = errors.New("401 unauthorized")

	_, err := newSync(p).Synchronize(context.Background(), catalogOf(t, command.Descriptor{Name: "ping", Description: "Pong!"}))
	assert.ErrorIs(t, err, ErrSyncSetup)
}

func TestPlanMatchesIssuedOperations(t *testing.T) {
	p := newFakePlatform()
	p.seed(Definition{Name: "ping", Description: "old"})
	p.seed(Definition{Name: "gone", Description: "x"})
	cat := catalogOf(t,
		command.Descriptor{Name: "ping", Description: "Pong!"},
		command.Descriptor{Name: "roll", Description: "Roll dice"},
	)
	s := newSync(p)

	plan, err := s.Plan(context.Background(), cat)
	require.NoError(t, err)
	var planned []string
	for _, a := range plan.Actions() {
		planned = append(planned, string(a.Op)+":"+a.Name)
	}
	assert.Empty(t, p.takeCalls(), "planning must not mutate")

	_, err = s.Synchronize(context.Background(), cat)
	require.NoError(t, err)
	assert.Equal(t, planned, p.takeCalls())
}

func TestDuplicateRemoteNamesAreCollapsed(t *testing.T) {
	p := newFakePlatform()
	def := FromDescriptor(command.Descriptor{Name: "ping", Description: "Pong!"})
	p.seed(def)
	p.seed(def)

	report, err := newSync(p).Synchronize(context.Background(), catalogOf(t, command.Descriptor{Name: "ping", Description: "Pong!"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"ping"}, report.Deleted)
	assert.Equal(t, []string{"ping"}, report.Plan.Unchanged)

	remote, err := p.ListCommands(context.Background())
	require.NoError(t, err)
	assert.Len(t, remote, 1)
}

func TestHashFollowsWireOrder(t *testing.T) {
	a := Definition{Name: "x", Description: "x", Options: []OptionDefinition{
		{Name: "a", Description: "a", Kind: KindString},
		{Name: "b", Description: "b", Kind: KindUser, Required: true},
		{Name: "c", Description: "c", Kind: KindBoolean},
	}}

	// Required options move to the front either way.
	b := Definition{Name: "x", Description: "x", Options: []OptionDefinition{a.Options[1], a.Options[0], a.Options[2]}}
	assert.Equal(t, Hash(a), Hash(b))

	// Reordering optional options is a visible change.
	c := Definition{Name: "x", Description: "x", Options: []OptionDefinition{a.Options[2], a.Options[0], a.Options[1]}}
	assert.NotEqual(t, Hash(a), Hash(c))

	b.Options[0].Required = false
	assert.NotEqual(t, Hash(a), Hash(b))
}

func TestWireOrder(t *testing.T) {
	opts := []OptionDefinition{{Name: "a"}, {Name: "b", Required: true}, {Name: "c"}, {Name: "d", Required: true}}
	var names []string
	for _, o := range WireOrder(opts) {
		names = append(names, o.Name)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, names)
	assert.Equal(t, "a", opts[0].Name)
}

func TestFromDescriptorProjectsLocalOnlyTypesToString(t *testing.T) {
	def := FromDescriptor(command.Descriptor{Name: "timeout", Description: "t", Options: []command.Option{
		{Name: "duration", Type: command.OptionDuration},
		{Name: "until", Type: command.OptionDate, Description: "When"},
		{Name: "member", Type: command.OptionUser},
	}})
	require.Len(t, def.Options, 3)
	assert.Equal(t, KindString, def.Options[0].Kind)
	assert.Equal(t, "duration", def.Options[0].Description)
	assert.Equal(t, KindString, def.Options[1].Kind)
	assert.Equal(t, "When", def.Options[1].Description)
	assert.Equal(t, KindUser, def.Options[2].Kind)
}

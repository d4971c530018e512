// Package plugins assembles every plugin's contribution into the map the
// catalog is built from.
package plugins

import (
	"time"

	"github.com/keshon/aegistrate/internal/command"
	"github.com/keshon/aegistrate/internal/dispatch"
	"github.com/keshon/aegistrate/internal/plugin"
	"github.com/keshon/aegistrate/internal/plugins/information"
	"github.com/keshon/aegistrate/internal/plugins/manage"
	"github.com/keshon/aegistrate/internal/plugins/miscellaneous"
	"github.com/keshon/aegistrate/internal/plugins/moderation"
	"github.com/keshon/aegistrate/internal/plugins/safety"
	"github.com/keshon/aegistrate/internal/plugins/statistics"
	"github.com/keshon/aegistrate/internal/storage"
	"github.com/keshon/aegistrate/pkg/cmd"
)

// Deps are the collaborators plugin handlers close over. Handlers only touch
// them when executed, so a catalog can be built from zero-value Deps.
type Deps struct {
	Store      storage.Store
	Moderator  moderation.Moderator
	Authorizer manage.Authorizer
	Pinger     information.Pinger
	Counters   *dispatch.Counters
	Started    time.Time
}

// Contributions returns one contribution per plugin. Executed invocations
// are recorded to the store's history when one is configured.
func Contributions(deps Deps) map[plugin.Plugin]command.Contribution {
	wrap := func(c command.Contribution, guildOnly bool) command.Contribution {
		var mws []cmd.Middleware
		if guildOnly {
			mws = append(mws, command.WithGuildOnly())
		}
		if deps.Store != nil {
			mws = append(mws, command.WithHistory(deps.Store))
		}
		return command.WithMiddleware(c, mws...)
	}

	var history statistics.History
	var settings manage.Settings
	if deps.Store != nil {
		history, settings = deps.Store, deps.Store
	}

	return map[plugin.Plugin]command.Contribution{
		plugin.Moderation:    wrap(moderation.Contribution(deps.Moderator), true),
		plugin.Information:   wrap(information.Contribution(deps.Pinger, deps.Started), false),
		plugin.Statistics:    wrap(statistics.Contribution(deps.Counters, history), false),
		plugin.Safety:        safety.Contribution(),
		plugin.Miscellaneous: wrap(miscellaneous.Contribution(nil), false),
		plugin.Plugins:       wrap(manage.Contribution(settings, deps.Authorizer), true),
	}
}

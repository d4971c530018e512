package registration

import "context"

// Platform is the remote command-registration API. Every call is
// independently rate limited and may fail.
type Platform interface {
	ListCommands(ctx context.Context) ([]Snapshot, error)
	CreateCommand(ctx context.Context, def Definition) (id string, err error)
	UpdateCommand(ctx context.Context, id string, def Definition) error
	DeleteCommand(ctx context.Context, id string) error
}

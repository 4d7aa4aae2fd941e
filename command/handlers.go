package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/channelgate/channelgate/core"
)

// MutatingService is the slice of the engine the command layer drives.
// *core.Service satisfies it.
type MutatingService interface {
	Grant(ctx context.Context, req core.GrantRequest) (core.GrantResult, error)
	RunSweep(ctx context.Context) (core.SweepReport, error)
	UpsertChannel(ctx context.Context, actorID int64, in core.UpsertChannelInput) (core.CatalogEntry, error)
	SetDemoLink(ctx context.Context, actorID int64, channelID string, link string) error
}

type GrantCommand struct {
	service MutatingService
}

func NewGrantCommand(service MutatingService) *GrantCommand {
	return &GrantCommand{service: service}
}

func (c *GrantCommand) Execute(ctx context.Context, msg GrantMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: grant service is required")
	}
	out, err := c.service.Grant(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RunSweepCommand struct {
	service MutatingService
}

func NewRunSweepCommand(service MutatingService) *RunSweepCommand {
	return &RunSweepCommand{service: service}
}

func (c *RunSweepCommand) Execute(ctx context.Context, _ RunSweepMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: sweep service is required")
	}
	out, err := c.service.RunSweep(ctx)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpsertChannelCommand struct {
	service MutatingService
}

func NewUpsertChannelCommand(service MutatingService) *UpsertChannelCommand {
	return &UpsertChannelCommand{service: service}
}

func (c *UpsertChannelCommand) Execute(ctx context.Context, msg UpsertChannelMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: catalog service is required")
	}
	out, err := c.service.UpsertChannel(ctx, msg.ActorID, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SetDemoLinkCommand struct {
	service MutatingService
}

func NewSetDemoLinkCommand(service MutatingService) *SetDemoLinkCommand {
	return &SetDemoLinkCommand{service: service}
}

func (c *SetDemoLinkCommand) Execute(ctx context.Context, msg SetDemoLinkMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: catalog service is required")
	}
	return c.service.SetDemoLink(ctx, msg.ActorID, msg.ChannelID, msg.Link)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}

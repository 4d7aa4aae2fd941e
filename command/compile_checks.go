package command

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/channelgate/channelgate/core"
)

var (
	_ gocmd.Commander[GrantMessage]         = (*GrantCommand)(nil)
	_ gocmd.Commander[RunSweepMessage]      = (*RunSweepCommand)(nil)
	_ gocmd.Commander[UpsertChannelMessage] = (*UpsertChannelCommand)(nil)
	_ gocmd.Commander[SetDemoLinkMessage]   = (*SetDemoLinkCommand)(nil)

	_ MutatingService = (*core.Service)(nil)
)

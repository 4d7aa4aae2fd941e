package command

import (
	"fmt"
	"strings"

	"github.com/channelgate/channelgate/core"
)

const (
	TypeGrant         = "channelgate.command.grant"
	TypeRunSweep      = "channelgate.command.sweep.run"
	TypeUpsertChannel = "channelgate.command.channel.upsert"
	TypeSetDemoLink   = "channelgate.command.channel.set_demo_link"
)

type GrantMessage struct {
	Request core.GrantRequest
}

func (GrantMessage) Type() string { return TypeGrant }

func (m GrantMessage) Validate() error {
	if m.Request.ActorID == 0 {
		return fmt.Errorf("command: actor id is required")
	}
	if m.Request.UserID == 0 {
		return fmt.Errorf("command: user id is required")
	}
	if strings.TrimSpace(m.Request.ChannelID) == "" {
		return fmt.Errorf("command: channel id is required")
	}
	if m.Request.Duration <= 0 {
		return fmt.Errorf("command: duration must be positive")
	}
	return nil
}

type RunSweepMessage struct{}

func (RunSweepMessage) Type() string { return TypeRunSweep }

func (RunSweepMessage) Validate() error { return nil }

type UpsertChannelMessage struct {
	ActorID int64
	Input   core.UpsertChannelInput
}

func (UpsertChannelMessage) Type() string { return TypeUpsertChannel }

func (m UpsertChannelMessage) Validate() error {
	if m.ActorID == 0 {
		return fmt.Errorf("command: actor id is required")
	}
	if strings.TrimSpace(m.Input.ChannelID) == "" {
		return fmt.Errorf("command: channel id is required")
	}
	if strings.TrimSpace(m.Input.Name) == "" {
		return fmt.Errorf("command: channel name is required")
	}
	return nil
}

type SetDemoLinkMessage struct {
	ActorID   int64
	ChannelID string
	Link      string
}

func (SetDemoLinkMessage) Type() string { return TypeSetDemoLink }

func (m SetDemoLinkMessage) Validate() error {
	if m.ActorID == 0 {
		return fmt.Errorf("command: actor id is required")
	}
	if strings.TrimSpace(m.ChannelID) == "" {
		return fmt.Errorf("command: channel id is required")
	}
	if strings.TrimSpace(m.Link) == "" {
		return fmt.Errorf("command: demo link is required")
	}
	return nil
}

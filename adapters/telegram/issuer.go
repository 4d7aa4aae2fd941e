package telegram

import (
	"context"
	"fmt"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/channelgate/channelgate/core"
)

// Issuer creates single-use invite links. MemberLimit is pinned to 1 so the
// link admits exactly the intended user and nobody else.
type Issuer struct {
	bot api
}

func NewIssuer(bot *tele.Bot) (*Issuer, error) {
	if bot == nil {
		return nil, fmt.Errorf("telegram: bot is required")
	}
	return &Issuer{bot: bot}, nil
}

func (i *Issuer) Issue(ctx context.Context, channelID string, userID int64) (core.InviteCredential, error) {
	if i == nil || i.bot == nil {
		return core.InviteCredential{}, fmt.Errorf("telegram: issuer is not configured")
	}
	if err := ctx.Err(); err != nil {
		return core.InviteCredential{}, err
	}
	chatID, err := parseChannelID(channelID)
	if err != nil {
		return core.InviteCredential{}, err
	}

	name := inviteName(userID)
	link, err := i.bot.CreateInviteLink(tele.ChatID(chatID), &tele.ChatInviteLink{
		Name:        name,
		MemberLimit: 1,
	})
	if err != nil {
		return core.InviteCredential{}, fmt.Errorf("telegram: create invite link for channel %s: %w", channelID, err)
	}
	return core.InviteCredential{
		Link:     link.InviteLink,
		Name:     link.Name,
		IssuedAt: time.Now().UTC(),
	}, nil
}

func inviteName(userID int64) string {
	return fmt.Sprintf("User_%d_Plan", userID)
}

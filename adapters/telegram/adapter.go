// Package telegram adapts the Telegram Bot API (via telebot) to the core
// issuer, revoker, and notifier contracts, and hosts the operator bot
// surface.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v3"
)

// api is the slice of *tele.Bot the adapters call. Tests substitute a fake.
type api interface {
	CreateInviteLink(chat tele.Recipient, link *tele.ChatInviteLink) (*tele.ChatInviteLink, error)
	Ban(chat *tele.Chat, member *tele.ChatMember, revokeMessages ...bool) error
	Unban(chat *tele.Chat, user *tele.User, forBanned ...bool) error
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

var _ api = (*tele.Bot)(nil)

// NewBot builds a long-polling telebot instance from a token.
func NewBot(token string) (*tele.Bot, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return nil, fmt.Errorf("telegram: bot token is required")
	}
	return tele.NewBot(tele.Settings{
		Token:  trimmed,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	})
}

func parseChannelID(channelID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(channelID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram: invalid channel id %q: %w", channelID, err)
	}
	return id, nil
}

package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v3"

	"github.com/channelgate/channelgate/core"
)

// Revoker removes a member with a ban followed by an immediate unban, so the
// user is out of the channel but free to rejoin on a future invite.
type Revoker struct {
	bot api
}

func NewRevoker(bot *tele.Bot) (*Revoker, error) {
	if bot == nil {
		return nil, fmt.Errorf("telegram: bot is required")
	}
	return &Revoker{bot: bot}, nil
}

func (r *Revoker) Remove(ctx context.Context, channelID string, userID int64) (core.RemovalStatus, error) {
	if r == nil || r.bot == nil {
		return "", fmt.Errorf("telegram: revoker is not configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	chatID, err := parseChannelID(channelID)
	if err != nil {
		// A malformed id can never resolve to a chat; same outcome as
		// "chat not found".
		return core.RemovalAlreadyGone, nil
	}

	chat := &tele.Chat{ID: chatID}
	user := &tele.User{ID: userID}
	if err := r.bot.Ban(chat, &tele.ChatMember{User: user}); err != nil {
		if status, terminal := classifyRemovalError(err); terminal {
			return status, nil
		}
		return "", fmt.Errorf("telegram: ban user %d in channel %s: %w", userID, channelID, err)
	}

	// Unban lifts the ban so the user can accept a new invite later. The user
	// is already out after Ban, so an unban failure is logged by the caller
	// as transient and retried; Ban on a non-member reports AlreadyGone.
	if err := r.bot.Unban(chat, user); err != nil {
		if status, terminal := classifyRemovalError(err); terminal {
			return status, nil
		}
		return "", fmt.Errorf("telegram: unban user %d in channel %s: %w", userID, channelID, err)
	}
	return core.RemovalRemoved, nil
}

// classifyRemovalError maps Telegram API errors onto terminal removal
// statuses. Anything unrecognized, including flood waits and transport
// errors, stays an error so the next sweep cycle retries it.
func classifyRemovalError(err error) (core.RemovalStatus, bool) {
	var apiErr *tele.Error
	if !errors.As(err, &apiErr) {
		return "", false
	}
	if apiErr.Code == 429 {
		return "", false
	}

	description := strings.ToLower(apiErr.Description)
	switch {
	case apiErr.Code == 403,
		strings.Contains(description, "not enough rights"),
		strings.Contains(description, "chat_admin_required"):
		return core.RemovalNoRights, true
	case strings.Contains(description, "chat not found"),
		strings.Contains(description, "user not found"),
		strings.Contains(description, "participant_id_invalid"),
		strings.Contains(description, "user_not_participant"):
		return core.RemovalAlreadyGone, true
	}
	return "", false
}

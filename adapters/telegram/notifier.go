package telegram

import (
	"context"
	"fmt"

	tele "gopkg.in/telebot.v3"
)

// Notifier sends direct messages. Delivery failures (user blocked the bot,
// never started it, flood limits) surface as errors for the caller to log;
// nothing here retries.
type Notifier struct {
	bot api
}

func NewNotifier(bot *tele.Bot) (*Notifier, error) {
	if bot == nil {
		return nil, fmt.Errorf("telegram: bot is required")
	}
	return &Notifier{bot: bot}, nil
}

func (n *Notifier) Notify(ctx context.Context, userID int64, message string) error {
	if n == nil || n.bot == nil {
		return fmt.Errorf("telegram: notifier is not configured")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := n.bot.Send(tele.ChatID(userID), message); err != nil {
		return fmt.Errorf("telegram: send message to user %d: %w", userID, err)
	}
	return nil
}

package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	gocmd "github.com/goliatone/go-command"
	tele "gopkg.in/telebot.v3"

	"github.com/channelgate/channelgate/command"
	"github.com/channelgate/channelgate/core"
)

const defaultHandlerTimeout = 15 * time.Second

// EngineService is everything the bot surface needs from the engine: the
// mutating command slice plus the read paths that render menus.
type EngineService interface {
	command.MutatingService
	ListCatalog(ctx context.Context) ([]core.CatalogEntry, error)
	ListUserEntitlements(ctx context.Context, userID int64) ([]core.Entitlement, error)
}

// Handler wires bot commands and menu callbacks to the engine. Mutations go
// through the command layer; reads call the service directly.
type Handler struct {
	bot     *tele.Bot
	service EngineService
	logger  core.Logger
	timeout time.Duration

	grantCmd  *command.GrantCommand
	upsertCmd *command.UpsertChannelCommand
	demoCmd   *command.SetDemoLinkCommand

	menu       *tele.ReplyMarkup
	btnPlans   tele.Btn
	btnSubs    tele.Btn
	supportURL string
}

type HandlerOption func(*Handler)

// WithSupportContact adds a Support button to the /start menu linking to the
// operator's contact.
func WithSupportContact(url string) HandlerOption {
	return func(h *Handler) {
		h.supportURL = strings.TrimSpace(url)
	}
}

func NewHandler(bot *tele.Bot, service EngineService, logger core.Logger, options ...HandlerOption) (*Handler, error) {
	if bot == nil {
		return nil, fmt.Errorf("telegram: bot is required")
	}
	if service == nil {
		return nil, fmt.Errorf("telegram: engine service is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("telegram: logger is required")
	}

	h := &Handler{
		bot:       bot,
		service:   service,
		logger:    logger,
		timeout:   defaultHandlerTimeout,
		grantCmd:  command.NewGrantCommand(service),
		upsertCmd: command.NewUpsertChannelCommand(service),
		demoCmd:   command.NewSetDemoLinkCommand(service),
	}
	for _, option := range options {
		if option != nil {
			option(h)
		}
	}
	h.menu, h.btnPlans, h.btnSubs = buildStartMenu(h.supportURL)
	h.register()
	return h, nil
}

// buildStartMenu assembles the /start inline keyboard. The Support row only
// appears when an operator contact was configured.
func buildStartMenu(supportURL string) (*tele.ReplyMarkup, tele.Btn, tele.Btn) {
	menu := &tele.ReplyMarkup{}
	btnPlans := menu.Data("📋 View Plans", "plans")
	btnSubs := menu.Data("📂 My Subscriptions", "subs")

	rows := []tele.Row{
		menu.Row(btnPlans),
		menu.Row(btnSubs),
	}
	if supportURL != "" {
		rows = append(rows, menu.Row(menu.URL("📞 Support", supportURL)))
	}
	menu.Inline(rows...)
	return menu, btnPlans, btnSubs
}

func (h *Handler) register() {
	h.bot.Handle("/start", h.handleStart)
	h.bot.Handle("/grant", h.handleGrant)
	h.bot.Handle("/addchannel", h.handleAddChannel)
	h.bot.Handle("/setdemo", h.handleSetDemo)
	h.bot.Handle("/mysubs", h.handleSubscriptions)
	h.bot.Handle(&h.btnPlans, h.handlePlans)
	h.bot.Handle(&h.btnSubs, h.handleSubscriptions)
	h.bot.Handle(&tele.Btn{Unique: "buy"}, h.handleBuy)
}

// Start blocks on the poller until Stop is called.
func (h *Handler) Start() {
	h.bot.Start()
}

func (h *Handler) Stop() {
	h.bot.Stop()
}

func (h *Handler) handlerContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), h.timeout)
}

func (h *Handler) handleStart(c tele.Context) error {
	return c.Send(
		fmt.Sprintf("Welcome, %s! Pick an option below.", c.Sender().FirstName),
		h.menu,
	)
}

func (h *Handler) handleGrant(c tele.Context) error {
	req, err := parseGrantArgs(c.Sender().ID, c.Args())
	if err != nil {
		return c.Send(fmt.Sprintf("Usage: /grant <user_id> <channel_id> <days>\n%v", err))
	}

	ctx, cancel := h.handlerContext()
	defer cancel()
	collector := gocmd.NewResult[core.GrantResult]()
	ctx = gocmd.ContextWithResult(ctx, collector)

	if err := h.grantCmd.Execute(ctx, command.GrantMessage{Request: req}); err != nil {
		h.logger.Error("grant command failed", "user_id", req.UserID, "channel_id", req.ChannelID, "error", err)
		return c.Send(fmt.Sprintf("Grant failed: %v", err))
	}
	result, ok := collector.Load()
	if !ok {
		return c.Send("Grant failed: no result")
	}

	reply := fmt.Sprintf(
		"Granted user %d access to channel %s until %s.\nInvite: %s",
		req.UserID,
		req.ChannelID,
		result.Entitlement.ExpiresAt.Format(time.RFC3339),
		result.Credential.Link,
	)
	if !result.UserNotified {
		reply += fmt.Sprintf("\n⚠ Could not message the user (%s); send them the invite manually.", result.NotifyError)
	}
	return c.Send(reply)
}

func (h *Handler) handleAddChannel(c tele.Context) error {
	msg, err := parseAddChannelArgs(c.Sender().ID, c.Args())
	if err != nil {
		return c.Send(fmt.Sprintf("Usage: /addchannel <channel_id> <name> <price> <plan_type> [forward]\n%v", err))
	}

	ctx, cancel := h.handlerContext()
	defer cancel()
	collector := gocmd.NewResult[core.CatalogEntry]()
	ctx = gocmd.ContextWithResult(ctx, collector)

	if err := h.upsertCmd.Execute(ctx, msg); err != nil {
		h.logger.Error("add channel command failed", "channel_id", msg.Input.ChannelID, "error", err)
		return c.Send(fmt.Sprintf("Channel update failed: %v", err))
	}
	entry, _ := collector.Load()
	return c.Send(fmt.Sprintf("Channel %s (%s) saved.", entry.Name, entry.ChannelID))
}

func (h *Handler) handleSetDemo(c tele.Context) error {
	args := c.Args()
	if len(args) != 2 {
		return c.Send("Usage: /setdemo <channel_id> <demo_link>")
	}

	ctx, cancel := h.handlerContext()
	defer cancel()
	msg := command.SetDemoLinkMessage{
		ActorID:   c.Sender().ID,
		ChannelID: args[0],
		Link:      args[1],
	}
	if err := h.demoCmd.Execute(ctx, msg); err != nil {
		h.logger.Error("set demo command failed", "channel_id", msg.ChannelID, "error", err)
		return c.Send(fmt.Sprintf("Demo link update failed: %v", err))
	}
	return c.Send(fmt.Sprintf("Demo link for channel %s saved.", msg.ChannelID))
}

func (h *Handler) handlePlans(c tele.Context) error {
	ctx, cancel := h.handlerContext()
	defer cancel()
	entries, err := h.service.ListCatalog(ctx)
	if err != nil {
		h.logger.Error("list catalog failed", "error", err)
		return c.Send("Could not load plans, try again later.")
	}
	if len(entries) == 0 {
		return c.Send("No plans available yet.")
	}

	markup := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(entries))
	for _, entry := range entries {
		label := fmt.Sprintf("%s (%s)", entry.Name, entry.Price)
		rows = append(rows, markup.Row(markup.Data(label, "buy", entry.ChannelID)))
	}
	markup.Inline(rows...)
	return c.Send("Available plans:", markup)
}

func (h *Handler) handleBuy(c tele.Context) error {
	channelID := strings.TrimSpace(c.Data())
	if channelID == "" {
		return c.Send("Unknown plan.")
	}

	ctx, cancel := h.handlerContext()
	defer cancel()
	entries, err := h.service.ListCatalog(ctx)
	if err != nil {
		h.logger.Error("list catalog failed", "error", err)
		return c.Send("Could not load the plan, try again later.")
	}
	for _, entry := range entries {
		if entry.ChannelID != channelID {
			continue
		}
		reply := fmt.Sprintf("%s\nPrice: %s (%s)", entry.Name, entry.Price, entry.PlanType)
		if entry.DemoLink != "" {
			reply += fmt.Sprintf("\nDemo: %s", entry.DemoLink)
		}
		reply += "\n\nContact the operator to complete the purchase."
		return c.Send(reply)
	}
	return c.Send("Unknown plan.")
}

func (h *Handler) handleSubscriptions(c tele.Context) error {
	ctx, cancel := h.handlerContext()
	defer cancel()
	entitlements, err := h.service.ListUserEntitlements(ctx, c.Sender().ID)
	if err != nil {
		h.logger.Error("list entitlements failed", "user_id", c.Sender().ID, "error", err)
		return c.Send("Could not load your subscriptions, try again later.")
	}
	if len(entitlements) == 0 {
		return c.Send("You have no active subscriptions.")
	}

	var b strings.Builder
	b.WriteString("Your subscriptions:\n")
	for _, e := range entitlements {
		fmt.Fprintf(&b, "• channel %s, expires %s\n", e.ChannelID, e.ExpiresAt.Format("2006-01-02 15:04 MST"))
	}
	return c.Send(b.String())
}

func parseGrantArgs(actorID int64, args []string) (core.GrantRequest, error) {
	if len(args) != 3 {
		return core.GrantRequest{}, fmt.Errorf("expected 3 arguments, got %d", len(args))
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID == 0 {
		return core.GrantRequest{}, fmt.Errorf("invalid user id %q", args[0])
	}
	channelID := strings.TrimSpace(args[1])
	if channelID == "" {
		return core.GrantRequest{}, fmt.Errorf("channel id is required")
	}
	days, err := strconv.Atoi(args[2])
	if err != nil || days <= 0 {
		return core.GrantRequest{}, fmt.Errorf("invalid day count %q", args[2])
	}
	return core.GrantRequest{
		ActorID:   actorID,
		UserID:    userID,
		ChannelID: channelID,
		Duration:  time.Duration(days) * 24 * time.Hour,
	}, nil
}

func parseAddChannelArgs(actorID int64, args []string) (command.UpsertChannelMessage, error) {
	if len(args) < 4 || len(args) > 5 {
		return command.UpsertChannelMessage{}, fmt.Errorf("expected 4 or 5 arguments, got %d", len(args))
	}
	input := core.UpsertChannelInput{
		ChannelID: strings.TrimSpace(args[0]),
		Name:      strings.TrimSpace(args[1]),
		Price:     strings.TrimSpace(args[2]),
		PlanType:  strings.TrimSpace(args[3]),
	}
	if input.ChannelID == "" || input.Name == "" {
		return command.UpsertChannelMessage{}, fmt.Errorf("channel id and name are required")
	}
	if len(args) == 5 {
		forwarding, err := strconv.ParseBool(args[4])
		if err != nil {
			return command.UpsertChannelMessage{}, fmt.Errorf("invalid forward flag %q", args[4])
		}
		input.Forwarding = forwarding
	}
	return command.UpsertChannelMessage{ActorID: actorID, Input: input}, nil
}

package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MEKXH/breakbot/internal/bus"
	"github.com/MEKXH/breakbot/internal/channel"
	"github.com/MEKXH/breakbot/internal/config"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const channelName = "telegram"

// botAPI is the subset of *tgbotapi.BotAPI the channel uses.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Channel implements the Telegram bot transport and Notifier.
type Channel struct {
	channel.BaseChannel
	cfg    *config.TelegramConfig
	newBot func(token string) (botAPI, error)

	mu  sync.RWMutex
	bot botAPI
}

var _ channel.Channel = (*Channel)(nil)

// New creates a Telegram channel
func New(cfg *config.TelegramConfig, msgBus *bus.MessageBus) *Channel {
	return &Channel{
		BaseChannel: channel.BaseChannel{Bus: msgBus},
		cfg:         cfg,
		newBot: func(token string) (botAPI, error) {
			bot, err := tgbotapi.NewBotAPI(token)
			if err != nil {
				return nil, err
			}
			slog.Info("telegram bot connected", "username", bot.Self.UserName)
			return bot, nil
		},
	}
}

func (c *Channel) Name() string { return channelName }

// Connect authenticates with the bot API. Start calls it when needed.
func (c *Channel) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bot != nil {
		return nil
	}
	bot, err := c.newBot(c.cfg.Token)
	if err != nil {
		return fmt.Errorf("telegram init failed: %w", err)
	}
	c.bot = bot
	return nil
}

// Start long-polls for updates until ctx is done or Stop is called.
func (c *Channel) Start(ctx context.Context) error {
	if err := c.Connect(); err != nil {
		return err
	}
	bot := c.client()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = c.cfg.PollTimeout
	u.AllowedUpdates = []string{"message", "callback_query"}
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			evt := toEvent(update)
			if evt == nil {
				continue
			}
			if err := c.PublishInbound(ctx, evt); err != nil {
				return nil
			}
		}
	}
}

func (c *Channel) Stop(ctx context.Context) error {
	if bot := c.client(); bot != nil {
		bot.StopReceivingUpdates()
	}
	return nil
}

// toEvent maps an update to an inbound event, or nil when it carries nothing
// the bot reacts to.
func toEvent(update tgbotapi.Update) *bus.InboundEvent {
	if cq := update.CallbackQuery; cq != nil {
		if cq.From == nil {
			return nil
		}
		evt := &bus.InboundEvent{
			Kind:        bus.KindAction,
			Channel:     channelName,
			Sender:      sender(cq.From),
			ActionToken: cq.Data,
			CallbackID:  cq.ID,
			Timestamp:   time.Now(),
			RequestID:   bus.NewRequestID(),
		}
		if cq.Message != nil && cq.Message.Chat != nil {
			evt.ChatID = cq.Message.Chat.ID
			evt.Private = cq.Message.Chat.IsPrivate()
			evt.MessageID = cq.Message.MessageID
		}
		return evt
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return nil
	}
	evt := &bus.InboundEvent{
		Channel:   channelName,
		ChatID:    msg.Chat.ID,
		Private:   msg.Chat.IsPrivate(),
		Sender:    sender(msg.From),
		MessageID: msg.MessageID,
		Timestamp: time.Now(),
		RequestID: bus.NewRequestID(),
	}
	switch {
	case msg.IsCommand():
		evt.Kind = bus.KindCommand
		evt.Command = msg.Command()
		evt.Args = msg.CommandArguments()
	case strings.TrimSpace(msg.Text) != "":
		evt.Kind = bus.KindText
		evt.Text = msg.Text
	default:
		return nil
	}
	return evt
}

func sender(u *tgbotapi.User) bus.Sender {
	return bus.Sender{ID: u.ID, DisplayName: displayName(u)}
}

// displayName is @username when the user has one, otherwise the first name.
func displayName(u *tgbotapi.User) string {
	if name := strings.TrimSpace(u.UserName); name != "" {
		return "@" + name
	}
	if name := strings.TrimSpace(u.FirstName); name != "" {
		return name
	}
	return strconv.FormatInt(u.ID, 10)
}

func (c *Channel) NotifyRequester(ctx context.Context, requesterID int64, msg channel.Message) (channel.MessageRef, error) {
	return c.send(ctx, "notify_requester", requesterID, msg)
}

func (c *Channel) NotifyApproverChannel(ctx context.Context, msg channel.Message) (channel.MessageRef, error) {
	if c.cfg.ApproverChatID == 0 {
		return channel.MessageRef{}, channel.NewDeliveryError("notify_approvers", "approver channel",
			channel.Permanent(errors.New("approver chat id not configured")))
	}
	return c.send(ctx, "notify_approvers", c.cfg.ApproverChatID, msg)
}

func (c *Channel) Reply(ctx context.Context, chatID int64, msg channel.Message) (channel.MessageRef, error) {
	return c.send(ctx, "reply", chatID, msg)
}

func (c *Channel) EditApproverChannelMessage(ctx context.Context, ref channel.MessageRef, msg channel.Message) error {
	target := fmt.Sprintf("message %d in %d", ref.MessageID, ref.ChatID)
	bot, err := c.ready(ctx)
	if err != nil {
		return channel.NewDeliveryError("edit_approvers", target, err)
	}

	edit := tgbotapi.NewEditMessageText(ref.ChatID, ref.MessageID, msg.Text)
	if len(msg.Options.Choices) > 0 {
		markup := inlineKeyboard(msg.Options.Choices)
		edit.ReplyMarkup = &markup
	}
	if _, err := bot.Request(edit); err != nil {
		return channel.NewDeliveryError("edit_approvers", target, classify(err))
	}
	return nil
}

func (c *Channel) AcknowledgeAction(ctx context.Context, ref channel.ActionRef, text string, alert bool) error {
	target := "callback " + ref.CallbackID
	bot, err := c.ready(ctx)
	if err != nil {
		return channel.NewDeliveryError("ack_action", target, err)
	}

	answer := tgbotapi.NewCallback(ref.CallbackID, text)
	if alert {
		answer = tgbotapi.NewCallbackWithAlert(ref.CallbackID, text)
	}
	if _, err := bot.Request(answer); err != nil {
		return channel.NewDeliveryError("ack_action", target, classify(err))
	}
	return nil
}

func (c *Channel) send(ctx context.Context, op string, chatID int64, msg channel.Message) (channel.MessageRef, error) {
	target := strconv.FormatInt(chatID, 10)
	bot, err := c.ready(ctx)
	if err != nil {
		return channel.MessageRef{}, channel.NewDeliveryError(op, target, err)
	}

	sent, err := bot.Send(buildMessage(chatID, msg))
	if err != nil {
		return channel.MessageRef{}, channel.NewDeliveryError(op, target, classify(err))
	}
	return channel.MessageRef{ChatID: chatID, MessageID: sent.MessageID}, nil
}

func (c *Channel) ready(ctx context.Context) (botAPI, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	bot := c.client()
	if bot == nil {
		return nil, fmt.Errorf("bot not initialized")
	}
	return bot, nil
}

func (c *Channel) client() botAPI {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bot
}

func buildMessage(chatID int64, msg channel.Message) tgbotapi.MessageConfig {
	out := tgbotapi.NewMessage(chatID, msg.Text)
	switch opts := msg.Options; {
	case len(opts.Choices) > 0:
		out.ReplyMarkup = inlineKeyboard(opts.Choices)
	case len(opts.Replies) > 0:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(opts.Replies))
		for _, row := range opts.Replies {
			buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
			}
			rows = append(rows, buttons)
		}
		keyboard := tgbotapi.NewReplyKeyboard(rows...)
		keyboard.OneTimeKeyboard = true
		keyboard.ResizeKeyboard = true
		out.ReplyMarkup = keyboard
	case opts.RemoveKeyboard:
		out.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	}
	return out
}

func inlineKeyboard(choices [][]channel.Choice) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(choices))
	for _, row := range choices {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, choice := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(choice.Label, choice.Token))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// classify marks API rejections that a retry cannot fix as permanent.
func classify(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.Code {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
		return channel.Permanent(err)
	}
	return err
}

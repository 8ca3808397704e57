package telegram

import (
	"context"
	"fmt"

	"crypto-alert-bot/internal/types"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// NewBot creates new telegram bot
func NewBot(c BotConfig) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(c.Token)
	if err != nil {
		return nil, errors.Wrap(err, "could not create telegram bot")
	}

	api.Debug = c.Debug

	return newBot(api, c), nil
}

func newBot(api botAPI, c BotConfig) *Bot {
	return &Bot{
		api:    api,
		Config: c,
	}
}

// GetUpdatesChannel gets new updates updates
func (b *Bot) GetUpdatesChannel() tgbotapi.UpdatesChannel {
	updatesConfig := tgbotapi.NewUpdate(0)
	if b.Config.UpdatesTimeout > 0 {
		updatesConfig.Timeout = b.Config.UpdatesTimeout
	}
	return b.api.GetUpdatesChan(updatesConfig)
}

// StopReceivingUpdates closes the updates channel.
func (b *Bot) StopReceivingUpdates() {
	b.api.StopReceivingUpdates()
}

// SendMessage sends a telegram message
func (b *Bot) SendMessage(m Message) error {
	msg := tgbotapi.NewMessage(m.ChatID, m.Text)
	msg.ReplyToMessageID = m.MessageID
	msg.DisableWebPagePreview = true
	if m.Markdown {
		msg.ParseMode = tgbotapi.ModeMarkdownV2
	}
	if m.ReplyMarkup != nil {
		msg.ReplyMarkup = m.ReplyMarkup
	}
	_, err := b.api.Send(msg)
	return errors.Wrapf(err, "could not send message to chat %d", m.ChatID)
}

// Notify delivers a plain-text alert notification to chatID.
func (b *Bot) Notify(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: chat %d: %w", types.ErrNotify, chatID, err)
	}
	if err := b.SendMessage(Message{ChatID: chatID, Text: text}); err != nil {
		return fmt.Errorf("%w: %w", types.ErrNotify, err)
	}
	return nil
}

func (b *Bot) editMessage(chatID int64, messageID int, text string, markup tgbotapi.InlineKeyboardMarkup) error {
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, markup)
	_, err := b.api.Send(edit)
	return errors.Wrapf(err, "could not edit message %d in chat %d", messageID, chatID)
}

func (b *Bot) answerCallback(callbackID, text string) error {
	_, err := b.api.Request(tgbotapi.NewCallback(callbackID, text))
	return errors.Wrap(err, "could not answer callback query")
}

package telegram

import (
	"context"
	"fmt"
	"strings"

	"crypto-alert-bot/internal/alert"
	"crypto-alert-bot/internal/currency"
	"crypto-alert-bot/internal/metrics"
	"crypto-alert-bot/internal/price"
	"crypto-alert-bot/internal/session"
	"crypto-alert-bot/internal/types"
	"crypto-alert-bot/lib/helpers"
	"crypto-alert-bot/lib/translation"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	actionMenu  = "menu"
	actionPrice = "price"
	actionMin   = "min"
	actionMax   = "max"
	actionBack  = "back"
)

// Handler turns Telegram updates into menu screens and alerts.
type Handler struct {
	bot      *Bot
	alerts   AlertService
	prices   price.Oracle
	sessions session.Store
	registry *currency.Registry
	metrics  *metrics.Metrics
}

func NewHandler(bot *Bot, alerts AlertService, prices price.Oracle, sessions session.Store, registry *currency.Registry, m *metrics.Metrics) *Handler {
	return &Handler{
		bot:      bot,
		alerts:   alerts,
		prices:   prices,
		sessions: sessions,
		registry: registry,
		metrics:  m,
	}
}

// HandleUpdate processes Telegram updates
func (h *Handler) HandleUpdate(ctx context.Context, u tgbotapi.Update) {
	if u.CallbackQuery != nil {
		h.handleCallback(ctx, u.CallbackQuery)
		return
	}

	msg := u.Message
	if msg == nil || msg.Chat == nil {
		log.Debug("Received non-message update")
		return
	}

	h.metrics.TrackMessage(msg.Chat.ID)
	key := sessionKey(msg.Chat, msg.From)

	if msg.IsCommand() {
		log.Debugf("received command: %s", msg.Command())
		h.metrics.CommandsProcessed.Inc()

		switch msg.Command() {
		case "start":
			h.clearSession(ctx, key)
			h.sendMainMenu(msg.Chat.ID)
		case "alerts":
			h.sendAlertList(ctx, msg.Chat.ID)
		default:
			h.send(Message{ChatID: msg.Chat.ID, Text: translation.Translate(helpText)})
		}
		return
	}

	state, err := h.sessions.Get(ctx, key)
	if err != nil {
		log.WithField("session", key.String()).WithError(err).Error("Failed to load session")
		return
	}
	if !state.AwaitingThreshold() {
		return
	}
	h.handleThresholdInput(ctx, msg, key, state)
}

const helpText = "Use /start to pick a cryptocurrency, check its price or set a minimum or maximum alert. " +
	"Use /alerts to see your pending alerts."

func (h *Handler) handleCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	var answer string
	defer func() {
		if err := h.bot.answerCallback(q.ID, answer); err != nil {
			log.Error(err)
		}
	}()

	if q.Message == nil || q.Message.Chat == nil {
		answer = translation.Translate("This message is too old, use /start.")
		return
	}
	h.metrics.CommandsProcessed.Inc()

	chatID := q.Message.Chat.ID
	messageID := q.Message.MessageID
	key := sessionKey(q.Message.Chat, q.From)

	action, symbol, _ := strings.Cut(q.Data, "|")
	if action == actionBack {
		h.clearSession(ctx, key)
		h.edit(chatID, messageID, translation.Translate("Choose a cryptocurrency:"), h.mainMenuKeyboard())
		return
	}

	cur, ok := h.registry.Lookup(symbol)
	if !ok {
		answer = translation.Translate("Unknown action. Please try again.")
		return
	}

	switch action {
	case actionMenu:
		h.edit(chatID, messageID,
			translation.Translate("You selected %s. Choose an action:", cur.Name),
			currencyMenuKeyboard(cur))

	case actionPrice:
		text := translation.Translate("Price is temporarily unavailable, please try again later.")
		p, err := h.prices.GetPrice(ctx, cur)
		if err != nil {
			log.WithField("currency", cur.Symbol).WithError(err).Warn("Price request failed")
		} else {
			text = translation.Translate("%s price in USD: %s USD", cur.Name, helpers.FormatPriceUS(p, false))
		}
		h.edit(chatID, messageID, text, backKeyboard(cur))

	case actionMin, actionMax:
		thresholdType := types.ThresholdType(action)
		prompt := translation.Translate("Enter the minimum value for %s in USD:", cur.Name)
		if thresholdType == types.ThresholdMax {
			prompt = translation.Translate("Enter the maximum value for %s in USD:", cur.Name)
		}

		if err := h.sessions.Set(ctx, key, session.State{Currency: cur.Symbol, ThresholdType: thresholdType}); err != nil {
			log.WithField("session", key.String()).WithError(err).Error("Failed to save session")
			answer = translation.Translate("Something went wrong, please try again.")
			return
		}
		h.edit(chatID, messageID, prompt, backKeyboard(cur))

	default:
		answer = translation.Translate("Unknown action. Please try again.")
	}
}

// handleThresholdInput creates the alert the user was asked about. Invalid
// input keeps the session so the user can type the value again; otherwise
// the session is cleared and the main menu shown.
func (h *Handler) handleThresholdInput(ctx context.Context, msg *tgbotapi.Message, key session.Key, state session.State) {
	chatID := msg.Chat.ID

	threshold, err := alert.ParseThreshold(msg.Text)
	if err == nil {
		_, err = h.alerts.CreateAlert(ctx, chatID, state.Currency, threshold, state.ThresholdType)
	}

	if errors.Is(err, types.ErrValidation) {
		h.send(Message{ChatID: chatID, MessageID: msg.MessageID, Text: translation.Translate("Please enter a valid number.")})
		return
	}

	defer func() {
		h.clearSession(ctx, key)
		h.sendMainMenu(chatID)
	}()

	var reply string
	switch {
	case err == nil:
		name := helpers.Capitalize(state.Currency)
		if cur, ok := h.registry.Lookup(state.Currency); ok {
			name = cur.Name
		}
		amount := helpers.FormatPriceUS(threshold, false)
		if state.ThresholdType == types.ThresholdMin {
			reply = translation.Translate("Minimum value for %s set to %s USD", name, amount)
		} else {
			reply = translation.Translate("Maximum value for %s set to %s USD", name, amount)
		}
	default:
		log.WithField("chat_id", chatID).WithError(err).Error("Failed to save alert")
		reply = translation.Translate("Failed to save alert, please try again later.")
	}

	h.send(Message{ChatID: chatID, MessageID: msg.MessageID, Text: reply})
}

func (h *Handler) sendAlertList(ctx context.Context, chatID int64) {
	alerts, err := h.alerts.PendingAlerts(ctx, chatID)
	if err != nil {
		log.WithField("chat_id", chatID).WithError(err).Error("Failed to fetch alerts")
		h.send(Message{ChatID: chatID, Text: translation.Translate("Failed to fetch your alerts, please try again later.")})
		return
	}

	if len(alerts) == 0 {
		h.send(Message{ChatID: chatID, Text: translation.Translate("You have no active alerts.")})
		return
	}

	var list strings.Builder
	list.WriteString("*" + helpers.EscapeMarkdownV2(translation.Translate("Your active alerts:")) + "*\n")
	for _, a := range alerts {
		name := helpers.Capitalize(a.Currency)
		if cur, ok := h.registry.Lookup(a.Currency); ok {
			name = cur.Name
		}

		condition := translation.Translate("below")
		if a.ThresholdType == types.ThresholdMax {
			condition = translation.Translate("at or above")
		}

		list.WriteString(fmt.Sprintf("• *%s* %s %s USD \\(%s\\)\n",
			helpers.EscapeMarkdownV2(name),
			helpers.EscapeMarkdownV2(condition),
			helpers.FormatPriceUS(a.Threshold, true),
			helpers.EscapeMarkdownV2(helpers.FormatSince(a.CreatedAt)),
		))
	}

	h.send(Message{ChatID: chatID, Text: list.String(), Markdown: true})
}

func (h *Handler) sendMainMenu(chatID int64) {
	h.send(Message{
		ChatID:      chatID,
		Text:        translation.Translate("Choose a cryptocurrency:"),
		ReplyMarkup: h.mainMenuKeyboard(),
	})
}

func (h *Handler) mainMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for _, cur := range h.registry.All() {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(cur.Name, callbackData(actionMenu, cur)),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func currencyMenuKeyboard(cur currency.Currency) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(translation.Translate("Get price"), callbackData(actionPrice, cur))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(translation.Translate("Set minimum value"), callbackData(actionMin, cur))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(translation.Translate("Set maximum value"), callbackData(actionMax, cur))),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(translation.Translate("Back"), actionBack)),
	)
}

func backKeyboard(cur currency.Currency) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(translation.Translate("Back"), callbackData(actionMenu, cur))),
	)
}

func callbackData(action string, cur currency.Currency) string {
	return action + "|" + cur.Symbol
}

func sessionKey(chat *tgbotapi.Chat, from *tgbotapi.User) session.Key {
	k := session.Key{ChatID: chat.ID}
	if from != nil {
		k.UserID = from.ID
	}
	return k
}

func (h *Handler) clearSession(ctx context.Context, key session.Key) {
	if err := h.sessions.Clear(ctx, key); err != nil {
		log.WithField("session", key.String()).WithError(err).Warn("Failed to clear session")
	}
}

func (h *Handler) send(m Message) {
	if err := h.bot.SendMessage(m); err != nil {
		log.Error(err)
	}
}

func (h *Handler) edit(chatID int64, messageID int, text string, markup tgbotapi.InlineKeyboardMarkup) {
	if err := h.bot.editMessage(chatID, messageID, text, markup); err != nil {
		log.Error(err)
	}
}

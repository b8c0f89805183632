package messenger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram is a Messenger backed by the Bot API with long polling.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	logger *slog.Logger

	mu        sync.RWMutex
	usernames map[int64]string
}

func NewTelegram(token string, logger *slog.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	logger.Info("telegram authorized", "bot", bot.Self.UserName)
	return &Telegram{bot: bot, logger: logger, usernames: make(map[int64]string)}, nil
}

func (t *Telegram) Events(ctx context.Context) (<-chan Event, error) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := t.bot.GetUpdatesChan(u)
	out := make(chan Event)
	go func() {
		defer close(out)
		defer t.bot.StopReceivingUpdates()
		for {
			select {
			case <-ctx.Done():
				return
			case upd, ok := <-updates:
				if !ok {
					return
				}
				ev, ok := t.toEvent(upd)
				if !ok {
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (t *Telegram) toEvent(upd tgbotapi.Update) (Event, bool) {
	switch {
	case upd.Message != nil:
		m := upd.Message
		if m.From != nil {
			t.rememberUsername(m.From.ID, m.From.UserName)
		}
		return Event{ChatID: m.Chat.ID, FromID: m.Chat.ID, Text: m.Text}, true
	case upd.CallbackQuery != nil:
		cb := upd.CallbackQuery
		if cb.From == nil {
			return Event{}, false
		}
		t.rememberUsername(cb.From.ID, cb.From.UserName)
		// stop the client's loading spinner; the reply is best-effort
		if _, err := t.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
			t.logger.Debug("callback answer failed", "error", err)
		}
		return Event{ChatID: cb.From.ID, FromID: cb.From.ID, Callback: cb.Data, IsCallback: true}, true
	default:
		return Event{}, false
	}
}

func (t *Telegram) rememberUsername(id int64, name string) {
	if name == "" {
		return
	}
	t.mu.Lock()
	t.usernames[id] = name
	t.mu.Unlock()
}

func (t *Telegram) Send(ctx context.Context, chatID int64, msg Message) (int, error) {
	cfg := tgbotapi.NewMessage(chatID, msg.Text)
	if msg.Markdown {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}
	if msg.Keyboard != nil {
		cfg.ReplyMarkup = replyMarkup(msg.Keyboard)
	}
	sent, err := t.bot.Send(cfg)
	if err != nil {
		return 0, fmt.Errorf("telegram send to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

func (t *Telegram) Edit(ctx context.Context, chatID int64, messageID int, msg Message) error {
	cfg := tgbotapi.NewEditMessageText(chatID, messageID, msg.Text)
	if msg.Markdown {
		cfg.ParseMode = tgbotapi.ModeMarkdown
	}
	if msg.Keyboard != nil && msg.Keyboard.Inline {
		markup := inlineMarkup(msg.Keyboard)
		cfg.ReplyMarkup = &markup
	}
	_, err := t.bot.Send(cfg)
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		desc := strings.ToLower(apiErr.Message)
		switch {
		case strings.Contains(desc, "message is not modified"):
			return nil
		case strings.Contains(desc, "message to edit not found"), strings.Contains(desc, "message can't be edited"):
			return ErrMessageNotFound
		}
	}
	return fmt.Errorf("telegram edit %d/%d: %w", chatID, messageID, err)
}

func (t *Telegram) Username(ctx context.Context, chatID int64) (string, error) {
	t.mu.RLock()
	name, ok := t.usernames[chatID]
	t.mu.RUnlock()
	if ok {
		return name, nil
	}
	chat, err := t.bot.GetChat(tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: chatID}})
	if err != nil {
		return "", fmt.Errorf("telegram get chat %d: %w", chatID, err)
	}
	t.rememberUsername(chatID, chat.UserName)
	return chat.UserName, nil
}

func replyMarkup(kb *Keyboard) any {
	if kb.Inline {
		return inlineMarkup(kb)
	}
	rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewKeyboardButton(b.Text))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewReplyKeyboard(rows...)
}

func inlineMarkup(kb *Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.Rows))
	for _, row := range kb.Rows {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			data := b.Data
			if data == "" {
				data = b.Text
			}
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, data))
		}
		rows = append(rows, buttons)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

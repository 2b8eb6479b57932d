package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf8"

	tgbot "github.com/go-telegram/bot"
)

// maxMessageLength is Telegram's hard limit on message text.
const maxMessageLength = 4096

// truncateText shortens text to fit Telegram's message limit, cutting on a
// rune boundary so the result stays valid UTF-8, and marks the cut with an
// ellipsis.
func truncateText(text string) string {
	if len(text) <= maxMessageLength {
		return text
	}
	cut := maxMessageLength - 3
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}

// Notifier delivers job results to target chats.
type Notifier struct {
	bot    *tgbot.Bot
	logger *slog.Logger
}

// NewNotifier creates a Notifier backed by the given bot instance.
func NewNotifier(b *tgbot.Bot, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		bot:    b,
		logger: logger.With("component", "notifier"),
	}
}

// Deliver sends text to every chat in chatIDs. Delivery continues past
// individual chat failures; the errors are joined and returned together so
// one unreachable chat does not starve the others.
func (n *Notifier) Deliver(ctx context.Context, chatIDs []int64, text string) error {
	if text == "" || len(chatIDs) == 0 {
		return nil
	}

	if len(text) > maxMessageLength {
		n.logger.WarnContext(ctx, "Truncating over-long result text",
			"length", len(text), "max", maxMessageLength)
		text = truncateText(text)
	}

	var errs []error
	for _, chatID := range chatIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		_, err := n.bot.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID: chatID,
			Text:   text,
		})
		if err != nil {
			n.logger.ErrorContext(ctx, "Failed to deliver result", "chat_id", chatID, "error", err)
			errs = append(errs, fmt.Errorf("chat %d: %w", chatID, err))
			continue
		}
		n.logger.DebugContext(ctx, "Delivered result", "chat_id", chatID)
	}

	return errors.Join(errs...)
}

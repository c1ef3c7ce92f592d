package alerts

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotAPI is the subset of *tgbotapi.BotAPI used for delivery.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSender delivers messages to Telegram chats.
type TelegramSender struct {
	api BotAPI
}

// NewTelegramSender creates a sender over an authorized bot.
func NewTelegramSender(api BotAPI) *TelegramSender {
	return &TelegramSender{api: api}
}

// NewTelegramBot authorizes token against the Bot API.
func NewTelegramBot(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return bot, nil
}

func (t *TelegramSender) Name() string { return "telegram" }

// Send posts msg to the destination, which is either a numeric chat ID or
// an @channel username.
func (t *TelegramSender) Send(_ context.Context, msg Message) error {
	text := escapeMarkdown(msg.Text)
	if msg.Subject != "" {
		text = "*" + escapeMarkdown(msg.Subject) + "*\n\n" + text
	}

	var out tgbotapi.MessageConfig
	if chatID, err := strconv.ParseInt(msg.Destination, 10, 64); err == nil {
		out = tgbotapi.NewMessage(chatID, text)
	} else if strings.HasPrefix(msg.Destination, "@") {
		out = tgbotapi.NewMessageToChannel(msg.Destination, text)
	} else {
		return fmt.Errorf("telegram destination %q is neither a chat id nor an @channel", msg.Destination)
	}
	out.ParseMode = tgbotapi.ModeMarkdownV2
	out.DisableWebPagePreview = true

	if _, err := t.api.Send(out); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

var markdownEscaper = strings.NewReplacer(
	"\\", "\\\\",
	"_", "\\_",
	"*", "\\*",
	"[", "\\[",
	"]", "\\]",
	"(", "\\(",
	")", "\\)",
	"~", "\\~",
	"`", "\\`",
	">", "\\>",
	"#", "\\#",
	"+", "\\+",
	"-", "\\-",
	"=", "\\=",
	"|", "\\|",
	"{", "\\{",
	"}", "\\}",
	".", "\\.",
	"!", "\\!",
)

func escapeMarkdown(text string) string {
	return markdownEscaper.Replace(text)
}

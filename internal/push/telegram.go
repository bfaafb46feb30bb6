package push

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/anri-helpdesk/helpdesk/internal/config"
)

// Telegram caps text messages at 4096 characters. The reply body is cut
// shorter so the header lines and the ticket link still fit.
const telegramMaxMessage = 3500

// TelegramSender is the subset of tgbotapi.BotAPI used here.
type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Telegram posts reply events to a chat through the bot API.
type Telegram struct {
	bot     TelegramSender
	chatID  int64
	baseURL string
}

// NewTelegram builds a bot client for cfg. It makes no API call, so an
// unreachable bot API only fails the pushes themselves.
func NewTelegram(cfg config.TelegramConfig, helpdeskURL string, timeout time.Duration) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram bot token is empty")
	}
	chatID, err := cfg.ParseChatID()
	if err != nil {
		return nil, err
	}
	endpoint := cfg.APIEndpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	bot := &tgbotapi.BotAPI{
		Token:  cfg.Token,
		Client: &http.Client{Timeout: timeout},
		Buffer: 100,
	}
	bot.SetAPIEndpoint(endpoint)
	return NewTelegramWithSender(bot, chatID, helpdeskURL), nil
}

// NewTelegramWithSender builds the channel around an existing sender.
func NewTelegramWithSender(bot TelegramSender, chatID int64, helpdeskURL string) *Telegram {
	return &Telegram{bot: bot, chatID: chatID, baseURL: strings.TrimRight(helpdeskURL, "/")}
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Push(ctx context.Context, ev Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(t.chatID, t.format(ev))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	type result struct{ err error }
	done := make(chan result, 1)
	go func() {
		_, err := t.bot.Send(msg)
		done <- result{err}
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("send message: %w", r.err)
		}
		return nil
	}
}

func (t *Telegram) format(ev Event) string {
	p := ev.Payload
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", html.EscapeString(title(ev)))
	if p != nil {
		fmt.Fprintf(&b, "Ticket: <code>%s</code>\n", html.EscapeString(p.TrackID))
		fmt.Fprintf(&b, "Subject: %s\n", html.EscapeString(p.Subject))
		fmt.Fprintf(&b, "From: %s\n", html.EscapeString(p.LastReplyBy))
	}
	b.WriteString("\n")
	b.WriteString(html.EscapeString(truncate(strings.TrimSpace(ev.RawMessage), telegramMaxMessage)))
	if p != nil && t.baseURL != "" {
		link := t.baseURL + "/admin/admin_ticket.php?track=" + p.TrackID
		fmt.Fprintf(&b, "\n\n<a href=\"%s\">Open ticket</a>", html.EscapeString(link))
	}
	return b.String()
}

package notify

import (
	"context"
	"net/http"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	pkgerrors "github.com/pkg/errors"
)

var _ Channel = &Telegram{}

// Telegram sends messages through a bot to a single chat.
type Telegram struct {
	// Endpoint is the Bot API URL format, tgbotapi.APIEndpoint when empty.
	Endpoint string
	Token    string
	ChatID   int64
	On       bool
	Client   HTTPClient

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

func (t *Telegram) Name() string { return "telegram" }

func (t *Telegram) Enabled() bool { return t.On && t.Token != "" && t.ChatID != 0 }

// ctxClient attaches ctx to every request the bot library makes, which
// builds its requests without one.
type ctxClient struct {
	ctx  context.Context
	base HTTPClient
}

func (c ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.base.Do(req.WithContext(c.ctx))
}

func (t *Telegram) httpClient() HTTPClient {
	if t.Client == nil {
		return http.DefaultClient
	}
	return t.Client
}

// botAPI creates the bot on first use. Creating it calls getMe, which needs
// the network, so it cannot happen at startup. The returned copy sends with
// ctx.
func (t *Telegram) botAPI(ctx context.Context) (*tgbotapi.BotAPI, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	client := ctxClient{ctx: ctx, base: t.httpClient()}

	if t.bot == nil {
		endpoint := t.Endpoint
		if endpoint == "" {
			endpoint = tgbotapi.APIEndpoint
		}
		bot, err := tgbotapi.NewBotAPIWithClient(t.Token, endpoint, client)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "failed to initialize telegram bot")
		}
		t.bot = bot
	}

	bot := *t.bot
	bot.Client = client
	return &bot, nil
}

// Send posts the title and body as one message to the chat. ctx bounds
// both the bot setup and the message.
func (t *Telegram) Send(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	bot, err := t.botAPI(ctx)
	if err != nil {
		return err
	}

	msg := tgbotapi.NewMessage(t.ChatID, title+"\n"+body)
	if _, err := bot.Send(msg); err != nil {
		return pkgerrors.Wrap(err, "telegram: failed to send message")
	}
	return nil
}

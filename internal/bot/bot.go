package bot

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"

	"ssh-v2ray-bot/internal/config"
	"ssh-v2ray-bot/internal/gate"
	"ssh-v2ray-bot/internal/issuer"
	"ssh-v2ray-bot/internal/ledger"
	"ssh-v2ray-bot/internal/models"
	"ssh-v2ray-bot/internal/ratelimit"
	"ssh-v2ray-bot/internal/store"
)

const historyLimit = 10

type HistoryReader interface {
	History(ctx context.Context, userID int64, limit int) ([]models.GenerationRecord, error)
}

type StatsReader interface {
	Stats(ctx context.Context, activeSince time.Time) (store.Stats, error)
}

// Deps carries everything the handlers talk to.
type Deps struct {
	Engine       *ledger.Engine
	Issuer       *issuer.Issuer
	History      HistoryReader
	Stats        StatsReader
	Limiter      *ratelimit.Limiter
	Admins       gate.AdminSet
	Channels     []config.Channel
	Username     string
	AdminCredits int64
}

type Bot struct {
	Instance *telego.Bot
	Deps
}

func NewBot(token string, deps Deps) (*Bot, error) {
	tgBot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &Bot{Instance: tgBot, Deps: deps}, nil
}

// Start long-polls until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.Instance.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.Instance, updates)
	if err != nil {
		return fmt.Errorf("failed to create bot handler: %w", err)
	}

	b.registerUserHandlers(handler)
	b.registerAdminHandlers(handler)

	log.Printf("Bot @%s is polling for updates", b.Username)
	handler.Start()
	return nil
}

// Notify sends a plain message to a user's private chat. The reconciler uses
// it to announce late refunds.
func (b *Bot) Notify(ctx context.Context, userID int64, text string) error {
	if _, err := b.Instance.SendMessage(ctx, tu.Message(tu.ID(userID), text)); err != nil {
		return fmt.Errorf("notify %d: %w", userID, err)
	}
	return nil
}

// command adapts a message handler; messages without a sender are dropped.
func command(fn func(ctx context.Context, msg telego.Message)) th.Handler {
	return func(ctx *th.Context, update telego.Update) error {
		if update.Message == nil || update.Message.From == nil {
			return nil
		}
		fn(ctx.Context(), *update.Message)
		return nil
	}
}

// callback adapts a callback handler and always answers the query so the
// client stops its spinner.
func callback(fn func(ctx context.Context, q telego.CallbackQuery)) th.Handler {
	return func(ctx *th.Context, update telego.Update) error {
		q := update.CallbackQuery
		if q == nil {
			return nil
		}
		fn(ctx.Context(), *q)
		_ = ctx.Bot().AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(q.ID))
		return nil
	}
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, markup telego.ReplyMarkup) {
	params := tu.Message(tu.ID(chatID), text).WithParseMode(telego.ModeHTML)
	if markup != nil {
		params = params.WithReplyMarkup(markup)
	}
	if _, err := b.Instance.SendMessage(ctx, params); err != nil {
		log.Printf("Failed to send message to %d: %v", chatID, err)
	}
}

func (b *Bot) sendPhoto(ctx context.Context, chatID int64, png []byte, caption string) {
	params := tu.Photo(tu.ID(chatID), tu.FileFromBytes(png, "qrcode.png")).
		WithCaption(caption).
		WithParseMode(telego.ModeHTML)
	if _, err := b.Instance.SendPhoto(ctx, params); err != nil {
		log.Printf("Failed to send photo to %d: %v", chatID, err)
	}
}

func mainMenu() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🚀 Generate Config").WithCallbackData("generate"),
			tu.InlineKeyboardButton("🎯 My Coins").WithCallbackData("points"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🔗 Refer Friends").WithCallbackData("refer"),
			tu.InlineKeyboardButton("📢 Join Channels").WithCallbackData("join"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("📜 History").WithCallbackData("history"),
			tu.InlineKeyboardButton("❓ Help").WithCallbackData("help"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("📊 Statistics").WithCallbackData("stats"),
		),
	)
}

func backButton() *telego.InlineKeyboardMarkup {
	return tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("« Back").WithCallbackData("main_menu"),
		),
	)
}

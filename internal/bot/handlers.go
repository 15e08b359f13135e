package bot

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/skip2/go-qrcode"

	"ssh-v2ray-bot/internal/gate"
	"ssh-v2ray-bot/internal/issuer"
	"ssh-v2ray-bot/internal/ledger"
	"ssh-v2ray-bot/internal/provider"
	"ssh-v2ray-bot/internal/ratelimit"
	"ssh-v2ray-bot/internal/referral"
)

const (
	msgNotRegistered = "👋 Please send /start first."
	msgSlowDown      = "⏳ Too many requests, try again in a minute."
	msgInternal      = "⚠️ Something went wrong, please try again later."
)

func (b *Bot) registerUserHandlers(handler *th.BotHandler) {
	handler.Handle(command(func(ctx context.Context, msg telego.Message) {
		b.handleStart(ctx, msg)
	}), th.CommandEqual("start"))

	handler.Handle(command(func(ctx context.Context, msg telego.Message) {
		b.showKinds(ctx, msg.Chat.ID, msg.From.ID)
	}), th.CommandEqual("generate"))
	handler.Handle(callback(func(ctx context.Context, q telego.CallbackQuery) {
		b.showKinds(ctx, q.From.ID, q.From.ID)
	}), th.CallbackDataEqual("generate"))

	// gen_ssh, gen_vmess, gen_vless
	handler.Handle(callback(func(ctx context.Context, q telego.CallbackQuery) {
		kind, err := provider.ParseKind(strings.TrimPrefix(q.Data, "gen_"))
		if err != nil {
			log.Printf("Ignoring callback %q from %d: %v", q.Data, q.From.ID, err)
			return
		}
		b.generate(ctx, q.From.ID, q.From.ID, kind)
	}), th.CallbackDataPrefix("gen_"))

	handler.Handle(command(func(ctx context.Context, msg telego.Message) {
		b.showPoints(ctx, msg.Chat.ID, msg.From.ID)
	}), th.CommandEqual("points"))
	handler.Handle(callback(func(ctx context.Context, q telego.CallbackQuery) {
		b.showPoints(ctx, q.From.ID, q.From.ID)
	}), th.CallbackDataEqual("points"))

	handler.Handle(command(func(ctx context.Context, msg telego.Message) {
		b.showReferral(ctx, msg.Chat.ID, msg.From.ID)
	}), th.CommandEqual("refer"))
	handler.Handle(callback(func(ctx context.Context, q telego.CallbackQuery) {
		b.showReferral(ctx, q.From.ID, q.From.ID)
	}), th.CallbackDataEqual("refer"))
	handler.Handle(callback(func(ctx context.Context, q telego.CallbackQuery) {
		b.sendReferralQR(ctx, q.From.ID, q.From.ID)
	}), th.CallbackDataEqual("refer_qr"))

	handler.Handle(command(func(ctx context.Context, msg telego.Message) {
		b.checkChannels(ctx, msg.Chat.ID, msg.From.ID)
	}), th.CommandEqual("join"))
	handler.Handle(callback(func(ctx context.Context, q telego.CallbackQuery) {
		b.checkChannels(ctx, q.From.ID, q.From.ID)
	}), th.Or(th.CallbackDataEqual("join"), th.CallbackDataEqual("join_check")))

	handler.Handle(command(func(ctx context.Context, msg telego.Message) {
		b.showHistory(ctx, msg.Chat.ID, msg.From.ID)
	}), th.CommandEqual("history"))
	handler.Handle(callback(func(ctx context.Context, q telego.CallbackQuery) {
		b.showHistory(ctx, q.From.ID, q.From.ID)
	}), th.CallbackDataEqual("history"))

	handler.Handle(command(func(ctx context.Context, msg telego.Message) {
		b.showStats(ctx, msg.Chat.ID)
	}), th.CommandEqual("stats"))
	handler.Handle(callback(func(ctx context.Context, q telego.CallbackQuery) {
		b.showStats(ctx, q.From.ID)
	}), th.CallbackDataEqual("stats"))

	handler.Handle(command(func(ctx context.Context, msg telego.Message) {
		b.send(ctx, msg.Chat.ID, helpText(b.Engine.Policy()), backButton())
	}), th.CommandEqual("help"))
	handler.Handle(callback(func(ctx context.Context, q telego.CallbackQuery) {
		b.send(ctx, q.From.ID, helpText(b.Engine.Policy()), backButton())
	}), th.CallbackDataEqual("help"))

	handler.Handle(callback(func(ctx context.Context, q telego.CallbackQuery) {
		b.showMenu(ctx, q.From.ID, q.From.ID, q.From.FirstName, "")
	}), th.CallbackDataEqual("main_menu"))
}

func (b *Bot) handleStart(ctx context.Context, msg telego.Message) {
	userID := msg.From.ID

	var referrerID int64
	if payload := startPayload(msg.Text); payload != "" {
		id, err := referral.Decode(payload)
		if err != nil {
			log.Printf("Ignoring start payload %q from %d: %v", payload, userID, err)
		} else {
			referrerID = id
		}
	}

	note := ""
	created, err := b.Engine.CreateAccount(ctx, userID, referrerID)
	switch {
	case err == nil:
		note = referralNote(created.Referral, b.Engine.Policy())
	case errors.Is(err, ledger.ErrAlreadyExists):
	default:
		log.Printf("Failed to create account %d: %v", userID, err)
		b.send(ctx, msg.Chat.ID, msgInternal, nil)
		return
	}

	b.showMenu(ctx, msg.Chat.ID, userID, msg.From.FirstName, note)
}

func (b *Bot) showMenu(ctx context.Context, chatID, userID int64, firstName, note string) {
	acc, ok := b.account(ctx, chatID, userID)
	if !ok {
		return
	}
	b.send(ctx, chatID, welcomeText(firstName, acc.Balance, b.Engine.Policy())+note, mainMenu())
}

func (b *Bot) showKinds(ctx context.Context, chatID, userID int64) {
	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🔐 SSH").WithCallbackData("gen_"+string(provider.KindSSH)),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("⚡ VMess").WithCallbackData("gen_"+string(provider.KindVMess)),
			tu.InlineKeyboardButton("🚀 VLess").WithCallbackData("gen_"+string(provider.KindVLess)),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("« Back").WithCallbackData("main_menu"),
		),
	)
	b.send(ctx, chatID, kindMenuText(b.Engine.Policy(), b.Admins.Contains(userID)), keyboard)
}

func (b *Bot) generate(ctx context.Context, chatID, userID int64, kind provider.Kind) {
	if !b.Limiter.Allow(ctx, userID, ratelimit.ActionGenerate) {
		b.send(ctx, chatID, msgSlowDown, nil)
		return
	}

	res, err := b.Issuer.Issue(ctx, userID, b.Admins.Contains(userID), kind)
	switch {
	case errors.Is(err, issuer.ErrGenerationFailed):
		b.send(ctx, chatID, generationFailedText(res.Refunded), backButton())
		return
	case err != nil:
		log.Printf("Failed to issue %s for %d: %v", kind, userID, err)
		b.send(ctx, chatID, msgInternal, nil)
		return
	}

	d := res.Decision
	if !d.Allowed {
		if d.Reason == gate.AccountNotFound {
			b.send(ctx, chatID, msgNotRegistered, nil)
			return
		}
		keyboard := tu.InlineKeyboard(
			tu.InlineKeyboardRow(
				tu.InlineKeyboardButton("🔗 Refer Friends").WithCallbackData("refer"),
				tu.InlineKeyboardButton("📢 Join Channels").WithCallbackData("join"),
			),
		)
		b.send(ctx, chatID, insufficientText(d.Current, d.Required, b.Engine.Policy()), keyboard)
		return
	}

	log.Printf("Issued %s config to %d (%s)", kind, userID, d.Charge)
	b.send(ctx, chatID, credentialText(res.Credential, chargeLine(d)), mainMenu())

	if res.Credential.Link == "" {
		return
	}
	png, err := qrcode.Encode(res.Credential.Link, qrcode.Medium, 256)
	if err != nil {
		log.Printf("Failed to render QR for %d: %v", userID, err)
		return
	}
	b.sendPhoto(ctx, chatID, png, "📱 Scan to import")
}

func (b *Bot) showPoints(ctx context.Context, chatID, userID int64) {
	acc, ok := b.account(ctx, chatID, userID)
	if !ok {
		return
	}
	b.send(ctx, chatID, pointsText(acc, b.Engine.Policy()), mainMenu())
}

func (b *Bot) showReferral(ctx context.Context, chatID, userID int64) {
	if !b.Limiter.Allow(ctx, userID, ratelimit.ActionReferral) {
		b.send(ctx, chatID, msgSlowDown, nil)
		return
	}
	acc, ok := b.account(ctx, chatID, userID)
	if !ok {
		return
	}

	link := referral.Link(b.Username, userID)
	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("📤 Share").WithURL(shareURL(link)),
			tu.InlineKeyboardButton("📱 QR Code").WithCallbackData("refer_qr"),
		),
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("« Back").WithCallbackData("main_menu"),
		),
	)
	b.send(ctx, chatID, referText(link, acc, b.Engine.Policy()), keyboard)
}

func (b *Bot) sendReferralQR(ctx context.Context, chatID, userID int64) {
	link := referral.Link(b.Username, userID)
	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		log.Printf("Failed to render referral QR for %d: %v", userID, err)
		b.send(ctx, chatID, msgInternal, nil)
		return
	}
	b.sendPhoto(ctx, chatID, png, "🔗 Your invite link:\n<code>"+link+"</code>")
}

func (b *Bot) showHistory(ctx context.Context, chatID, userID int64) {
	recs, err := b.History.History(ctx, userID, historyLimit)
	if err != nil {
		log.Printf("Failed to load history of %d: %v", userID, err)
		b.send(ctx, chatID, msgInternal, nil)
		return
	}
	b.send(ctx, chatID, historyText(recs), backButton())
}

func (b *Bot) showStats(ctx context.Context, chatID int64) {
	st, err := b.Stats.Stats(ctx, time.Now().Add(-activeWindow))
	if err != nil {
		log.Printf("Failed to load stats: %v", err)
		b.send(ctx, chatID, "⚠️ Couldn't load statistics right now.", backButton())
		return
	}
	b.send(ctx, chatID, statsText(st), backButton())
}

// account loads the user's account and tells them what went wrong when it
// can't.
func (b *Bot) account(ctx context.Context, chatID, userID int64) (*ledger.Account, bool) {
	acc, err := b.Engine.Account(ctx, userID)
	if errors.Is(err, ledger.ErrAccountNotFound) {
		b.send(ctx, chatID, msgNotRegistered, nil)
		return nil, false
	}
	if err != nil {
		log.Printf("Failed to load account %d: %v", userID, err)
		b.send(ctx, chatID, msgInternal, nil)
		return nil, false
	}
	return acc, true
}

// startPayload returns the deep-link argument of a /start message.
func startPayload(text string) string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return ""
	}
	return fields[1]
}

func shareURL(link string) string {
	return "https://t.me/share/url?url=" + url.QueryEscape(link) +
		"&text=" + url.QueryEscape("Free SSH and V2Ray configs")
}

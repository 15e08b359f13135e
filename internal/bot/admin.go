package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"

	"ssh-v2ray-bot/internal/ledger"
)

const (
	activeWindow = 7 * 24 * time.Hour
	maxGrant     = 1_000_000_000
)

func (b *Bot) registerAdminHandlers(handler *th.BotHandler) {
	admin := func(fn func(ctx context.Context, msg telego.Message)) th.Handler {
		return command(func(ctx context.Context, msg telego.Message) {
			if !b.Admins.Contains(msg.From.ID) {
				return
			}
			fn(ctx, msg)
		})
	}

	handler.Handle(admin(b.adminCredits), th.CommandEqual("admin_credits"))
	handler.Handle(admin(b.adminGive), th.CommandEqual("admin_give"))
	handler.Handle(admin(b.adminStats), th.CommandEqual("admin_stats"))
}

// adminCredits tops the admin's own balance up to the test amount, creating
// the account first if needed.
func (b *Bot) adminCredits(ctx context.Context, msg telego.Message) {
	userID := msg.From.ID
	if _, err := b.Engine.CreateAccount(ctx, userID, 0); err != nil && !errors.Is(err, ledger.ErrAlreadyExists) {
		log.Printf("Failed to create admin account %d: %v", userID, err)
		b.send(ctx, msg.Chat.ID, msgInternal, nil)
		return
	}
	if err := b.Engine.SetBalance(ctx, userID, b.AdminCredits, ledger.ReasonAdminSet); err != nil {
		log.Printf("Failed to set admin balance of %d: %v", userID, err)
		b.send(ctx, msg.Chat.ID, msgInternal, nil)
		return
	}
	b.send(ctx, msg.Chat.ID, fmt.Sprintf("🛡 Balance set to %d coins.", b.AdminCredits), nil)
}

func (b *Bot) adminGive(ctx context.Context, msg telego.Message) {
	target, amount, err := parseAdminGive(msg.Text)
	if err != nil {
		b.send(ctx, msg.Chat.ID, "Usage: /admin_give &lt;user_id&gt; &lt;amount&gt;\n"+html.EscapeString(err.Error()), nil)
		return
	}

	balance, err := b.Engine.Credit(ctx, target, amount, ledger.ReasonAdminGrant)
	switch {
	case errors.Is(err, ledger.ErrAccountNotFound):
		b.send(ctx, msg.Chat.ID, fmt.Sprintf("User %d has not started the bot.", target), nil)
		return
	case errors.Is(err, ledger.ErrBalanceOverflow):
		b.send(ctx, msg.Chat.ID, fmt.Sprintf("User %d cannot hold that many coins.", target), nil)
		return
	case err != nil:
		log.Printf("Failed to grant %d to %d: %v", amount, target, err)
		b.send(ctx, msg.Chat.ID, msgInternal, nil)
		return
	}

	log.Printf("Admin %d granted %d coins to %d", msg.From.ID, amount, target)
	b.send(ctx, msg.Chat.ID, fmt.Sprintf("✅ +%d coins to %d, balance %d.", amount, target, balance), nil)
	if err := b.Notify(ctx, target, fmt.Sprintf("🎁 You received %d coins from the admins.", amount)); err != nil {
		log.Printf("Failed to tell %d about the grant: %v", target, err)
	}
}

func (b *Bot) adminStats(ctx context.Context, msg telego.Message) {
	b.showStats(ctx, msg.Chat.ID)
}

func parseAdminGive(text string) (userID, amount int64, err error) {
	fields := strings.Fields(text)
	if len(fields) != 3 {
		return 0, 0, errors.New("expected a user id and an amount")
	}
	userID, err = strconv.ParseInt(fields[1], 10, 64)
	if err != nil || userID <= 0 {
		return 0, 0, fmt.Errorf("invalid user id %q", fields[1])
	}
	amount, err = strconv.ParseInt(fields[2], 10, 64)
	if err != nil || amount <= 0 || amount > maxGrant {
		return 0, 0, fmt.Errorf("amount must be between 1 and %d, got %q", maxGrant, fields[2])
	}
	return userID, amount, nil
}

package bot

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"ssh-v2ray-bot/internal/config"
	"ssh-v2ray-bot/internal/ledger"
	"ssh-v2ray-bot/internal/ratelimit"
)

type channelStatus struct {
	config.Channel
	Joined bool
}

// isMemberStatus reports whether a chat member status counts as joined;
// "left" and "kicked" do not.
func isMemberStatus(status string) bool {
	switch status {
	case "creator", "administrator", "member", "restricted":
		return true
	}
	return false
}

func chatID(ch config.Channel) telego.ChatID {
	if ch.Username != "" {
		return tu.Username(ch.Username)
	}
	return tu.ID(ch.ID)
}

// channelLabel is the name shown for the i-th channel (zero based).
func channelLabel(ch config.Channel, i int) string {
	switch {
	case ch.Name != "":
		return ch.Name
	case ch.Username != "":
		return ch.Username
	}
	return fmt.Sprintf("Channel %d", i+1)
}

func allJoined(statuses []channelStatus) bool {
	for _, s := range statuses {
		if !s.Joined {
			return false
		}
	}
	return true
}

// membership asks Telegram about every sponsor channel. A failed lookup
// counts as not joined.
func (b *Bot) membership(ctx context.Context, userID int64) []channelStatus {
	statuses := make([]channelStatus, 0, len(b.Channels))
	for _, ch := range b.Channels {
		st := channelStatus{Channel: ch}
		member, err := b.Instance.GetChatMember(ctx, &telego.GetChatMemberParams{
			ChatID: chatID(ch),
			UserID: userID,
		})
		if err != nil {
			log.Printf("Failed to check membership of %d in %v: %v", userID, chatID(ch), err)
		} else {
			st.Joined = isMemberStatus(member.MemberStatus())
		}
		statuses = append(statuses, st)
	}
	return statuses
}

func (b *Bot) checkChannels(ctx context.Context, chatID, userID int64) {
	if !b.Limiter.Allow(ctx, userID, ratelimit.ActionChannel) {
		b.send(ctx, chatID, msgSlowDown, nil)
		return
	}
	if len(b.Channels) == 0 {
		b.send(ctx, chatID, "📢 There are no sponsor channels right now.", backButton())
		return
	}

	acc, ok := b.account(ctx, chatID, userID)
	if !ok {
		return
	}
	if acc.ChannelBonusClaimed {
		b.send(ctx, chatID, "✅ You already received the channel bonus.", backButton())
		return
	}

	reward := b.Engine.Policy().ChannelReward
	statuses := b.membership(ctx, userID)
	if !allJoined(statuses) {
		b.send(ctx, chatID, channelsText(statuses, reward), channelKeyboard(statuses))
		return
	}

	balance, err := b.Engine.ClaimChannelBonus(ctx, userID, reward)
	switch {
	case errors.Is(err, ledger.ErrAlreadyClaimed):
		b.send(ctx, chatID, "✅ You already received the channel bonus.", backButton())
	case err != nil:
		log.Printf("Failed to credit channel bonus to %d: %v", userID, err)
		b.send(ctx, chatID, msgInternal, nil)
	default:
		log.Printf("Channel bonus +%d for %d", reward, userID)
		b.send(ctx, chatID, fmt.Sprintf("🎉 Thanks for joining! +%d coins, balance %d.", reward, balance), mainMenu())
	}
}

func channelKeyboard(statuses []channelStatus) *telego.InlineKeyboardMarkup {
	var rows [][]telego.InlineKeyboardButton
	for i, s := range statuses {
		if s.Joined || s.URL == "" {
			continue
		}
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("📢 Join "+channelLabel(s.Channel, i)).WithURL(s.URL),
		))
	}
	rows = append(rows,
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("✅ Check").WithCallbackData("join_check")),
		tu.InlineKeyboardRow(tu.InlineKeyboardButton("« Back").WithCallbackData("main_menu")),
	)
	return tu.InlineKeyboard(rows...)
}

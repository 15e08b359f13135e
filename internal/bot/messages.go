package bot

import (
	"fmt"
	"html"
	"strings"

	"ssh-v2ray-bot/internal/gate"
	"ssh-v2ray-bot/internal/ledger"
	"ssh-v2ray-bot/internal/models"
	"ssh-v2ray-bot/internal/provider"
	"ssh-v2ray-bot/internal/store"
)

func welcomeText(firstName string, balance int64, p ledger.Policy) string {
	return fmt.Sprintf("👋 Hi, <b>%s</b>!\n\n"+
		"I hand out SSH and V2Ray (VMess / VLess) configs for coins.\n\n"+
		"💰 Balance: <b>%d</b> coins\n"+
		"🚀 %s\n"+
		"🔗 Each friend you invite: +%d coins\n"+
		"📢 Joining our channels: +%d coins",
		html.EscapeString(firstName), balance, costLine(p), p.ReferralReward, p.ChannelReward)
}

func costLine(p ledger.Policy) string {
	if p.Mode == ledger.ModeFreeTier {
		return fmt.Sprintf("First config is free, then %d coins each", p.GenerationCost)
	}
	return fmt.Sprintf("Each config costs %d coins", p.GenerationCost)
}

func referralNote(outcome ledger.ReferralOutcome, p ledger.Policy) string {
	if outcome != ledger.ReferralCredited {
		return ""
	}
	return fmt.Sprintf("\n\n🤝 Your friend received +%d coins for inviting you.", p.ReferralReward)
}

func pointsText(acc *ledger.Account, p ledger.Policy) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎯 <b>Your coins</b>\n\n")
	fmt.Fprintf(&sb, "💰 Balance: <b>%d</b>\n", acc.Balance)
	fmt.Fprintf(&sb, "⚙️ Configs generated: %d\n", acc.TotalGenerations)
	fmt.Fprintf(&sb, "👥 Friends invited: %d\n", len(acc.ReferredIDs))
	if acc.ChannelBonusClaimed {
		sb.WriteString("📢 Channel bonus: claimed\n")
	} else {
		fmt.Fprintf(&sb, "📢 Channel bonus: +%d available\n", p.ChannelReward)
	}
	if p.Mode == ledger.ModeFreeTier && !acc.FreeTierClaimed {
		sb.WriteString("🎁 Your first config is free\n")
	}
	fmt.Fprintf(&sb, "\n%s", costLine(p))
	return sb.String()
}

func referText(link string, acc *ledger.Account, p ledger.Policy) string {
	invited := int64(len(acc.ReferredIDs))
	return fmt.Sprintf("🔗 <b>Invite friends</b>\n\n"+
		"Share your link. You get +%d coins for every new user who starts the bot with it.\n\n"+
		"<code>%s</code>\n\n"+
		"👥 Invited: %d\n"+
		"💰 Earned: %d coins",
		p.ReferralReward, html.EscapeString(link), invited, invited*p.ReferralReward)
}

func kindMenuText(p ledger.Policy, isAdmin bool) string {
	if isAdmin {
		return "⚙️ Choose a config type (admin, free):"
	}
	return fmt.Sprintf("⚙️ Choose a config type.\n%s.", costLine(p))
}

func insufficientText(current, required int64, p ledger.Policy) string {
	return fmt.Sprintf("❌ Not enough coins.\n\n"+
		"💰 Balance: %d\n"+
		"💳 Required: %d\n\n"+
		"Invite friends (+%d each) or join our channels (+%d) to earn more.",
		current, required, p.ReferralReward, p.ChannelReward)
}

func chargeLine(d gate.Decision) string {
	switch d.Charge {
	case gate.Debited:
		return fmt.Sprintf("💳 %d coins spent, %d left.", d.Amount, d.BalanceAfter)
	case gate.FreeTierUsed:
		return "🎁 This one was on the house."
	}
	return "🛡 Admin config, no coins spent."
}

func credentialText(cred *provider.Credential, chargeInfo string) string {
	return fmt.Sprintf("✅ <b>Your %s config</b>\n\n<code>%s</code>\n\n%s",
		strings.ToUpper(string(cred.Kind)), html.EscapeString(cred.Text()), chargeInfo)
}

func generationFailedText(refunded bool) string {
	if refunded {
		return "❌ The server could not create your config. Your coins were returned."
	}
	return "❌ The server could not create your config. If coins were taken they will be returned automatically within a few minutes."
}

func channelsText(channels []channelStatus, reward int64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📢 <b>Join our channels</b> and get +%d coins once.\n\n", reward)
	for i, ch := range channels {
		mark := "❌"
		if ch.Joined {
			mark = "✅"
		}
		fmt.Fprintf(&sb, "%s %s\n", mark, html.EscapeString(channelLabel(ch.Channel, i)))
	}
	sb.WriteString("\nThen press <b>Check</b>.")
	return sb.String()
}

func historyText(recs []models.GenerationRecord) string {
	if len(recs) == 0 {
		return "📜 You have not generated any configs yet."
	}
	var sb strings.Builder
	sb.WriteString("📜 <b>Your recent configs</b>\n")
	for _, r := range recs {
		fmt.Fprintf(&sb, "\n<b>%s</b> · %s\n<code>%s</code>\n",
			strings.ToUpper(r.Kind), r.CreatedAt.Format("2006-01-02 15:04"), html.EscapeString(r.Config))
	}
	return sb.String()
}

func statsText(st store.Stats) string {
	return fmt.Sprintf("📊 <b>Bot statistics</b>\n\n"+
		"<b>Users</b>\n"+
		"👥 Total: %d\n"+
		"🟢 Active (7 days): %d\n"+
		"🤝 Successful referrals: %d\n\n"+
		"<b>Configs</b>\n"+
		"⚙️ Generated: %d\n"+
		"🔐 SSH: %d\n"+
		"⚡ V2Ray: %d\n\n"+
		"📈 Success rate: %.1f%%",
		st.TotalUsers, st.ActiveUsers, st.Referrals,
		st.TotalGenerations, st.SSHConfigs, st.V2RayConfigs, st.SuccessRate())
}

func helpText(p ledger.Policy) string {
	return "❓ <b>How it works</b>\n\n" +
		"/generate - get an SSH, VMess or VLess config\n" +
		"/points - your balance\n" +
		"/refer - your invite link\n" +
		"/join - channel bonus\n" +
		"/history - configs you already received\n" +
		"/stats - bot statistics\n\n" +
		costLine(p) + ".\n\n" +
		"Import V2Ray links into v2rayNG (Android) or V2Box (iOS). " +
		"SSH configs work with HTTP Injector or any SSH client."
}

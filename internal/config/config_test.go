package config

import (
	"testing"
	"time"

	"ssh-v2ray-bot/internal/ledger"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := LoadConfig()
	p := cfg.Policy
	if p.InitialGrant != 10 || p.ReferralReward != 3 || p.ChannelReward != 2 || p.GenerationCost != 5 {
		t.Fatalf("unexpected default policy %+v", p)
	}
	if p.Mode != ledger.ModeFlatCost {
		t.Fatalf("mode = %s", p.Mode)
	}
	if cfg.AdminTestCredits != 1000 || cfg.RefundAfter != 10*time.Minute {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("INITIAL_COINS", "20")
	t.Setenv("GENERATION_COST", "7")
	t.Setenv("GENERATION_MODE", "free-tier")
	t.Setenv("ADMIN_IDS", "1, 2,,x,3")
	t.Setenv("SPONSOR_CHANNELS", "-1001|https://t.me/+invite|VPN News, @techhub||Tech Hub, -1002 ,bad|https://t.me/x, @")
	t.Setenv("REFUND_AFTER", "90s")

	cfg := LoadConfig()
	if cfg.Policy.InitialGrant != 20 || cfg.Policy.GenerationCost != 7 || cfg.Policy.Mode != ledger.ModeFreeTier {
		t.Fatalf("unexpected policy %+v", cfg.Policy)
	}
	if len(cfg.AdminIDs) != 3 || cfg.AdminIDs[2] != 3 {
		t.Fatalf("AdminIDs = %v", cfg.AdminIDs)
	}
	want := []Channel{
		{ID: -1001, URL: "https://t.me/+invite", Name: "VPN News"},
		{Username: "@techhub", URL: "https://t.me/techhub", Name: "Tech Hub"},
		{ID: -1002},
	}
	if len(cfg.SponsorChannels) != len(want) {
		t.Fatalf("SponsorChannels = %+v", cfg.SponsorChannels)
	}
	for i := range want {
		if cfg.SponsorChannels[i] != want[i] {
			t.Errorf("channel %d = %+v, want %+v", i, cfg.SponsorChannels[i], want[i])
		}
	}
	if cfg.RefundAfter != 90*time.Second {
		t.Fatalf("RefundAfter = %s", cfg.RefundAfter)
	}
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("GENERATION_MODE", "pay-what-you-want")
	t.Setenv("REFERRAL_REWARD", "lots")
	t.Setenv("REFUND_AFTER", "soon")

	cfg := LoadConfig()
	if cfg.Policy.Mode != ledger.ModeFlatCost {
		t.Fatalf("mode = %s", cfg.Policy.Mode)
	}
	if cfg.Policy.ReferralReward != 3 {
		t.Fatalf("ReferralReward = %d", cfg.Policy.ReferralReward)
	}
	if cfg.RefundAfter != 10*time.Minute {
		t.Fatalf("RefundAfter = %s", cfg.RefundAfter)
	}
}

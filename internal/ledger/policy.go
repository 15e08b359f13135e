package ledger

import "fmt"

// Mode selects how the generation gate charges non-admin users.
type Mode string

const (
	// ModeFlatCost charges GenerationCost for every generation.
	ModeFlatCost Mode = "flat-cost"
	// ModeFreeTier lets the first generation through for free, then charges.
	ModeFreeTier Mode = "free-tier"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeFlatCost, ModeFreeTier:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown generation mode %q", s)
}

// Policy holds the deployment-time economy. It is copied into the engine and
// the gate at construction and never changes afterwards.
type Policy struct {
	InitialGrant   int64
	ReferralReward int64
	ChannelReward  int64
	GenerationCost int64
	Mode           Mode
}

func (p Policy) Validate() error {
	if p.InitialGrant < 0 || p.ReferralReward < 0 || p.ChannelReward < 0 {
		return fmt.Errorf("policy rewards must not be negative")
	}
	if p.GenerationCost <= 0 {
		return fmt.Errorf("generation cost must be positive, got %d", p.GenerationCost)
	}
	if _, err := ParseMode(string(p.Mode)); err != nil {
		return err
	}
	return nil
}

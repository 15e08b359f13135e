package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"ssh-v2ray-bot/internal/ledger"
)

// Channel is a sponsor channel users must join for the channel bonus. Public
// channels may be given by Username (with the leading @) instead of ID.
type Channel struct {
	ID       int64
	Username string
	URL      string
	Name     string
}

type Config struct {
	DBUser           string
	DBPassword       string
	DBName           string
	DBHost           string
	DBPort           string
	RedisHost        string
	RedisPort        string
	RedisPassword    string
	BotToken         string
	BotUsername      string
	ProviderURL      string
	ProviderKey      string
	AdminIDs         []int64
	SponsorChannels  []Channel
	AdminTestCredits int64
	RefundAfter      time.Duration
	Policy           ledger.Policy
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	mode, err := ledger.ParseMode(getEnv("GENERATION_MODE", string(ledger.ModeFlatCost)))
	if err != nil {
		log.Printf("Invalid GENERATION_MODE, falling back to %s: %v", ledger.ModeFlatCost, err)
		mode = ledger.ModeFlatCost
	}

	return &Config{
		DBUser:           getEnv("DB_USER", "postgres"),
		DBPassword:       getEnv("DB_PASSWORD", "postgres"),
		DBName:           getEnv("DB_NAME", "sshbot"),
		DBHost:           getEnv("DB_HOST", "localhost"),
		DBPort:           getEnv("DB_PORT", "5432"),
		RedisHost:        getEnv("REDIS_HOST", "localhost"),
		RedisPort:        getEnv("REDIS_PORT", "6379"),
		RedisPassword:    getEnv("REDIS_PASSWORD", ""),
		BotToken:         getEnv("TELEGRAM_BOT_TOKEN", ""),
		BotUsername:      getEnv("BOT_USERNAME", "ssh_v2ray_bot"),
		ProviderURL:      getEnv("PROVIDER_API_URL", ""),
		ProviderKey:      getEnv("PROVIDER_API_KEY", ""),
		AdminIDs:         getIDList("ADMIN_IDS"),
		SponsorChannels:  getChannels("SPONSOR_CHANNELS"),
		AdminTestCredits: getInt("ADMIN_TEST_CREDITS", 1000),
		RefundAfter:      getDuration("REFUND_AFTER", 10*time.Minute),
		Policy: ledger.Policy{
			InitialGrant:   getInt("INITIAL_COINS", 10),
			ReferralReward: getInt("REFERRAL_REWARD", 3),
			ChannelReward:  getInt("CHANNEL_REWARD", 2),
			GenerationCost: getInt("GENERATION_COST", 5),
			Mode:           mode,
		},
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getInt(key string, fallback int64) int64 {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		log.Printf("Invalid %s=%q, using %d", key, raw, fallback)
		return fallback
	}
	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		log.Printf("Invalid %s=%q, using %s", key, raw, fallback)
		return fallback
	}
	return d
}

// getIDList parses a comma-separated list of Telegram ids, skipping blanks
// and anything that is not an integer.
func getIDList(key string) []int64 {
	var ids []int64
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Printf("Skipping invalid id %q in %s", part, key)
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// getChannels parses comma-separated "chat|url|name" entries. chat is a
// numeric chat id or an @username; url and name are optional. A public
// channel without a url links to t.me/<username>.
func getChannels(key string) []Channel {
	var channels []Channel
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, "|", 3)
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}

		var ch Channel
		chat := fields[0]
		if strings.HasPrefix(chat, "@") && len(chat) > 1 {
			ch.Username = chat
			ch.URL = "https://t.me/" + chat[1:]
		} else {
			id, err := strconv.ParseInt(chat, 10, 64)
			if err != nil {
				log.Printf("Skipping invalid channel %q in %s", part, key)
				continue
			}
			ch.ID = id
		}
		if len(fields) > 1 && fields[1] != "" {
			ch.URL = fields[1]
		}
		if len(fields) > 2 {
			ch.Name = fields[2]
		}
		channels = append(channels, ch)
	}
	return channels
}

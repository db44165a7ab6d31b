package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config carries every runtime setting the service needs. It is built once
// in main and injected into the services; nothing else reads the
// environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Admin    AdminConfig
	Rewards  RewardsConfig
	Chat     ChatConfig
}

type ServerConfig struct {
	ListenAddr string
	LogDir     string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string

	// MigrationsPath is a golang-migrate source URL, e.g. "file://migrations".
	MigrationsPath string
}

// AdminConfig defines who may call the admin endpoints. Requests must carry
// a wallet signature over AuthMessage from one of Addresses.
type AdminConfig struct {
	Addresses   []string
	AuthMessage string
}

type RewardsConfig struct {
	DailyBonusPoints    int64
	ReferralPoints      int64
	ReferralInviteBonus int
}

type ChatConfig struct {
	DefaultChannelID string
}

// Load builds a Config from the environment, applying defaults for anything
// unset.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: getEnv("LISTEN_ADDR", ":8080"),
			LogDir:     getEnv("LOG_DIR", "./logs"),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "spritz"),
			Password:       getEnv("DB_PASSWORD", ""),
			Name:           getEnv("DB_NAME", "spritz"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MigrationsPath: getEnv("DB_MIGRATIONS", "file://migrations"),
		},
		Admin: AdminConfig{
			Addresses:   splitList(getEnv("ADMIN_ADDRESSES", "")),
			AuthMessage: getEnv("ADMIN_AUTH_MESSAGE", "spritz-admin"),
		},
		Rewards: RewardsConfig{
			DailyBonusPoints:    getEnvInt64("DAILY_BONUS_POINTS", 3),
			ReferralPoints:      getEnvInt64("REFERRAL_POINTS", 100),
			ReferralInviteBonus: int(getEnvInt64("REFERRAL_INVITE_BONUS", 1)),
		},
		Chat: ChatConfig{
			DefaultChannelID: getEnv("DEFAULT_CHANNEL_ID", "spritz-general"),
		},
	}
}

// DSN assembles the lib/pq connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

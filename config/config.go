package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	DatabasePath string
	Timezone     *time.Location
	ServerPort   string

	// Web Push (VAPID). Generate once and keep in the environment.
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	// Optional Telegram family channel.
	TelegramToken  string
	TelegramChatID int64

	// Daily agenda digest, HH:MM local time. Empty disables it.
	AgendaTime string
}

func Load() (*Config, error) {
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/openfamily.db"
	}

	tzName := os.Getenv("TIMEZONE")
	if tzName == "" {
		tzName = "Europe/Paris"
	}
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "3001"
	}

	vapidPublic := os.Getenv("VAPID_PUBLIC_KEY")
	vapidPrivate := os.Getenv("VAPID_PRIVATE_KEY")
	vapidSubject := os.Getenv("VAPID_SUBJECT")
	if vapidSubject == "" {
		vapidSubject = "mailto:contact@openfamily.app"
	}

	var chatID int64
	if c := os.Getenv("TELEGRAM_CHAT_ID"); c != "" {
		chatID, err = strconv.ParseInt(c, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
	}

	agendaTime := os.Getenv("AGENDA_TIME")
	if agendaTime == "" {
		agendaTime = "08:00"
	}

	return &Config{
		DatabasePath:    dbPath,
		Timezone:        tz,
		ServerPort:      serverPort,
		VAPIDPublicKey:  vapidPublic,
		VAPIDPrivateKey: vapidPrivate,
		VAPIDSubject:    vapidSubject,
		TelegramToken:   os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramChatID:  chatID,
		AgendaTime:      agendaTime,
	}, nil
}

// PushEnabled reports whether web push delivery is configured.
func (c *Config) PushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// TelegramEnabled reports whether the Telegram channel is configured.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

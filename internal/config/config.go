package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Admins    []int64         `json:"admins"`
	Storage   StorageConfig   `json:"storage"`
	Schedule  ScheduleConfig  `json:"schedule"`
	Broadcast BroadcastConfig `json:"broadcast,omitempty"`
	Logging   LoggingConfig   `json:"logging"`
}

type TelegramConfig struct {
	// BotToken is the subscriber-facing bot; AdminToken the operator panel.
	BotToken   string `json:"bot_token"`
	AdminToken string `json:"admin_token"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type StorageConfig struct {
	SQLitePath string `json:"sqlite_path,omitempty"`
	EventsPath string `json:"events_path,omitempty"`
	// BusyTimeout is a Go duration string (sqlite).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

type ScheduleConfig struct {
	// DailyAt is local wall-clock "HH:MM" for the daily broadcast.
	DailyAt string `json:"daily_at,omitempty"`
	// Timezone is an IANA name, e.g. "Europe/Moscow". Empty means local.
	Timezone string `json:"timezone,omitempty"`
}

type BroadcastConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level,omitempty"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file,omitempty"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// Load reads the YAML (or JSON) config, applies environment overrides for
// secrets, fills defaults, and validates. Validation failures are fatal at
// startup by design.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jb, err := coerceToJSONBytes(path, b)
	if err != nil {
		return nil, err
	}

	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// reject trailing tokens (e.g. concatenated documents)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv lets secrets come from the environment (a .env file is loaded by
// main before this runs), matching the deployment convention: BOT_TOKEN,
// ADMIN_BOT_TOKEN, ADMIN_IDS=1,2,3.
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("BOT_TOKEN")); v != "" {
		c.Telegram.BotToken = v
	}
	if v := strings.TrimSpace(os.Getenv("ADMIN_BOT_TOKEN")); v != "" {
		c.Telegram.AdminToken = v
	}
	if v := strings.TrimSpace(os.Getenv("ADMIN_IDS")); v != "" {
		var ids []int64
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil {
				continue
			}
			ids = append(ids, id)
		}
		if len(ids) > 0 {
			c.Admins = ids
		}
	}
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Storage.SQLitePath) == "" {
		c.Storage.SQLitePath = "./data/subscribers.db"
	}
	if strings.TrimSpace(c.Storage.EventsPath) == "" {
		c.Storage.EventsPath = "./data/events.json"
	}
	if strings.TrimSpace(c.Schedule.DailyAt) == "" {
		c.Schedule.DailyAt = "09:00"
	}
	if c.Broadcast.RatePerSec <= 0 {
		c.Broadcast.RatePerSec = 20
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "INFO"
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		return fmt.Errorf("telegram.bot_token is required (or BOT_TOKEN env)")
	}
	if strings.TrimSpace(c.Telegram.AdminToken) == "" {
		return fmt.Errorf("telegram.admin_token is required (or ADMIN_BOT_TOKEN env)")
	}
	if len(c.Admins) == 0 {
		return fmt.Errorf("admins allow-list is empty (set admins in config or ADMIN_IDS env)")
	}
	if _, _, err := ParseHHMM(c.Schedule.DailyAt); err != nil {
		return fmt.Errorf("schedule.daily_at: %w", err)
	}
	if tz := strings.TrimSpace(c.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule.timezone: %w", err)
		}
	}
	if _, err := ParseDurationOrDefault("telegram.poll_timeout", c.Telegram.PollTimeout, 10*time.Second); err != nil {
		return err
	}
	if _, err := ParseDurationOrDefault("storage.busy_timeout", c.Storage.BusyTimeout, 5*time.Second); err != nil {
		return err
	}
	return nil
}

// ParseHHMM parses a "HH:MM" wall-clock string.
func ParseHHMM(s string) (hour, minute int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%q is not HH:MM", s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("%q is not HH:MM", s)
	}
	return h, m, nil
}

// ParseDurationOrDefault parses a Go duration string, using def when empty.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

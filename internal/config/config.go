package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DBPath      string
	JWTSecret   string
	TokenTTL    time.Duration
	CORSOrigins []string
	LogLevel    string
	LogFormat   string
	NATSURL     string

	Timer       TimerConfig
	Toast       ToastConfig
	Feed        FeedConfig
	Leaderboard LeaderboardConfig
	Presence    PresenceConfig
	Nudge       NudgeConfig
	Retry       RetryConfig
}

type TimerConfig struct {
	DefaultDuration time.Duration
	TickInterval    time.Duration
}

type ToastConfig struct {
	TTL   time.Duration
	Limit int
}

type FeedConfig struct {
	Limit      int
	Window     time.Duration
	FetchLimit int
}

type LeaderboardConfig struct {
	WeekStart time.Weekday
	Location  *time.Location
}

type PresenceConfig struct {
	RefreshInterval time.Duration
}

type NudgeConfig struct {
	Interval time.Duration
	Burst    int
}

type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// FileEnv names the optional TOML overlay. Its keys are the lowercase
// environment variable names; real environment variables still win.
const FileEnv = "FOCUSFRIENDS_CONFIG"

func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	src := source{}
	if path := os.Getenv(FileEnv); path != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		src.file = file
	}

	weekStart, err := parseWeekday(src.getEnv("LEADERBOARD_WEEK_START", "monday"))
	if err != nil {
		return Config{}, err
	}

	location, err := time.LoadLocation(src.getEnv("LEADERBOARD_TZ", "Local"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid LEADERBOARD_TZ: %w", err)
	}

	cfg := Config{
		Port:        src.getEnv("PORT", "8080"),
		DBPath:      src.getEnv("DB_PATH", "./data/focusfriends.db"),
		JWTSecret:   src.getEnv("JWT_SECRET", "change-this-secret"),
		TokenTTL:    time.Duration(src.getEnvInt("TOKEN_TTL_HOURS", 72)) * time.Hour,
		CORSOrigins: src.getEnvList("CORS_ORIGINS", []string{"http://localhost:3000", "http://127.0.0.1:3000"}),
		LogLevel:    src.getEnv("LOG_LEVEL", "info"),
		LogFormat:   src.getEnv("LOG_FORMAT", "json"),
		NATSURL:     src.getEnv("NATS_URL", ""),
		Timer: TimerConfig{
			DefaultDuration: src.getEnvDuration("TIMER_DEFAULT_DURATION", 25*time.Minute),
			TickInterval:    src.getEnvDuration("TIMER_TICK_INTERVAL", time.Second),
		},
		Toast: ToastConfig{
			TTL:   src.getEnvDuration("TOAST_TTL", 4*time.Second),
			Limit: src.getEnvInt("TOAST_LIMIT", 5),
		},
		Feed: FeedConfig{
			Limit:      src.getEnvInt("FEED_LIMIT", 20),
			Window:     src.getEnvDuration("FEED_WINDOW", 24*time.Hour),
			FetchLimit: src.getEnvInt("FEED_FETCH_LIMIT", 15),
		},
		Leaderboard: LeaderboardConfig{WeekStart: weekStart, Location: location},
		Presence: PresenceConfig{
			RefreshInterval: src.getEnvDuration("PRESENCE_REFRESH_INTERVAL", time.Minute),
		},
		Nudge: NudgeConfig{
			Interval: src.getEnvDuration("NUDGE_INTERVAL", 3*time.Second),
			Burst:    src.getEnvInt("NUDGE_BURST", 3),
		},
		Retry: RetryConfig{
			Attempts:  src.getEnvInt("RETRY_ATTEMPTS", 4),
			BaseDelay: src.getEnvDuration("RETRY_BASE_DELAY", 200*time.Millisecond),
			MaxDelay:  src.getEnvDuration("RETRY_MAX_DELAY", 3*time.Second),
		},
	}
	return cfg, nil
}

type source struct {
	file map[string]string
}

func readFile(path string) (map[string]string, error) {
	raw := map[string]interface{}{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		return nil, fmt.Errorf("decode config file %s: %w", path, err)
	}

	values := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case []interface{}:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				parts = append(parts, fmt.Sprint(item))
			}
			values[strings.ToLower(key)] = strings.Join(parts, ",")
		default:
			values[strings.ToLower(key)] = fmt.Sprint(v)
		}
	}
	return values, nil
}

func (s source) getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	if value, ok := s.file[strings.ToLower(key)]; ok && value != "" {
		return value
	}
	return fallback
}

func (s source) getEnvInt(key string, fallback int) int {
	value := s.getEnv(key, "")
	if value == "" {
		return fallback
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (s source) getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := s.getEnv(key, "")
	if value == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func (s source) getEnvList(key string, fallback []string) []string {
	value := s.getEnv(key, "")
	if value == "" {
		return fallback
	}

	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}

func parseWeekday(raw string) (time.Weekday, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	for day := time.Sunday; day <= time.Saturday; day++ {
		if strings.ToLower(day.String()) == normalized {
			return day, nil
		}
	}
	return time.Monday, fmt.Errorf("invalid LEADERBOARD_WEEK_START %q", raw)
}

package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Token        string
	GuildID      string
	DatabasePath string
	OwnerIDs     []string
	Silent       bool

	// Playback tuning. Durations come from millisecond env values.
	FFmpegPath            string
	Proxy                 string
	UserAgent             string
	Referer               string
	MaxQueueSize          int
	MaxTrackRetries       int
	RetryDelay            time.Duration
	DefaultLoopMode       string
	ActivityCheckInterval time.Duration
	ActivityWarnThreshold time.Duration
	ActivityKillThreshold time.Duration
	KillGracePeriod       time.Duration
	ResolveTimeout        time.Duration
	ProgressInterval      time.Duration
	DebounceWindow        time.Duration
	InactivityTimeout     time.Duration
}

var GlobalConfig *Config

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		folder := "."
		if info, err := os.Stat("data"); err == nil && info.IsDir() {
			folder = "./data"
		}
		dbPath = filepath.Join(folder, GetProjectName()+".db")
	}

	silent, _ := strconv.ParseBool(os.Getenv("SILENT"))

	ownerIDsStr := os.Getenv("OWNER_IDS")
	var ownerIDs []string
	if ownerIDsStr != "" {
		ownerIDs = strings.Split(ownerIDsStr, ",")
		for i := range ownerIDs {
			ownerIDs[i] = strings.TrimSpace(ownerIDs[i])
		}
	}

	cfg := &Config{
		Token:        os.Getenv("DISCORD_TOKEN"),
		GuildID:      os.Getenv("GUILD_ID"),
		DatabasePath: fmt.Sprintf("%s?_journal_mode=WAL&_timeout=5000", dbPath),
		OwnerIDs:     ownerIDs,
		Silent:       silent,

		FFmpegPath:            envString("FFMPEG_PATH", "ffmpeg"),
		Proxy:                 envString("PROXY", ""),
		UserAgent:             envString("STREAM_USER_AGENT", defaultUserAgent),
		Referer:               envString("STREAM_REFERER", "https://www.bilibili.com/"),
		MaxQueueSize:          envInt("MAX_QUEUE_SIZE", 50),
		MaxTrackRetries:       envInt("MAX_TRACK_RETRIES", 2),
		RetryDelay:            envMillis("TRACK_RETRY_DELAY", 2000),
		DefaultLoopMode:       envString("DEFAULT_LOOP_MODE", "track"),
		ActivityCheckInterval: envMillis("FFMPEG_ACTIVITY_CHECK_INTERVAL", 10000),
		ActivityWarnThreshold: envMillis("FFMPEG_INACTIVE_WARNING_THRESHOLD", 30000),
		ActivityKillThreshold: envMillis("FFMPEG_INACTIVE_KILL_THRESHOLD", 60000),
		KillGracePeriod:       envMillis("FFMPEG_KILL_GRACE", 5000),
		ResolveTimeout:        envMillis("RESOLVE_TIMEOUT", 30000),
		ProgressInterval:      envMillis("PROGRESS_UPDATE_INTERVAL", 1000),
		DebounceWindow:        envMillis("BUTTON_DEBOUNCE_WINDOW", 800),
		InactivityTimeout:     envMillis("INACTIVITY_TIMEOUT", 300000),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf("invalid GUILD_ID: must be a valid Snowflake")
	}
	if c.ActivityWarnThreshold > c.ActivityKillThreshold {
		return fmt.Errorf("FFMPEG_INACTIVE_WARNING_THRESHOLD must not exceed FFMPEG_INACTIVE_KILL_THRESHOLD")
	}
	if c.MaxQueueSize < 1 {
		return fmt.Errorf("MAX_QUEUE_SIZE must be at least 1")
	}
	return nil
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "hachimi"
	if err == nil {
		projectName = filepath.Base(exePath)
		projectName = strings.TrimSuffix(projectName, ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") {
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// envMillis reads an integer millisecond value.
func envMillis(key string, defMillis int) time.Duration {
	return time.Duration(envInt(key, defMillis)) * time.Millisecond
}

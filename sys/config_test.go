package sys

import (
	"testing"
	"time"
)

func validTestConfig() *Config {
	return &Config{
		Token:                 "token",
		MaxQueueSize:          50,
		ActivityWarnThreshold: 30 * time.Second,
		ActivityKillThreshold: 60 * time.Second,
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "test-token")
	t.Setenv("GUILD_ID", "")
	t.Setenv("SILENT", "")
	t.Setenv("MAX_QUEUE_SIZE", "")
	t.Setenv("TRACK_RETRY_DELAY", "")
	t.Setenv("DEFAULT_LOOP_MODE", "")
	t.Setenv("FFMPEG_INACTIVE_KILL_THRESHOLD", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Token != "test-token" {
		t.Fatalf("Token = %q", cfg.Token)
	}
	if cfg.MaxQueueSize != 50 {
		t.Fatalf("MaxQueueSize = %d, want 50", cfg.MaxQueueSize)
	}
	if cfg.MaxTrackRetries != 2 {
		t.Fatalf("MaxTrackRetries = %d, want 2", cfg.MaxTrackRetries)
	}
	if cfg.RetryDelay != 2*time.Second {
		t.Fatalf("RetryDelay = %v, want 2s", cfg.RetryDelay)
	}
	if cfg.DefaultLoopMode != "track" {
		t.Fatalf("DefaultLoopMode = %q, want track", cfg.DefaultLoopMode)
	}
	if cfg.ActivityCheckInterval != 10*time.Second {
		t.Fatalf("ActivityCheckInterval = %v, want 10s", cfg.ActivityCheckInterval)
	}
	if cfg.ActivityWarnThreshold != 30*time.Second {
		t.Fatalf("ActivityWarnThreshold = %v, want 30s", cfg.ActivityWarnThreshold)
	}
	if cfg.ActivityKillThreshold != 60*time.Second {
		t.Fatalf("ActivityKillThreshold = %v, want 60s", cfg.ActivityKillThreshold)
	}
	if cfg.InactivityTimeout != 5*time.Minute {
		t.Fatalf("InactivityTimeout = %v, want 5m", cfg.InactivityTimeout)
	}
	if cfg.FFmpegPath != "ffmpeg" {
		t.Fatalf("FFmpegPath = %q, want ffmpeg", cfg.FFmpegPath)
	}
}

func TestLoadConfigMillisOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "test-token")
	t.Setenv("GUILD_ID", "")
	t.Setenv("TRACK_RETRY_DELAY", "500")
	t.Setenv("FFMPEG_ACTIVITY_CHECK_INTERVAL", "250")
	t.Setenv("FFMPEG_INACTIVE_WARNING_THRESHOLD", "1000")
	t.Setenv("FFMPEG_INACTIVE_KILL_THRESHOLD", "2000")
	t.Setenv("BUTTON_DEBOUNCE_WINDOW", "100")
	t.Setenv("MAX_QUEUE_SIZE", "5")
	t.Setenv("DEFAULT_LOOP_MODE", "queue")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.RetryDelay != 500*time.Millisecond {
		t.Fatalf("RetryDelay = %v, want 500ms", cfg.RetryDelay)
	}
	if cfg.ActivityCheckInterval != 250*time.Millisecond {
		t.Fatalf("ActivityCheckInterval = %v, want 250ms", cfg.ActivityCheckInterval)
	}
	if cfg.ActivityWarnThreshold != time.Second {
		t.Fatalf("ActivityWarnThreshold = %v, want 1s", cfg.ActivityWarnThreshold)
	}
	if cfg.ActivityKillThreshold != 2*time.Second {
		t.Fatalf("ActivityKillThreshold = %v, want 2s", cfg.ActivityKillThreshold)
	}
	if cfg.DebounceWindow != 100*time.Millisecond {
		t.Fatalf("DebounceWindow = %v, want 100ms", cfg.DebounceWindow)
	}
	if cfg.MaxQueueSize != 5 {
		t.Fatalf("MaxQueueSize = %d, want 5", cfg.MaxQueueSize)
	}
	if cfg.DefaultLoopMode != "queue" {
		t.Fatalf("DefaultLoopMode = %q, want queue", cfg.DefaultLoopMode)
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		if err := validTestConfig().Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.Token = ""
		if err := cfg.Validate(); err == nil {
			t.Fatal("missing token accepted")
		}
	})

	t.Run("malformed guild id", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.GuildID = "12345"
		if err := cfg.Validate(); err == nil {
			t.Fatal("short guild id accepted")
		}
	})

	t.Run("valid guild id", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.GuildID = "123456789012345678"
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
	})

	t.Run("warn threshold above kill threshold", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.ActivityWarnThreshold = 2 * time.Minute
		if err := cfg.Validate(); err == nil {
			t.Fatal("warn > kill accepted")
		}
	})

	t.Run("zero queue size", func(t *testing.T) {
		cfg := validTestConfig()
		cfg.MaxQueueSize = 0
		if err := cfg.Validate(); err == nil {
			t.Fatal("zero queue size accepted")
		}
	})
}

package sys

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

func initTestDB(t *testing.T) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	if err := InitDatabase(context.Background(), dbPath); err != nil {
		t.Fatalf("InitDatabase: %v", err)
	}
	t.Cleanup(CloseDatabase)
}

func TestBotConfigRoundTrip(t *testing.T) {
	initTestDB(t)
	ctx := context.Background()

	// Missing keys read as empty, not as an error.
	v, err := GetBotConfig(ctx, "missing")
	if err != nil {
		t.Fatalf("GetBotConfig(missing): %v", err)
	}
	if v != "" {
		t.Fatalf("missing key = %q, want empty", v)
	}

	if err := SetBotConfig(ctx, "mode", "quiet"); err != nil {
		t.Fatalf("SetBotConfig: %v", err)
	}
	if err := SetBotConfig(ctx, "mode", "loud"); err != nil {
		t.Fatalf("SetBotConfig upsert: %v", err)
	}

	v, err = GetBotConfig(ctx, "mode")
	if err != nil {
		t.Fatalf("GetBotConfig: %v", err)
	}
	if v != "loud" {
		t.Fatalf("mode = %q, want loud (upsert keeps latest)", v)
	}
}

func TestPlayHistory(t *testing.T) {
	initTestDB(t)
	ctx := context.Background()
	guild := snowflake.ID(123456789012345678)

	for i, title := range []string{"first", "second", "third"} {
		err := AddPlayRecord(ctx, &PlayRecord{
			GuildID:     guild,
			SourceURL:   "https://www.bilibili.com/video/BV1xx",
			Title:       title,
			Uploader:    "someone",
			RequestedBy: "42",
			Duration:    time.Duration(i+1) * time.Minute,
		})
		if err != nil {
			t.Fatalf("AddPlayRecord(%q): %v", title, err)
		}
	}
	// A record from another guild must never leak into the results.
	if err := AddPlayRecord(ctx, &PlayRecord{GuildID: snowflake.ID(999), SourceURL: "u", Title: "other"}); err != nil {
		t.Fatalf("AddPlayRecord(other guild): %v", err)
	}

	count, err := GetPlayCount(ctx, guild)
	if err != nil {
		t.Fatalf("GetPlayCount: %v", err)
	}
	if count != 3 {
		t.Fatalf("GetPlayCount = %d, want 3", count)
	}

	records, err := GetRecentPlays(ctx, guild, 2)
	if err != nil {
		t.Fatalf("GetRecentPlays: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("GetRecentPlays returned %d records, want 2", len(records))
	}
	for _, r := range records {
		if r.GuildID != guild {
			t.Fatalf("record leaked from guild %s", r.GuildID)
		}
		if r.Uploader != "someone" || r.RequestedBy != "42" {
			t.Fatalf("record fields lost: %+v", r)
		}
	}
}

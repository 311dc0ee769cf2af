package home

import (
	"strings"
	"testing"
	"time"

	"github.com/disgoorg/disgo/discord"

	"github.com/leeineian/hachimi/proc"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0:00"},
		{7 * time.Second, "0:07"},
		{3*time.Minute + 25*time.Second, "3:25"},
		{59*time.Minute + 59*time.Second, "59:59"},
		{time.Hour, "1:00:00"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1:02:03"},
		{-5 * time.Second, "0:00"},
	}
	for _, tc := range cases {
		if got := formatDuration(tc.in); got != tc.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestProgressBar(t *testing.T) {
	t.Run("unknown duration shows live", func(t *testing.T) {
		got := progressBar(42*time.Second, 0)
		if got != "0:42 / live" {
			t.Fatalf("progressBar = %q", got)
		}
	})

	t.Run("knob at start", func(t *testing.T) {
		got := progressBar(0, 3*time.Minute)
		if !strings.HasPrefix(got, "🔘") {
			t.Fatalf("knob not at start: %q", got)
		}
	})

	t.Run("knob at end when overrun", func(t *testing.T) {
		got := progressBar(4*time.Minute, 3*time.Minute)
		line := strings.SplitN(got, "\n", 2)[0]
		if !strings.HasSuffix(line, "🔘") {
			t.Fatalf("knob not clamped to end: %q", line)
		}
	})

	t.Run("exactly one knob", func(t *testing.T) {
		got := progressBar(90*time.Second, 3*time.Minute)
		if n := strings.Count(got, "🔘"); n != 1 {
			t.Fatalf("knob count = %d: %q", n, got)
		}
		if !strings.Contains(got, "`1:30 / 3:00`") {
			t.Fatalf("missing time readout: %q", got)
		}
	})
}

func TestNowPlayingText(t *testing.T) {
	t.Run("empty state", func(t *testing.T) {
		got := nowPlayingText(proc.PlayerState{})
		if !strings.Contains(got, "Nothing playing") {
			t.Fatalf("nowPlayingText = %q", got)
		}
	})

	t.Run("playing state", func(t *testing.T) {
		st := proc.PlayerState{
			IsPlaying: true,
			CurrentTrack: &proc.Track{
				Title:       "哈基米",
				SourceURL:   "https://www.bilibili.com/video/BV1xx",
				Uploader:    "someone",
				RequestedBy: "123456789",
				Duration:    3 * time.Minute,
			},
			CurrentIndex: 0,
			QueueLength:  3,
			LoopMode:     proc.LoopTrack,
			Elapsed:      30 * time.Second,
		}
		got := nowPlayingText(st)
		for _, want := range []string{
			"[哈基米](https://www.bilibili.com/video/BV1xx)",
			"<@123456789>",
			"🔂 Track",
			"1/3",
			"🎶",
		} {
			if !strings.Contains(got, want) {
				t.Fatalf("panel missing %q:\n%s", want, got)
			}
		}
	})

	t.Run("paused icon", func(t *testing.T) {
		st := proc.PlayerState{
			IsPlaying:    true,
			IsPaused:     true,
			CurrentTrack: &proc.Track{Title: "x", Duration: time.Minute},
		}
		if got := nowPlayingText(st); !strings.Contains(got, "⏸️") {
			t.Fatalf("paused panel missing icon:\n%s", got)
		}
	})
}

func TestPlayerControlsLayout(t *testing.T) {
	rows := playerControls(proc.PlayerState{IsPlaying: true})
	if len(rows) != 2 {
		t.Fatalf("control rows = %d, want 2", len(rows))
	}

	ids := map[string]bool{}
	for _, sub := range rows {
		row, ok := sub.(discord.ActionRowComponent)
		if !ok {
			t.Fatalf("control component %T is not an action row", sub)
		}
		if len(row.Components) > 5 {
			t.Fatalf("row holds %d buttons, Discord caps rows at 5", len(row.Components))
		}
		for _, inter := range row.Components {
			btn, ok := inter.(discord.ButtonComponent)
			if !ok {
				t.Fatalf("row component %T is not a button", inter)
			}
			ids[btn.CustomID] = true
		}
	}

	for _, want := range []string{
		"player:previous", "player:pause", "player:skip", "player:stop",
		"player:loop", "player:shuffle", "player:clear",
	} {
		if !ids[want] {
			t.Fatalf("panel is missing button %q (have %v)", want, ids)
		}
	}
}

func TestQueueListText(t *testing.T) {
	tracks := make([]proc.Track, 23)
	for i := range tracks {
		tracks[i] = proc.Track{
			Title:     "track",
			SourceURL: "https://example.com",
			Duration:  time.Minute,
		}
	}
	st := proc.PlayerState{CurrentIndex: 11, QueueLength: len(tracks), LoopMode: proc.LoopNone}

	t.Run("empty queue", func(t *testing.T) {
		got := queueListText(proc.PlayerState{}, nil, 0, 10)
		if !strings.Contains(got, "Empty") {
			t.Fatalf("queueListText = %q", got)
		}
	})

	t.Run("first page", func(t *testing.T) {
		got := queueListText(st, tracks, 0, 10)
		if !strings.Contains(got, "` 1.`") || strings.Contains(got, "`11.`") {
			t.Fatalf("wrong page slice:\n%s", got)
		}
		if !strings.Contains(got, "Page 1/3") {
			t.Fatalf("missing page footer:\n%s", got)
		}
	})

	t.Run("active track marked", func(t *testing.T) {
		got := queueListText(st, tracks, 1, 10)
		if !strings.Contains(got, "▶️ `12.`") {
			t.Fatalf("active marker missing:\n%s", got)
		}
	})

	t.Run("page clamped", func(t *testing.T) {
		got := queueListText(st, tracks, 99, 10)
		if !strings.Contains(got, "Page 3/3") || !strings.Contains(got, "`23.`") {
			t.Fatalf("overflow page not clamped:\n%s", got)
		}
	})
}

package proc

import (
	"errors"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

func TestIsCdnFailure(t *testing.T) {
	cases := []struct {
		name   string
		code   int
		stderr string
		want   bool
	}{
		{"reconnect eof", 255, "Will reconnect at 1523616 in 0 second(s), error=End of file.", true},
		{"http 403", 255, "Server returned 403 Forbidden (access denied)", true},
		{"http 404", 255, "HTTP error 404 Not Found", true},
		{"http 502", 255, "Server returned 502 Bad Gateway", true},
		{"http 503", 255, "Server returned 503 Service Unavailable", true},
		{"connection reset", 255, "Connection reset by peer", true},
		{"connection refused", 255, "Connection refused", true},
		{"connection timeout", 255, "Connection timed out", true},
		{"io error", 255, "I/O error reading from network", true},

		{"decode error at 255", 255, "Invalid data found when processing input", false},
		{"missing file at 255", 255, "No such file or directory", false},
		{"http 500 not listed", 255, "Server returned 500 Internal Server Error", false},
		{"empty stderr", 255, "", false},
		{"network error wrong code", 1, "Connection reset by peer", false},
		{"clean exit", 0, "", false},
		{"sigkill code", 137, "Connection refused", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsCdnFailure(tc.code, tc.stderr); got != tc.want {
				t.Fatalf("IsCdnFailure(%d, %q) = %v, want %v", tc.code, tc.stderr, got, tc.want)
			}
		})
	}
}

func TestBuildFFmpegArgs(t *testing.T) {
	cfg := testConfig("none")
	cfg.UserAgent = "test-agent"
	cfg.Referer = "https://example.com/"

	t.Run("http source gets reconnect flags", func(t *testing.T) {
		args := strings.Join(buildFFmpegArgs(cfg, "https://cdn.example.com/a.m4s"), " ")
		for _, want := range []string{
			"-reconnect 1",
			"-reconnect_at_eof 1",
			"-reconnect_streamed 1",
			"-reconnect_delay_max 2",
			"-user_agent test-agent",
			"-referer https://example.com/",
			"-f s16le",
			"-ar 48000",
			"-ac 2",
			"-vn",
			"pipe:1",
		} {
			if !strings.Contains(args, want) {
				t.Fatalf("args missing %q: %s", want, args)
			}
		}
	})

	t.Run("local source skips reconnect flags", func(t *testing.T) {
		args := strings.Join(buildFFmpegArgs(cfg, "/tmp/a.opus"), " ")
		if strings.Contains(args, "-reconnect") {
			t.Fatalf("local input got reconnect flags: %s", args)
		}
		if !strings.Contains(args, "-i /tmp/a.opus") {
			t.Fatalf("args missing input: %s", args)
		}
	})
}

func TestClassifyExit(t *testing.T) {
	newSess := func(stderr string) *TranscodeSession {
		s := &TranscodeSession{stderr: newTailBuffer(4096)}
		if stderr != "" {
			s.stderr.Write([]byte(stderr))
		}
		return s
	}

	t.Run("clean exit", func(t *testing.T) {
		if got := classifyExit(nil, newSess("")); got != OutcomeEnded {
			t.Fatalf("classifyExit(nil) = %v, want ended", got)
		}
	})

	t.Run("stall wins over everything", func(t *testing.T) {
		s := newSess("Connection reset by peer")
		s.stalled.Store(true)
		if got := classifyExit(nil, s); got != OutcomeStalled {
			t.Fatalf("classifyExit(stalled) = %v, want stalled", got)
		}
	})

	t.Run("non-exit error is a decode failure", func(t *testing.T) {
		if got := classifyExit(errors.New("wait: something"), newSess("")); got != OutcomeDecodeFailure {
			t.Fatalf("classifyExit(plain error) = %v, want decode failure", got)
		}
	})
}

func TestDelayedKillTargetsOnlyItsOwnSession(t *testing.T) {
	cfg := testConfig("none")
	cfg.FFmpegPath = "sh"
	cfg.KillGracePeriod = 50 * time.Millisecond
	cfg.ActivityCheckInterval = time.Hour
	cfg.ActivityWarnThreshold = time.Hour
	cfg.ActivityKillThreshold = time.Hour

	sv := NewSupervisor(snowflake.ID(100), cfg)
	spawned := 0
	sv.newCmd = func(string) *exec.Cmd {
		spawned++
		if spawned == 1 {
			// The first session shrugs off SIGTERM so its delayed SIGKILL
			// timer actually fires.
			return exec.Command("sh", "-c", `trap '' TERM; sleep 5`)
		}
		return exec.Command("sleep", "5")
	}

	a, err := sv.Start("stream-a")
	if err != nil {
		t.Fatalf("Start(a): %v", err)
	}

	// Stop the first session and immediately start its successor; the
	// SIGKILL for the first is still pending on a timer at this point.
	sv.Stop()
	b, err := sv.Start("stream-b")
	if err != nil {
		t.Fatalf("Start(b): %v", err)
	}

	select {
	case <-a.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("first session survived its delayed kill")
	}

	// Well past the grace period the fired timer must not have touched
	// the successor.
	time.Sleep(4 * cfg.KillGracePeriod)
	select {
	case <-b.Done():
		t.Fatal("successor session was killed by the predecessor's timer")
	default:
	}

	b.Stop()
	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("successor did not stop on request")
	}
}

func TestTailBufferKeepsTail(t *testing.T) {
	b := newTailBuffer(8)
	b.Write([]byte("0123456789abcdef"))
	if got := b.String(); got != "89abcdef" {
		t.Fatalf("String() = %q, want last 8 bytes", got)
	}
	b.Write([]byte("XY"))
	if got := b.String(); got != "abcdefXY" {
		t.Fatalf("String() after append = %q, want %q", got, "abcdefXY")
	}
}

func TestActivityReaderStampsReads(t *testing.T) {
	s := &TranscodeSession{}
	r := &activityReader{r: strings.NewReader("pcm"), lastRead: &s.lastActivity}

	before := s.lastActivity.Load()
	buf := make([]byte, 2)
	if _, err := r.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if s.lastActivity.Load() == before {
		t.Fatal("successful read did not stamp activity")
	}

	// EOF with zero bytes must not count as activity.
	r.Read(buf)
	stamp := s.lastActivity.Load()
	if _, err := r.Read(buf); err == nil {
		t.Fatal("expected EOF")
	}
	if s.lastActivity.Load() != stamp {
		t.Fatal("zero-byte read stamped activity")
	}
}

package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/lrstanley/go-ytdlp"

	"github.com/leeineian/hachimi/proc"
	"github.com/leeineian/hachimi/sys"
)

// ResolutionError wraps a failed lookup with the query that caused it.
type ResolutionError struct {
	Query string
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolving %q: %v", e.Query, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// ErrResolverUnavailable means the yt-dlp binary could not be found.
var ErrResolverUnavailable = errors.New("yt-dlp is not installed or not in PATH")

var (
	ytdlpProbeOnce sync.Once
	ytdlpProbeErr  error
)

// probeYtdlp checks once per process that the yt-dlp binary is reachable.
func probeYtdlp() error {
	ytdlpProbeOnce.Do(func() { ytdlpProbeErr = lookupYtdlp() })
	return ytdlpProbeErr
}

func lookupYtdlp() error {
	if _, err := exec.LookPath("yt-dlp"); err != nil {
		sys.LogResolver(sys.MsgResolverUnavailable)
		return ErrResolverUnavailable
	}
	return nil
}

func newYtdlp() *ytdlp.Command {
	cmd := ytdlp.New().Quiet().NoWarnings().IgnoreConfig()
	if sys.GlobalConfig.Proxy != "" {
		cmd = cmd.Proxy(sys.GlobalConfig.Proxy)
	}
	return cmd
}

func buildYtdlpArgs(cfg *sys.Config) []string {
	return []string{
		"--no-playlist",
		"--no-check-certificates",
		"--socket-timeout", "30",
		"--retries", "3",
		"-f", "bestaudio/best",
		"--user-agent", cfg.UserAgent,
		"--referer", cfg.Referer,
	}
}

// Resolve turns a user query into a playable track. URLs are extracted
// directly; anything else is searched on Bilibili and the top hit wins.
func Resolve(ctx context.Context, cfg *sys.Config, query string) (*proc.Track, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ResolutionError{Query: query, Err: fmt.Errorf("empty query")}
	}

	if err := probeYtdlp(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.ResolveTimeout)
	defer cancel()

	target := query
	switch {
	case IsBilibiliURL(query):
		if u, ok := NormalizeBilibiliURL(query); ok {
			target = u
		}
	case isHTTPURL(query):
		// Non-Bilibili URLs go to yt-dlp as-is.
	default:
		videos, err := SearchBilibili(ctx, cfg, query, "", 5)
		if err != nil {
			return nil, &ResolutionError{Query: query, Err: err}
		}
		if len(videos) == 0 {
			return nil, &ResolutionError{Query: query, Err: fmt.Errorf("no results")}
		}
		target = videos[0].URL
	}

	track, err := extractTrack(ctx, cfg, target)
	if err != nil {
		return nil, &ResolutionError{Query: query, Err: err}
	}
	return track, nil
}

// extractTrack asks yt-dlp for the direct stream URL plus display metadata
// in a single tab-separated print, without downloading anything.
func extractTrack(ctx context.Context, cfg *sys.Config, u string) (*proc.Track, error) {
	started := time.Now()

	cmd := newYtdlp().Print("%(url)s\t%(title)s\t%(uploader)s\t%(duration)s")
	res, err := cmd.Run(ctx, append(buildYtdlpArgs(cfg), "--skip-download", u)...)
	if err != nil {
		return nil, err
	}

	line := strings.TrimSpace(res.Stdout)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	ps := strings.Split(line, "\t")
	if len(ps) < 4 || ps[0] == "" || ps[0] == "NA" {
		return nil, fmt.Errorf("yt-dlp returned no stream url")
	}

	t := &proc.Track{
		StreamURL: ps[0],
		Title:     fieldOr(ps[1], "Unknown Title"),
		Uploader:  fieldOr(ps[2], "Unknown"),
		SourceURL: u,
	}
	if d, err := time.ParseDuration(ps[3] + "s"); err == nil {
		t.Duration = d
	}

	sys.LogResolver(sys.MsgResolverResolved, t.Title, t.Duration, time.Since(started).Milliseconds())
	return t, nil
}

func fieldOr(s, fallback string) string {
	s = strings.TrimSpace(s)
	if s == "" || s == "NA" {
		return fallback
	}
	return s
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

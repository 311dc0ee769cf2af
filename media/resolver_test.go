package media

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/leeineian/hachimi/proc"
	"github.com/leeineian/hachimi/sys"
)

func TestResolutionErrorUnwrap(t *testing.T) {
	inner := fmt.Errorf("no results")
	err := &ResolutionError{Query: "哈基米", Err: inner}

	assert.Contains(t, err.Error(), "哈基米")
	assert.True(t, errors.Is(err, inner))
}

func TestFieldOr(t *testing.T) {
	assert.Equal(t, "value", fieldOr("value", "fallback"))
	assert.Equal(t, "value", fieldOr("  value  ", "fallback"))
	assert.Equal(t, "fallback", fieldOr("", "fallback"))
	assert.Equal(t, "fallback", fieldOr("NA", "fallback"))
	assert.Equal(t, "fallback", fieldOr("  ", "fallback"))
}

func TestIsHTTPURL(t *testing.T) {
	assert.True(t, isHTTPURL("http://example.com"))
	assert.True(t, isHTTPURL("https://example.com"))
	assert.False(t, isHTTPURL("ftp://example.com"))
	assert.False(t, isHTTPURL("example.com"))
	assert.False(t, isHTTPURL("hachimi song"))
}

func TestLookupYtdlpMissingBinary(t *testing.T) {
	// An empty PATH makes the lookup fail no matter what is installed.
	t.Setenv("PATH", t.TempDir())

	err := lookupYtdlp()
	assert.ErrorIs(t, err, ErrResolverUnavailable)
	assert.NotErrorIs(t, err, proc.ErrToolUnavailable)
	assert.Contains(t, err.Error(), "yt-dlp")
}

func TestBuildYtdlpArgs(t *testing.T) {
	cfg := &sys.Config{UserAgent: "test-agent", Referer: "https://www.bilibili.com/"}
	args := strings.Join(buildYtdlpArgs(cfg), " ")

	for _, want := range []string{
		"--no-playlist",
		"-f bestaudio/best",
		"--user-agent test-agent",
		"--referer https://www.bilibili.com/",
		"--socket-timeout 30",
		"--retries 3",
	} {
		assert.Containsf(t, args, want, "args = %s", args)
	}
}

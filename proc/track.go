package proc

import (
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Track is a fully resolved queue entry. Everything except RetryCount is
// fixed at resolution time; RetryCount is owned by the player goroutine.
type Track struct {
	Title       string
	Duration    time.Duration
	StreamURL   string
	SourceURL   string
	Uploader    string
	RequestedBy string
	AddedAt     time.Time
	RetryCount  int
}

type LoopMode string

const (
	LoopNone  LoopMode = "none"
	LoopTrack LoopMode = "track"
	LoopQueue LoopMode = "queue"
)

// ParseLoopMode accepts the three known modes, case-insensitively.
func ParseLoopMode(s string) (LoopMode, bool) {
	switch LoopMode(strings.ToLower(s)) {
	case LoopNone:
		return LoopNone, true
	case LoopTrack:
		return LoopTrack, true
	case LoopQueue:
		return LoopQueue, true
	}
	return "", false
}

// NextLoopMode cycles none -> queue -> track -> none, the order the loop
// button steps through.
func NextLoopMode(m LoopMode) LoopMode {
	switch m {
	case LoopNone:
		return LoopQueue
	case LoopQueue:
		return LoopTrack
	default:
		return LoopNone
	}
}

// PlayerState is an immutable snapshot handed to observers and renderers.
type PlayerState struct {
	GuildID      snowflake.ID
	IsPlaying    bool
	IsPaused     bool
	CurrentTrack *Track
	CurrentIndex int
	QueueLength  int
	HasNext      bool
	HasPrevious  bool
	LoopMode     LoopMode
	Elapsed      time.Duration
	Connected    bool
}

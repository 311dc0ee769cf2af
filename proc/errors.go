package proc

import "errors"

var (
	// ErrToolUnavailable means the ffmpeg binary could not be found. The
	// availability probe runs once per binary path.
	ErrToolUnavailable = errors.New("ffmpeg is not installed or not in PATH")

	// ErrNotConnected means playback was attempted before the transport
	// joined a voice channel.
	ErrNotConnected = errors.New("not connected to a voice channel")

	ErrQueueFull    = errors.New("queue is full")
	ErrQueueEmpty   = errors.New("queue is empty")
	ErrInvalidIndex = errors.New("queue index out of range")
	ErrPlayerClosed = errors.New("player is closed")
)

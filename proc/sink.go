package proc

import (
	"context"
	"io"
)

type SinkEventType int

const (
	// SinkPlaying fires once frames are actually being delivered.
	SinkPlaying SinkEventType = iota
	// SinkIdle fires when the current stream has fully drained.
	SinkIdle
	// SinkError fires on a transport-level read failure.
	SinkError
)

func (t SinkEventType) String() string {
	switch t {
	case SinkPlaying:
		return "playing"
	case SinkIdle:
		return "idle"
	case SinkError:
		return "error"
	}
	return "unknown"
}

type SinkEvent struct {
	Type SinkEventType
	Err  error
}

// AudioSink delivers a raw PCM byte stream (48 kHz, 2 channels, s16le) to
// some output. The engine never blocks on a sink: Play hands over the
// stream, events come back asynchronously via the OnEvent callback.
type AudioSink interface {
	// Play begins delivering audio from the stream. Any stream already
	// playing is replaced.
	Play(stream io.Reader) error
	// SetPaused suspends or resumes delivery without dropping the stream.
	SetPaused(paused bool)
	// Reset drops the current stream, if any.
	Reset()
	// OnEvent sets the single event subscriber. Must be called before Play.
	OnEvent(fn func(SinkEvent))
	// Connected reports whether the transport can deliver audio right now.
	Connected() bool
	// Close releases the underlying transport.
	Close(ctx context.Context)
}

package voice

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"layeh.com/gopus"

	"github.com/leeineian/hachimi/proc"
)

func newTestProvider(t *testing.T, stream io.Reader) (*pcmProvider, *[]proc.SinkEvent) {
	t.Helper()
	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		t.Fatalf("NewEncoder: %v", err)
	}

	s := &Sink{}
	events := &[]proc.SinkEvent{}
	s.OnEvent(func(ev proc.SinkEvent) { *events = append(*events, ev) })

	p := newPCMProvider(s, stream, enc)
	t.Cleanup(p.stop)
	return p, events
}

// pcmNoise builds n frames of loud non-silent PCM so encoded output can
// never be mistaken for the silence frame.
func pcmNoise(n int) []byte {
	buf := make([]byte, n*pcmFrameBytes)
	for i := range buf {
		buf[i] = byte(i*31 + 7)
	}
	return buf
}

// nextFrame polls past the provider's internal silence timeout.
func nextFrame(t *testing.T, p *pcmProvider) ([]byte, error) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		f, err := p.ProvideOpusFrame()
		if err != nil || !bytes.Equal(f, OpusSilence) {
			return f, err
		}
	}
	t.Fatal("provider produced only silence")
	return nil, nil
}

func TestProviderEncodesWholeFrames(t *testing.T) {
	// Two exact 20ms PCM frames.
	stream := bytes.NewReader(pcmNoise(2))
	p, events := newTestProvider(t, stream)

	for i := 0; i < 2; i++ {
		f, err := nextFrame(t, p)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if len(f) == 0 {
			t.Fatalf("frame %d is empty", i)
		}
	}

	// End of stream: a short silence tail, then EOF with one idle event.
	sawEOF := false
	for i := 0; i < 20; i++ {
		if _, err := p.ProvideOpusFrame(); err == io.EOF {
			sawEOF = true
			break
		}
	}
	if !sawEOF {
		t.Fatal("provider never reported EOF after the stream drained")
	}
	if len(*events) != 1 || (*events)[0].Type != proc.SinkIdle {
		t.Fatalf("events = %+v, want exactly one idle", *events)
	}

	// EOF repeats without a second event.
	if _, err := p.ProvideOpusFrame(); err != io.EOF {
		t.Fatal("EOF not sticky")
	}
	if len(*events) != 1 {
		t.Fatalf("idle reported twice: %+v", *events)
	}
}

func TestProviderPadsPartialFinalFrame(t *testing.T) {
	// One full frame plus 100 trailing bytes; the tail is zero-padded into
	// a second frame instead of being dropped.
	stream := bytes.NewReader(pcmNoise(2)[:pcmFrameBytes+100])
	p, _ := newTestProvider(t, stream)

	for i := 0; i < 2; i++ {
		if _, err := nextFrame(t, p); err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
	}
}

func TestProviderPausedReturnsSilence(t *testing.T) {
	stream := bytes.NewReader(pcmNoise(1))
	p, _ := newTestProvider(t, stream)
	p.setPaused(true)

	for i := 0; i < 3; i++ {
		f, err := p.ProvideOpusFrame()
		if err != nil {
			t.Fatalf("paused frame: %v", err)
		}
		if !bytes.Equal(f, OpusSilence) {
			t.Fatal("paused provider returned a real frame")
		}
	}

	// Resume delivers the buffered frame.
	p.setPaused(false)
	if _, err := nextFrame(t, p); err != nil {
		t.Fatalf("frame after resume: %v", err)
	}
}

func TestProviderStopEndsWithoutIdleEvent(t *testing.T) {
	stream := bytes.NewReader(pcmNoise(10))
	p, events := newTestProvider(t, stream)

	p.stop()
	if _, err := p.ProvideOpusFrame(); err != io.EOF {
		t.Fatalf("stopped provider returned %v, want EOF", err)
	}
	if len(*events) != 0 {
		t.Fatalf("stop emitted events: %+v", *events)
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestProviderReadFailureReportsError(t *testing.T) {
	readErr := errors.New("pipe burst")
	p, events := newTestProvider(t, errReader{err: readErr})

	sawEOF := false
	for i := 0; i < 20 && !sawEOF; i++ {
		_, err := p.ProvideOpusFrame()
		sawEOF = err == io.EOF
	}
	if !sawEOF {
		t.Fatal("provider never reported EOF after a read failure")
	}
	if len(*events) != 1 || (*events)[0].Type != proc.SinkError {
		t.Fatalf("events = %+v, want one error event", *events)
	}
	if !errors.Is((*events)[0].Err, readErr) {
		t.Fatalf("event error = %v, want %v", (*events)[0].Err, readErr)
	}
}

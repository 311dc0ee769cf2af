package voice

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
	"layeh.com/gopus"

	"github.com/leeineian/hachimi/proc"
	"github.com/leeineian/hachimi/sys"
)

const (
	sampleRate    = 48000
	channels      = 2
	frameSamples  = 960                              // 20ms at 48kHz
	pcmFrameBytes = frameSamples * channels * 2      // s16le
	maxOpusBytes  = 4000
	joinAttempts  = 5
)

// OpusSilence is the opus frame for 20ms of silence.
var OpusSilence = []byte{0xf8, 0xff, 0xfe}

// Sink carries decoded PCM from the playback engine into a guild's voice
// connection, encoding to opus on the way. It implements proc.AudioSink.
type Sink struct {
	guildID snowflake.ID
	client  bot.Client
	cfg     *sys.Config

	mu        sync.Mutex
	conn      voice.Conn
	channelID snowflake.ID
	provider  *pcmProvider
	paused    bool
	handlers  []func(proc.SinkEvent)
}

func NewSink(client bot.Client, cfg *sys.Config, guildID snowflake.ID) *Sink {
	return &Sink{guildID: guildID, client: client, cfg: cfg}
}

// Connect joins the voice channel, retrying with growing backoff. Already
// being in the requested channel is a no-op; another channel means a move.
func (s *Sink) Connect(ctx context.Context, channelID snowflake.ID) error {
	s.mu.Lock()
	if s.conn != nil && s.channelID == channelID {
		s.mu.Unlock()
		return nil
	}
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		conn = s.client.VoiceManager.CreateConn(s.guildID)
	}

	var err error
	for attempt := 1; attempt <= joinAttempts; attempt++ {
		octx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = conn.Open(octx, channelID, false, false)
		cancel()
		if err == nil {
			s.mu.Lock()
			s.conn = conn
			s.channelID = channelID
			s.mu.Unlock()
			sys.LogVoice(sys.MsgVoiceConnected, s.guildID, channelID)
			return nil
		}
		sys.LogVoice(sys.MsgVoiceConnectRetry, attempt, joinAttempts, s.guildID, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * time.Second):
		}
	}
	conn.Close(context.Background())
	return fmt.Errorf("joining voice channel %s: %w", channelID, err)
}

// Connected reports whether the sink has an open voice connection.
func (s *Sink) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// ChannelID returns the joined channel, or zero when disconnected.
func (s *Sink) ChannelID() snowflake.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.channelID
}

// OnEvent registers a transport event handler.
func (s *Sink) OnEvent(fn func(proc.SinkEvent)) {
	s.mu.Lock()
	s.handlers = append(s.handlers, fn)
	s.mu.Unlock()
}

func (s *Sink) emit(ev proc.SinkEvent) {
	s.mu.Lock()
	handlers := make([]func(proc.SinkEvent), len(s.handlers))
	copy(handlers, s.handlers)
	s.mu.Unlock()
	for _, fn := range handlers {
		fn(ev)
	}
}

// Play starts pushing the PCM stream to the voice connection, replacing
// whatever was playing before.
func (s *Sink) Play(stream io.Reader) error {
	s.mu.Lock()
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return proc.ErrNotConnected
	}

	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("creating opus encoder: %w", err)
	}

	old := s.provider
	p := newPCMProvider(s, stream, enc)
	s.provider = p
	s.paused = false
	s.mu.Unlock()

	if old != nil {
		old.stop()
	}

	setOpusFrameProviderSafe(conn, p)
	_ = conn.SetSpeaking(context.TODO(), voice.SpeakingFlagMicrophone)
	s.emit(proc.SinkEvent{Type: proc.SinkPlaying})
	return nil
}

// SetPaused switches between real frames and silence without tearing the
// provider down.
func (s *Sink) SetPaused(paused bool) {
	s.mu.Lock()
	s.paused = paused
	p := s.provider
	s.mu.Unlock()
	if p != nil {
		p.setPaused(paused)
	}
}

// Reset detaches the current stream. The voice connection stays open.
func (s *Sink) Reset() {
	s.mu.Lock()
	p := s.provider
	s.provider = nil
	s.paused = false
	conn := s.conn
	s.mu.Unlock()

	if p != nil {
		p.stop()
	}
	if conn != nil {
		setOpusFrameProviderSafe(conn, nil)
		_ = conn.SetSpeaking(context.TODO(), 0)
	}
}

// Close resets playback, clears the channel voice status and leaves the
// channel.
func (s *Sink) Close(ctx context.Context) {
	s.Reset()

	s.mu.Lock()
	conn := s.conn
	channelID := s.channelID
	s.conn = nil
	s.channelID = 0
	s.mu.Unlock()

	if conn == nil {
		return
	}
	if channelID != 0 {
		route := rest.NewEndpoint(http.MethodPut, "/channels/"+channelID.String()+"/voice-status")
		_ = s.client.Rest.Do(route.Compile(nil), map[string]string{"status": ""}, nil)
	}
	conn.Close(ctx)
	sys.LogVoice(sys.MsgVoiceDisconnected, s.guildID)
}

// SetVoiceStatus sets the little status line shown on the voice channel.
func (s *Sink) SetVoiceStatus(status string) {
	s.mu.Lock()
	channelID := s.channelID
	s.mu.Unlock()
	if channelID == 0 {
		return
	}
	route := rest.NewEndpoint(http.MethodPut, "/channels/"+channelID.String()+"/voice-status")
	if err := s.client.Rest.Do(route.Compile(nil), map[string]string{"status": status}, nil); err != nil {
		sys.LogVoice(sys.MsgVoiceStatusFail, s.guildID, err)
	}
}

// setOpusFrameProviderSafe guards against panics inside the voice gateway
// while it swaps providers mid-send.
func setOpusFrameProviderSafe(conn voice.Conn, p voice.OpusFrameProvider) {
	defer func() {
		if r := recover(); r != nil {
			sys.LogVoice(sys.MsgVoiceProviderPanic, r)
		}
	}()
	conn.SetOpusFrameProvider(p)
}

// ============================================================================
// PCM provider
// ============================================================================

// pcmProvider reads raw s16le PCM off the stream, encodes 20ms opus frames
// and hands them to the voice connection. When the stream ends it drains
// buffered frames, plays a short silence tail and reports idle once.
type pcmProvider struct {
	sink *Sink
	enc  *gopus.Encoder

	frames chan []byte
	quit   chan struct{}

	mu       sync.Mutex
	paused   bool
	stopped  bool
	tailLeft int
	idleSent bool
	readErr  error
}

func newPCMProvider(sink *Sink, stream io.Reader, enc *gopus.Encoder) *pcmProvider {
	p := &pcmProvider{
		sink:     sink,
		enc:      enc,
		frames:   make(chan []byte, 100),
		quit:     make(chan struct{}),
		tailLeft: 5,
	}
	go p.readLoop(stream)
	return p
}

// readLoop is the only reader of the PCM stream. A full frames channel
// blocks it, which backpressures the transcode pipe while paused.
func (p *pcmProvider) readLoop(stream io.Reader) {
	defer close(p.frames)
	buf := make([]byte, pcmFrameBytes)
	pcm := make([]int16, frameSamples*channels)
	for {
		n, err := io.ReadFull(stream, buf)
		if n > 0 {
			for i := n; i < pcmFrameBytes; i++ {
				buf[i] = 0
			}
			for i := range pcm {
				pcm[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
			}
			data, encErr := p.enc.Encode(pcm, frameSamples, maxOpusBytes)
			if encErr != nil {
				p.finish(encErr)
				return
			}
			frame := make([]byte, len(data))
			copy(frame, data)
			select {
			case p.frames <- frame:
			case <-p.quit:
				return
			}
		}
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				p.finish(nil)
			} else {
				p.finish(err)
			}
			return
		}
	}
}

func (p *pcmProvider) finish(err error) {
	p.mu.Lock()
	p.readErr = err
	p.mu.Unlock()
}

func (p *pcmProvider) setPaused(paused bool) {
	p.mu.Lock()
	p.paused = paused
	p.mu.Unlock()
}

func (p *pcmProvider) stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()
	close(p.quit)
}

// ProvideOpusFrame is called by the voice gateway every 20ms.
func (p *pcmProvider) ProvideOpusFrame() ([]byte, error) {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil, io.EOF
	}
	if p.paused {
		p.mu.Unlock()
		return OpusSilence, nil
	}
	p.mu.Unlock()

	select {
	case f, ok := <-p.frames:
		if ok {
			return f, nil
		}
		return p.drainTail()
	case <-p.quit:
		return nil, io.EOF
	case <-time.After(100 * time.Millisecond):
		return OpusSilence, nil
	}
}

// drainTail pads the end of a stream with a few silence frames so the last
// audible samples are not clipped, then reports idle exactly once.
func (p *pcmProvider) drainTail() ([]byte, error) {
	p.mu.Lock()
	if p.tailLeft > 0 {
		p.tailLeft--
		p.mu.Unlock()
		return OpusSilence, nil
	}
	sent := p.idleSent
	p.idleSent = true
	err := p.readErr
	p.mu.Unlock()

	if !sent {
		if err != nil {
			p.sink.emit(proc.SinkEvent{Type: proc.SinkError, Err: err})
		} else {
			p.sink.emit(proc.SinkEvent{Type: proc.SinkIdle})
		}
	}
	return nil, io.EOF
}

func (p *pcmProvider) Close() {
	p.stop()
}

package proc

import (
	"errors"
	"math/rand"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/hachimi/sys"
)

// Track-end classification. An exit earlier than this with most of the
// track still unplayed is treated as an upstream anomaly, not a finish.
const (
	genuineMinElapsed = 3 * time.Second
	genuineEndWindow  = 2 * time.Second
)

// ============================================================================
// Player
// ============================================================================

// Player is the per-guild playback engine. A single goroutine owns all
// mutable state; commands and transport/supervisor events are delivered to
// it as closures on one channel, in arrival order. Completion events from a
// replaced session are discarded by comparing session identity.
type Player struct {
	GuildID  snowflake.ID
	cfg      *sys.Config
	sink     AudioSink
	launcher Launcher

	acts chan func()
	quit chan struct{}

	// test hook
	now func() time.Time

	// state below is touched only from the run loop
	queue          []*Track
	currentIndex   int
	loopMode       LoopMode
	playing        bool
	paused         bool
	startedAt      time.Time
	pauseStartedAt time.Time
	idleSince      time.Time
	session        StreamSession
	retryTimer     *time.Timer
	observers      []stateObserver
	observerSeq    int
	onTrackStart   func(guildID snowflake.ID, t Track)
	closed         bool
}

type stateObserver struct {
	id int
	fn func(PlayerState)
}

func NewPlayer(guildID snowflake.ID, cfg *sys.Config, sink AudioSink, launcher Launcher) *Player {
	mode, ok := ParseLoopMode(cfg.DefaultLoopMode)
	if !ok {
		mode = LoopTrack
	}
	p := &Player{
		GuildID:      guildID,
		cfg:          cfg,
		sink:         sink,
		launcher:     launcher,
		acts:         make(chan func(), 64),
		quit:         make(chan struct{}),
		now:          time.Now,
		currentIndex: -1,
		loopMode:     mode,
		idleSince:    time.Now(),
	}

	sink.OnEvent(func(ev SinkEvent) {
		p.post(func() { p.handleSinkEvent(ev) })
	})
	launcher.OnExit(func(sess StreamSession, outcome Outcome, stderrTail string) {
		p.post(func() { p.handleStreamEnd(sess, outcome) })
	})

	go p.run()
	return p
}

func (p *Player) run() {
	for {
		select {
		case fn := <-p.acts:
			fn()
		case <-p.quit:
			return
		}
	}
}

// do runs fn on the player goroutine and waits for it.
func (p *Player) do(fn func()) {
	done := make(chan struct{})
	select {
	case p.acts <- func() { fn(); close(done) }:
	case <-p.quit:
		return
	}
	select {
	case <-done:
	case <-p.quit:
	}
}

// post queues fn without waiting. Events use this so a slow caller can
// never wedge the transport or supervisor goroutines.
func (p *Player) post(fn func()) {
	select {
	case p.acts <- fn:
	case <-p.quit:
	}
}

// OnTrackStart sets a hook fired on each fresh (non-retry) playback start.
func (p *Player) OnTrackStart(fn func(guildID snowflake.ID, t Track)) {
	p.do(func() { p.onTrackStart = fn })
}

// Subscribe registers a state observer and returns a cancel func that
// removes it again. Observers run on the player goroutine and must not
// block.
func (p *Player) Subscribe(fn func(PlayerState)) func() {
	var id int
	p.do(func() {
		p.observerSeq++
		id = p.observerSeq
		p.observers = append(p.observers, stateObserver{id: id, fn: fn})
	})
	return func() {
		p.do(func() {
			for i, o := range p.observers {
				if o.id == id {
					p.observers = append(p.observers[:i], p.observers[i+1:]...)
					return
				}
			}
		})
	}
}

// Close stops playback and ends the run loop. The sink itself is closed by
// the registry, after the coalescer and before the transport.
func (p *Player) Close() {
	p.do(func() {
		p.stopLocked()
		p.closed = true
	})
	close(p.quit)
}

// ============================================================================
// Queue operations
// ============================================================================

// Enqueue appends a track and returns its position (1-based, as shown to
// users).
func (p *Player) Enqueue(t *Track) (int, error) {
	select {
	case <-p.quit:
		return 0, ErrPlayerClosed
	default:
	}
	var pos int
	var err error
	p.do(func() {
		if len(p.queue) >= p.cfg.MaxQueueSize {
			err = ErrQueueFull
			return
		}
		if t.AddedAt.IsZero() {
			t.AddedAt = p.now()
		}
		p.queue = append(p.queue, t)
		pos = len(p.queue)
		sys.LogPlayer(sys.MsgPlayerEnqueued, t.Title, pos)
		p.notifyLocked()
	})
	return pos, err
}

// Play starts playback at the current index, or at the head if nothing has
// played yet. Resumes if paused.
func (p *Player) Play() error {
	select {
	case <-p.quit:
		return ErrPlayerClosed
	default:
	}
	var err error
	p.do(func() {
		if len(p.queue) == 0 {
			err = ErrQueueEmpty
			return
		}
		if p.playing && p.paused {
			p.resumeLocked()
			return
		}
		if p.playing {
			return
		}
		if p.currentIndex < 0 || p.currentIndex >= len(p.queue) {
			p.currentIndex = 0
		}
		err = p.startCurrentLocked()
	})
	return err
}

// PlayAt jumps to a specific queue index.
func (p *Player) PlayAt(index int) error {
	var err error
	p.do(func() {
		if index < 0 || index >= len(p.queue) {
			err = ErrInvalidIndex
			return
		}
		p.currentIndex = index
		err = p.startCurrentLocked()
	})
	return err
}

func (p *Player) Pause() bool {
	var ok bool
	p.do(func() {
		if !p.playing || p.paused {
			return
		}
		p.paused = true
		p.pauseStartedAt = p.now()
		if p.session != nil {
			p.session.SetPaused(true)
		}
		p.sink.SetPaused(true)
		sys.LogPlayer(sys.MsgPlayerPaused)
		p.notifyLocked()
		ok = true
	})
	return ok
}

func (p *Player) Resume() bool {
	var ok bool
	p.do(func() {
		ok = p.resumeLocked()
	})
	return ok
}

func (p *Player) resumeLocked() bool {
	if !p.playing || !p.paused {
		return false
	}
	p.paused = false
	// Shift the start reference so elapsed excludes the paused span.
	p.startedAt = p.startedAt.Add(p.now().Sub(p.pauseStartedAt))
	if p.session != nil {
		p.session.SetPaused(false)
	}
	p.sink.SetPaused(false)
	sys.LogPlayer(sys.MsgPlayerResumed)
	p.notifyLocked()
	return true
}

// Stop halts playback. The queue and position are kept.
func (p *Player) Stop() {
	p.do(func() {
		p.stopLocked()
		sys.LogPlayer(sys.MsgPlayerStopped)
		p.notifyLocked()
	})
}

// Skip advances to the next track. At the tail it wraps under queue loop,
// replays under track loop, and otherwise stops, returning false.
func (p *Player) Skip() bool {
	var ok bool
	p.do(func() {
		ok = p.advanceLocked(1, true)
		if ok {
			sys.LogPlayer(sys.MsgPlayerSkipped, p.currentIndex)
		}
	})
	return ok
}

// Previous is Skip's mirror: at the head it wraps to the tail under queue
// loop, replays under track loop, and otherwise stops.
func (p *Player) Previous() bool {
	var ok bool
	p.do(func() {
		ok = p.advanceLocked(-1, true)
		if ok {
			sys.LogPlayer(sys.MsgPlayerPrevious, p.currentIndex)
		}
	})
	return ok
}

// ClearQueue removes every queued track except the one currently playing,
// which survives at index 0. Returns the number of tracks removed.
func (p *Player) ClearQueue() int {
	var removed int
	p.do(func() {
		if (p.playing || p.paused) && p.currentIndex >= 0 && p.currentIndex < len(p.queue) {
			cur := p.queue[p.currentIndex]
			removed = len(p.queue) - 1
			p.queue = []*Track{cur}
			p.currentIndex = 0
		} else {
			removed = len(p.queue)
			p.queue = nil
			p.currentIndex = -1
		}
		sys.LogPlayer(sys.MsgPlayerQueueCleared, removed)
		p.notifyLocked()
	})
	return removed
}

// Shuffle rearranges the queue with Fisher-Yates. The active track is
// pinned to index 0 and keeps playing untouched.
func (p *Player) Shuffle() {
	p.do(func() {
		n := len(p.queue)
		if n < 2 {
			return
		}
		if p.currentIndex >= 0 && p.currentIndex < n {
			p.queue[0], p.queue[p.currentIndex] = p.queue[p.currentIndex], p.queue[0]
			p.currentIndex = 0
			rest := p.queue[1:]
			rand.Shuffle(len(rest), func(i, j int) {
				rest[i], rest[j] = rest[j], rest[i]
			})
		} else {
			rand.Shuffle(n, func(i, j int) {
				p.queue[i], p.queue[j] = p.queue[j], p.queue[i]
			})
		}
		sys.LogPlayer(sys.MsgPlayerQueueShuffled, n)
		p.notifyLocked()
	})
}

// SetLoopMode applies a new loop mode. Unknown values are ignored and
// reported as false.
func (p *Player) SetLoopMode(s string) bool {
	mode, valid := ParseLoopMode(s)
	if !valid {
		return false
	}
	p.do(func() {
		p.loopMode = mode
		sys.LogPlayer(sys.MsgPlayerLoopMode, mode)
		p.notifyLocked()
	})
	return true
}

func (p *Player) LoopMode() LoopMode {
	var m LoopMode
	p.do(func() { m = p.loopMode })
	return m
}

// State returns a consistent snapshot.
func (p *Player) State() PlayerState {
	var st PlayerState
	p.do(func() { st = p.stateLocked() })
	return st
}

// Queue returns a copy of the queued tracks.
func (p *Player) Queue() []Track {
	var out []Track
	p.do(func() {
		out = make([]Track, len(p.queue))
		for i, t := range p.queue {
			out[i] = *t
		}
	})
	return out
}

// IdleFor reports how long the player has been neither playing nor paused.
func (p *Player) IdleFor() time.Duration {
	var d time.Duration
	p.do(func() {
		if p.playing {
			return
		}
		d = p.now().Sub(p.idleSince)
	})
	return d
}

// ============================================================================
// Internal state machine (player goroutine only)
// ============================================================================

func (p *Player) currentTrackLocked() *Track {
	if p.currentIndex < 0 || p.currentIndex >= len(p.queue) {
		return nil
	}
	return p.queue[p.currentIndex]
}

func (p *Player) elapsedLocked() time.Duration {
	if !p.playing {
		return 0
	}
	if p.paused {
		return p.pauseStartedAt.Sub(p.startedAt)
	}
	return p.now().Sub(p.startedAt)
}

func (p *Player) stateLocked() PlayerState {
	st := PlayerState{
		GuildID:      p.GuildID,
		IsPlaying:    p.playing,
		IsPaused:     p.paused,
		CurrentIndex: p.currentIndex,
		QueueLength:  len(p.queue),
		LoopMode:     p.loopMode,
		Elapsed:      p.elapsedLocked(),
		Connected:    p.sink.Connected(),
	}
	if t := p.currentTrackLocked(); t != nil {
		cp := *t
		st.CurrentTrack = &cp
	}
	n := len(p.queue)
	if n > 0 {
		st.HasNext = p.currentIndex < n-1 || p.loopMode != LoopNone
		st.HasPrevious = p.currentIndex > 0 || p.loopMode != LoopNone
	}
	return st
}

func (p *Player) notifyLocked() {
	st := p.stateLocked()
	for _, o := range p.observers {
		o.fn(st)
	}
}

func (p *Player) cancelRetryLocked() {
	if p.retryTimer != nil {
		p.retryTimer.Stop()
		p.retryTimer = nil
	}
}

func (p *Player) stopLocked() {
	p.cancelRetryLocked()
	sess := p.session
	p.session = nil
	if sess != nil {
		sess.Stop()
	}
	p.sink.Reset()
	p.playing = false
	p.paused = false
	p.idleSince = p.now()
}

// startCurrentLocked (re)starts the track at currentIndex. The launcher
// fully stops any previous process before spawning.
func (p *Player) startCurrentLocked() error {
	t := p.currentTrackLocked()
	if t == nil {
		return ErrQueueEmpty
	}
	p.cancelRetryLocked()

	sess, err := p.launcher.Start(t.StreamURL)
	if err != nil {
		if errors.Is(err, ErrToolUnavailable) {
			sys.LogPlayer(sys.MsgPlayerStartFail, t.Title, err)
			p.stopLocked()
			p.notifyLocked()
			return err
		}
		// Startup failures take the anomaly path: bounded retries, then skip.
		sys.LogPlayer(sys.MsgPlayerStartFail, t.Title, err)
		p.session = nil
		p.retryLocked(t, 0)
		return err
	}

	p.session = sess
	p.startedAt = p.now()
	p.playing = true
	p.paused = false

	if err := p.sink.Play(sess.Output()); err != nil {
		sys.LogPlayer(sys.MsgPlayerStartFail, t.Title, err)
		sess.Stop()
		p.session = nil
		p.retryLocked(t, 0)
		return err
	}

	sys.LogPlayer(sys.MsgPlayerStarting, t.Title)
	if t.RetryCount == 0 && p.onTrackStart != nil {
		p.onTrackStart(p.GuildID, *t)
	}
	p.notifyLocked()
	return nil
}

// advanceLocked moves the index by step. trackReplay controls whether
// track-loop replays at the edge; automatic advances after a failed track
// pass false so a broken track cannot loop forever.
func (p *Player) advanceLocked(step int, trackReplay bool) bool {
	n := len(p.queue)
	if n == 0 {
		p.stopLocked()
		p.notifyLocked()
		return false
	}

	next := p.currentIndex + step
	if p.currentIndex < 0 {
		next = 0
	}

	if next >= n || next < 0 {
		switch {
		case p.loopMode == LoopQueue && next >= n:
			next = 0
		case p.loopMode == LoopQueue && next < 0:
			next = n - 1
		case p.loopMode == LoopTrack && trackReplay:
			next = p.currentIndex
		default:
			p.stopLocked()
			p.notifyLocked()
			return false
		}
	}

	p.currentIndex = next
	if t := p.currentTrackLocked(); t != nil {
		t.RetryCount = 0
	}
	_ = p.startCurrentLocked()
	return true
}

// handleSinkEvent and handleStreamEnd are the only two entry points for
// completion signals; both funnel into the same decision.
func (p *Player) handleSinkEvent(ev SinkEvent) {
	switch ev.Type {
	case SinkIdle, SinkError:
		p.handleStreamEnd(p.session, OutcomeEnded)
	}
}

// handleStreamEnd decides what a finished stream means: a genuine end, an
// anomaly worth retrying, or a permanent failure. Whichever of the sink's
// idle event or the supervisor's exit report arrives first wins; the other
// sees a stale session and is ignored.
func (p *Player) handleStreamEnd(sess StreamSession, outcome Outcome) {
	if sess == nil || sess != p.session {
		return
	}
	p.session = nil

	t := p.currentTrackLocked()
	if t == nil {
		p.stopLocked()
		p.notifyLocked()
		return
	}
	elapsed := p.elapsedLocked()

	// Make sure the process is really gone before anything respawns.
	sess.Stop()
	p.sink.Reset()

	switch {
	case outcome == OutcomeDecodeFailure:
		sys.LogPlayer(sys.MsgPlayerDecodeFailure, t.Title)
		p.advanceLocked(1, false)

	case outcome == OutcomeCdnFailure || outcome == OutcomeStalled || !isGenuineEnd(elapsed, t.Duration):
		p.retryLocked(t, elapsed)

	default:
		sys.LogPlayer(sys.MsgPlayerTrackEnded, elapsed.Round(time.Second), t.Title)
		t.RetryCount = 0
		if p.loopMode == LoopTrack {
			_ = p.startCurrentLocked()
			return
		}
		p.advanceLocked(1, false)
	}
}

// isGenuineEnd reports whether the track played long enough to count as
// finished: at least the minimum span, or within the tail window of its
// known duration.
func isGenuineEnd(elapsed, duration time.Duration) bool {
	if elapsed >= genuineMinElapsed {
		return true
	}
	return duration > 0 && elapsed >= duration-genuineEndWindow
}

// retryLocked schedules a delayed restart of the same track, or skips it
// once the retry budget is spent.
func (p *Player) retryLocked(t *Track, elapsed time.Duration) {
	p.playing = false
	p.paused = false

	if t.RetryCount >= p.cfg.MaxTrackRetries {
		sys.LogPlayer(sys.MsgPlayerRetriesSpent, t.Title, t.RetryCount)
		p.advanceLocked(1, false)
		return
	}
	t.RetryCount++
	sys.LogPlayer(sys.MsgPlayerAnomaly, elapsed.Round(time.Millisecond), t.RetryCount, p.cfg.MaxTrackRetries, t.Title)
	sys.LogPlayer(sys.MsgPlayerRetryScheduled, t.Title, p.cfg.RetryDelay)

	p.cancelRetryLocked()
	var timer *time.Timer
	timer = time.AfterFunc(p.cfg.RetryDelay, func() {
		p.post(func() {
			// A stop or skip in the meantime cancels the pending retry.
			if p.retryTimer != timer {
				return
			}
			p.retryTimer = nil
			if p.currentTrackLocked() == t {
				_ = p.startCurrentLocked()
			}
		})
	})
	p.retryTimer = timer
	p.notifyLocked()
}

package proc

import (
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/hachimi/sys"
)

// ============================================================================
// Outcomes
// ============================================================================

type Outcome int

const (
	// OutcomeEnded is a normal exit (or an external kill; the engine's
	// elapsed-time heuristic decides whether it was genuine).
	OutcomeEnded Outcome = iota
	// OutcomeStalled means the activity monitor killed the process.
	OutcomeStalled
	// OutcomeCdnFailure is exit 255 with a network-style stderr signature.
	OutcomeCdnFailure
	// OutcomeDecodeFailure is any other failure exit. Not worth retrying.
	OutcomeDecodeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEnded:
		return "ended"
	case OutcomeStalled:
		return "stalled"
	case OutcomeCdnFailure:
		return "cdn failure"
	case OutcomeDecodeFailure:
		return "decode failure"
	}
	return "unknown"
}

// ============================================================================
// Launcher contract
// ============================================================================

// StreamSession is one live transcode process.
type StreamSession interface {
	Output() io.Reader
	PID() int
	SetPaused(paused bool)
	// Stop tears the session down without reporting an exit outcome.
	// Idempotent.
	Stop()
	Done() <-chan struct{}
}

// Launcher spawns transcode sessions and reports their exits. The engine
// only ever holds one live session per launcher.
type Launcher interface {
	Start(streamURL string) (StreamSession, error)
	OnExit(fn func(sess StreamSession, outcome Outcome, stderrTail string))
}

// ============================================================================
// Supervisor
// ============================================================================

// Supervisor runs ffmpeg with the stream URL as input and raw 48 kHz stereo
// s16le PCM on stdout. It watches stdout activity and kills stalled
// processes, classifying every exit for the engine.
type Supervisor struct {
	guildID snowflake.ID
	cfg     *sys.Config

	// newCmd is swappable for tests.
	newCmd func(streamURL string) *exec.Cmd
	onExit func(sess StreamSession, outcome Outcome, stderrTail string)

	mu      sync.Mutex
	current *TranscodeSession
}

func NewSupervisor(guildID snowflake.ID, cfg *sys.Config) *Supervisor {
	sv := &Supervisor{
		guildID: guildID,
		cfg:     cfg,
	}
	sv.newCmd = func(streamURL string) *exec.Cmd {
		return exec.Command(cfg.FFmpegPath, buildFFmpegArgs(cfg, streamURL)...)
	}
	return sv
}

func (sv *Supervisor) OnExit(fn func(sess StreamSession, outcome Outcome, stderrTail string)) {
	sv.onExit = fn
}

var lookPathCache sync.Map

func probeBinary(path string) error {
	if _, ok := lookPathCache.Load(path); ok {
		return nil
	}
	if _, err := exec.LookPath(path); err != nil {
		return ErrToolUnavailable
	}
	lookPathCache.Store(path, struct{}{})
	return nil
}

// Start spawns a new session. Any previous session is fully stopped and
// awaited first so two processes for the same guild never overlap.
func (sv *Supervisor) Start(streamURL string) (StreamSession, error) {
	if err := probeBinary(sv.cfg.FFmpegPath); err != nil {
		sys.LogFFmpeg(sys.MsgFFmpegNotFound)
		return nil, err
	}

	sv.mu.Lock()
	prev := sv.current
	sv.current = nil
	sv.mu.Unlock()

	if prev != nil {
		prev.Stop()
		<-prev.Done()
	}

	cmd := sv.newCmd(streamURL)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf(sys.MsgFFmpegStartupFailure, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf(sys.MsgFFmpegStartupFailure, err)
	}

	sess := &TranscodeSession{
		cmd:       cmd,
		url:       streamURL,
		stdin:     stdin,
		stderr:    newTailBuffer(4096),
		grace:     sv.cfg.KillGracePeriod,
		startedAt: time.Now(),
		done:      make(chan struct{}),
	}
	sess.output = &activityReader{r: stdout, lastRead: &sess.lastActivity}
	cmd.Stderr = sess.stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf(sys.MsgFFmpegStartupFailure, err)
	}
	sess.touch()
	sys.LogFFmpeg(sys.MsgFFmpegSpawned, cmd.Process.Pid, streamURL)

	sv.mu.Lock()
	sv.current = sess
	sv.mu.Unlock()

	go sv.wait(sess)
	go sv.monitor(sess)

	return sess, nil
}

// Stop tears down the current session, if any, without reporting an exit.
func (sv *Supervisor) Stop() {
	sv.mu.Lock()
	sess := sv.current
	sv.current = nil
	sv.mu.Unlock()
	if sess != nil {
		sess.Stop()
	}
}

func (sv *Supervisor) wait(sess *TranscodeSession) {
	err := sess.cmd.Wait()
	sess.stopKillTimer()
	close(sess.done)

	sv.mu.Lock()
	if sv.current == sess {
		sv.current = nil
	}
	sv.mu.Unlock()

	if sess.stopRequested.Load() {
		return
	}

	outcome := classifyExit(err, sess)
	sys.LogFFmpeg(sys.MsgFFmpegExited, sess.PID(), outcome)
	tail := sess.stderr.String()
	if tail != "" && outcome != OutcomeEnded {
		sys.LogFFmpeg(sys.MsgFFmpegStderrTail, strings.TrimSpace(tail))
	}
	if sv.onExit != nil {
		sv.onExit(sess, outcome, tail)
	}
}

// monitor watches stdout activity. It warns once past the warning threshold
// and kills the process past the kill threshold. Paused sessions produce no
// reads, so the clock is reset instead of counted against them.
func (sv *Supervisor) monitor(sess *TranscodeSession) {
	ticker := time.NewTicker(sv.cfg.ActivityCheckInterval)
	defer ticker.Stop()

	warned := false
	for {
		select {
		case <-sess.done:
			return
		case <-ticker.C:
			if sess.paused.Load() {
				sess.touch()
				continue
			}
			idle := time.Since(sess.lastActivityTime())
			if idle >= sv.cfg.ActivityKillThreshold {
				sys.LogFFmpeg(sys.MsgFFmpegInactiveKill, idle.Round(time.Second), sess.PID())
				sess.stalled.Store(true)
				sess.terminate()
				return
			}
			if idle >= sv.cfg.ActivityWarnThreshold {
				if !warned {
					warned = true
					sys.LogFFmpeg(sys.MsgFFmpegInactiveWarn, idle.Round(time.Second), sess.PID())
				}
			} else {
				warned = false
			}
		}
	}
}

func classifyExit(err error, sess *TranscodeSession) Outcome {
	if sess.stalled.Load() {
		return OutcomeStalled
	}
	if err == nil {
		return OutcomeEnded
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return OutcomeDecodeFailure
	}
	code := exitErr.ExitCode()
	if code == -1 {
		// Killed by a signal we did not send. Let the engine's elapsed
		// heuristic decide.
		return OutcomeEnded
	}
	if IsCdnFailure(code, sess.stderr.String()) {
		sys.LogFFmpeg(sys.MsgFFmpegCdnFailure, code)
		return OutcomeCdnFailure
	}
	return OutcomeDecodeFailure
}

var httpFailureRe = regexp.MustCompile(`(?:Server returned|HTTP error) (?:403|404|502|503)`)

// IsCdnFailure reports whether an ffmpeg exit looks like an upstream CDN or
// network fault rather than bad input. Only exit code 255 qualifies, and
// only with a recognizable network signature on stderr.
func IsCdnFailure(exitCode int, stderr string) bool {
	if exitCode != 255 || stderr == "" {
		return false
	}
	for _, sig := range []string{
		"error=End of file",
		"Connection reset by peer",
		"Connection refused",
		"Connection timed out",
		"timed out",
		"I/O error",
	} {
		if strings.Contains(stderr, sig) {
			return true
		}
	}
	return httpFailureRe.MatchString(stderr)
}

func buildFFmpegArgs(cfg *sys.Config, streamURL string) []string {
	var args []string
	if strings.HasPrefix(streamURL, "http") {
		args = append(args,
			"-reconnect", "1",
			"-reconnect_at_eof", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "2",
		)
	}
	args = append(args,
		"-user_agent", cfg.UserAgent,
		"-referer", cfg.Referer,
		"-i", streamURL,
		"-f", "s16le",
		"-ar", "48000",
		"-ac", "2",
		"-vn",
		"-loglevel", "error",
		"pipe:1",
	)
	return args
}

// ============================================================================
// Session
// ============================================================================

type TranscodeSession struct {
	cmd   *exec.Cmd
	url   string
	stdin io.WriteCloser

	output       *activityReader
	stderr       *tailBuffer
	grace        time.Duration
	startedAt    time.Time
	lastActivity atomic.Int64

	paused        atomic.Bool
	stalled       atomic.Bool
	stopRequested atomic.Bool
	stopOnce      sync.Once

	killTimerMu sync.Mutex
	killTimer   *time.Timer

	done chan struct{}
}

func (s *TranscodeSession) Output() io.Reader { return s.output }

func (s *TranscodeSession) PID() int {
	if s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

func (s *TranscodeSession) SetPaused(paused bool) {
	s.paused.Store(paused)
	if !paused {
		s.touch()
	}
}

func (s *TranscodeSession) Done() <-chan struct{} { return s.done }

// Stop requests teardown without an exit report.
func (s *TranscodeSession) Stop() {
	s.stopRequested.Store(true)
	s.terminate()
}

// terminate closes stdin, sends SIGTERM, and schedules SIGKILL after the
// grace period. The kill closure captures this session's own process
// handle, so it can never hit a successor process.
func (s *TranscodeSession) terminate() {
	s.stopOnce.Do(func() {
		if s.stdin != nil {
			_ = s.stdin.Close()
		}
		proc := s.cmd.Process
		if proc == nil {
			return
		}
		_ = proc.Signal(syscall.SIGTERM)

		t := time.AfterFunc(s.grace, func() {
			select {
			case <-s.done:
				return
			default:
			}
			sys.LogFFmpeg(sys.MsgFFmpegEscalateKill, proc.Pid)
			_ = proc.Kill()
		})
		s.killTimerMu.Lock()
		s.killTimer = t
		s.killTimerMu.Unlock()
	})
}

func (s *TranscodeSession) stopKillTimer() {
	s.killTimerMu.Lock()
	if s.killTimer != nil {
		s.killTimer.Stop()
		s.killTimer = nil
	}
	s.killTimerMu.Unlock()
}

func (s *TranscodeSession) touch() {
	s.lastActivity.Store(time.Now().UnixNano())
}

func (s *TranscodeSession) lastActivityTime() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// activityReader stamps every successful read so the monitor can tell a
// live stream from a stalled one.
type activityReader struct {
	r        io.Reader
	lastRead *atomic.Int64
}

func (a *activityReader) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if n > 0 {
		a.lastRead.Store(time.Now().UnixNano())
	}
	return n, err
}

// tailBuffer keeps the last max bytes written, enough stderr for exit
// classification without unbounded growth.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

package sys

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

var (
	// Level colors
	infoColor  = color.New(color.FgHiBlack)
	warnColor  = color.New(color.FgHiYellow)
	errorColor = color.New(color.FgHiRed)
	fatalColor = color.New(color.FgHiRed, color.Bold)

	// Component colors
	playerColor   = color.New(color.FgHiMagenta)
	ffmpegColor   = color.New(color.FgHiCyan)
	progressColor = color.New(color.FgHiBlue)
	resolverColor = color.New(color.FgHiGreen)
	voiceColor    = color.New(color.FgCyan)
	databaseColor = color.New(color.FgHiBlack)

	IsSilent  = false
	LogToFile = false

	// Global default logger
	Logger *slog.Logger

	logFile *os.File
	logMu   sync.Mutex
)

func init() {
	InitLogger(false, false)
}

// InitLogger initializes the global structured logger. Returns the log file
// name when file logging is active.
func InitLogger(silent bool, saveToFile bool) string {
	logMu.Lock()
	defer logMu.Unlock()

	IsSilent = silent
	LogToFile = saveToFile
	level := slog.LevelInfo
	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		level = slog.LevelDebug
	}

	// Clean up previous file if it exists (e.g. during reload)
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}

	var writer io.Writer = os.Stdout
	logName := ""

	if LogToFile {
		exePath, exeErr := os.Executable()
		logName = "hachimi.log"
		if exeErr == nil {
			logName = filepath.Base(exePath) + ".log"
		}

		var err error
		logFile, err = os.OpenFile(logName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open %s: %v\n", logName, err)
			logName = ""
		} else {
			writer = io.MultiWriter(os.Stdout, &stripANSIWriter{w: logFile})
		}
	}

	// Force colors to be enabled even if writing to a file/pipe avoids detection
	color.NoColor = false

	handler := NewBotLogHandler(writer, &BotLogHandlerOptions{
		Silent: IsSilent,
		Level:  level,
	})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
	return logName
}

func SetSilentMode(silent bool) {
	InitLogger(silent, LogToFile)
}

var ansiRe = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// StripANSI removes color escape sequences for file output.
func StripANSI(s string) string {
	return ansiRe.ReplaceAllString(s, "")
}

type stripANSIWriter struct {
	w io.Writer
}

func (s *stripANSIWriter) Write(p []byte) (int, error) {
	if _, err := s.w.Write([]byte(StripANSI(string(p)))); err != nil {
		return 0, err
	}
	return len(p), nil
}

// --- Log Functions ---

func LogInfo(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

func LogWarn(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

func LogError(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

// LogFatal panics with the formatted message so deferred cleanup still runs;
// main recovers it and exits non-zero.
func LogFatal(format string, v ...any) {
	msg := fmt.Sprintf(format, v...)
	slog.Log(context.Background(), slog.LevelError+4, msg)
	panic(msg)
}

func LogDebug(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}

func LogPlayer(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "player"))
}

func LogFFmpeg(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "ffmpeg"))
}

func LogProgress(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "progress"))
}

func LogResolver(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "resolver"))
}

func LogVoice(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "voice"))
}

func LogDatabase(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...), slog.String("component", "database"))
}

// --- Custom Slog Handler ---

type BotLogHandlerOptions struct {
	Silent bool
	Level  slog.Leveler
}

type BotLogHandler struct {
	w    io.Writer
	opts *BotLogHandlerOptions
	mu   *sync.Mutex
}

func NewBotLogHandler(w io.Writer, opts *BotLogHandlerOptions) *BotLogHandler {
	if opts == nil {
		opts = &BotLogHandlerOptions{Level: slog.LevelInfo}
	}
	return &BotLogHandler{
		w:    w,
		opts: opts,
		mu:   &sync.Mutex{},
	}
}

func (h *BotLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if h.opts.Silent {
		return false
	}
	return level >= h.opts.Level.Level()
}

func (h *BotLogHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.opts.Silent {
		return nil
	}

	timeStr := time.Now().Format("15:04:05")
	var levelStr string
	var levelColor *color.Color

	switch {
	case r.Level >= slog.LevelError+4: // Fatal
		levelStr = "FATAL"
		levelColor = fatalColor
	case r.Level >= slog.LevelError:
		levelStr = "ERROR"
		levelColor = errorColor
	case r.Level >= slog.LevelWarn:
		levelStr = "WARN"
		levelColor = warnColor
	default:
		levelStr = "INFO"
		levelColor = infoColor
	}

	// Extract component if present
	component := ""
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "component" {
			component = strings.ToUpper(a.Value.String())
			return false
		}
		return true
	})

	// Output: 15:04:05 [INFO] [COMPONENT] Message
	fmt.Fprintf(h.w, "%s", timeStr)

	if component != "" {
		// Component-specific logs: Level tag (if not INFO) is isolated,
		// Message bleeds component color
		if levelStr != "INFO" {
			fmt.Fprintf(h.w, " %s", levelColor.Sprintf("[%s]", levelStr))
		}
		compColor := getComponentColor(component)
		fmt.Fprintf(h.w, " %s\n", compColor.Sprintf("[%s] %s", component, r.Message))
	} else {
		fmt.Fprintf(h.w, " %s\n", levelColor.Sprintf("[%s] %s", levelStr, r.Message))
	}

	return nil
}

func (h *BotLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler { return h }
func (h *BotLogHandler) WithGroup(name string) slog.Handler       { return h }

func getComponentColor(name string) *color.Color {
	switch name {
	case "PLAYER":
		return playerColor
	case "FFMPEG":
		return ffmpegColor
	case "PROGRESS":
		return progressColor
	case "RESOLVER":
		return resolverColor
	case "VOICE":
		return voiceColor
	case "DATABASE":
		return databaseColor
	default:
		return color.New(color.FgCyan)
	}
}

// @core
const (
	MsgConfigFailedToLoad  = "Failed to load config: %v"
	MsgConfigMissingToken  = "DISCORD_TOKEN is not set in .env file"
	MsgDatabaseInitSuccess = "Database initialized successfully"
	MsgDatabaseTableError  = "Failed to create table: %w"
	MsgDatabasePragmaError = "Failed to set pragma %s: %w"
	MsgDatabaseInitFail    = "Failed to initialize database: %v"
	MsgDatabaseWriteFail   = "Failed to write record: %v"
	MsgGenericError        = "%v"
	MsgInitializing        = "Initializing %s..."

	// Bot lifecycle
	MsgBotStarting         = "Starting %s..."
	MsgBotReady            = "%s is ready! (ID: %s) (PID: %d) (Took: %dms)"
	MsgBotShutdown         = "Shutting down %s..."
	MsgBotKillingOld       = "Killing running instance... (PID: %d)"
	MsgBotStubbornOld      = "Old process %d is stubborn. Sending SIGKILL..."
	MsgBotKillResistant    = "Process %d still exists after SIGKILL"
	MsgBotOldTerminated    = "Old instance terminated."
	MsgBotRegisterFail     = "Command registration failed: %v"
	MsgBotClientCreateFail = "failed to create Discord client after %d attempts: %w"
	MsgBotClientRetry      = "Failed to create Discord client (attempt %d/5): %v. Retrying in 5s..."
	MsgBotSkipReg          = "Skipping command registration as requested."
	MsgBotGatewayFail      = "failed to open gateway: %w"
	MsgPIDOpenFail         = "Failed to open PID file: %v"
	MsgPIDLockFail         = "Failed to lock PID file: %v"
	MsgDaemonStarting      = "Starting..."
	MsgDaemonShutdown      = "Shutting down all daemons..."
	MsgPanicFatal          = "\n[FATAL] %s\n"
	BotPIDFile             = ".bot.pid"
)

// @loader
const (
	MsgLoaderSyncCommands       = "Syncing %s commands..."
	MsgLoaderUpToDate           = "[LOADER] Commands are up to date. (Hash: %s)"
	MsgLoaderDevStarting        = "[DEV] Registering commands to guild: %s"
	MsgLoaderDevRegistered      = "[DEV] Registered: %s"
	MsgLoaderDevFail            = "[DEV] Registration failed: %v"
	MsgLoaderDevGlobalClear     = "[DEV] Verifying global commands are cleared..."
	MsgLoaderDevGlobalClearFail = "[DEV] Global clear skipped (likely rate limited): %v"
	MsgLoaderProdStarting       = "[PROD] Registering commands globally..."
	MsgLoaderProdRegistered     = "[PROD] Registered: %s"
	MsgLoaderProdFail           = "[PROD] Global registration failed: %w"
	MsgLoaderCleanup            = "[CLEANUP] Removing commands from previous dev guild: %s"
	MsgLoaderPanicRecovered     = "Panic recovered in handler: %v"
	MsgLoaderInvalidGuildID     = "invalid GUILD_ID: %w"
)

// @player
const (
	MsgPlayerEnqueued       = "Queued \"%s\" at position %d"
	MsgPlayerStarting       = "Starting playback: %s"
	MsgPlayerPaused         = "Paused"
	MsgPlayerResumed        = "Resumed"
	MsgPlayerStopped        = "Playback stopped"
	MsgPlayerSkipped        = "Skipped to index %d"
	MsgPlayerPrevious       = "Moved back to index %d"
	MsgPlayerQueueCleared   = "Queue cleared (%d tracks removed)"
	MsgPlayerQueueShuffled  = "Queue shuffled (%d tracks)"
	MsgPlayerLoopMode       = "Loop mode set to %s"
	MsgPlayerTrackEnded     = "Track ended after %s: %s"
	MsgPlayerAnomaly        = "Anomalous end after %s (retry %d/%d): %s"
	MsgPlayerRetryScheduled = "Retrying \"%s\" in %s"
	MsgPlayerRetriesSpent   = "Giving up on \"%s\" after %d retries, skipping"
	MsgPlayerDecodeFailure  = "Permanent decode failure, skipping: %s"
	MsgPlayerStartFail      = "Failed to start \"%s\": %v"
	MsgPlayerTornDown       = "Player for guild %s torn down"
	MsgPlayerInactive       = "Guild %s inactive for %s, disconnecting"

	// User-facing messages
	ErrPlayerQueueFull     = "The queue is full"
	ErrPlayerQueueEmpty    = "Nothing is queued"
	ErrPlayerNotPlaying    = "Nothing is playing right now"
	ErrPlayerNotInVoice    = "You need to be in a voice channel first"
	ErrPlayerNoNext        = "Nothing to skip to"
	ErrPlayerNoPrevious    = "Nothing to go back to"
	ErrPlayerResolveFailed = "Could not resolve that link or search"
)

// @ffmpeg
const (
	MsgFFmpegSpawned        = "Spawned ffmpeg (PID %d) for %s"
	MsgFFmpegExited         = "ffmpeg (PID %d) exited: %s"
	MsgFFmpegStderrTail     = "ffmpeg stderr: %s"
	MsgFFmpegInactiveWarn   = "No stream output for %s (PID %d)"
	MsgFFmpegInactiveKill   = "Stream stalled for %s, killing ffmpeg (PID %d)"
	MsgFFmpegEscalateKill   = "ffmpeg (PID %d) ignored SIGTERM, sending SIGKILL"
	MsgFFmpegCdnFailure     = "CDN-style failure detected (exit %d)"
	MsgFFmpegNotFound       = "ffmpeg binary not found in PATH"
	MsgFFmpegStartupFailure = "failed to start ffmpeg: %w"
)

// @progress
const (
	MsgProgressStarted    = "Progress updates started for guild %s"
	MsgProgressStopped    = "Progress updates stopped for guild %s"
	MsgProgressRenderFail = "Render failed: %v"
)

// @resolver
const (
	MsgResolverResolving   = "Resolving: %s"
	MsgResolverResolved    = "Resolved \"%s\" (%s) in %dms"
	MsgResolverFailed      = "Resolution failed for %s: %v"
	MsgResolverSearching   = "Searching: %s"
	MsgResolverSearchFail  = "Search failed for %q: %v"
	MsgResolverUnavailable = "yt-dlp binary not found in PATH"
)

// @voice
const (
	MsgVoiceConnected     = "Connected to voice in guild %s (channel %s)"
	MsgVoiceConnectRetry  = "Voice connect attempt %d/%d failed for guild %s: %v"
	MsgVoiceDisconnected  = "Disconnected from voice in guild %s"
	MsgVoiceStatusFail    = "Failed to set voice status in guild %s: %v"
	MsgVoiceProviderPanic = "Recovered from panic in SetOpusFrameProvider: %v"
	MsgVoiceKicked        = "Bot was disconnected from voice in guild %s, tearing down"
	MsgVoiceAlone         = "Alone in voice channel in guild %s, pausing"
	MsgVoiceIdleTeardown  = "Guild %s idle for %s, leaving voice"
)

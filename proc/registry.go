package proc

import (
	"context"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/leeineian/hachimi/sys"
)

// SinkFactory builds the transport sink for a guild when its player is
// first created.
type SinkFactory func(guildID snowflake.ID) AudioSink

// LauncherFactory builds the transcode launcher for a guild.
type LauncherFactory func(guildID snowflake.ID) Launcher

type playerEntry struct {
	player    *Player
	sink      AudioSink
	coalescer *Coalescer
}

// PlayerSystem owns one player per guild. It is constructed explicitly and
// passed to whoever needs it; there is no package-level instance.
type PlayerSystem struct {
	cfg         *sys.Config
	newSink     SinkFactory
	newLauncher LauncherFactory
	Debounce    *Debouncer

	mu           sync.Mutex
	entries      map[snowflake.ID]*playerEntry
	onTrackStart func(guildID snowflake.ID, t Track)
}

func NewPlayerSystem(cfg *sys.Config, newSink SinkFactory) *PlayerSystem {
	return &PlayerSystem{
		cfg:     cfg,
		newSink: newSink,
		newLauncher: func(guildID snowflake.ID) Launcher {
			return NewSupervisor(guildID, cfg)
		},
		Debounce: NewDebouncer(cfg.DebounceWindow),
		entries:  make(map[snowflake.ID]*playerEntry),
	}
}

// OnTrackStart sets the hook applied to every player, present and future.
func (ps *PlayerSystem) OnTrackStart(fn func(guildID snowflake.ID, t Track)) {
	ps.mu.Lock()
	ps.onTrackStart = fn
	entries := ps.snapshotLocked()
	ps.mu.Unlock()
	for _, e := range entries {
		e.player.OnTrackStart(fn)
	}
}

// Player returns the guild's player, creating it on first use.
func (ps *PlayerSystem) Player(guildID snowflake.ID) *Player {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if e, ok := ps.entries[guildID]; ok {
		return e.player
	}
	sink := ps.newSink(guildID)
	player := NewPlayer(guildID, ps.cfg, sink, ps.newLauncher(guildID))
	if ps.onTrackStart != nil {
		player.OnTrackStart(ps.onTrackStart)
	}
	ps.entries[guildID] = &playerEntry{player: player, sink: sink}
	return player
}

// Peek returns the guild's player without creating one.
func (ps *PlayerSystem) Peek(guildID snowflake.ID) *Player {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if e, ok := ps.entries[guildID]; ok {
		return e.player
	}
	return nil
}

// Sink returns the guild's transport sink, if a player exists.
func (ps *PlayerSystem) Sink(guildID snowflake.ID) AudioSink {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if e, ok := ps.entries[guildID]; ok {
		return e.sink
	}
	return nil
}

// StartProgress attaches (or replaces) the guild's progress coalescer.
func (ps *PlayerSystem) StartProgress(guildID snowflake.ID, render RenderFunc) {
	ps.mu.Lock()
	e, ok := ps.entries[guildID]
	if !ok {
		ps.mu.Unlock()
		return
	}
	old := e.coalescer
	e.coalescer = NewCoalescer(e.player, ps.cfg.ProgressInterval, render)
	ps.mu.Unlock()
	if old != nil {
		old.Stop()
	}
}

// Teardown removes a guild's player, stopping in order: coalescer first,
// then playback and its process, then the transport.
func (ps *PlayerSystem) Teardown(ctx context.Context, guildID snowflake.ID) {
	ps.mu.Lock()
	e, ok := ps.entries[guildID]
	delete(ps.entries, guildID)
	ps.mu.Unlock()
	if !ok {
		return
	}
	ps.teardownEntry(ctx, e)
	sys.LogPlayer(sys.MsgPlayerTornDown, guildID)
}

func (ps *PlayerSystem) teardownEntry(ctx context.Context, e *playerEntry) {
	if e.coalescer != nil {
		e.coalescer.Stop()
	}
	e.player.Close()
	e.sink.Close(ctx)
}

// Shutdown tears down every guild in parallel.
func (ps *PlayerSystem) Shutdown(ctx context.Context) {
	ps.mu.Lock()
	entries := ps.snapshotLocked()
	ps.entries = make(map[snowflake.ID]*playerEntry)
	ps.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e *playerEntry) {
			defer wg.Done()
			ps.teardownEntry(ctx, e)
		}(e)
	}
	wg.Wait()
}

// Each visits every live player. Used by the inactivity daemon.
func (ps *PlayerSystem) Each(fn func(guildID snowflake.ID, p *Player)) {
	ps.mu.Lock()
	type pair struct {
		id snowflake.ID
		p  *Player
	}
	pairs := make([]pair, 0, len(ps.entries))
	for id, e := range ps.entries {
		pairs = append(pairs, pair{id, e.player})
	}
	ps.mu.Unlock()
	for _, pr := range pairs {
		fn(pr.id, pr.p)
	}
}

type SystemStats struct {
	Guilds  int
	Playing int
	Queued  int
}

func (ps *PlayerSystem) Stats() SystemStats {
	ps.mu.Lock()
	entries := ps.snapshotLocked()
	ps.mu.Unlock()

	stats := SystemStats{Guilds: len(entries)}
	for _, e := range entries {
		st := e.player.State()
		if st.IsPlaying {
			stats.Playing++
		}
		stats.Queued += st.QueueLength
	}
	return stats
}

// InactivityTimeout exposes the configured idle teardown threshold.
func (ps *PlayerSystem) InactivityTimeout() time.Duration {
	return ps.cfg.InactivityTimeout
}

func (ps *PlayerSystem) snapshotLocked() []*playerEntry {
	out := make([]*playerEntry, 0, len(ps.entries))
	for _, e := range ps.entries {
		out = append(out, e)
	}
	return out
}

package home

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/hachimi/proc"
	"github.com/leeineian/hachimi/sys"
	"github.com/leeineian/hachimi/voice"
)

// Players is the per-guild playback system. Built once the gateway is up,
// since sinks need a live client.
var (
	Players   *proc.PlayerSystem
	botClient bot.Client
)

func init() {
	sys.OnClientReady(func(ctx context.Context, client bot.Client) {
		botClient = client
		Players = proc.NewPlayerSystem(sys.GlobalConfig, func(guildID snowflake.ID) proc.AudioSink {
			return voice.NewSink(client, sys.GlobalConfig, guildID)
		})
		Players.OnTrackStart(onTrackStart)

		sys.RegisterVoiceStateUpdateHandler(onVoiceStateUpdate)

		sys.RegisterDaemon(sys.LogVoice, startIdleWatcher)
		sys.RegisterDaemon(sys.LogPlayer, func(ctx context.Context) (bool, func(), func()) {
			return true, func() {}, func() {
				sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				Players.Shutdown(sctx)
			}
		})
	})
}

// guildSink fetches the guild's sink as the concrete voice type.
func guildSink(guildID snowflake.ID) *voice.Sink {
	if Players == nil {
		return nil
	}
	if s, ok := Players.Sink(guildID).(*voice.Sink); ok {
		return s
	}
	return nil
}

func onTrackStart(guildID snowflake.ID, t proc.Track) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sys.AddPlayRecord(ctx, &sys.PlayRecord{
		GuildID:     guildID,
		SourceURL:   t.SourceURL,
		Title:       t.Title,
		Uploader:    t.Uploader,
		RequestedBy: t.RequestedBy,
		Duration:    t.Duration,
	}); err != nil {
		sys.LogDatabase(sys.MsgDatabaseWriteFail, err)
	}

	if s := guildSink(guildID); s != nil {
		go s.SetVoiceStatus("🎵 " + t.Title)
	}
}

// onVoiceStateUpdate watches for the bot being disconnected and for the
// channel emptying out.
func onVoiceStateUpdate(event *events.GuildVoiceStateUpdate) {
	if event.VoiceState.UserID == event.Client().ID() {
		if event.VoiceState.ChannelID == nil {
			// Kicked or moved out by a moderator.
			sys.LogVoice(sys.MsgVoiceKicked, event.VoiceState.GuildID)
			if Players != nil {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				forgetPlaybackMessage(event.VoiceState.GuildID)
				Players.Teardown(ctx, event.VoiceState.GuildID)
			}
		}
		return
	}

	// Pause when the bot ends up alone in its channel, resume when someone
	// comes back.
	s := guildSink(event.VoiceState.GuildID)
	if s == nil || !s.Connected() {
		return
	}
	p := Players.Peek(event.VoiceState.GuildID)
	if p == nil {
		return
	}
	humans := humansInChannel(event.Client(), event.VoiceState.GuildID, s.ChannelID())
	st := p.State()
	if humans == 0 && st.IsPlaying && !st.IsPaused {
		if p.Pause() {
			sys.LogVoice(sys.MsgVoiceAlone, event.VoiceState.GuildID)
		}
	} else if humans > 0 && st.IsPaused {
		p.Resume()
	}
}

func humansInChannel(client *bot.Client, guildID, channelID snowflake.ID) int {
	count := 0
	for state := range client.Caches.VoiceStates(guildID) {
		if state.ChannelID == nil || *state.ChannelID != channelID || state.UserID == client.ID() {
			continue
		}
		if m, ok := client.Caches.Member(guildID, state.UserID); !ok || !m.User.Bot {
			count++
		}
	}
	return count
}

// startIdleWatcher tears down players that have been idle past the
// configured timeout.
func startIdleWatcher(ctx context.Context) (bool, func(), func()) {
	run := func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				scanIdlePlayers(ctx)
			}
		}
	}
	return true, run, nil
}

func scanIdlePlayers(ctx context.Context) {
	timeout := Players.InactivityTimeout()
	var stale []snowflake.ID
	Players.Each(func(guildID snowflake.ID, p *proc.Player) {
		if idle := p.IdleFor(); idle > 0 && idle >= timeout {
			stale = append(stale, guildID)
		}
	})
	for _, guildID := range stale {
		sys.LogVoice(sys.MsgVoiceIdleTeardown, guildID, timeout)
		tctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		forgetPlaybackMessage(guildID)
		Players.Teardown(tctx, guildID)
		cancel()
	}
}

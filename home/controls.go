package home

import (
	"context"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/hachimi/proc"
	"github.com/leeineian/hachimi/sys"
)

var guildOnly = []discord.InteractionContextType{
	discord.InteractionContextTypeGuild,
}

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "pause",
		Description: "Pause playback",
		Contexts:    guildOnly,
	}, func(event *events.ApplicationCommandInteractionCreate) {
		replyControl(event, doPause(*event.GuildID()))
	})

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "resume",
		Description: "Resume paused playback",
		Contexts:    guildOnly,
	}, func(event *events.ApplicationCommandInteractionCreate) {
		replyControl(event, doResume(*event.GuildID()))
	})

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "skip",
		Description: "Skip to the next track",
		Contexts:    guildOnly,
	}, func(event *events.ApplicationCommandInteractionCreate) {
		replyControl(event, doSkip(*event.GuildID()))
	})

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "previous",
		Description: "Go back to the previous track",
		Contexts:    guildOnly,
	}, func(event *events.ApplicationCommandInteractionCreate) {
		replyControl(event, doPrevious(*event.GuildID()))
	})

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "stop",
		Description: "Stop playback and leave the voice channel",
		Contexts:    guildOnly,
	}, func(event *events.ApplicationCommandInteractionCreate) {
		replyControl(event, doStop(*event.GuildID()))
	})
}

func replyControl(event *events.ApplicationCommandInteractionCreate, content string) {
	_ = event.CreateMessage(discord.NewMessageCreate().WithContent(content))
}

// The do* helpers back both the slash commands and the panel buttons.

func activePlayer(guildID snowflake.ID) *proc.Player {
	if Players == nil {
		return nil
	}
	return Players.Peek(guildID)
}

func doPause(guildID snowflake.ID) string {
	p := activePlayer(guildID)
	if p == nil {
		return sys.ErrPlayerNotPlaying
	}
	if st := p.State(); st.IsPaused {
		if p.Resume() {
			return "▶️ Resumed."
		}
		return sys.ErrPlayerNotPlaying
	}
	if !p.Pause() {
		return sys.ErrPlayerNotPlaying
	}
	return "⏸️ Paused."
}

func doResume(guildID snowflake.ID) string {
	p := activePlayer(guildID)
	if p == nil || !p.Resume() {
		return sys.ErrPlayerNotPlaying
	}
	return "▶️ Resumed."
}

func doSkip(guildID snowflake.ID) string {
	p := activePlayer(guildID)
	if p == nil {
		return sys.ErrPlayerNotPlaying
	}
	if !p.Skip() {
		return "⏹️ End of queue, stopped."
	}
	if st := p.State(); st.CurrentTrack != nil {
		return "⏭️ Skipped to **" + st.CurrentTrack.Title + "**."
	}
	return "⏭️ Skipped."
}

func doPrevious(guildID snowflake.ID) string {
	p := activePlayer(guildID)
	if p == nil {
		return sys.ErrPlayerNotPlaying
	}
	if !p.Previous() {
		return "⏹️ Start of queue, stopped."
	}
	if st := p.State(); st.CurrentTrack != nil {
		return "⏮️ Back to **" + st.CurrentTrack.Title + "**."
	}
	return "⏮️ Went back."
}

func doStop(guildID snowflake.ID) string {
	if Players == nil || Players.Peek(guildID) == nil {
		return sys.ErrPlayerNotPlaying
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	forgetPlaybackMessage(guildID)
	Players.Teardown(ctx, guildID)
	return "⏹️ Stopped and left the voice channel."
}

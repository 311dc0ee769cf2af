package home

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"

	"github.com/leeineian/hachimi/sys"
)

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "nowplaying",
		Description: "Show the playback panel",
		Contexts:    guildOnly,
	}, handleNowPlaying)
}

// handleNowPlaying re-homes the playback panel to this channel. The reply
// itself is throwaway; the panel arrives through the progress feed.
func handleNowPlaying(event *events.ApplicationCommandInteractionCreate) {
	p := activePlayer(*event.GuildID())
	if p == nil {
		replyControl(event, sys.ErrPlayerNotPlaying)
		return
	}

	st := p.State()
	_ = event.CreateMessage(discord.NewMessageCreate().
		WithIsComponentsV2(true).
		AddComponents(nowPlayingContainer(st)))

	bindPlaybackChannel(*event.GuildID(), event.Channel().ID())
}

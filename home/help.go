package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"

	"github.com/leeineian/hachimi/sys"
)

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "help",
		Description: "List the available commands",
		Contexts:    guildOnly,
	}, handleHelp)
}

func handleHelp(event *events.ApplicationCommandInteractionCreate) {
	var b strings.Builder
	b.WriteString("# Commands\n\n")
	for _, entry := range [][2]string{
		{"/play", "Play a track or add it to the queue"},
		{"/pause", "Pause playback"},
		{"/resume", "Resume paused playback"},
		{"/skip", "Skip to the next track"},
		{"/previous", "Go back to the previous track"},
		{"/stop", "Stop playback and leave the voice channel"},
		{"/queue", "Show the current queue"},
		{"/clear", "Clear the queue, keeping whatever is playing"},
		{"/shuffle", "Shuffle the queue"},
		{"/loop", "Set the loop mode"},
		{"/nowplaying", "Show the playback panel"},
		{"/hachimi", "Show what the hachimi community is listening to"},
		{"/history", "Recently played tracks in this server"},
		{"/status", "Display bot and player statistics (Admin Only)"},
	} {
		fmt.Fprintf(&b, "> `%s` · %s\n", entry[0], entry[1])
	}

	_ = event.CreateMessage(discord.NewMessageCreate().
		WithIsComponentsV2(true).
		AddComponents(discord.NewContainer(discord.NewTextDisplay(b.String()))).
		WithEphemeral(true))
}

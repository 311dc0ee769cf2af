package home

import (
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/hachimi/proc"
	"github.com/leeineian/hachimi/sys"
)

func init() {
	sys.RegisterComponentHandler("player:", handlePlayerButton)
}

// handlePlayerButton services the panel's control row. Double-clicks
// within the debounce window are acknowledged without acting.
func handlePlayerButton(event *events.ComponentInteractionCreate) {
	guildID := event.GuildID()
	if guildID == nil {
		return
	}
	action := strings.TrimPrefix(event.Data.CustomID(), "player:")

	if !Players.Debounce.Allow(*guildID, action) {
		_ = event.DeferUpdateMessage()
		return
	}

	switch action {
	case "pause":
		doPause(*guildID)
	case "skip":
		doSkip(*guildID)
	case "previous":
		doPrevious(*guildID)
	case "loop":
		cycleLoop(*guildID)
	case "shuffle":
		if p := activePlayer(*guildID); p != nil {
			p.Shuffle()
		}
	case "clear":
		if p := activePlayer(*guildID); p != nil {
			p.ClearQueue()
		}
	case "stop":
		doStop(*guildID)
		_ = event.UpdateMessage(discord.NewMessageUpdate().
			WithIsComponentsV2(true).
			AddComponents(discord.NewContainer(discord.NewTextDisplay("⏹️ Playback stopped."))))
		return
	default:
		_ = event.DeferUpdateMessage()
		return
	}

	// Repaint the panel in place so the row reflects the new state.
	p := activePlayer(*guildID)
	if p == nil {
		_ = event.DeferUpdateMessage()
		return
	}
	_ = event.UpdateMessage(discord.NewMessageUpdate().
		WithIsComponentsV2(true).
		AddComponents(nowPlayingContainer(p.State())))
}

func cycleLoop(guildID snowflake.ID) {
	p := activePlayer(guildID)
	if p == nil {
		return
	}
	next := proc.NextLoopMode(p.LoopMode())
	p.SetLoopMode(string(next))
}

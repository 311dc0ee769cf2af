package home

import (
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"

	"github.com/leeineian/hachimi/proc"
	"github.com/leeineian/hachimi/sys"
)

const queuePageSize = 10

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "queue",
		Description: "Show the current queue",
		Contexts:    guildOnly,
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionInt{
				Name:        "page",
				Description: "Page to show",
				Required:    false,
			},
		},
	}, handleQueue)

	manageMessages := discord.PermissionManageMessages
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "clear",
		Description:              "Clear the queue, keeping whatever is playing",
		DefaultMemberPermissions: omit.New(&manageMessages),
		Contexts:                 guildOnly,
	}, handleClear)

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "shuffle",
		Description: "Shuffle the queue",
		Contexts:    guildOnly,
	}, handleShuffle)

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "loop",
		Description: "Set the loop mode",
		Contexts:    guildOnly,
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:        "mode",
				Description: "What to loop",
				Required:    true,
				Choices: []discord.ApplicationCommandOptionChoiceString{
					{Name: "Off", Value: string(proc.LoopNone)},
					{Name: "Track", Value: string(proc.LoopTrack)},
					{Name: "Queue", Value: string(proc.LoopQueue)},
				},
			},
		},
	}, handleLoop)
}

func handleQueue(event *events.ApplicationCommandInteractionCreate) {
	p := activePlayer(*event.GuildID())
	if p == nil {
		replyControl(event, sys.ErrPlayerQueueEmpty)
		return
	}
	data := event.SlashCommandInteractionData()
	page := 0
	if n, ok := data.OptInt("page"); ok && n > 0 {
		page = n - 1
	}

	content := queueListText(p.State(), p.Queue(), page, queuePageSize)
	_ = event.CreateMessage(discord.NewMessageCreate().
		WithIsComponentsV2(true).
		AddComponents(discord.NewContainer(discord.NewTextDisplay(content))))
}

func handleClear(event *events.ApplicationCommandInteractionCreate) {
	p := activePlayer(*event.GuildID())
	if p == nil {
		replyControl(event, sys.ErrPlayerQueueEmpty)
		return
	}
	removed := p.ClearQueue()
	sys.LogPlayer(sys.MsgPlayerQueueCleared, removed)
	replyControl(event, fmt.Sprintf("🧹 Cleared %d track(s) from the queue.", removed))
}

func handleShuffle(event *events.ApplicationCommandInteractionCreate) {
	p := activePlayer(*event.GuildID())
	if p == nil {
		replyControl(event, sys.ErrPlayerQueueEmpty)
		return
	}
	st := p.State()
	if st.QueueLength < 2 {
		replyControl(event, "Not enough tracks to shuffle.")
		return
	}
	p.Shuffle()
	sys.LogPlayer(sys.MsgPlayerQueueShuffled, st.QueueLength)
	replyControl(event, "🔀 Queue shuffled.")
}

func handleLoop(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	mode, _ := data.OptString("mode")

	p := activePlayer(*event.GuildID())
	if p == nil {
		p = Players.Player(*event.GuildID())
	}
	if !p.SetLoopMode(mode) {
		replyControl(event, "Unknown loop mode: "+mode)
		return
	}
	set := p.LoopMode()
	sys.LogPlayer(sys.MsgPlayerLoopMode, strings.ToLower(string(set)))
	replyControl(event, fmt.Sprintf("%s Loop mode: **%s**", loopModeEmoji(set), loopModeLabel(set)))
}

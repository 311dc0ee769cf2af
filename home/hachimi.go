package home

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"

	"github.com/leeineian/hachimi/media"
	"github.com/leeineian/hachimi/sys"
)

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "hachimi",
		Description: "Show what the hachimi community is listening to",
		Contexts:    guildOnly,
	}, handleHachimi)
}

func handleHachimi(event *events.ApplicationCommandInteractionCreate) {
	_ = event.DeferCreateMessage(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	videos, err := media.HachimiPicks(ctx, sys.GlobalConfig, 10)
	if err != nil || len(videos) == 0 {
		_, _ = event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(),
			discord.NewMessageUpdate().WithContent("Couldn't reach Bilibili right now."))
		return
	}

	var b strings.Builder
	b.WriteString("# 🐱 Hot hachimi right now\n\n")
	for i, v := range videos {
		fmt.Fprintf(&b, "`%2d.` [%s](%s) · %s · `%s`\n", i+1, v.Title, v.URL, v.Author, formatDuration(v.Duration))
	}
	b.WriteString("\n> Play one with `/play query:<link>`")

	_, _ = event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(),
		discord.NewMessageUpdate().
			WithIsComponentsV2(true).
			AddComponents(discord.NewContainer(discord.NewTextDisplay(b.String()))))
}

package home

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"

	"github.com/leeineian/hachimi/sys"
)

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "history",
		Description: "Recently played tracks in this server",
		Contexts:    guildOnly,
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionInt{
				Name:        "count",
				Description: "How many entries to show (default 10)",
				Required:    false,
			},
		},
	}, handleHistory)
}

func handleHistory(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	limit := 10
	if n, ok := data.OptInt("count"); ok && n > 0 && n <= 25 {
		limit = n
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	guildID := *event.GuildID()
	records, err := sys.GetRecentPlays(ctx, guildID, limit)
	if err != nil {
		sys.LogDatabase(sys.MsgDatabaseWriteFail, err)
		replyControl(event, "Couldn't read play history.")
		return
	}
	if len(records) == 0 {
		replyControl(event, "Nothing has been played here yet.")
		return
	}
	total, _ := sys.GetPlayCount(ctx, guildID)

	var b strings.Builder
	fmt.Fprintf(&b, "# 📜 Play history — %d total\n\n", total)
	for i, r := range records {
		fmt.Fprintf(&b, "`%2d.` [%s](%s) · %s · <t:%d:R>\n", i+1, r.Title, r.SourceURL, r.Uploader, r.PlayedAt.Unix())
	}

	_ = event.CreateMessage(discord.NewMessageCreate().
		WithIsComponentsV2(true).
		AddComponents(discord.NewContainer(discord.NewTextDisplay(b.String()))))
}

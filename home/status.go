package home

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/omit"
	"github.com/disgoorg/snowflake/v2"

	"github.com/leeineian/hachimi/sys"
)

func init() {
	adminPerm := discord.PermissionAdministrator

	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:                     "status",
		Description:              "Display bot and player statistics (Admin Only)",
		DefaultMemberPermissions: omit.New(&adminPerm),
		Contexts:                 guildOnly,
	}, handleStatus)

	sys.RegisterComponentHandler("status_refresh", handleStatusRefresh)
}

func statusText(interactionID snowflake.ID, guildID snowflake.ID) string {
	latency := time.Since(interactionID.Time()).Milliseconds()
	uptime := time.Since(sys.StartupTime).Round(time.Second)

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	stats := Players.Stats()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	plays, _ := sys.GetPlayCount(ctx, guildID)

	var b strings.Builder
	b.WriteString("# 📊 Status\n\n")
	fmt.Fprintf(&b, "> **Latency:** %dms\n", latency)
	fmt.Fprintf(&b, "> **Uptime:** %s\n", uptime)
	fmt.Fprintf(&b, "> **Memory:** %.1f MiB · **Goroutines:** %d\n", float64(m.Alloc)/1024/1024, runtime.NumGoroutine())
	fmt.Fprintf(&b, "> **Players:** %d active · %d playing · %d queued\n", stats.Guilds, stats.Playing, stats.Queued)
	fmt.Fprintf(&b, "> **Plays here:** %d", plays)
	return b.String()
}

func handleStatus(event *events.ApplicationCommandInteractionCreate) {
	_ = event.CreateMessage(discord.NewMessageCreate().
		WithIsComponentsV2(true).
		WithEphemeral(true).
		AddComponents(discord.NewContainer(
			discord.NewTextDisplay(statusText(snowflake.ID(event.ID()), *event.GuildID())),
			discord.NewActionRow(discord.NewSuccessButton("🔄 Refresh", "status_refresh")))))
}

func handleStatusRefresh(event *events.ComponentInteractionCreate) {
	guildID := snowflake.ID(0)
	if event.GuildID() != nil {
		guildID = *event.GuildID()
	}
	_ = event.UpdateMessage(discord.NewMessageUpdate().
		WithIsComponentsV2(true).
		AddComponents(discord.NewContainer(
			discord.NewTextDisplay(statusText(snowflake.ID(event.ID()), guildID)),
			discord.NewActionRow(discord.NewSuccessButton("🔄 Refresh", "status_refresh")))))
}

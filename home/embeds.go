package home

import (
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"

	"github.com/leeineian/hachimi/proc"
)

const progressBarWidth = 18

// formatDuration renders m:ss, or h:mm:ss past the hour mark.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second).Seconds())
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func progressBar(elapsed, total time.Duration) string {
	if total <= 0 {
		return formatDuration(elapsed) + " / live"
	}
	ratio := float64(elapsed) / float64(total)
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	pos := int(ratio * float64(progressBarWidth))
	var b strings.Builder
	for i := 0; i <= progressBarWidth; i++ {
		if i == pos {
			b.WriteString("🔘")
		} else {
			b.WriteString("▬")
		}
	}
	return fmt.Sprintf("%s\n`%s / %s`", b.String(), formatDuration(elapsed), formatDuration(total))
}

func loopModeEmoji(mode proc.LoopMode) string {
	switch mode {
	case proc.LoopTrack:
		return "🔂"
	case proc.LoopQueue:
		return "🔁"
	default:
		return "➡️"
	}
}

func loopModeLabel(mode proc.LoopMode) string {
	switch mode {
	case proc.LoopTrack:
		return "Track"
	case proc.LoopQueue:
		return "Queue"
	default:
		return "Off"
	}
}

// nowPlayingText builds the playback panel body.
func nowPlayingText(st proc.PlayerState) string {
	t := st.CurrentTrack
	if t == nil {
		return "# Nothing playing\n\nQueue something with `/play`."
	}

	icon := "🎶"
	if st.IsPaused {
		icon = "⏸️"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s [%s](%s)\n\n", icon, t.Title, t.SourceURL)
	fmt.Fprintf(&b, "%s\n\n", progressBar(st.Elapsed, t.Duration))
	fmt.Fprintf(&b, "> **Uploader:** %s\n", t.Uploader)
	fmt.Fprintf(&b, "> **Requested by:** <@%s>\n", t.RequestedBy)
	fmt.Fprintf(&b, "> **Loop:** %s %s · **Queue:** %d/%d",
		loopModeEmoji(st.LoopMode), loopModeLabel(st.LoopMode), st.CurrentIndex+1, st.QueueLength)
	return b.String()
}

// playerControls builds the button rows under the playback panel:
// transport controls on top, queue controls below.
func playerControls(st proc.PlayerState) []discord.ContainerSubComponent {
	pauseLabel := "⏸️"
	if st.IsPaused {
		pauseLabel = "▶️"
	}
	return []discord.ContainerSubComponent{
		discord.NewActionRow(
			discord.NewSecondaryButton("⏮️", "player:previous"),
			discord.NewPrimaryButton(pauseLabel, "player:pause"),
			discord.NewSecondaryButton("⏭️", "player:skip"),
			discord.NewDangerButton("⏹️", "player:stop")),
		discord.NewActionRow(
			discord.NewSecondaryButton(loopModeEmoji(st.LoopMode), "player:loop"),
			discord.NewSecondaryButton("🔀", "player:shuffle"),
			discord.NewSecondaryButton("🗑️", "player:clear")),
	}
}

func nowPlayingContainer(st proc.PlayerState) discord.ContainerComponent {
	parts := []discord.ContainerSubComponent{discord.NewTextDisplay(nowPlayingText(st))}
	if st.CurrentTrack != nil {
		parts = append(parts, playerControls(st)...)
	}
	return discord.NewContainer(parts...)
}

// queueListText renders a page of the queue.
func queueListText(st proc.PlayerState, tracks []proc.Track, page, perPage int) string {
	if len(tracks) == 0 {
		return "# Queue\n\nEmpty. Add something with `/play`."
	}

	pages := (len(tracks) + perPage - 1) / perPage
	if page < 0 {
		page = 0
	}
	if page >= pages {
		page = pages - 1
	}
	start := page * perPage
	end := start + perPage
	if end > len(tracks) {
		end = len(tracks)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Queue — %d track(s)\n\n", len(tracks))
	for i := start; i < end; i++ {
		t := tracks[i]
		marker := "　"
		if i == st.CurrentIndex {
			marker = "▶️"
		}
		fmt.Fprintf(&b, "%s `%2d.` [%s](%s) · `%s`\n", marker, i+1, t.Title, t.SourceURL, formatDuration(t.Duration))
	}
	fmt.Fprintf(&b, "\n> **Loop:** %s %s · Page %d/%d", loopModeEmoji(st.LoopMode), loopModeLabel(st.LoopMode), page+1, pages)
	return b.String()
}

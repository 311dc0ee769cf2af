package home

import (
	"sync"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"golang.org/x/time/rate"

	"github.com/leeineian/hachimi/proc"
	"github.com/leeineian/hachimi/sys"
)

// playbackMessage is the guild's single persistent "now playing" panel.
// Renders edit it in place; a fresh /play in another channel moves it.
type playbackMessage struct {
	channelID snowflake.ID
	messageID snowflake.ID
	limiter   *rate.Limiter
}

var (
	playbackMu   sync.Mutex
	playbackMsgs = map[snowflake.ID]*playbackMessage{}
)

// bindPlaybackChannel points the guild's panel at a text channel and starts
// the progress feed. An existing panel in another channel is abandoned.
func bindPlaybackChannel(guildID, channelID snowflake.ID) {
	playbackMu.Lock()
	pm, ok := playbackMsgs[guildID]
	if !ok || pm.channelID != channelID {
		pm = &playbackMessage{
			channelID: channelID,
			// Discord tolerates roughly 5 edits per 5s per channel.
			limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		}
		playbackMsgs[guildID] = pm
	}
	playbackMu.Unlock()

	Players.StartProgress(guildID, renderPlayback(guildID))
}

func forgetPlaybackMessage(guildID snowflake.ID) {
	playbackMu.Lock()
	delete(playbackMsgs, guildID)
	playbackMu.Unlock()
}

// renderPlayback builds the RenderFunc for the guild's panel. Updates
// beyond the edit budget are skipped; the next tick repaints anyway.
func renderPlayback(guildID snowflake.ID) proc.RenderFunc {
	return func(st proc.PlayerState) error {
		playbackMu.Lock()
		pm, ok := playbackMsgs[guildID]
		playbackMu.Unlock()
		if !ok {
			return nil
		}
		if !pm.limiter.Allow() {
			return nil
		}

		container := nowPlayingContainer(st)

		playbackMu.Lock()
		messageID := pm.messageID
		channelID := pm.channelID
		playbackMu.Unlock()

		if messageID != 0 {
			_, err := botClient.Rest.UpdateMessage(channelID, messageID,
				discord.NewMessageUpdate().
					WithIsComponentsV2(true).
					AddComponents(container))
			if err == nil {
				return nil
			}
			sys.LogProgress(sys.MsgProgressRenderFail, err)
			// Message was probably deleted; fall through and post a new one.
		}

		msg, err := botClient.Rest.CreateMessage(channelID,
			discord.NewMessageCreate().
				WithIsComponentsV2(true).
				AddComponents(container))
		if err != nil {
			return err
		}
		playbackMu.Lock()
		if pm2, ok := playbackMsgs[guildID]; ok && pm2.channelID == channelID {
			pm2.messageID = msg.ID
		}
		playbackMu.Unlock()
		return nil
	}
}

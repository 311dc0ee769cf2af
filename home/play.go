package home

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"

	"github.com/leeineian/hachimi/media"
	"github.com/leeineian/hachimi/proc"
	"github.com/leeineian/hachimi/sys"
)

func init() {
	sys.RegisterCommand(discord.SlashCommandCreate{
		Name:        "play",
		Description: "Play a track or add it to the queue",
		Contexts: []discord.InteractionContextType{
			discord.InteractionContextTypeGuild,
		},
		Options: []discord.ApplicationCommandOption{
			discord.ApplicationCommandOptionString{
				Name:         "query",
				Description:  "A Bilibili/YouTube link or search terms",
				Required:     true,
				Autocomplete: true,
			},
		},
	}, handlePlay)

	sys.RegisterAutocompleteHandler("play", handlePlayAutocomplete)
}

func handlePlay(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	query, _ := data.OptString("query")

	_ = event.DeferCreateMessage(false)

	content, err := startPlayback(event, query)
	if err != nil {
		sys.LogPlayer(sys.MsgPlayerStartFail, query, err)
		content = playbackErrorText(err)
	}
	_, _ = event.Client().Rest.UpdateInteractionResponse(event.ApplicationID(), event.Token(),
		discord.NewMessageUpdate().WithContent(content))
}

func startPlayback(event *events.ApplicationCommandInteractionCreate, query string) (string, error) {
	guildID := *event.GuildID()

	voiceState, ok := event.Client().Caches.VoiceState(guildID, event.User().ID)
	if !ok || voiceState.ChannelID == nil {
		return "", errNotInVoice
	}

	player := Players.Player(guildID)
	sink := guildSink(guildID)

	// Join and resolve in parallel; resolution usually dominates.
	joinErr := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		joinErr <- sink.Connect(ctx, *voiceState.ChannelID)
	}()

	sys.LogResolver(sys.MsgResolverResolving, query)
	track, err := media.Resolve(context.Background(), sys.GlobalConfig, query)
	if err != nil {
		return "", err
	}
	track.RequestedBy = event.User().ID.String()
	track.AddedAt = time.Now()

	if err := <-joinErr; err != nil {
		return "", err
	}

	pos, err := player.Enqueue(track)
	if err != nil {
		return "", err
	}
	sys.LogPlayer(sys.MsgPlayerEnqueued, track.Title, pos)

	bindPlaybackChannel(guildID, event.Channel().ID())

	st := player.State()
	if !st.IsPlaying && !st.IsPaused {
		if err := player.Play(); err != nil {
			return "", err
		}
		return fmt.Sprintf("🎶 Playing: [%s](%s)", track.Title, track.SourceURL), nil
	}
	return fmt.Sprintf("✅ Added to queue at `#%d`: [%s](%s)", pos, track.Title, track.SourceURL), nil
}

var errNotInVoice = errors.New("user not in a voice channel")

func playbackErrorText(err error) string {
	switch {
	case errors.Is(err, errNotInVoice):
		return sys.ErrPlayerNotInVoice
	case errors.Is(err, proc.ErrQueueFull):
		return sys.ErrPlayerQueueFull
	case errors.Is(err, proc.ErrToolUnavailable), errors.Is(err, media.ErrResolverUnavailable):
		return "Playback tools are missing on the host. Try again later."
	default:
		var resErr *media.ResolutionError
		if errors.As(err, &resErr) {
			return sys.ErrPlayerResolveFailed
		}
		return "Failed to start playback: " + err.Error()
	}
}

func handlePlayAutocomplete(event *events.AutocompleteInteractionCreate) {
	focused := event.Data.Focused()
	if focused.Name != "query" {
		return
	}
	query := focused.String()
	if query == "" {
		_ = event.AutocompleteResult(nil)
		return
	}

	results, err := media.Search(sys.GlobalConfig, query)
	if err != nil || len(results) == 0 {
		_ = event.AutocompleteResult(nil)
		return
	}

	var choices []discord.AutocompleteChoice
	for i, r := range results {
		if i >= 25 {
			break
		}
		name := r.Title
		if len(name) > 100 {
			name = name[:97] + "..."
		}
		val := r.URL
		if len(val) > 100 {
			val = name
		}
		choices = append(choices, discord.AutocompleteChoiceString{Name: name, Value: val})
	}
	_ = event.AutocompleteResult(choices)
}

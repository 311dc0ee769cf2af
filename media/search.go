package media

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"

	"github.com/leeineian/hachimi/sys"
)

type SearchResult struct{ Title, URL string }

const (
	bilibiliPrefix = "[B] "
	youtubePrefix  = "[YT] "
	ytmusicPrefix  = "[YTM] "
)

// Search fans out the query to Bilibili, YouTube Music and YouTube in
// parallel and merges whatever answered in time. Bilibili results lead
// since that is where most of our streams come from. Capped at 25 for
// Discord autocomplete.
func Search(cfg *sys.Config, q string) ([]SearchResult, error) {
	query := strings.TrimSpace(q)
	if query == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2600*time.Millisecond)
	defer cancel()

	resMu := sync.Mutex{}
	var bili, ytm, yt []SearchResult
	seen := make(map[string]bool)
	wg := sync.WaitGroup{}
	wg.Add(3)
	go func() {
		defer wg.Done()
		videos, err := SearchBilibili(ctx, cfg, query, "", 10)
		if err != nil {
			sys.LogResolver(sys.MsgResolverSearchFail, query, err)
			return
		}
		for _, v := range videos {
			resMu.Lock()
			if !seen[v.Bvid] {
				seen[v.Bvid] = true
				bili = append(bili, SearchResult{URL: v.URL, Title: truncateWithPreserve(v.Title, 100, bilibiliPrefix, " - "+v.Author)})
			}
			resMu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		s := ytmusic.TrackSearch(query)
		r, _ := s.Next()
		for _, v := range r.Tracks {
			if v.VideoID == "" {
				continue
			}
			art := ""
			if len(v.Artists) > 0 {
				art = " - " + v.Artists[0].Name
			}
			resMu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				ytm = append(ytm, SearchResult{URL: "https://music.youtube.com/watch?v=" + v.VideoID, Title: truncateWithPreserve(v.Title, 100, ytmusicPrefix, art)})
			}
			resMu.Unlock()
		}
	}()
	go func() {
		defer wg.Done()
		c := ytsearch.NewClient(nil)
		r, _ := c.Search(ctx, query)
		for _, v := range r.Results {
			resMu.Lock()
			if !seen[v.VideoID] {
				seen[v.VideoID] = true
				yt = append(yt, SearchResult{URL: "https://www.youtube.com/watch?v=" + v.VideoID, Title: truncateWithPreserve(v.Title, 100, youtubePrefix, "")})
			}
			resMu.Unlock()
		}
	}()

	d := make(chan struct{})
	go func() {
		wg.Wait()
		close(d)
	}()
	select {
	case <-d:
	case <-time.After(2300 * time.Millisecond):
	}

	resMu.Lock()
	defer resMu.Unlock()
	fin := append(append(bili, ytm...), yt...)
	if len(fin) > 25 {
		fin = fin[:25]
	}
	return fin, nil
}

// HachimiPicks surfaces currently popular hachimi videos for the dedicated
// command, ordered by play count.
func HachimiPicks(ctx context.Context, cfg *sys.Config, limit int) ([]BilibiliVideo, error) {
	return SearchBilibili(ctx, cfg, "哈基米", "click", limit)
}

// truncateWithPreserve keeps the prefix and suffix intact and trims the
// middle title so the whole string stays within max runes.
func truncateWithPreserve(title string, max int, prefix, suffix string) string {
	budget := max - len([]rune(prefix)) - len([]rune(suffix))
	r := []rune(title)
	if budget < 1 {
		budget = 1
	}
	if len(r) > budget {
		if budget > 3 {
			r = append(r[:budget-3], []rune("...")...)
		} else {
			r = r[:budget]
		}
	}
	return prefix + string(r) + suffix
}

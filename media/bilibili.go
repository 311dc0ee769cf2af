package media

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/leeineian/hachimi/sys"
)

// Accepted Bilibili video URL shapes.
var (
	bvPattern     = regexp.MustCompile(`(?:https?://)?(?:www\.)?bilibili\.com/video/(BV[a-zA-Z0-9]+)`)
	avPattern     = regexp.MustCompile(`(?:https?://)?(?:www\.)?bilibili\.com/video/av(\d+)`)
	shortPattern  = regexp.MustCompile(`(?:https?://)?b23\.tv/([a-zA-Z0-9]+)`)
	mobilePattern = regexp.MustCompile(`(?:https?://)?m\.bilibili\.com/video/(BV[a-zA-Z0-9]+|av\d+)`)
	htmlTagRe     = regexp.MustCompile(`<[^>]*>`)
)

// IsBilibiliURL reports whether the input is any supported Bilibili video
// URL form.
func IsBilibiliURL(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	return bvPattern.MatchString(s) || avPattern.MatchString(s) ||
		shortPattern.MatchString(s) || mobilePattern.MatchString(s)
}

// VideoID identifies a Bilibili video. Type is "BV", "AV" or "SHORT".
type VideoID struct {
	Type string
	ID   string
}

// ExtractVideoID pulls the video identifier out of any supported URL form.
func ExtractVideoID(s string) (VideoID, bool) {
	s = strings.TrimSpace(s)

	if m := bvPattern.FindStringSubmatch(s); m != nil {
		return VideoID{Type: "BV", ID: m[1]}, true
	}
	if m := avPattern.FindStringSubmatch(s); m != nil {
		return VideoID{Type: "AV", ID: m[1]}, true
	}
	if m := mobilePattern.FindStringSubmatch(s); m != nil {
		id := m[1]
		if strings.HasPrefix(id, "BV") {
			return VideoID{Type: "BV", ID: id}, true
		}
		return VideoID{Type: "AV", ID: strings.TrimPrefix(id, "av")}, true
	}
	if m := shortPattern.FindStringSubmatch(s); m != nil {
		return VideoID{Type: "SHORT", ID: m[1]}, true
	}
	return VideoID{}, false
}

// NormalizeBilibiliURL rewrites any accepted form to the canonical
// www.bilibili.com/video/ URL. Short b23.tv links are returned unchanged;
// yt-dlp follows their redirect itself.
func NormalizeBilibiliURL(s string) (string, bool) {
	id, ok := ExtractVideoID(s)
	if !ok {
		return "", false
	}
	switch id.Type {
	case "BV":
		return "https://www.bilibili.com/video/" + id.ID, true
	case "AV":
		return "https://www.bilibili.com/video/av" + id.ID, true
	default:
		return strings.TrimSpace(s), true
	}
}

// ============================================================================
// Search API
// ============================================================================

const bilibiliSearchURL = "https://api.bilibili.com/x/web-interface/search/type"

type BilibiliVideo struct {
	Bvid     string
	Title    string
	Author   string
	Duration time.Duration
	Plays    int
	URL      string
}

type biliSearchResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		Result []struct {
			Bvid     string `json:"bvid"`
			Title    string `json:"title"`
			Author   string `json:"author"`
			Duration string `json:"duration"`
			Play     int    `json:"play"`
		} `json:"result"`
	} `json:"data"`
}

var biliHTTP = &http.Client{Timeout: 10 * time.Second}

// SearchBilibili queries the Bilibili web search API for videos. order is
// a ranking mode ("totalrank", "click", "pubdate"); empty means totalrank.
func SearchBilibili(ctx context.Context, cfg *sys.Config, keyword, order string, limit int) ([]BilibiliVideo, error) {
	if order == "" {
		order = "totalrank"
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	q := url.Values{}
	q.Set("search_type", "video")
	q.Set("keyword", keyword)
	q.Set("page", "1")
	q.Set("pagesize", strconv.Itoa(limit))
	q.Set("order", order)
	q.Set("duration", "0")
	q.Set("tids", "0")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, bilibiliSearchURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", cfg.UserAgent)
	req.Header.Set("Referer", cfg.Referer)
	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")

	resp, err := biliHTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bilibili search returned status %d", resp.StatusCode)
	}

	var body biliSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	if body.Code != 0 {
		return nil, fmt.Errorf("bilibili search error %d: %s", body.Code, body.Message)
	}

	videos := make([]BilibiliVideo, 0, len(body.Data.Result))
	for _, r := range body.Data.Result {
		if r.Bvid == "" {
			continue
		}
		videos = append(videos, BilibiliVideo{
			Bvid:     r.Bvid,
			Title:    htmlTagRe.ReplaceAllString(r.Title, ""),
			Author:   r.Author,
			Duration: parseBilibiliDuration(r.Duration),
			Plays:    r.Play,
			URL:      "https://www.bilibili.com/video/" + r.Bvid,
		})
	}
	return videos, nil
}

// parseBilibiliDuration handles the search API's "MM:SS" / "H:MM:SS" form.
func parseBilibiliDuration(s string) time.Duration {
	parts := strings.Split(strings.TrimSpace(s), ":")
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}

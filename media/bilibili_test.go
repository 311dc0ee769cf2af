package media

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leeineian/hachimi/sys"
)

func TestIsBilibiliURL(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"https://www.bilibili.com/video/BV1GJ411x7h7", true},
		{"http://bilibili.com/video/BV1GJ411x7h7", true},
		{"bilibili.com/video/BV1GJ411x7h7", true},
		{"https://www.bilibili.com/video/av170001", true},
		{"https://b23.tv/abc123", true},
		{"b23.tv/abc123", true},
		{"https://m.bilibili.com/video/BV1GJ411x7h7", true},
		{"https://m.bilibili.com/video/av170001", true},
		{"  https://www.bilibili.com/video/BV1GJ411x7h7?p=2  ", true},

		{"", false},
		{"hachimi song", false},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", false},
		{"https://www.bilibili.com/bangumi/play/ep1", false},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, IsBilibiliURL(tc.in), "IsBilibiliURL(%q)", tc.in)
	}
}

func TestExtractVideoID(t *testing.T) {
	cases := []struct {
		in   string
		want VideoID
		ok   bool
	}{
		{"https://www.bilibili.com/video/BV1GJ411x7h7", VideoID{Type: "BV", ID: "BV1GJ411x7h7"}, true},
		{"https://www.bilibili.com/video/av170001", VideoID{Type: "AV", ID: "170001"}, true},
		{"https://m.bilibili.com/video/BV1GJ411x7h7", VideoID{Type: "BV", ID: "BV1GJ411x7h7"}, true},
		{"https://m.bilibili.com/video/av170001", VideoID{Type: "AV", ID: "170001"}, true},
		{"https://b23.tv/abc123", VideoID{Type: "SHORT", ID: "abc123"}, true},
		{"not a url", VideoID{}, false},
	}
	for _, tc := range cases {
		got, ok := ExtractVideoID(tc.in)
		require.Equalf(t, tc.ok, ok, "ExtractVideoID(%q)", tc.in)
		assert.Equalf(t, tc.want, got, "ExtractVideoID(%q)", tc.in)
	}
}

func TestNormalizeBilibiliURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"bilibili.com/video/BV1GJ411x7h7", "https://www.bilibili.com/video/BV1GJ411x7h7", true},
		{"https://www.bilibili.com/video/BV1GJ411x7h7?p=2&t=30", "https://www.bilibili.com/video/BV1GJ411x7h7", true},
		{"https://www.bilibili.com/video/av170001", "https://www.bilibili.com/video/av170001", true},
		{"https://m.bilibili.com/video/av170001", "https://www.bilibili.com/video/av170001", true},
		{"https://b23.tv/abc123", "https://b23.tv/abc123", true},
		{"https://example.com/x", "", false},
	}
	for _, tc := range cases {
		got, ok := NormalizeBilibiliURL(tc.in)
		require.Equalf(t, tc.ok, ok, "NormalizeBilibiliURL(%q)", tc.in)
		assert.Equalf(t, tc.want, got, "NormalizeBilibiliURL(%q)", tc.in)
	}
}

func TestParseBilibiliDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"3:25", 3*time.Minute + 25*time.Second},
		{"0:07", 7 * time.Second},
		{"1:02:03", time.Hour + 2*time.Minute + 3*time.Second},
		{" 3:25 ", 3*time.Minute + 25*time.Second},
		{"n/a", 0},
		{"", 0},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, parseBilibiliDuration(tc.in), "parseBilibiliDuration(%q)", tc.in)
	}
}

// roundTripFunc lets a test serve canned responses without a listener.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func TestSearchBilibili(t *testing.T) {
	cfg := &sys.Config{UserAgent: "test-agent", Referer: "https://www.bilibili.com/"}

	const payload = `{
		"code": 0,
		"data": {
			"result": [
				{"bvid": "BV1xx", "title": "<em class=\"keyword\">哈基米</em> remix", "author": "uploader1", "duration": "3:25", "play": 12345},
				{"bvid": "", "title": "ad slot", "author": "", "duration": "", "play": 0},
				{"bvid": "BV2yy", "title": "plain title", "author": "uploader2", "duration": "1:02:03", "play": 99}
			]
		}
	}`

	var gotReq *http.Request
	orig := biliHTTP
	biliHTTP = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		gotReq = req
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte(payload))),
			Header:     http.Header{"Content-Type": []string{"application/json"}},
		}, nil
	})}
	t.Cleanup(func() { biliHTTP = orig })

	videos, err := SearchBilibili(context.Background(), cfg, "哈基米", "click", 10)
	require.NoError(t, err)

	require.NotNil(t, gotReq)
	q := gotReq.URL.Query()
	assert.Equal(t, "video", q.Get("search_type"))
	assert.Equal(t, "哈基米", q.Get("keyword"))
	assert.Equal(t, "click", q.Get("order"))
	assert.Equal(t, "10", q.Get("pagesize"))
	assert.Equal(t, "test-agent", gotReq.Header.Get("User-Agent"))

	// Entries without a bvid are dropped; highlight markup is stripped.
	require.Len(t, videos, 2)
	assert.Equal(t, "哈基米 remix", videos[0].Title)
	assert.Equal(t, "https://www.bilibili.com/video/BV1xx", videos[0].URL)
	assert.Equal(t, 3*time.Minute+25*time.Second, videos[0].Duration)
	assert.Equal(t, 12345, videos[0].Plays)
	assert.Equal(t, time.Hour+2*time.Minute+3*time.Second, videos[1].Duration)
}

func TestSearchBilibiliAPIError(t *testing.T) {
	cfg := &sys.Config{UserAgent: "a", Referer: "b"}

	orig := biliHTTP
	biliHTTP = &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewReader([]byte(`{"code": -412, "message": "request was rejected"}`))),
		}, nil
	})}
	t.Cleanup(func() { biliHTTP = orig })

	_, err := SearchBilibili(context.Background(), cfg, "x", "", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-412")
}

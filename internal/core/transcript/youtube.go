// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transcript

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

const (
	DefaultWatchURL = "https://www.youtube.com/watch"

	playerResponseMarker = "ytInitialPlayerResponse = "
	userAgent            = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxWatchPageBytes    = 6 * 1024 * 1024
	maxCaptionBytes      = 1024 * 1024
)

var errNoCaptions = errors.New("no transcript: video has no caption tracks")

type playerResponse struct {
	Captions *struct {
		Renderer struct {
			CaptionTracks []captionTrack `json:"captionTracks"`
		} `json:"playerCaptionsTracklistRenderer"`
	} `json:"captions"`
	PlayabilityStatus *struct {
		Status string `json:"status"`
		Reason string `json:"reason"`
	} `json:"playabilityStatus"`
}

type captionTrack struct {
	BaseURL      string `json:"baseUrl"`
	LanguageCode string `json:"languageCode"`
	Kind         string `json:"kind"` // "asr" marks auto-generated tracks
}

type timedText struct {
	Lines []struct {
		Start string `xml:"start,attr"`
		Text  string `xml:",chardata"`
	} `xml:"text"`
}

// YouTubeFetcher reads captions by scraping the player response embedded in
// the watch page and then downloading the selected timed-text track.
type YouTubeFetcher struct {
	client      *http.Client
	watchURL    string
	detailLimit int
}

// NewYouTubeFetcher creates a fetcher. The client carries the proxy and timeout
// settings; an empty watchURL uses DefaultWatchURL.
func NewYouTubeFetcher(client *http.Client, watchURL string, detailLimit int) *YouTubeFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if watchURL == "" {
		watchURL = DefaultWatchURL
	}
	if detailLimit <= 0 {
		detailLimit = DefaultDetailLimit
	}
	return &YouTubeFetcher{client: client, watchURL: watchURL, detailLimit: detailLimit}
}

// Fetch implements Fetcher.
func (y *YouTubeFetcher) Fetch(ctx context.Context, videoID string, languages []string) (*model.Transcript, error) {
	videoID = strings.TrimSpace(videoID)
	if videoID == "" {
		return nil, NewFailure(Unavailable, errors.New("no transcript: empty video id"), y.detailLimit)
	}
	if len(languages) == 0 {
		languages = DefaultLanguages
	}

	player, err := y.readPlayerResponse(ctx, videoID)
	if err != nil {
		return nil, y.fail(err)
	}
	if player.Captions == nil || len(player.Captions.Renderer.CaptionTracks) == 0 {
		if player.PlayabilityStatus != nil && player.PlayabilityStatus.Reason != "" {
			return nil, NewFailure(Unavailable,
				fmt.Errorf("no transcript: %s", player.PlayabilityStatus.Reason), y.detailLimit)
		}
		return nil, NewFailure(Unavailable, errNoCaptions, y.detailLimit)
	}

	track := pickTrack(player.Captions.Renderer.CaptionTracks, languages)
	fragments, err := y.readTimedText(ctx, track.BaseURL)
	if err != nil {
		return nil, y.fail(err)
	}
	if len(fragments) == 0 {
		return nil, NewFailure(Unavailable, errors.New("no transcript: caption track is empty"), y.detailLimit)
	}

	slog.InfoContext(ctx, "fetched transcript",
		"video_id", videoID, "language", track.LanguageCode, "fragments", len(fragments))
	return &model.Transcript{VideoID: videoID, Language: track.LanguageCode, Fragments: fragments}, nil
}

// fail keeps the kind of a tagged failure and reports everything else
// (transport errors, bad status codes, undecodable bodies) as unknown.
func (y *YouTubeFetcher) fail(err error) *Failure {
	var failure *Failure
	if errors.As(err, &failure) {
		return NewFailure(failure.Kind, err, y.detailLimit)
	}
	return NewFailure(Unknown, err, y.detailLimit)
}

func (y *YouTubeFetcher) get(ctx context.Context, target string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, NewFailure(Unknown, err, y.detailLimit)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, NewFailure(Unknown, err, y.detailLimit)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, NewFailure(Blocked, fmt.Errorf("request blocked: HTTP %d", resp.StatusCode), y.detailLimit)
	case resp.StatusCode >= 400:
		return nil, NewFailure(Unknown, fmt.Errorf("unexpected HTTP %d from %s", resp.StatusCode, req.URL.Host), y.detailLimit)
	}
	return body, nil
}

func (y *YouTubeFetcher) readPlayerResponse(ctx context.Context, videoID string) (*playerResponse, error) {
	target := y.watchURL + "?" + url.Values{"v": {videoID}}.Encode()
	body, err := y.get(ctx, target, maxWatchPageBytes)
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}

	idx := bytes.Index(body, []byte(playerResponseMarker))
	if idx < 0 {
		lower := bytes.ToLower(body)
		if bytes.Contains(lower, []byte("unusual traffic")) || bytes.Contains(lower, []byte("recaptcha")) {
			return nil, NewFailure(Blocked, errors.New("watch page blocked: captcha challenge"), y.detailLimit)
		}
		return nil, errors.New("player response not found in watch page")
	}
	raw := extractObject(body[idx+len(playerResponseMarker):])
	if raw == nil {
		return nil, errors.New("player response is truncated")
	}

	out := &playerResponse{}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("decode player response: %w", err)
	}
	return out, nil
}

func (y *YouTubeFetcher) readTimedText(ctx context.Context, target string) ([]*model.TranscriptFragment, error) {
	body, err := y.get(ctx, target, maxCaptionBytes)
	if err != nil {
		return nil, fmt.Errorf("caption track: %w", err)
	}

	var tt timedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse caption xml: %w", err)
	}

	out := make([]*model.TranscriptFragment, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		text := strings.TrimSpace(html.UnescapeString(line.Text))
		if text == "" {
			continue
		}
		fragment := &model.TranscriptFragment{Text: text}
		if start, err := strconv.ParseFloat(line.Start, 64); err == nil {
			fragment.Start = &start
		}
		out = append(out, fragment)
	}
	return out, nil
}

// pickTrack prefers a manual track in a preferred language, then an
// auto-generated one, then any English track, then the first track.
func pickTrack(tracks []captionTrack, languages []string) captionTrack {
	for _, lang := range languages {
		for _, t := range tracks {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t
			}
		}
	}
	for _, lang := range languages {
		for _, t := range tracks {
			if t.LanguageCode == lang {
				return t
			}
		}
	}
	for _, t := range tracks {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t
		}
	}
	return tracks[0]
}

// extractObject returns the leading balanced JSON object of b, or nil.
func extractObject(b []byte) []byte {
	if len(b) == 0 || b[0] != '{' {
		return nil
	}
	depth := 0
	inString := false
	escaped := false
	for i, c := range b {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return b[:i+1]
			}
		}
	}
	return nil
}

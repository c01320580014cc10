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

package transcript_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/classify"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/transcript"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const captionXML = `<?xml version="1.0" encoding="utf-8" ?><transcript>
<text start="0.0" dur="1.2">Hello</text>
<text start="65.4" dur="2.0">it&amp;#39;s a demo</text>
<text start="70" dur="1"> </text>
</transcript>`

// newSource serves a watch page whose player response lists the given tracks
// and a caption endpoint per language.
func newSource(t *testing.T, watch func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/watch", watch)
	mux.HandleFunc("/timedtext", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = fmt.Fprint(w, strings.Replace(captionXML, "Hello", "Hello "+r.URL.Query().Get("lang"), 1))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func watchPage(srv **httptest.Server, tracks string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		base := (*srv).URL + "/timedtext"
		player := fmt.Sprintf(`{"playabilityStatus":{"status":"OK"},"captions":{"playerCaptionsTracklistRenderer":{"captionTracks":[%s]}},"note":"brace } in \"string\""}`,
			strings.ReplaceAll(tracks, "BASE", base))
		_, _ = fmt.Fprintf(w, `<html><script>var ytInitialPlayerResponse = %s;var meta = {};</script></html>`, player)
	}
}

func TestFetchPicksPreferredManualTrack(t *testing.T) {
	var srv *httptest.Server
	srv = newSource(t, watchPage(&srv, `
		{"baseUrl":"BASE?lang=en","languageCode":"en"},
		{"baseUrl":"BASE?lang=zh-Hant-asr","languageCode":"zh-Hant","kind":"asr"},
		{"baseUrl":"BASE?lang=zh-Hant","languageCode":"zh-Hant"}`))

	f := transcript.NewYouTubeFetcher(srv.Client(), srv.URL+"/watch", 0)
	tr, err := f.Fetch(context.Background(), "abc123", []string{"zh-Hans", "zh-Hant", "en"})
	require.NoError(t, err)

	assert.Equal(t, "abc123", tr.VideoID)
	assert.Equal(t, "zh-Hant", tr.Language)
	require.Len(t, tr.Fragments, 2)
	assert.Equal(t, "Hello zh-Hant", tr.Fragments[0].Text)
	assert.Equal(t, "it's a demo", tr.Fragments[1].Text)
	assert.Equal(t, "[0:00] Hello zh-Hant [1:05] it's a demo", tr.Text(3000))
}

func TestFetchFallsBackToEnglish(t *testing.T) {
	var srv *httptest.Server
	srv = newSource(t, watchPage(&srv, `
		{"baseUrl":"BASE?lang=de","languageCode":"de"},
		{"baseUrl":"BASE?lang=en-GB","languageCode":"en-GB","kind":"asr"}`))

	f := transcript.NewYouTubeFetcher(srv.Client(), srv.URL+"/watch", 0)
	tr, err := f.Fetch(context.Background(), "abc123", []string{"zh-Hans"})
	require.NoError(t, err)
	assert.Equal(t, "en-GB", tr.Language)
}

func TestFetchWithoutCaptionsIsUnavailable(t *testing.T) {
	srv := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `var ytInitialPlayerResponse = {"playabilityStatus":{"status":"ERROR","reason":"Video unavailable"}};`)
	})

	f := transcript.NewYouTubeFetcher(srv.Client(), srv.URL+"/watch", 0)
	_, err := f.Fetch(context.Background(), "gone", nil)

	var failure *transcript.Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, transcript.Unavailable, failure.Kind)
	assert.Contains(t, failure.Detail, "Video unavailable")
	assert.Equal(t, classify.TranscriptUnavailable, failure.Category())
}

func TestFetchRateLimitedIsBlocked(t *testing.T) {
	srv := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	f := transcript.NewYouTubeFetcher(srv.Client(), srv.URL+"/watch", 0)
	_, err := f.Fetch(context.Background(), "abc123", nil)

	var failure *transcript.Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, transcript.Blocked, failure.Kind)
	assert.Equal(t, "TRANSCRIPT_BLOCKED", failure.Classified().Code())
}

func TestFetchCaptchaPageIsBlocked(t *testing.T) {
	srv := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `<html>Our systems have detected unusual traffic from your computer network.</html>`)
	})

	f := transcript.NewYouTubeFetcher(srv.Client(), srv.URL+"/watch", 0)
	_, err := f.Fetch(context.Background(), "abc123", nil)

	var failure *transcript.Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, transcript.Blocked, failure.Kind)
}

func TestFetchUnrecognizedPageIsUnknownAndBounded(t *testing.T) {
	srv := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, strings.Repeat("x", 10000))
	})

	f := transcript.NewYouTubeFetcher(srv.Client(), srv.URL+"/watch", 50)
	_, err := f.Fetch(context.Background(), "abc123", nil)

	var failure *transcript.Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, transcript.Unknown, failure.Kind)
	assert.LessOrEqual(t, len([]rune(failure.Detail)), 53)
	assert.Equal(t, classify.NetworkOrUnknown, failure.Category())
}

func TestFetchCaptionTrackErrorsAreUnknown(t *testing.T) {
	for name, caption := range map[string]http.HandlerFunc{
		"bad gateway": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		},
		"malformed xml": func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprint(w, `<transcript><text start="0">cut`)
		},
	} {
		t.Run(name, func(t *testing.T) {
			var srv *httptest.Server
			mux := http.NewServeMux()
			mux.HandleFunc("/watch", watchPage(&srv, `{"baseUrl":"BASE?lang=en","languageCode":"en"}`))
			mux.HandleFunc("/timedtext", caption)
			srv = httptest.NewServer(mux)
			defer srv.Close()

			f := transcript.NewYouTubeFetcher(srv.Client(), srv.URL+"/watch", 0)
			_, err := f.Fetch(context.Background(), "abc123", []string{"en"})

			var failure *transcript.Failure
			require.True(t, errors.As(err, &failure))
			assert.Equal(t, transcript.Unknown, failure.Kind)
			assert.Contains(t, failure.Detail, "caption")
			assert.Equal(t, classify.NetworkOrUnknown, failure.Category())
		})
	}
}

func TestFetchWatchPageServerErrorIsUnknown(t *testing.T) {
	srv := newSource(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	f := transcript.NewYouTubeFetcher(srv.Client(), srv.URL+"/watch", 0)
	_, err := f.Fetch(context.Background(), "abc123", nil)

	var failure *transcript.Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, transcript.Unknown, failure.Kind)
	assert.Contains(t, failure.Detail, "503")
}

func TestFetchEmptyVideoID(t *testing.T) {
	f := transcript.NewYouTubeFetcher(nil, "", 0)
	_, err := f.Fetch(context.Background(), "  ", nil)

	var failure *transcript.Failure
	require.True(t, errors.As(err, &failure))
	assert.Equal(t, transcript.Unavailable, failure.Kind)
}

func TestKindFromText(t *testing.T) {
	assert.Equal(t, transcript.Blocked, transcript.KindFromText("YouTube is blocking requests from your IP"))
	assert.Equal(t, transcript.Unavailable, transcript.KindFromText("No transcripts were found for any of the requested language codes"))
	assert.Equal(t, transcript.Unknown, transcript.KindFromText("connection reset by peer"))
	assert.Equal(t, transcript.Unknown, transcript.KindFromText("caption track: unexpected HTTP 502"))
	assert.Equal(t, transcript.Unavailable, transcript.KindFromText("Subtitles are disabled for this video"))
}

func TestParsePolicy(t *testing.T) {
	p, err := transcript.ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, transcript.PolicyPlaceholder, p)

	p, err = transcript.ParsePolicy(" Propagate ")
	require.NoError(t, err)
	assert.Equal(t, transcript.PolicyPropagate, p)

	_, err = transcript.ParsePolicy("strict")
	assert.Error(t, err)
}

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

// Package transcript fetches caption transcripts for videos. Every failure is
// reported as a *Failure tagged unavailable, blocked or unknown, with the raw
// upstream detail bounded so it can be logged and shown safely.
package transcript

import (
	"context"
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/classify"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// Kind tags a transcript failure.
type Kind string

const (
	Unavailable Kind = "TRANSCRIPT_UNAVAILABLE"
	Blocked     Kind = "TRANSCRIPT_BLOCKED"
	Unknown     Kind = "TRANSCRIPT_UNKNOWN"
)

// DefaultDetailLimit is the number of characters of raw detail kept on a Failure.
const DefaultDetailLimit = 300

// DefaultLanguages is the caption language preference used when none is configured.
var DefaultLanguages = []string{"zh-Hans", "zh-Hant", "en", "en-US"}

// Fetcher returns the transcript of a video. Implementations return a
// *Failure as the error.
type Fetcher interface {
	Fetch(ctx context.Context, videoID string, languages []string) (*model.Transcript, error)
}

// Failure describes why a transcript could not be produced.
type Failure struct {
	Kind   Kind
	Detail string
	Err    error
}

func (f *Failure) Error() string {
	if f.Detail == "" {
		return string(f.Kind)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Category maps the failure onto the shared error taxonomy. Unknown failures
// are reported as network or unknown errors.
func (f *Failure) Category() classify.Category {
	switch f.Kind {
	case Unavailable:
		return classify.TranscriptUnavailable
	case Blocked:
		return classify.TranscriptBlocked
	default:
		return classify.NetworkOrUnknown
	}
}

// Classified converts the failure into a ClassifiedError for callers.
func (f *Failure) Classified() *classify.ClassifiedError {
	return classify.New(f.Category(), f.Detail)
}

// NewFailure builds a Failure whose detail is err's text cut to limit characters.
func NewFailure(kind Kind, err error, limit int) *Failure {
	if limit <= 0 {
		limit = DefaultDetailLimit
	}
	detail := ""
	if err != nil {
		detail = classify.Truncate(err.Error(), limit)
	}
	return &Failure{Kind: kind, Detail: detail, Err: err}
}

var (
	blockedPhrases = []string{"blocking", "blocked", "unusual traffic", "recaptcha"}

	unavailablePhrases = []string{
		"no transcript", "transcripts are disabled", "transcript is disabled",
		"transcript not available", "no caption", "captions are disabled",
		"subtitles are disabled", "video unavailable",
	}
)

// KindFromText infers the failure kind from an upstream error message, such
// as the reason text of a third-party fetcher. Blocking wins over missing
// transcripts; anything else is unknown.
func KindFromText(raw string) Kind {
	lower := strings.ToLower(raw)
	for _, phrase := range blockedPhrases {
		if strings.Contains(lower, phrase) {
			return Blocked
		}
	}
	for _, phrase := range unavailablePhrases {
		if strings.Contains(lower, phrase) {
			return Unavailable
		}
	}
	return Unknown
}

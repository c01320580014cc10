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

// Package commands contains the cor commands that make up the analysis
// workflow and the cache invalidation listener.
package commands

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/transcript"
)

// TranscriptFailureParam holds the *transcript.Failure of a run in which the
// placeholder replaced the transcript.
const TranscriptFailureParam = "__transcript_failure__"

// TranscriptReader reads a video id from its input and writes the transcript
// text, bounded to maxChars, to its output.
type TranscriptReader struct {
	cor.BaseCommand
	fetcher     transcript.Fetcher
	languages   []string
	policy      transcript.Policy
	placeholder string
	maxChars    int
}

// NewTranscriptReader creates the command. An empty placeholder uses
// transcript.DefaultPlaceholder.
func NewTranscriptReader(
	name string,
	fetcher transcript.Fetcher,
	languages []string,
	policy transcript.Policy,
	placeholder string,
	maxChars int) *TranscriptReader {

	if placeholder == "" {
		placeholder = transcript.DefaultPlaceholder
	}
	return &TranscriptReader{
		BaseCommand: *cor.NewBaseCommand(name),
		fetcher:     fetcher,
		languages:   languages,
		policy:      policy,
		placeholder: placeholder,
		maxChars:    maxChars,
	}
}

func (r *TranscriptReader) Execute(context cor.Context) {
	videoID, _ := context.Get(r.GetInputParam()).(string)

	tr, err := r.fetcher.Fetch(context.GetContext(), videoID, r.languages)
	if err == nil {
		text := tr.Text(r.maxChars)
		if text != "" {
			r.Succeeded(context)
			context.Add(r.GetOutputParam(), text)
			return
		}
		err = transcript.NewFailure(transcript.Unavailable, errors.New("no transcript: transcript is empty"), 0)
	}

	var failure *transcript.Failure
	if !errors.As(err, &failure) {
		failure = transcript.NewFailure(transcript.KindFromText(err.Error()), err, 0)
	}

	if r.policy == transcript.PolicyPropagate {
		r.Failed(context, fmt.Errorf("transcript unavailable for %s: %w", videoID, failure))
		return
	}

	slog.WarnContext(context.GetContext(), "transcript unavailable, analysing placeholder text",
		"video_id", videoID, "kind", failure.Kind, "detail", failure.Detail)
	r.Succeeded(context)
	context.Add(TranscriptFailureParam, failure)
	context.Add(r.GetOutputParam(), r.placeholder)
}

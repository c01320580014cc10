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

// Package model contains the data structures that flow through the analysis
// pipeline and the record listing. None of them are persisted by this service:
// transcripts and analysis results live for a single request, video records
// live in the record cache until the next refresh.
package model

import (
	"fmt"
	"sort"
	"strings"
)

// ScriptSection is one entry of the script breakdown produced by a model.
type ScriptSection struct {
	Time    string `json:"time"`    // A time label such as "0:12" or "middle".
	Label   string `json:"label"`   // The section name (e.g. "Hook", "Demo").
	Summary string `json:"summary"` // A short description of the section content.
}

// AnalysisResult is the normalized output of a provider. It intentionally has
// no palette field; color extraction is handled elsewhere.
type AnalysisResult struct {
	VisualStyle     string           `json:"visual_style"`
	MotionAnalysis  string           `json:"motion_analysis"`
	ScriptStructure []*ScriptSection `json:"script_structure"`
}

// TranscriptFragment is a single caption line. Start is nil when the source
// did not report timing for the fragment.
type TranscriptFragment struct {
	Text  string
	Start *float64
}

// Transcript is the ordered sequence of fragments for one video.
type Transcript struct {
	VideoID   string
	Language  string
	Fragments []*TranscriptFragment
}

// NewPlainTranscript wraps a block of text as a single untimed fragment. It is
// used for placeholder text when the real transcript could not be fetched.
func NewPlainTranscript(videoID string, text string) *Transcript {
	return &Transcript{
		VideoID:   videoID,
		Fragments: []*TranscriptFragment{{Text: text}},
	}
}

// FormatTimestamp renders seconds as M:SS (minutes are not capped at 60).
func FormatTimestamp(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// Text concatenates the fragments into one blob, each fragment prefixed with
// its [M:SS] start time when known, and truncates the result to maxChars
// runes. A maxChars of zero or less disables truncation.
func (t *Transcript) Text(maxChars int) string {
	if t == nil {
		return ""
	}
	parts := make([]string, 0, len(t.Fragments))
	for _, f := range t.Fragments {
		line := strings.TrimSpace(f.Text)
		if line == "" {
			continue
		}
		if f.Start != nil {
			line = fmt.Sprintf("[%s] %s", FormatTimestamp(*f.Start), line)
		}
		parts = append(parts, line)
	}
	return TruncateRunes(strings.Join(parts, " "), maxChars)
}

// TruncateRunes cuts s to at most max runes without splitting a character.
func TruncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// ProviderAttempt is one (provider, model) pair of the fallback chain.
type ProviderAttempt struct {
	Provider string `toml:"provider" json:"provider"`
	Model    string `toml:"model" json:"model"`
	Priority int    `toml:"priority" json:"priority"`
}

func (a ProviderAttempt) String() string {
	return a.Provider + "/" + a.Model
}

// SortAttempts orders attempts by ascending priority, keeping the declared
// order for equal priorities.
func SortAttempts(attempts []ProviderAttempt) []ProviderAttempt {
	out := make([]ProviderAttempt, len(attempts))
	copy(out, attempts)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Priority < out[j].Priority
	})
	return out
}

// VideoRecord is a row of the video catalog, decoded from the record store.
type VideoRecord struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	URL           string   `json:"url"`
	Cover         string   `json:"cover"`
	Analysis      string   `json:"analysis"`
	Company       []string `json:"company"`
	AnimationType []string `json:"animationType"`
	Technique     []string `json:"technique"`
	Features      []string `json:"features"`
}

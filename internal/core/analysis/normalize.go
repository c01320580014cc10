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

// Package analysis holds the provider-independent parts of video analysis:
// the provider contract, the prompt, the response normalizer and the rules
// that settle a fallback chain into a result or a failure.
package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/classify"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

var requiredKeys = []string{"visual_style", "motion_analysis", "script_structure"}

// paletteKeys are removed from provider output before decoding.
var paletteKeys = []string{"hexPalette", "hex_palette", "palette", "color_palette", "colorPalette", "colors"}

// NormalizationError reports a provider response that cannot be turned into
// an AnalysisResult. Raw is bounded.
type NormalizationError struct {
	Reason string
	Raw    string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalization failed: %s", e.Reason)
}

func normalizationError(reason string, raw string) *NormalizationError {
	return &NormalizationError{Reason: reason, Raw: classify.Truncate(raw, classify.DetailLimit)}
}

// StripFences removes markdown code fences and surrounding whitespace.
func StripFences(raw string) string {
	out := strings.ReplaceAll(raw, "```json", "")
	out = strings.ReplaceAll(out, "```JSON", "")
	out = strings.ReplaceAll(out, "```", "")
	return strings.TrimSpace(out)
}

// Normalize validates raw provider text and decodes it into an
// AnalysisResult. It never panics; any problem is a *NormalizationError.
func Normalize(raw string) (*model.AnalysisResult, error) {
	text := StripFences(raw)
	if text == "" {
		return nil, normalizationError("empty response", raw)
	}
	fields, err := decodeObject(text)
	if err != nil {
		return nil, normalizationError(err.Error(), raw)
	}
	for _, key := range requiredKeys {
		if _, ok := fields[key]; !ok {
			return nil, normalizationError(fmt.Sprintf("missing key %q", key), raw)
		}
	}
	for _, key := range paletteKeys {
		delete(fields, key)
	}

	out := &model.AnalysisResult{}
	if err := decodeString(fields["visual_style"], &out.VisualStyle); err != nil {
		return nil, normalizationError(fmt.Sprintf("visual_style: %v", err), raw)
	}
	if err := decodeString(fields["motion_analysis"], &out.MotionAnalysis); err != nil {
		return nil, normalizationError(fmt.Sprintf("motion_analysis: %v", err), raw)
	}
	sections, err := decodeSections(fields["script_structure"])
	if err != nil {
		return nil, normalizationError(fmt.Sprintf("script_structure: %v", err), raw)
	}
	out.ScriptStructure = sections
	return out, nil
}

// decodeObject decodes text as a JSON object. When that fails it retries on
// the span from the first '{' to the last '}', since models sometimes wrap the
// object in prose on either side.
func decodeObject(text string) (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	err := json.Unmarshal([]byte(text), &fields)
	if err == nil {
		return fields, nil
	}
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON object in response")
	}
	if start == 0 && end == len(text)-1 {
		return nil, fmt.Errorf("invalid JSON: %v", err)
	}
	fields = make(map[string]json.RawMessage)
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return nil, fmt.Errorf("invalid JSON: %v", err)
	}
	return fields, nil
}

func decodeString(raw json.RawMessage, dst *string) error {
	if isNull(raw) {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func decodeSections(raw json.RawMessage) ([]*model.ScriptSection, error) {
	out := make([]*model.ScriptSection, 0)
	if isNull(raw) {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	// drop null entries so callers never see a nil section
	sections := out[:0]
	for _, s := range out {
		if s != nil {
			sections = append(sections, s)
		}
	}
	return sections, nil
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

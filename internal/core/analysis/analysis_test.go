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

package analysis_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/analysis"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/classify"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validJSON = `{"visual_style":"minimal","motion_analysis":"slow","script_structure":[]}`

func TestNormalizeValid(t *testing.T) {
	out, err := analysis.Normalize(validJSON)
	require.NoError(t, err)
	assert.Equal(t, "minimal", out.VisualStyle)
	assert.Equal(t, "slow", out.MotionAnalysis)
	assert.NotNil(t, out.ScriptStructure)
	assert.Len(t, out.ScriptStructure, 0)
}

func TestNormalizeStripsFences(t *testing.T) {
	raw := "```json\n{\"visual_style\":\"bold\",\"motion_analysis\":\"fast\",\"script_structure\":[{\"time\":\"0:00\",\"label\":\"Hook\",\"summary\":\"intro\"}]}\n```\n"
	out, err := analysis.Normalize(raw)
	require.NoError(t, err)
	require.Len(t, out.ScriptStructure, 1)
	assert.Equal(t, "Hook", out.ScriptStructure[0].Label)
	assert.Equal(t, "0:00", out.ScriptStructure[0].Time)
}

func TestNormalizeRepairsSurroundingProse(t *testing.T) {
	out, err := analysis.Normalize("Sure! Here is the analysis:\n" + validJSON + "\nLet me know if you need more.")
	require.NoError(t, err)
	assert.Equal(t, "minimal", out.VisualStyle)
}

func TestNormalizeRepairsTrailingProse(t *testing.T) {
	out, err := analysis.Normalize(validJSON + "\nHope this helps!")
	require.NoError(t, err)
	assert.Equal(t, "minimal", out.VisualStyle)
	assert.Equal(t, "slow", out.MotionAnalysis)
}

func TestNormalizeDropsPalette(t *testing.T) {
	raw := `{"visual_style":"neon","motion_analysis":"snappy","script_structure":null,"hexPalette":["#fff","#000"],"palette":"x"}`
	out, err := analysis.Normalize(raw)
	require.NoError(t, err)
	assert.NotNil(t, out.ScriptStructure)

	encoded, err := json.Marshal(out)
	require.NoError(t, err)
	assert.NotContains(t, strings.ToLower(string(encoded)), "palette")
}

func TestNormalizeFailures(t *testing.T) {
	cases := map[string]string{
		"not json":        "not json",
		"empty":           "   ",
		"fence only":      "```json\n```",
		"missing key":     `{"visual_style":"a","motion_analysis":"b"}`,
		"wrong type":      `{"visual_style":1,"motion_analysis":"b","script_structure":[]}`,
		"script not list": `{"visual_style":"a","motion_analysis":"b","script_structure":"intro"}`,
		"array":           `[1,2,3]`,
		"broken object":   `{"visual_style": "a",`,
	}
	for name, raw := range cases {
		out, err := analysis.Normalize(raw)
		assert.Nil(t, out, name)
		var nerr *analysis.NormalizationError
		assert.True(t, errors.As(err, &nerr), name)
	}
}

func TestNormalizationErrorRawIsBounded(t *testing.T) {
	_, err := analysis.Normalize(strings.Repeat("z", 4000))
	var nerr *analysis.NormalizationError
	require.True(t, errors.As(err, &nerr))
	assert.LessOrEqual(t, len(nerr.Raw), classify.DetailLimit+3)
}

func TestPromptBuilderTruncatesTranscript(t *testing.T) {
	builder, err := analysis.NewPromptBuilder("", 5)
	require.NoError(t, err)

	prompt, err := builder.Build("Hello world")
	require.NoError(t, err)
	assert.Contains(t, prompt, "Hello")
	assert.NotContains(t, prompt, "Hello world")
	assert.Contains(t, prompt, `"script_structure"`)
	assert.NotContains(t, prompt, "{{")
}

func TestPromptBuilderRejectsBadTemplate(t *testing.T) {
	_, err := analysis.NewPromptBuilder("{{.TRANSCRIPT", 10)
	assert.Error(t, err)

	builder, err := analysis.NewPromptBuilder("{{.UNKNOWN}}", 10)
	require.NoError(t, err)
	_, err = builder.Build("x")
	assert.Error(t, err)
}

func attempt(name string) model.ProviderAttempt {
	return model.ProviderAttempt{Provider: name, Model: name + "-model"}
}

func TestSettleFirstSuccessWins(t *testing.T) {
	first := &model.AnalysisResult{VisualStyle: "first"}
	out := analysis.Settle([]*analysis.AttemptRecord{
		{Attempt: attempt("a"), NormalizationError: &analysis.NormalizationError{Reason: "bad"}},
		{Attempt: attempt("b"), Result: first},
		{Attempt: attempt("c"), Result: &model.AnalysisResult{VisualStyle: "second"}},
	})
	assert.Same(t, first, out.Result)
	assert.False(t, out.Fallback)
	assert.Nil(t, out.Failure)
}

func TestSettleAllCredentialFailures(t *testing.T) {
	out := analysis.Settle([]*analysis.AttemptRecord{
		{Attempt: attempt("a"), ProviderError: classify.Classify("401 unauthorized")},
		{Attempt: attempt("b"), ProviderError: classify.Classify("429 quota exceeded")},
		{Attempt: attempt("c"), ProviderError: classify.Classify("quota again")},
	})
	require.NotNil(t, out.Failure)
	assert.Nil(t, out.Result)
	assert.Equal(t, classify.QuotaExceeded, out.Failure.Worst.Category)
	assert.Contains(t, out.Failure.Worst.Detail, "429")
	assert.Contains(t, out.Failure.Error(), "all 3 provider attempts failed")

	var ce *classify.ClassifiedError
	assert.True(t, errors.As(out.Failure, &ce))
}

func TestSettleMixedFailuresFallBack(t *testing.T) {
	out := analysis.Settle([]*analysis.AttemptRecord{
		{Attempt: attempt("a"), ProviderError: classify.Classify("429 quota exceeded")},
		{Attempt: attempt("b"), ProviderError: classify.Classify("connection reset")},
		{Attempt: attempt("c"), NormalizationError: &analysis.NormalizationError{Reason: "bad"}},
	})
	assert.Nil(t, out.Failure)
	assert.True(t, out.Fallback)
	assert.Equal(t, model.FallbackAnalysis(), out.Result)
}

func TestSettleEmptyChainFallsBack(t *testing.T) {
	out := analysis.Settle(nil)
	assert.True(t, out.Fallback)
	assert.NotNil(t, out.Result)
}

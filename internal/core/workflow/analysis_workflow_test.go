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

package workflow_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/analysis"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/classify"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/transcript"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-video-insights/internal/testutil"
)

func providers(primary, secondary analysis.Provider) map[string]analysis.Provider {
	return map[string]analysis.Provider{"primary": primary, "secondary": secondary}
}

func TestAnalyzeVideoFirstProviderWins(t *testing.T) {
	primary := test.NewFakeProvider(test.Text("```json\n" + test.ValidAnalysisJSON + "\n```"))
	secondary := test.NewFakeProvider(test.Text(test.ValidAnalysisJSON))
	fetcher := test.FetcherWithText("hello from the video")

	out := newAnalysis(t, fetcher, transcript.PolicyPlaceholder, providers(primary, secondary)).AnalyzeVideo(ctx, "abc123")

	require.Equal(t, workflow.StatusSuccess, out.Status)
	assert.False(t, out.Fallback)
	assert.Equal(t, "minimal", out.Result.VisualStyle)
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 0, secondary.Calls())
	assert.Equal(t, []string{"gemini-2.5-flash"}, primary.Models())
	assert.Contains(t, primary.Prompts()[0], "hello from the video")
	assert.Len(t, out.Attempts, 1)
}

func TestAnalyzeVideoFallsThroughNormalizationFailure(t *testing.T) {
	primary := test.NewFakeProvider(test.Text("sorry, I cannot help with that"))
	secondary := test.NewFakeProvider(test.Text(`{"visual_style":"bold","motion_analysis":"fast","script_structure":[{"time":"0:00","label":"Hook","summary":"opens"}]}`))

	out := newAnalysis(t, test.FetcherWithText("text"), transcript.PolicyPlaceholder, providers(primary, secondary)).AnalyzeVideo(ctx, "abc123")

	require.Equal(t, workflow.StatusSuccess, out.Status)
	assert.False(t, out.Fallback)
	assert.Equal(t, "bold", out.Result.VisualStyle)
	require.Len(t, out.Result.ScriptStructure, 1)
	assert.Equal(t, "Hook", out.Result.ScriptStructure[0].Label)
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 1, secondary.Calls())

	require.Len(t, out.Attempts, 2)
	assert.NotNil(t, out.Attempts[0].NormalizationError)
	assert.True(t, out.Attempts[1].Succeeded())
}

func TestAnalyzeVideoAllCredentialFailuresReportWorst(t *testing.T) {
	primary := test.NewFakeProvider(test.Fail("401 unauthorized: bad key"))
	secondary := test.NewFakeProvider(test.Fail("googleapi: Error 429: Resource has been exhausted (e.g. check quota)"))

	out := newAnalysis(t, test.FetcherWithText("text"), transcript.PolicyPlaceholder, providers(primary, secondary)).AnalyzeVideo(ctx, "abc123")

	require.Equal(t, workflow.StatusError, out.Status)
	require.NotNil(t, out.Error)
	assert.Equal(t, classify.QuotaExceeded, out.Error.Category)
	assert.Equal(t, "PROVIDER_QUOTA_EXCEEDED", out.Error.Code())
	assert.Contains(t, out.Error.Detail, "429")
	assert.Nil(t, out.Result)
	assert.Len(t, out.Attempts, 2)
}

func TestAnalyzeVideoMixedFailuresReturnFallback(t *testing.T) {
	primary := test.NewFakeProvider(test.Fail("429 quota exceeded"))
	secondary := test.NewFakeProvider(test.Fail("read tcp: connection reset by peer"))

	out := newAnalysis(t, test.FetcherWithText("text"), transcript.PolicyPlaceholder, providers(primary, secondary)).AnalyzeVideo(ctx, "abc123")

	require.Equal(t, workflow.StatusSuccess, out.Status)
	assert.True(t, out.Fallback)
	assert.Equal(t, model.FallbackAnalysis(), out.Result)
	assert.Nil(t, out.Error)
}

func TestAnalyzeVideoNotFoundIsNotCredential(t *testing.T) {
	primary := test.NewFakeProvider(test.Fail("404 model not found"))
	secondary := test.NewFakeProvider(test.Fail("403 permission denied"))

	out := newAnalysis(t, test.FetcherWithText("text"), transcript.PolicyPlaceholder, providers(primary, secondary)).AnalyzeVideo(ctx, "abc123")

	assert.Equal(t, workflow.StatusSuccess, out.Status)
	assert.True(t, out.Fallback)
}

func TestAnalyzeVideoNeverReturnsPalette(t *testing.T) {
	primary := test.NewFakeProvider(test.Text(`{"visual_style":"neon","motion_analysis":"snappy","script_structure":[],"hexPalette":["#ff0000"],"color_palette":"red"}`))

	out := newAnalysis(t, test.FetcherWithText("text"), transcript.PolicyPlaceholder, providers(primary, nil)).AnalyzeVideo(ctx, "abc123")

	require.Equal(t, workflow.StatusSuccess, out.Status)
	encoded, err := json.Marshal(out.Result)
	require.NoError(t, err)
	assert.NotContains(t, strings.ToLower(string(encoded)), "palette")
}

func TestAnalyzeVideoPlaceholderPolicy(t *testing.T) {
	primary := test.NewFakeProvider(test.Text(test.ValidAnalysisJSON))
	fetcher := test.FetcherWithFailure(transcript.Blocked, "429 Too Many Requests from the transcript host")

	out := newAnalysis(t, fetcher, transcript.PolicyPlaceholder, providers(primary, nil)).AnalyzeVideo(ctx, "abc123")

	require.Equal(t, workflow.StatusSuccess, out.Status)
	require.Len(t, primary.Prompts(), 1)
	assert.Contains(t, primary.Prompts()[0], transcript.DefaultPlaceholder)
}

func TestAnalyzeVideoPropagatePolicy(t *testing.T) {
	primary := test.NewFakeProvider(test.Text(test.ValidAnalysisJSON))
	fetcher := test.FetcherWithFailure(transcript.Blocked, "request blocked")

	out := newAnalysis(t, fetcher, transcript.PolicyPropagate, providers(primary, nil)).AnalyzeVideo(ctx, "abc123")

	require.Equal(t, workflow.StatusError, out.Status)
	assert.Equal(t, classify.TranscriptBlocked, out.Error.Category)
	assert.Equal(t, "TRANSCRIPT_BLOCKED", out.Error.Code())
	assert.Equal(t, 0, primary.Calls())
	assert.Equal(t, 1, fetcher.Calls())
}

func TestAnalyzeVideoWithoutCredentialsReportsUnauthenticated(t *testing.T) {
	out := newAnalysis(t, test.FetcherWithText("text"), transcript.PolicyPlaceholder, map[string]analysis.Provider{}).AnalyzeVideo(ctx, "abc123")

	require.Equal(t, workflow.StatusError, out.Status)
	assert.False(t, out.Fallback)
	assert.Nil(t, out.Result)
	require.NotNil(t, out.Error)
	assert.Equal(t, "PROVIDER_UNAUTHENTICATED", out.Error.Code())
	assert.Contains(t, out.Error.Detail, "no credentials")
	assert.Len(t, out.Attempts, len(config.ProviderChain))
}

func TestAnalyzeVideoSkippedStepCountsAsCredentialFailure(t *testing.T) {
	secondary := test.NewFakeProvider(test.Fail("429 quota exceeded"))

	out := newAnalysis(t, test.FetcherWithText("text"), transcript.PolicyPlaceholder, providers(nil, secondary)).AnalyzeVideo(ctx, "abc123")

	require.Equal(t, workflow.StatusError, out.Status)
	assert.Equal(t, classify.QuotaExceeded, out.Error.Category)
	require.Len(t, out.Attempts, 2)
	assert.Equal(t, classify.Unauthenticated, out.Attempts[0].ProviderError.Category)
	assert.Equal(t, 1, secondary.Calls())
}

func TestAnalyzeVideoSkippedStepWithNetworkFailureFallsBack(t *testing.T) {
	secondary := test.NewFakeProvider(test.Fail("dial tcp: i/o timeout"))

	out := newAnalysis(t, test.FetcherWithText("text"), transcript.PolicyPlaceholder, providers(nil, secondary)).AnalyzeVideo(ctx, "abc123")

	require.Equal(t, workflow.StatusSuccess, out.Status)
	assert.True(t, out.Fallback)
}

// cancellingProvider answers successfully and cancels the caller on the way out.
type cancellingProvider struct {
	cancel context.CancelFunc
}

func (p *cancellingProvider) Generate(context.Context, string, string) (string, error) {
	p.cancel()
	return test.ValidAnalysisJSON, nil
}

func TestProviderChainKeepsResultWhenCancelledAfterSuccess(t *testing.T) {
	callerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	secondary := test.NewFakeProvider(test.Text(test.ValidAnalysisJSON))

	outcome, err := newChain(t, providers(&cancellingProvider{cancel: cancel}, secondary)).AnalyzeWithFallback(callerCtx, "text")

	require.NoError(t, err)
	assert.False(t, outcome.Fallback)
	assert.Equal(t, "minimal", outcome.Result.VisualStyle)
	assert.Equal(t, 0, secondary.Calls())
	assert.Error(t, callerCtx.Err())
}

func TestProviderChainHonoursPriority(t *testing.T) {
	first := test.NewFakeProvider(test.Text(test.ValidAnalysisJSON))
	second := test.NewFakeProvider(test.Text(test.ValidAnalysisJSON))
	prompt, err := analysis.NewPromptBuilder("", 100)
	require.NoError(t, err)

	attempts := []model.ProviderAttempt{
		{Provider: "second", Model: "m-2", Priority: 5},
		{Provider: "first", Model: "m-1", Priority: 1},
		{Provider: "missing", Model: "m-3", Priority: 0},
	}
	chain := workflow.NewProviderChainWorkflow("priority", attempts,
		map[string]analysis.Provider{"first": first, "second": second}, prompt, 0)

	assert.Equal(t, []model.ProviderAttempt{attempts[1], attempts[0]}, chain.Attempts())

	outcome, err := chain.AnalyzeWithFallback(ctx, "text")
	require.NoError(t, err)
	assert.False(t, outcome.Fallback)
	assert.Equal(t, 1, first.Calls())
	assert.Equal(t, 0, second.Calls())
}

func TestProviderChainNeverRepeatsAnAttempt(t *testing.T) {
	primary := test.NewFakeProvider(test.Fail("connection refused"))
	secondary := test.NewFakeProvider(test.Fail("connection refused"))

	outcome, err := newChain(t, providers(primary, secondary)).AnalyzeWithFallback(ctx, "text")
	require.NoError(t, err)
	assert.True(t, outcome.Fallback)
	assert.Equal(t, 1, primary.Calls())
	assert.Equal(t, 1, secondary.Calls())
}

func TestProviderChainCancelled(t *testing.T) {
	cancelled, cancel := context.WithCancel(ctx)
	cancel()

	primary := test.NewFakeProvider(test.Text(test.ValidAnalysisJSON))
	_, err := newChain(t, providers(primary, nil)).AnalyzeWithFallback(cancelled, "text")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, primary.Calls())
}

func TestAnalyzeVideoHelloWorld(t *testing.T) {
	primary := test.NewFakeProvider(test.Text(`{"visual_style":"minimal","motion_analysis":"slow","script_structure":[]}`))
	secondary := test.NewFakeProvider(test.Text(test.ValidAnalysisJSON))

	out := newAnalysis(t, test.FetcherWithText("Hello world"), transcript.PolicyPropagate, providers(primary, secondary)).AnalyzeVideo(ctx, "abc123")

	require.Equal(t, workflow.StatusSuccess, out.Status)
	assert.Equal(t, &model.AnalysisResult{
		VisualStyle:     "minimal",
		MotionAnalysis:  "slow",
		ScriptStructure: []*model.ScriptSection{},
	}, out.Result)
	assert.Contains(t, primary.Prompts()[0], "Hello world")
}

func TestAnalyzeVideoQuotaEverywhere(t *testing.T) {
	primary := test.NewFakeProvider(test.Fail("429 quota exceeded"))
	secondary := test.NewFakeProvider(test.Fail("429 QUOTA EXCEEDED"))

	out := newAnalysis(t, test.FetcherWithText("text"), transcript.PolicyPlaceholder, providers(primary, secondary)).AnalyzeVideo(ctx, "abc123")

	require.Equal(t, workflow.StatusError, out.Status)
	assert.Equal(t, classify.QuotaExceeded, out.Error.Category)
	assert.True(t, strings.HasPrefix(out.Error.Message, classify.QuotaExceeded.Remediation()))
	// ties go to the earliest attempt
	assert.Equal(t, "429 quota exceeded", out.Error.Detail)
}

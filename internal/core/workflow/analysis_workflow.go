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

package workflow

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/analysis"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/classify"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/transcript"
)

// Outcome statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// TranscriptOptions configures the transcript step of the analysis.
type TranscriptOptions struct {
	Languages   []string
	Policy      transcript.Policy
	Placeholder string
	MaxChars    int
}

// Outcome is the answer to one analysis request. Status is StatusSuccess with
// a Result, or StatusError with a classified Error.
type Outcome struct {
	Status   string
	Result   *model.AnalysisResult
	Error    *classify.ClassifiedError
	Fallback bool
	Attempts []*analysis.AttemptRecord
}

// AnalysisWorkflow runs the analysis of one video: transcript, then the
// provider fallback chain. Nothing is cached between requests.
type AnalysisWorkflow struct {
	cor.BaseCommand
	fetcher       transcript.Fetcher
	options       TranscriptOptions
	providerChain *ProviderChainWorkflow
	chain         cor.Chain // The underlying chain of commands to be executed.
}

// NewAnalysisWorkflow is the constructor for the AnalysisWorkflow.
//
// Inputs:
//   - fetcher: The transcript source.
//   - options: Transcript languages, truncation and failure policy.
//   - providerChain: The provider fallback chain.
//
// Returns:
//   - A pointer to a fully initialized AnalysisWorkflow.
func NewAnalysisWorkflow(
	fetcher transcript.Fetcher,
	options TranscriptOptions,
	providerChain *ProviderChainWorkflow) *AnalysisWorkflow {

	w := &AnalysisWorkflow{
		BaseCommand:   *cor.NewBaseCommand("video-analysis-workflow"),
		fetcher:       fetcher,
		options:       options,
		providerChain: providerChain,
	}
	w.initializeChain()
	return w
}

func (w *AnalysisWorkflow) initializeChain() {
	out := cor.NewBaseChain(w.GetName())

	// Step 1: video id -> transcript text (or the placeholder, depending on the policy).
	out.AddCommand(commands.NewTranscriptReader("transcript-reader", w.fetcher,
		w.options.Languages, w.options.Policy, w.options.Placeholder, w.options.MaxChars))

	// Step 2: transcript text -> analysis, written to ResultParam.
	out.AddCommand(w.providerChain)

	w.chain = out
}

// Execute runs the workflow against a cor context whose input is the video id.
func (w *AnalysisWorkflow) Execute(context cor.Context) {
	w.chain.Execute(context)
}

// AnalyzeVideo analyzes one video. It never returns a Go error: failures are
// reported as an Outcome with StatusError and a classified error.
func (w *AnalysisWorkflow) AnalyzeVideo(ctx context.Context, videoID string) *Outcome {
	chainCtx := cor.NewBaseContextWith(ctx)
	chainCtx.Add(cor.CtxIn, videoID)
	w.Execute(chainCtx)

	out := &Outcome{}
	if chainOutcome, ok := chainCtx.Get(ChainOutcomeParam).(*analysis.Outcome); ok {
		out.Fallback = chainOutcome.Fallback
		out.Attempts = chainOutcome.Attempts
	}

	if chainCtx.HasErrors() {
		out.Status = StatusError
		out.Error = classifyChainErrors(chainCtx.GetErrors())
		slog.WarnContext(ctx, "video analysis failed", "video_id", videoID,
			"code", out.Error.Code(), "detail", out.Error.Detail)
		return out
	}

	result, ok := chainCtx.Get(ResultParam).(*model.AnalysisResult)
	if !ok || result == nil {
		out.Status = StatusError
		out.Error = classify.New(classify.NetworkOrUnknown, "analysis produced no result")
		return out
	}
	out.Status = StatusSuccess
	out.Result = result
	if failure, ok := chainCtx.Get(commands.TranscriptFailureParam).(*transcript.Failure); ok {
		slog.InfoContext(ctx, "video analysed from placeholder transcript", "video_id", videoID, "kind", failure.Kind)
	}
	return out
}

// classifyChainErrors picks the error reported to the caller. Typed errors
// carry their own classification; anything else is classified from its text.
func classifyChainErrors(errs map[string]error) *classify.ClassifiedError {
	var fallback *classify.ClassifiedError
	for _, err := range errs {
		var failure *transcript.Failure
		if errors.As(err, &failure) {
			return failure.Classified()
		}
		var chainFailure *analysis.ChainFailure
		if errors.As(err, &chainFailure) {
			return chainFailure.Worst
		}
		var classified *classify.ClassifiedError
		if errors.As(err, &classified) {
			return classified
		}
		if fallback == nil {
			fallback = classify.ClassifyError(err)
		}
	}
	if fallback == nil {
		fallback = classify.New(classify.NetworkOrUnknown, "")
	}
	return fallback
}

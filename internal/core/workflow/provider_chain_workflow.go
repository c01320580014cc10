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

// Package workflow defines the high-level orchestrations of the service,
// combining commands into pipelines. This file implements the provider
// fallback chain that turns a transcript into an analysis.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/analysis"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/classify"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/commands"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// Keys written by the provider chain.
const (
	// ResultParam holds the *model.AnalysisResult of a settled chain.
	ResultParam = "__analysis_result__"
	// ChainOutcomeParam holds the *analysis.Outcome of the last chain run.
	ChainOutcomeParam = "__chain_outcome__"
)

// ProviderChainWorkflow tries each (provider, model) pair in priority order
// until one produces a normalized analysis. Attempts are strictly sequential
// and an attempt that failed is never repeated.
type ProviderChainWorkflow struct {
	cor.BaseCommand
	attempts []model.ProviderAttempt
	steps    []*analysis.AttemptRecord // Every configured step; nil entries run in the chain.
	chain    *cor.BaseChain            // The underlying fallback chain, one command per attempt.
}

// NewProviderChainWorkflow builds the fallback chain. Steps whose provider
// has no client (no credentials at startup) are never called; they settle as
// unauthenticated attempts so a chain without keys reports the missing
// credentials instead of the canned fallback.
//
// Inputs:
//   - name: The command name used in logs, spans and counters.
//   - attempts: The configured chain; it is sorted by priority, keeping file order on ties.
//   - providers: Live providers keyed by the name used in the chain.
//   - prompt: The analysis prompt builder.
//   - timeout: The per call timeout handed to every attempt.
//
// Returns:
//   - A pointer to the workflow, ready to execute.
func NewProviderChainWorkflow(
	name string,
	attempts []model.ProviderAttempt,
	providers map[string]analysis.Provider,
	prompt *analysis.PromptBuilder,
	timeout time.Duration) *ProviderChainWorkflow {

	chain := cor.NewBaseChain(name + "-attempts")
	chain.ContinueOnFailure(true).StopOnFirstOutput(true)

	var active []model.ProviderAttempt
	var steps []*analysis.AttemptRecord
	for i, attempt := range model.SortAttempts(attempts) {
		provider, ok := providers[attempt.Provider]
		if !ok || provider == nil {
			slog.Warn("provider chain step has no provider client, skipping",
				"step", i, "provider", attempt.Provider, "model", attempt.Model)
			missing := classify.New(classify.Unauthenticated,
				fmt.Sprintf("provider %s has no credentials configured", attempt.Provider))
			steps = append(steps, &analysis.AttemptRecord{Attempt: attempt, ProviderError: missing})
			continue
		}
		steps = append(steps, nil)
		commandName := fmt.Sprintf("%s-attempt-%d-%s", name, i, attempt.Provider)
		chain.AddCommand(commands.NewProviderAttempt(commandName, attempt, provider, prompt, timeout, ResultParam))
		active = append(active, attempt)
	}

	out := &ProviderChainWorkflow{
		BaseCommand: *cor.NewBaseCommand(name),
		attempts:    active,
		steps:       steps,
		chain:       chain,
	}
	out.OutputParamName = ResultParam
	return out
}

// Attempts returns the active chain in execution order. Skipped steps are not
// included.
func (w *ProviderChainWorkflow) Attempts() []model.ProviderAttempt {
	return w.attempts
}

// AnalyzeWithFallback runs the chain for one transcript and settles it. The
// returned outcome holds either a result, possibly the canned fallback, or a
// ChainFailure when every attempt failed with a credential or quota error.
func (w *ProviderChainWorkflow) AnalyzeWithFallback(ctx context.Context, transcriptText string) (*analysis.Outcome, error) {
	// the attempts get a context of their own so their errors stay out of the caller's
	chainCtx := cor.NewBaseContextWith(ctx)
	chainCtx.Add(cor.CtxIn, transcriptText)
	w.chain.Execute(chainCtx)

	outcome := analysis.Settle(w.records(commands.Attempts(chainCtx)))
	if outcome.Result == nil || outcome.Fallback {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	switch {
	case outcome.Failure != nil:
		slog.ErrorContext(ctx, "every provider attempt failed with a credential error",
			"category", outcome.Failure.Worst.Category, "attempts", len(outcome.Attempts))
	case outcome.Fallback:
		slog.WarnContext(ctx, "provider chain exhausted, returning fallback analysis",
			"attempts", len(outcome.Attempts))
	default:
		slog.InfoContext(ctx, "provider chain succeeded", "attempts", len(outcome.Attempts))
	}
	return outcome, nil
}

// records merges the executed attempts with the skipped steps, keeping the
// configured order. Steps after a success or a cancellation are not recorded.
func (w *ProviderChainWorkflow) records(executed []*analysis.AttemptRecord) []*analysis.AttemptRecord {
	out := make([]*analysis.AttemptRecord, 0, len(w.steps))
	for _, step := range w.steps {
		if step != nil {
			out = append(out, step)
			continue
		}
		if len(executed) == 0 {
			break
		}
		record := executed[0]
		executed = executed[1:]
		out = append(out, record)
		if record.Succeeded() {
			break
		}
	}
	return out
}

// Execute reads the transcript text from the input and writes the settled
// result to ResultParam, or fails with the *analysis.ChainFailure.
func (w *ProviderChainWorkflow) Execute(context cor.Context) {
	transcriptText, _ := context.Get(w.GetInputParam()).(string)

	outcome, err := w.AnalyzeWithFallback(context.GetContext(), transcriptText)
	if err != nil {
		w.Failed(context, err)
		return
	}
	context.Add(ChainOutcomeParam, outcome)
	if outcome.Failure != nil {
		w.Failed(context, outcome.Failure)
		return
	}
	w.Succeeded(context)
	context.Add(w.GetOutputParam(), outcome.Result)
}

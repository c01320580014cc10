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

package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/analysis"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/classify"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// AttemptsParam holds the []*analysis.AttemptRecord of a chain run.
const AttemptsParam = "__provider_attempts__"

// DefaultAttemptTimeout bounds a single provider call.
const DefaultAttemptTimeout = 30 * time.Second

// ProviderAttempt sends the analysis prompt for the transcript in its input
// to one (provider, model) pair and writes the normalized result to its
// output. Provider errors and unusable responses are recorded, never retried.
type ProviderAttempt struct {
	cor.BaseCommand
	attempt          model.ProviderAttempt
	provider         analysis.Provider
	prompt           *analysis.PromptBuilder
	timeout          time.Duration
	normalizeCounter metric.Int64Counter
}

func NewProviderAttempt(
	name string,
	attempt model.ProviderAttempt,
	provider analysis.Provider,
	prompt *analysis.PromptBuilder,
	timeout time.Duration,
	outputParamName string) *ProviderAttempt {

	if timeout <= 0 {
		timeout = DefaultAttemptTimeout
	}
	out := &ProviderAttempt{
		BaseCommand: *cor.NewBaseCommand(name),
		attempt:     attempt,
		provider:    provider,
		prompt:      prompt,
		timeout:     timeout,
	}
	out.OutputParamName = outputParamName
	out.normalizeCounter, _ = out.GetMeter().Int64Counter(fmt.Sprintf("%s.counter.normalization_failed", name))
	return out
}

// Attempt returns the (provider, model) pair this command calls.
func (p *ProviderAttempt) Attempt() model.ProviderAttempt {
	return p.attempt
}

func (p *ProviderAttempt) Execute(context cor.Context) {
	transcriptText, _ := context.Get(p.GetInputParam()).(string)
	record := &analysis.AttemptRecord{Attempt: p.attempt}
	defer appendAttempt(context, record)

	span := trace.SpanFromContext(context.GetContext())
	span.SetAttributes(
		attribute.String("provider", p.attempt.Provider),
		attribute.String("model", p.attempt.Model))

	prompt, err := p.prompt.Build(transcriptText)
	if err != nil {
		record.ProviderError = classify.New(classify.NetworkOrUnknown, err.Error())
		p.Failed(context, err)
		return
	}

	raw, err := p.generate(context.GetContext(), prompt)
	if err != nil {
		record.ProviderError = classify.ClassifyError(err)
		slog.WarnContext(context.GetContext(), "provider attempt failed",
			"provider", p.attempt.Provider, "model", p.attempt.Model,
			"category", record.ProviderError.Category, "detail", record.ProviderError.Detail)
		p.Failed(context, fmt.Errorf("%s: %w", p.attempt, record.ProviderError))
		return
	}

	result, err := analysis.Normalize(raw)
	if err != nil {
		var nerr *analysis.NormalizationError
		if !errors.As(err, &nerr) {
			nerr = &analysis.NormalizationError{Reason: err.Error()}
		}
		record.NormalizationError = nerr
		if p.normalizeCounter != nil {
			p.normalizeCounter.Add(context.GetContext(), 1)
		}
		slog.WarnContext(context.GetContext(), "provider response could not be normalized",
			"provider", p.attempt.Provider, "model", p.attempt.Model, "error", err)
		p.Failed(context, fmt.Errorf("%s: %w", p.attempt, err))
		return
	}

	record.Result = result
	p.Succeeded(context)
	context.Add(p.GetOutputParam(), result)
}

func (p *ProviderAttempt) generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.provider.Generate(callCtx, p.attempt.Model, prompt)
}

func appendAttempt(context cor.Context, record *analysis.AttemptRecord) {
	attempts, _ := context.Get(AttemptsParam).([]*analysis.AttemptRecord)
	context.Add(AttemptsParam, append(attempts, record))
}

// Attempts returns the attempt records stored in the context.
func Attempts(context cor.Context) []*analysis.AttemptRecord {
	attempts, _ := context.Get(AttemptsParam).([]*analysis.AttemptRecord)
	return attempts
}

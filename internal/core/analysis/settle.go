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

package analysis

import (
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/classify"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// AttemptRecord is the outcome of one provider attempt. Exactly one of
// Result, ProviderError or NormalizationError is set.
type AttemptRecord struct {
	Attempt            model.ProviderAttempt
	Result             *model.AnalysisResult
	ProviderError      *classify.ClassifiedError
	NormalizationError *NormalizationError
}

// Succeeded reports whether the attempt produced a normalized result.
func (r *AttemptRecord) Succeeded() bool {
	return r.Result != nil
}

func (r *AttemptRecord) String() string {
	switch {
	case r.Result != nil:
		return fmt.Sprintf("%s: ok", r.Attempt)
	case r.ProviderError != nil:
		return fmt.Sprintf("%s: %s", r.Attempt, r.ProviderError.Category)
	case r.NormalizationError != nil:
		return fmt.Sprintf("%s: %s", r.Attempt, classify.NormalizationFailed)
	}
	return fmt.Sprintf("%s: not run", r.Attempt)
}

// ChainFailure is returned when every attempt of a chain failed with a
// credential or quota error. Worst is the most severe of those errors.
type ChainFailure struct {
	Worst    *classify.ClassifiedError
	Attempts []*AttemptRecord
}

func (c *ChainFailure) Error() string {
	parts := make([]string, 0, len(c.Attempts))
	for _, a := range c.Attempts {
		parts = append(parts, a.String())
	}
	return fmt.Sprintf("all %d provider attempts failed (%s): %s", len(c.Attempts), strings.Join(parts, "; "), c.Worst.Message)
}

func (c *ChainFailure) Unwrap() error {
	return c.Worst
}

// Outcome is the settled result of a chain: either a result (possibly the
// canned fallback) or a ChainFailure.
type Outcome struct {
	Result   *model.AnalysisResult
	Fallback bool
	Failure  *ChainFailure
	Attempts []*AttemptRecord
}

// Settle decides the outcome of a chain from its attempt records.
//
// The first successful attempt wins. When no attempt succeeded and every
// attempt failed with a credential class error, the outcome is a ChainFailure
// carrying the most severe error (the earliest attempt on ties). Any other
// exhausted chain, including an empty one, yields the canned fallback result.
func Settle(attempts []*AttemptRecord) *Outcome {
	out := &Outcome{Attempts: attempts}
	for _, a := range attempts {
		if a.Succeeded() {
			out.Result = a.Result
			return out
		}
	}

	var worst *classify.ClassifiedError
	allCredential := len(attempts) > 0
	for _, a := range attempts {
		if a.ProviderError == nil || !a.ProviderError.Category.IsCredential() {
			allCredential = false
			break
		}
		if worst == nil || a.ProviderError.Category.Severity() < worst.Category.Severity() {
			worst = a.ProviderError
		}
	}
	if allCredential {
		out.Failure = &ChainFailure{Worst: worst, Attempts: attempts}
		return out
	}

	out.Result = model.FallbackAnalysis()
	out.Fallback = true
	return out
}

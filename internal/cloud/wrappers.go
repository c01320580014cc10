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

// This file implements a decorator around analysis.Provider that keeps the
// application under a provider's request quota. It never retries: a failed
// call is returned to the provider chain, which moves on to the next attempt.
//
// Structs:
//   - RateLimitedProvider: Wraps a provider with a token bucket limiter.
//
// Functions:
//   - NewRateLimitedProvider: A constructor to create a new instance of the wrapped provider.
//   - Generate: Waits for a token, then delegates to the wrapped provider.

package cloud

import (
	"context"
	"math"

	"golang.org/x/time/rate"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/analysis"
)

// RateLimitedProvider is a decorator that blocks callers until the limiter
// grants a token. Waiting honours the caller's deadline, so a starved request
// fails with the context error instead of queueing forever.
type RateLimitedProvider struct {
	Provider  analysis.Provider
	RateLimit *rate.Limiter
}

// NewRateLimitedProvider wraps p. A non-positive requestsPerSecond returns p
// unchanged.
//
// Inputs:
//   - p: The provider to wrap.
//   - requestsPerSecond: The sustained request rate; bursts up to the rounded-up rate are allowed.
//
// Outputs:
//   - analysis.Provider: Either the decorator or p itself.
func NewRateLimitedProvider(p analysis.Provider, requestsPerSecond float64) analysis.Provider {
	if requestsPerSecond <= 0 {
		return p
	}
	burst := int(math.Ceil(requestsPerSecond))
	return &RateLimitedProvider{
		Provider:  p,
		RateLimit: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

func (q *RateLimitedProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	if err := q.RateLimit.Wait(ctx); err != nil {
		return "", err
	}
	return q.Provider.Generate(ctx, model, prompt)
}

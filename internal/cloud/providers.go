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

// This file adapts the language model SDKs to analysis.Provider. Each adapter
// turns one prompt into one text answer and returns SDK errors unchanged, so
// the status text (429, 403, "API key was reported as leaked", ...) reaches
// the error classifier intact.
//
// Structs:
//   - GenAIProvider: google.golang.org/genai against the Gemini API or Vertex AI.
//   - LegacyGeminiProvider: github.com/google/generative-ai-go against the Gemini API.
//   - OpenAIProvider: Any OpenAI-compatible chat completions endpoint.
//
// Functions:
//   - NewProvider: Builds the adapter for a ProviderConfig, wrapped in the rate limiter.

package cloud

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	legacygenai "github.com/google/generative-ai-go/genai"
	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"google.golang.org/api/option"
	"google.golang.org/genai"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/analysis"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
)

// ErrEmptyResponse is returned when a provider answers without any text.
var ErrEmptyResponse = errors.New("provider returned an empty response")

// DefaultSafetySettings keeps the model from refusing to describe ordinary
// marketing footage.
var DefaultSafetySettings = []*genai.SafetySetting{
	{
		Category:  genai.HarmCategoryDangerousContent,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHarassment,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategoryHateSpeech,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
	{
		Category:  genai.HarmCategorySexuallyExplicit,
		Threshold: genai.HarmBlockThresholdBlockNone,
	},
}

// GenAIProvider calls Gemini models through google.golang.org/genai and
// records token usage on the shared meter.
type GenAIProvider struct {
	client       *genai.Client
	config       *genai.GenerateContentConfig
	inputTokens  metric.Int64Counter
	outputTokens metric.Int64Counter
}

// NewGenAIProvider creates a client for the Gemini API (kind "gemini") or for
// Vertex AI (kind "vertex").
//
// Inputs:
//   - ctx: Context for client construction.
//   - p: The provider configuration.
//   - httpClient: The shared outbound client carrying the proxy and timeout.
//
// Outputs:
//   - *GenAIProvider: The adapter.
//   - error: Any client construction error.
func NewGenAIProvider(ctx context.Context, p ProviderConfig, httpClient *http.Client) (*GenAIProvider, error) {
	cc := &genai.ClientConfig{HTTPClient: httpClient}
	if p.Kind == ProviderKindVertex {
		cc.Backend = genai.BackendVertexAI
		cc.Project = p.Project
		cc.Location = p.Location
	} else {
		cc.Backend = genai.BackendGeminiAPI
		cc.APIKey = p.APIKey
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}

	meter := otel.Meter(cor.MeterName)
	inputTokens, _ := meter.Int64Counter("genai.tokens.input")
	outputTokens, _ := meter.Int64Counter("genai.tokens.output")

	return &GenAIProvider{
		client: client,
		config: &genai.GenerateContentConfig{
			Temperature:      genai.Ptr[float32](0.2),
			SafetySettings:   DefaultSafetySettings,
			ResponseMIMEType: "application/json",
		},
		inputTokens:  inputTokens,
		outputTokens: outputTokens,
	}, nil
}

func (g *GenAIProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), g.config)
	if err != nil {
		return "", err
	}
	if resp.UsageMetadata != nil {
		g.inputTokens.Add(ctx, int64(resp.UsageMetadata.PromptTokenCount))
		g.outputTokens.Add(ctx, int64(resp.UsageMetadata.CandidatesTokenCount))
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			sb.WriteString(part.Text)
		}
		// the first candidate with content is the answer
		if sb.Len() > 0 {
			break
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// LegacyGeminiProvider calls Gemini through the generative-ai-go SDK, for
// keys and models that are only served by the older endpoint.
type LegacyGeminiProvider struct {
	client *legacygenai.Client
}

func NewLegacyGeminiProvider(ctx context.Context, p ProviderConfig) (*LegacyGeminiProvider, error) {
	client, err := legacygenai.NewClient(ctx, option.WithAPIKey(p.APIKey))
	if err != nil {
		return nil, err
	}
	return &LegacyGeminiProvider{client: client}, nil
}

func (l *LegacyGeminiProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	m := l.client.GenerativeModel(model)
	m.SetTemperature(0.2)
	m.ResponseMIMEType = "application/json"

	resp, err := m.GenerateContent(ctx, legacygenai.Text(prompt))
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(legacygenai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		if sb.Len() > 0 {
			break
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

func (l *LegacyGeminiProvider) Close() error {
	return l.client.Close()
}

// OpenAIProvider calls an OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client *openai.Client
}

func NewOpenAIProvider(p ProviderConfig, httpClient *http.Client) *OpenAIProvider {
	cfg := openai.DefaultConfig(p.APIKey)
	if p.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(p.BaseURL, "/")
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(cfg)}
}

func (o *OpenAIProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", err
	}
	for _, choice := range resp.Choices {
		if choice.Message.Content != "" {
			return choice.Message.Content, nil
		}
	}
	return "", ErrEmptyResponse
}

// NewProvider builds the adapter for p and wraps it in a RateLimitedProvider
// when p.RateLimit is positive.
//
// Inputs:
//   - ctx: Context for client construction.
//   - p: The provider configuration.
//   - httpClient: The shared outbound client.
//
// Outputs:
//   - analysis.Provider: The ready to use provider.
//   - error: An error for unknown kinds or failed client construction.
func NewProvider(ctx context.Context, p ProviderConfig, httpClient *http.Client) (analysis.Provider, error) {
	var provider analysis.Provider
	switch p.Kind {
	case ProviderKindGemini, ProviderKindVertex:
		g, err := NewGenAIProvider(ctx, p, httpClient)
		if err != nil {
			return nil, err
		}
		provider = g
	case ProviderKindGeminiLegacy:
		l, err := NewLegacyGeminiProvider(ctx, p)
		if err != nil {
			return nil, err
		}
		provider = l
	case ProviderKindOpenAI:
		provider = NewOpenAIProvider(p, httpClient)
	default:
		return nil, fmt.Errorf("unknown provider kind %q", p.Kind)
	}
	return NewRateLimitedProvider(provider, p.RateLimit), nil
}

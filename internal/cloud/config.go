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

// Package cloud defines the application configuration, loaded from TOML files
// and the environment, and the clients for the external services the video
// insights backend talks to: language model providers, the Notion record
// store, the oEmbed title service and Pub/Sub.
//
// Structs:
//   - Network: Outbound proxy and timeout settings shared by every client.
//   - Transcript: Transcript languages, truncation and failure policy.
//   - ProviderConfig: Credentials and endpoint of one language model provider.
//   - PromptTemplates: The text template used to build the analysis prompt.
//   - RecordStore: The Notion database and how its pages map to records.
//   - Cache: Record cache lifetime.
//   - TopicSubscription: Configuration for a single Pub/Sub topic subscription.
//   - Config: The top-level struct that aggregates all other configuration structs.
package cloud

import (
	"fmt"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/transcript"
)

// Provider kinds understood by NewProvider.
const (
	ProviderKindGemini       = "gemini"        // Gemini Developer API through google.golang.org/genai.
	ProviderKindVertex       = "vertex"        // Vertex AI through google.golang.org/genai.
	ProviderKindGeminiLegacy = "gemini-legacy" // Gemini through github.com/google/generative-ai-go.
	ProviderKindOpenAI       = "openai"        // Any OpenAI-compatible chat completions endpoint.
)

// Network holds the outbound HTTP settings.
type Network struct {
	ProxyURL       string `toml:"proxy_url"`       // Proxy for every outbound call; empty means direct.
	NoProxy        string `toml:"no_proxy"`        // Comma separated hosts that bypass the proxy.
	TimeoutSeconds int    `toml:"timeout_seconds"` // Per call timeout.
}

// Transcript configures the transcript fetcher and its failure policy.
type Transcript struct {
	Languages   []string `toml:"languages"`    // Preferred caption languages, in order.
	MaxChars    int      `toml:"max_chars"`    // Transcript characters passed to the prompt.
	Policy      string   `toml:"policy"`       // "placeholder" or "propagate".
	Placeholder string   `toml:"placeholder"`  // Text analyzed when the transcript is missing.
	DetailLimit int      `toml:"detail_limit"` // Characters of raw failure text kept.
}

// ProviderConfig describes one language model provider.
type ProviderConfig struct {
	Kind      string  `toml:"kind"`        // One of the ProviderKind constants.
	APIKey    string  `toml:"api_key"`     // Usually supplied through the environment.
	APIKeyEnv string  `toml:"api_key_env"` // Environment variable holding the key.
	BaseURL   string  `toml:"base_url"`    // Endpoint override for OpenAI-compatible providers.
	Project   string  `toml:"project"`     // Vertex AI project, defaults to the application project.
	Location  string  `toml:"location"`    // Vertex AI location, defaults to the application location.
	RateLimit float64 `toml:"rate_limit"`  // Requests per second, zero for unlimited.
}

// HasCredentials reports whether the provider can be called at all.
func (p ProviderConfig) HasCredentials() bool {
	if p.Kind == ProviderKindVertex {
		return p.Project != ""
	}
	return p.APIKey != ""
}

// PromptTemplates holds the templates for the prompts sent to the providers.
type PromptTemplates struct {
	Analysis string `toml:"analysis"` // Must reference {{ .TRANSCRIPT }} and may use {{ .EXAMPLE_JSON }}.
}

// PropertyAliases lists the Notion property names that may hold each record field.
type PropertyAliases struct {
	Title         []string `toml:"title"`
	URL           []string `toml:"url"`
	Analysis      []string `toml:"analysis"`
	Cover         []string `toml:"cover"`
	Company       []string `toml:"company"`
	AnimationType []string `toml:"animation_type"`
	Technique     []string `toml:"technique"`
	Features      []string `toml:"features"`
}

// RecordStore points at the Notion database holding the catalog.
type RecordStore struct {
	APIKey           string          `toml:"api_key"`           // Notion integration token.
	DatabaseID       string          `toml:"database_id"`       // Database queried and written to.
	PageSize         int             `toml:"page_size"`         // Query page size, at most 100.
	TitleProperty    string          `toml:"title_property"`    // Property written with the title on add; "title" addresses the title column by id.
	URLProperty      string          `toml:"url_property"`      // Property written with the URL on add.
	PlaceholderCover string          `toml:"placeholder_cover"` // Cover used when nothing better exists.
	DefaultAnalysis  string          `toml:"default_analysis"`  // Analysis text of records without one.
	Properties       PropertyAliases `toml:"properties"`
}

// Cache configures the record cache.
type Cache struct {
	TTLSeconds          int `toml:"ttl_seconds"`           // Zero disables caching.
	WarmIntervalSeconds int `toml:"warm_interval_seconds"` // Background refresh interval, zero disables it.
}

// TopicSubscription represents the configuration for a Pub/Sub topic subscription.
type TopicSubscription struct {
	Name             string `toml:"name"`               // The name of the Pub/Sub subscription.
	DeadLetterTopic  string `toml:"dead_letter_topic"`  // The name of the dead-letter topic for the subscription.
	TimeoutInSeconds int    `toml:"timeout_in_seconds"` // The timeout for the subscription in seconds.
}

// Config represents the overall configuration for the application, loaded from TOML files
// and then overridden from the environment. It acts as the root container for all other
// configuration structs.
type Config struct {
	// Application holds general application settings.
	Application struct {
		Name            string `toml:"name"`              // The name of the application.
		Port            string `toml:"port"`              // HTTP listen port.
		GoogleProjectId string `toml:"google_project_id"` // The Google Cloud project ID.
		GoogleLocation  string `toml:"location"`          // The Google Cloud location.
		LogFile         string `toml:"log_file"`          // Optional file receiving a copy of the logs.
	} `toml:"application"`
	Network            Network                      `toml:"network"`
	Transcript         Transcript                   `toml:"transcript"`
	Providers          map[string]ProviderConfig    `toml:"providers"`      // Keyed by the name used in provider_chain.
	ProviderChain      []model.ProviderAttempt      `toml:"provider_chain"` // Tried in priority order.
	PromptTemplates    PromptTemplates              `toml:"prompt_templates"`
	RecordStore        RecordStore                  `toml:"record_store"`
	Cache              Cache                        `toml:"cache"`
	Telemetry          struct {
		Enabled bool `toml:"enabled"` // Export traces and metrics to Google Cloud.
	} `toml:"telemetry"`
	TopicSubscriptions map[string]TopicSubscription `toml:"topic_subscriptions"` // Keyed by a logical name (e.g., "CacheInvalidation").
}

// NewConfig creates a Config holding the compiled-in defaults. The maps are
// initialized so the TOML decoder can populate them.
func NewConfig() *Config {
	c := &Config{
		Providers:          make(map[string]ProviderConfig),
		TopicSubscriptions: make(map[string]TopicSubscription),
	}
	c.Application.Name = "video-insights"
	c.Application.Port = "8080"
	c.Application.GoogleLocation = "us-central1"
	c.Network.TimeoutSeconds = 30
	c.Transcript = Transcript{
		Languages:   append([]string(nil), transcript.DefaultLanguages...),
		MaxChars:    3000,
		Policy:      string(transcript.PolicyPlaceholder),
		Placeholder: transcript.DefaultPlaceholder,
		DetailLimit: transcript.DefaultDetailLimit,
	}
	c.RecordStore.PageSize = 100
	c.RecordStore.TitleProperty = "title"
	c.RecordStore.URLProperty = "URL"
	c.Cache.TTLSeconds = 300
	return c
}

// Validate checks the references between sections: every provider_chain step
// must name a configured provider of a known kind, and the transcript policy
// must be one the fetcher understands.
func (c *Config) Validate() error {
	for name, p := range c.Providers {
		switch p.Kind {
		case ProviderKindGemini, ProviderKindVertex, ProviderKindGeminiLegacy, ProviderKindOpenAI:
		default:
			return fmt.Errorf("provider %s: unknown kind %q", name, p.Kind)
		}
	}
	if len(c.ProviderChain) == 0 {
		return fmt.Errorf("provider_chain is empty")
	}
	for i, step := range c.ProviderChain {
		if _, ok := c.Providers[step.Provider]; !ok {
			return fmt.Errorf("provider_chain[%d] references unknown provider %q", i, step.Provider)
		}
		if step.Model == "" {
			return fmt.Errorf("provider_chain[%d] has no model", i)
		}
	}
	if _, err := transcript.ParsePolicy(c.Transcript.Policy); err != nil {
		return err
	}
	return nil
}

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

// This file is responsible for initializing and managing the clients for the
// external services used by the application. It centralizes the creation of
// clients so they are created once at startup and shared across the process.
//
// Structs:
//   - ServiceClients: A container for all initialized service clients.
//
// Functions:
//   - NewCloudServiceClients: A factory function that creates and configures all
//     service clients based on the provided application configuration.
//   - Close: A method on ServiceClients to gracefully close all client connections.

package cloud

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"

	"cloud.google.com/go/pubsub"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/analysis"
)

// ServiceClients holds the initialized clients for every external service.
type ServiceClients struct {
	HTTPClient      *http.Client                 // Shared outbound client with proxy and timeout.
	PubsubClient    *pubsub.Client               // Nil when no subscription is configured.
	Providers       map[string]analysis.Provider // Language model providers keyed by their configured name.
	RecordStore     *NotionRecordStore           // The Notion catalog database.
	TitleResolver   *OEmbedTitleResolver         // Title lookup used when adding videos.
	PubSubListeners map[string]*PubSubListener   // Active listeners keyed by the logical name from the config.
}

// ProviderNames returns the configured provider names in sorted order.
func (c *ServiceClients) ProviderNames() []string {
	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases every client that holds connections.
func (c *ServiceClients) Close() {
	for name, p := range c.Providers {
		if closer, ok := unwrapProvider(p).(io.Closer); ok {
			if err := closer.Close(); err != nil {
				slog.Warn("failed to close provider", "provider", name, "error", err)
			}
		}
	}
	if c.PubsubClient != nil {
		_ = c.PubsubClient.Close()
	}
}

func unwrapProvider(p analysis.Provider) analysis.Provider {
	if r, ok := p.(*RateLimitedProvider); ok {
		return r.Provider
	}
	return p
}

// NewCloudServiceClients creates every client the configuration asks for.
// Providers without credentials are skipped with a warning so a partial key
// set still yields a working chain; the Pub/Sub client is only created when a
// subscription is configured.
//
// Inputs:
//   - ctx: Context for client construction.
//   - config: The loaded application configuration.
//
// Outputs:
//   - *ServiceClients: The initialized clients.
//   - error: The first construction error.
func NewCloudServiceClients(ctx context.Context, config *Config) (cloud *ServiceClients, err error) {
	httpClient := NewHTTPClient(config.Network)

	providers := make(map[string]analysis.Provider)
	for name, pc := range config.Providers {
		if !pc.HasCredentials() {
			slog.WarnContext(ctx, "provider has no credentials, skipping", "provider", name, "kind", pc.Kind)
			continue
		}
		p, err := NewProvider(ctx, pc, httpClient)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider %s: %w", name, err)
		}
		providers[name] = p
	}

	var pc *pubsub.Client
	subscriptions := make(map[string]*PubSubListener)
	if len(config.TopicSubscriptions) > 0 {
		pc, err = pubsub.NewClient(ctx, config.Application.GoogleProjectId)
		if err != nil {
			return nil, err
		}
		// the command is attached later when the workflows are built
		for subKey, values := range config.TopicSubscriptions {
			actual, err := NewPubSubListener(pc, values.Name, nil)
			if err != nil {
				return nil, err
			}
			subscriptions[subKey] = actual
		}
	}

	cloud = &ServiceClients{
		HTTPClient:      httpClient,
		PubsubClient:    pc,
		Providers:       providers,
		RecordStore:     NewNotionRecordStore(config.RecordStore, httpClient),
		TitleResolver:   NewOEmbedTitleResolver(httpClient, ""),
		PubSubListeners: subscriptions,
	}
	return cloud, nil
}

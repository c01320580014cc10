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

// Package main contains the setup and initialization logic for the application's state.
// The StateManager holds the configuration, the service clients and the two
// services the routes use: the analysis workflow and the record catalog.
//
// Functions:
//   - SetupOS: Points the configuration loader at the configs directory.
//   - GetConfig: Loads the configuration once, applies the environment and validates it.
//   - InitState: Creates the clients, builds the workflows and starts the listeners.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/analysis"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/transcript"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
)

// StateManager holds the shared dependencies of the server.
type StateManager struct {
	config        *cloud.Config
	cloud         *cloud.ServiceClients
	analysis      *workflow.AnalysisWorkflow
	recordService *services.RecordService
}

var state = &StateManager{}

// SetupOS sets the configuration directory and, unless already set, the
// runtime whose override file is layered on top of the base configuration.
func SetupOS() (err error) {
	if os.Getenv(cloud.EnvConfigFilePrefix) == "" {
		if err = os.Setenv(cloud.EnvConfigFilePrefix, "configs"); err != nil {
			return err
		}
	}
	if os.Getenv(cloud.EnvConfigRuntime) == "" {
		err = os.Setenv(cloud.EnvConfigRuntime, "local")
	}
	return err
}

// GetConfig loads the configuration on first use.
func GetConfig() (*cloud.Config, error) {
	if state.config != nil {
		return state.config, nil
	}
	if err := SetupOS(); err != nil {
		return nil, fmt.Errorf("failed to setup os: %w", err)
	}
	config := cloud.NewConfig()
	if err := cloud.LoadConfig(config); err != nil {
		return nil, err
	}
	if err := cloud.ApplyEnvOverrides(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	state.config = config
	return config, nil
}

// InitState builds every dependency of the routes.
//
// Inputs:
//   - ctx: The root context; listeners stop when it is cancelled.
//   - config: The loaded configuration.
func InitState(ctx context.Context, config *cloud.Config) error {
	cloudClients, err := cloud.NewCloudServiceClients(ctx, config)
	if err != nil {
		return err
	}
	state.cloud = cloudClients

	prompt, err := analysis.NewPromptBuilder(config.PromptTemplates.Analysis, config.Transcript.MaxChars)
	if err != nil {
		return err
	}
	policy, err := transcript.ParsePolicy(config.Transcript.Policy)
	if err != nil {
		return err
	}

	providerChain := workflow.NewProviderChainWorkflow("provider-chain", config.ProviderChain,
		cloudClients.Providers, prompt, config.Network.Timeout())
	fetcher := transcript.NewYouTubeFetcher(cloudClients.HTTPClient, "", config.Transcript.DetailLimit)
	state.analysis = workflow.NewAnalysisWorkflow(fetcher, workflow.TranscriptOptions{
		Languages:   config.Transcript.Languages,
		Policy:      policy,
		Placeholder: config.Transcript.Placeholder,
		MaxChars:    config.Transcript.MaxChars,
	}, providerChain)

	aliases := config.RecordStore.Properties
	decoder := services.NewRecordDecoder(services.PropertyAliases{
		Title:         aliases.Title,
		URL:           aliases.URL,
		Analysis:      aliases.Analysis,
		Cover:         aliases.Cover,
		Company:       aliases.Company,
		AnimationType: aliases.AnimationType,
		Technique:     aliases.Technique,
		Features:      aliases.Features,
	}, config.RecordStore.PlaceholderCover, config.RecordStore.DefaultAnalysis)
	state.recordService = services.NewRecordService(cloudClients.RecordStore, decoder,
		cloudClients.TitleResolver, time.Duration(config.Cache.TTLSeconds)*time.Second)

	if config.Cache.TTLSeconds > 0 {
		warmer := workflow.NewRecordCacheWarmer(state.recordService, time.Duration(config.Cache.WarmIntervalSeconds)*time.Second)
		warmer.StartTimer(ctx)
	}

	SetupListeners(ctx, config, cloudClients, state.recordService)
	return nil
}

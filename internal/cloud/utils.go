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

// This file contains the hierarchical configuration loader and the
// environment overrides applied on top of it.
//
// Functions:
//   - fileExists: A simple helper to check if a file exists.
//   - LoadConfig: Reads a base configuration file and then overwrites values with a
//     second, environment-specific file (e.g., .env.local.toml, .env.test.toml). The
//     environment is determined by an environment variable.
//   - ApplyEnvOverrides: Copies credentials and deployment knobs from the environment
//     into the configuration, so secrets never need to live in the TOML files.

package cloud

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// Cloud Constants define key strings used for configuration loading.
const (
	ConfigFileBaseName  = ".env"              // The base name for configuration files (e.g., ".env.toml").
	ConfigFileExtension = ".toml"             // The file extension for configuration files.
	ConfigSeparator     = "."                 // The separator used in config file names (e.g., ".env.local.toml").
	EnvConfigFilePrefix = "GCP_CONFIG_PREFIX" // The environment variable for specifying the config directory.
	EnvConfigRuntime    = "GCP_RUNTIME"       // The environment variable for specifying the runtime context (e.g., "local", "test", "prod").
)

// fileExists checks if a file or directory exists at the given path.
func fileExists(in string) bool {
	_, err := os.Stat(in)
	return !errors.Is(err, os.ErrNotExist)
}

// LoadConfig provides a hierarchical configuration loading mechanism. It first loads a
// base configuration file and then merges or overwrites its values with an environment-specific
// configuration file. Missing files are skipped, so the compiled-in defaults of the target
// survive an empty configuration directory.
//
// Inputs:
//   - baseConfig: A pointer to the target configuration struct that will be populated
//     from the TOML files.
//
// Outputs:
//   - error: A decoding error naming the offending file.
func LoadConfig(baseConfig interface{}) error {
	configurationFilePrefix := os.Getenv(EnvConfigFilePrefix)
	if len(configurationFilePrefix) > 0 && !strings.HasSuffix(configurationFilePrefix, string(os.PathSeparator)) {
		configurationFilePrefix = configurationFilePrefix + string(os.PathSeparator)
	}

	runtimeEnvironment := os.Getenv(EnvConfigRuntime)
	if runtimeEnvironment == "" {
		runtimeEnvironment = "test"
	}

	baseConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigFileExtension
	envConfigFileName := configurationFilePrefix + ConfigFileBaseName + ConfigSeparator + runtimeEnvironment + ConfigFileExtension

	for _, name := range []string{baseConfigFileName, envConfigFileName} {
		if !fileExists(name) {
			slog.Debug("configuration file not found, skipping", "file", name)
			continue
		}
		if _, err := toml.DecodeFile(name, baseConfig); err != nil {
			return fmt.Errorf("failed to decode configuration file %s: %w", name, err)
		}
		slog.Info("loaded configuration file", "file", name)
	}
	return nil
}

// ApplyEnvOverrides copies values from the environment into c. Provider keys
// are matched by kind: GOOGLE_API_KEY (or GEMINI_API_KEY) for the Gemini kinds
// and OPENAI_API_KEY for OpenAI, unless the provider names its own variable in
// api_key_env. Values already present in the files win over the generic
// variables but not over api_key_env.
//
// Inputs:
//   - c: The configuration to update in place.
//
// Outputs:
//   - error: An error for malformed numeric variables.
func ApplyEnvOverrides(c *Config) error {
	googleKey := firstEnv("GOOGLE_API_KEY", "GEMINI_API_KEY")
	openAIKey := os.Getenv("OPENAI_API_KEY")
	project := os.Getenv("GOOGLE_CLOUD_PROJECT")

	if project != "" && c.Application.GoogleProjectId == "" {
		c.Application.GoogleProjectId = project
	}

	for name, p := range c.Providers {
		if p.APIKeyEnv != "" {
			if v := os.Getenv(p.APIKeyEnv); v != "" {
				p.APIKey = v
			}
		}
		if p.APIKey == "" {
			switch p.Kind {
			case ProviderKindGemini, ProviderKindGeminiLegacy:
				p.APIKey = googleKey
			case ProviderKindOpenAI:
				p.APIKey = openAIKey
			}
		}
		if p.Kind == ProviderKindVertex {
			if p.Project == "" {
				p.Project = c.Application.GoogleProjectId
			}
			if p.Location == "" {
				p.Location = c.Application.GoogleLocation
			}
		}
		c.Providers[name] = p
	}

	// a bare deployment with only GOOGLE_API_KEY gets the single gemini step
	if len(c.Providers) == 0 && googleKey != "" {
		c.Providers[ProviderKindGemini] = ProviderConfig{Kind: ProviderKindGemini, APIKey: googleKey}
	}
	if len(c.ProviderChain) == 0 {
		if _, ok := c.Providers[ProviderKindGemini]; ok {
			c.ProviderChain = []model.ProviderAttempt{{Provider: ProviderKindGemini, Model: "gemini-2.5-flash", Priority: 1}}
		}
	}

	if v := os.Getenv("NOTION_API_KEY"); v != "" {
		c.RecordStore.APIKey = v
	}
	if v := firstEnv("NOTION_DATABASE_ID", "DATABASE_ID"); v != "" {
		c.RecordStore.DatabaseID = v
	}
	if v := firstEnv("PROXY_URL", "HTTPS_PROXY", "https_proxy"); v != "" {
		c.Network.ProxyURL = v
	}
	if v := firstEnv("NO_PROXY", "no_proxy"); v != "" && c.Network.NoProxy == "" {
		c.Network.NoProxy = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Application.Port = v
	}
	if v := os.Getenv("TRANSCRIPT_POLICY"); v != "" {
		c.Transcript.Policy = v
	}
	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		ttl, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid CACHE_TTL_SECONDS %q: %w", v, err)
		}
		c.Cache.TTLSeconds = ttl
	}
	return nil
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

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

// Package test provides configuration, fakes and fixtures shared by the
// package tests.
package test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/transcript"
)

// ValidAnalysisJSON is a well-formed provider answer.
const ValidAnalysisJSON = `{"visual_style":"minimal","motion_analysis":"slow","script_structure":[]}`

func HandleErr(err error, t *testing.T) {
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// GetConfig returns the compiled-in defaults with a two step provider chain
// and no credentials, suitable for tests that never leave the process.
func GetConfig() *cloud.Config {
	config := cloud.NewConfig()
	config.Providers["primary"] = cloud.ProviderConfig{Kind: cloud.ProviderKindGemini, APIKey: "test-key"}
	config.Providers["secondary"] = cloud.ProviderConfig{Kind: cloud.ProviderKindOpenAI, APIKey: "test-key"}
	config.ProviderChain = []model.ProviderAttempt{
		{Provider: "primary", Model: "gemini-2.5-flash", Priority: 1},
		{Provider: "secondary", Model: "gpt-4o-mini", Priority: 2},
	}
	config.RecordStore.DatabaseID = "test-database"
	return config
}

// Response is one scripted provider answer.
type Response struct {
	Text string
	Err  error
}

// FakeProvider returns scripted responses in order and repeats the last one
// once the script is exhausted.
type FakeProvider struct {
	mu        sync.Mutex
	responses []Response
	calls     int
	models    []string
	prompts   []string
}

func NewFakeProvider(responses ...Response) *FakeProvider {
	return &FakeProvider{responses: responses}
}

// Text scripts a successful answer.
func Text(text string) Response {
	return Response{Text: text}
}

// Fail scripts a provider error with the given message.
func Fail(message string) Response {
	return Response{Err: errors.New(message)}
}

func (f *FakeProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.models = append(f.models, model)
	f.prompts = append(f.prompts, prompt)
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(f.responses) == 0 {
		return "", errors.New("no scripted response")
	}
	idx := f.calls - 1
	if idx >= len(f.responses) {
		idx = len(f.responses) - 1
	}
	r := f.responses[idx]
	return r.Text, r.Err
}

func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeProvider) Models() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.models...)
}

func (f *FakeProvider) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prompts...)
}

// FakeFetcher returns a fixed transcript or failure.
type FakeFetcher struct {
	mu         sync.Mutex
	Transcript *model.Transcript
	Failure    *transcript.Failure
	calls      int
}

// FetcherWithText returns a fetcher that always yields text as one fragment.
func FetcherWithText(text string) *FakeFetcher {
	return &FakeFetcher{Transcript: model.NewPlainTranscript("", text)}
}

// FetcherWithFailure returns a fetcher that always fails with kind.
func FetcherWithFailure(kind transcript.Kind, detail string) *FakeFetcher {
	return &FakeFetcher{Failure: transcript.NewFailure(kind, errors.New(detail), 0)}
}

func (f *FakeFetcher) Fetch(_ context.Context, videoID string, _ []string) (*model.Transcript, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.Failure != nil {
		return nil, f.Failure
	}
	out := *f.Transcript
	out.VideoID = videoID
	return &out, nil
}

func (f *FakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

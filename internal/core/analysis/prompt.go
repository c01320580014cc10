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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// DefaultPromptTemplate is used when the configuration does not override the
// analysis prompt. It receives TRANSCRIPT and EXAMPLE_JSON.
const DefaultPromptTemplate = `You are a professional video analyst. Analyze the following video transcript and answer with pure JSON only.

Transcript:
{{.TRANSCRIPT}}

Return exactly one JSON object with this shape and no Markdown:
{{.EXAMPLE_JSON}}

Rules:
- "visual_style" describes the visual style (colors, composition, typography).
- "motion_analysis" describes the motion design and pacing.
- "script_structure" lists the sections of the script in order, each with "time", "label" and "summary".
- Do not include any color palette field.`

// Provider is a generative text service. Generate sends one prompt to one
// model and returns the raw text of the answer.
type Provider interface {
	Generate(ctx context.Context, model string, prompt string) (string, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context, model string, prompt string) (string, error)

func (f ProviderFunc) Generate(ctx context.Context, model string, prompt string) (string, error) {
	return f(ctx, model, prompt)
}

// PromptBuilder renders the analysis prompt for a transcript.
type PromptBuilder struct {
	template *template.Template
	maxChars int
}

// NewPromptBuilder parses the template. An empty text uses DefaultPromptTemplate.
// maxChars bounds the transcript embedded in the prompt.
func NewPromptBuilder(text string, maxChars int) (*PromptBuilder, error) {
	if text == "" {
		text = DefaultPromptTemplate
	}
	tmpl, err := template.New("analysis-prompt").Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse analysis prompt template: %w", err)
	}
	return &PromptBuilder{template: tmpl, maxChars: maxChars}, nil
}

// GenerateParams returns the template parameters for a transcript.
func (p *PromptBuilder) GenerateParams(transcriptText string) map[string]interface{} {
	params := make(map[string]interface{})
	params["TRANSCRIPT"] = model.TruncateRunes(transcriptText, p.maxChars)

	example, _ := json.MarshalIndent(model.GetExampleAnalysis(), "", "  ")
	params["EXAMPLE_JSON"] = string(example)
	return params
}

// Build renders the prompt.
func (p *PromptBuilder) Build(transcriptText string) (string, error) {
	var buffer bytes.Buffer
	if err := p.template.Execute(&buffer, p.GenerateParams(transcriptText)); err != nil {
		return "", fmt.Errorf("failed to execute prompt template: %w", err)
	}
	return buffer.String(), nil
}

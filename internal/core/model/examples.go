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

package model

// GetExampleAnalysis returns a filled-in analysis used as the EXAMPLE_JSON
// parameter of the analysis prompt, so the model sees the exact shape it has
// to produce.
func GetExampleAnalysis() *AnalysisResult {
	return &AnalysisResult{
		VisualStyle:    "Clean flat illustration on a white background, one accent color, centered compositions with generous negative space.",
		MotionAnalysis: "Fast cuts on the beat in the opening, eased UI transitions through the middle, a slow zoom-out on the closing logo.",
		ScriptStructure: []*ScriptSection{
			{Time: "0:00", Label: "Hook", Summary: "States the everyday problem the product solves."},
			{Time: "0:12", Label: "Demo", Summary: "Walks through the three core features on a phone screen."},
			{Time: "0:41", Label: "Call to action", Summary: "Shows pricing and the download link."},
		},
	}
}

// FallbackAnalysis is the canned result returned when every provider in the
// chain was tried and none produced a usable answer for reasons other than
// credentials or quota.
func FallbackAnalysis() *AnalysisResult {
	return &AnalysisResult{
		VisualStyle:     "Modern tech style with a bright, clean color scheme.",
		MotionAnalysis:  "Smooth pacing with quick transitions.",
		ScriptStructure: make([]*ScriptSection, 0),
	}
}

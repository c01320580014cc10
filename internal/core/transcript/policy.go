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

package transcript

import (
	"fmt"
	"strings"
)

// Policy decides what the pipeline does when a transcript cannot be fetched.
type Policy string

const (
	// PolicyPlaceholder substitutes placeholder text and continues the analysis.
	PolicyPlaceholder Policy = "placeholder"
	// PolicyPropagate ends the analysis with the classified transcript failure.
	PolicyPropagate Policy = "propagate"
)

// DefaultPlaceholder is the text analysed in place of a missing transcript.
const DefaultPlaceholder = "This video currently has no transcript; treat it as a generic product/technology demo."

// ParsePolicy reads a policy name. An empty name selects PolicyPlaceholder.
func ParsePolicy(name string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(name))) {
	case "", PolicyPlaceholder:
		return PolicyPlaceholder, nil
	case PolicyPropagate:
		return PolicyPropagate, nil
	}
	return "", fmt.Errorf("unknown transcript policy %q (want %q or %q)", name, PolicyPlaceholder, PolicyPropagate)
}

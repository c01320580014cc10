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

// Package classify maps raw failure text from providers, the transcript source
// and the record store onto a small set of categories, each carrying a fixed
// remediation message that can be shown to an end user.
//
// Provider errors are matched against an ordered keyword table. The first rule
// whose keyword appears in the text (case-insensitive) decides the category:
//
//	"leaked"                 -> AUTH_REVOKED
//	"429", "quota"           -> QUOTA_EXCEEDED
//	"403", "permission"      -> PERMISSION_DENIED
//	"401", "unauthorized"    -> UNAUTHENTICATED
//	"404", "not found"       -> NOT_FOUND
//	(nothing matched)        -> NETWORK_OR_UNKNOWN
package classify

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Category is the classification tag of a failure.
type Category string

const (
	AuthRevoked           Category = "AUTH_REVOKED"
	QuotaExceeded         Category = "QUOTA_EXCEEDED"
	PermissionDenied      Category = "PERMISSION_DENIED"
	Unauthenticated       Category = "UNAUTHENTICATED"
	NotFound              Category = "NOT_FOUND"
	NetworkOrUnknown      Category = "NETWORK_OR_UNKNOWN"
	TranscriptUnavailable Category = "TRANSCRIPT_UNAVAILABLE"
	TranscriptBlocked     Category = "TRANSCRIPT_BLOCKED"
	NormalizationFailed   Category = "NORMALIZATION_FAILED"
	StoreUnavailable      Category = "STORE_UNAVAILABLE"
)

const (
	// DetailLimit bounds the raw detail kept on a ClassifiedError.
	DetailLimit = 300
	// MessageDetailLimit bounds the raw detail embedded in a remediation message.
	MessageDetailLimit = 200
)

type rule struct {
	keywords []string
	category Category
}

// rules is evaluated top to bottom; order is significant.
var rules = []rule{
	{keywords: []string{"leaked"}, category: AuthRevoked},
	{keywords: []string{"429", "quota"}, category: QuotaExceeded},
	{keywords: []string{"403", "permission"}, category: PermissionDenied},
	{keywords: []string{"401", "unauthorized"}, category: Unauthenticated},
	{keywords: []string{"404", "not found"}, category: NotFound},
}

var remediation = map[Category]string{
	AuthRevoked:           "The AI provider API key was reported as leaked and has been revoked. Create a new key, update the provider credentials in the server environment and restart the service.",
	QuotaExceeded:         "The AI provider quota is exhausted (HTTP 429). Wait for the quota window to reset, switch to another model or provider, or raise the quota for the project.",
	PermissionDenied:      "The AI provider refused the request (HTTP 403). Check that the API key or service account is allowed to call this model and that the API is enabled for the project.",
	Unauthenticated:       "The AI provider rejected the credentials (HTTP 401). Check that the API key is set and valid.",
	NotFound:              "The requested model was not found (HTTP 404). Check the model names in the provider chain configuration.",
	NetworkOrUnknown:      "The analysis failed because of a network or unexpected upstream error. Check the network and proxy settings and try again.",
	TranscriptUnavailable: "No transcript could be fetched for this video. The video may have no captions or may be unavailable; try another video.",
	TranscriptBlocked:     "The transcript source blocked the request. Configure an outbound proxy or try again later.",
	NormalizationFailed:   "The AI provider returned a response that could not be read as an analysis. Try again or use another model.",
	StoreUnavailable:      "The video database could not be reached. Check the record store credentials, the database ID and that the integration has access to the database.",
}

// external codes used in API responses
var codes = map[Category]string{
	AuthRevoked:           "PROVIDER_AUTH_REVOKED",
	QuotaExceeded:         "PROVIDER_QUOTA_EXCEEDED",
	PermissionDenied:      "PROVIDER_PERMISSION_DENIED",
	Unauthenticated:       "PROVIDER_UNAUTHENTICATED",
	NotFound:              "PROVIDER_NOT_FOUND",
	NetworkOrUnknown:      "PROVIDER_UNKNOWN",
	TranscriptUnavailable: "TRANSCRIPT_UNAVAILABLE",
	TranscriptBlocked:     "TRANSCRIPT_BLOCKED",
	NormalizationFailed:   "NORMALIZATION_FAILED",
	StoreUnavailable:      "STORE_UNAVAILABLE",
}

// Code returns the code reported to API clients for the category.
func (c Category) Code() string {
	if code, ok := codes[c]; ok {
		return code
	}
	return codes[NetworkOrUnknown]
}

// Remediation returns the fixed remediation template of the category.
func (c Category) Remediation() string {
	if r, ok := remediation[c]; ok {
		return r
	}
	return remediation[NetworkOrUnknown]
}

// IsCredential reports whether the category means retrying with the same
// credentials cannot succeed.
func (c Category) IsCredential() bool {
	switch c {
	case AuthRevoked, QuotaExceeded, PermissionDenied, Unauthenticated:
		return true
	}
	return false
}

// Severity ranks provider categories by their position in the rule table; a
// lower value is more severe. Categories outside the table rank last.
func (c Category) Severity() int {
	for i, r := range rules {
		if r.category == c {
			return i
		}
	}
	return len(rules)
}

// ClassifiedError is a failure with its category, the remediation message and
// a bounded copy of the raw upstream text.
type ClassifiedError struct {
	Category Category
	Message  string
	Detail   string
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

// Code is shorthand for e.Category.Code().
func (e *ClassifiedError) Code() string {
	return e.Category.Code()
}

// Classify maps raw provider error text onto a category.
func Classify(raw string) *ClassifiedError {
	lower := strings.ToLower(raw)
	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return New(r.category, raw)
			}
		}
	}
	return New(NetworkOrUnknown, raw)
}

// ClassifyError is Classify over err.Error(). A nil error yields nil.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}
	return Classify(err.Error())
}

// New builds a ClassifiedError for a known category. The remediation message
// gets the first MessageDetailLimit characters of the detail appended.
func New(category Category, detail string) *ClassifiedError {
	detail = strings.TrimSpace(detail)
	msg := category.Remediation()
	if detail != "" {
		msg = fmt.Sprintf("%s (detail: %s)", msg, Truncate(detail, MessageDetailLimit))
	}
	return &ClassifiedError{
		Category: category,
		Message:  msg,
		Detail:   Truncate(detail, DetailLimit),
	}
}

// Truncate bounds s to max characters, appending an ellipsis when cut.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "..."
}

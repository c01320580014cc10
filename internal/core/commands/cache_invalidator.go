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

package commands

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
)

// Invalidator is implemented by caches that can be dropped on demand.
type Invalidator interface {
	Invalidate()
}

// ChangeNotification is the optional body of a record change message.
type ChangeNotification struct {
	DatabaseID string `json:"database_id"`
	PageID     string `json:"page_id,omitempty"`
	Source     string `json:"source,omitempty"`
}

// CacheInvalidator drops the record cache when a change notification for the
// configured database arrives. Empty or non-JSON messages invalidate too.
type CacheInvalidator struct {
	cor.BaseCommand
	cache      Invalidator
	databaseID string
}

func NewCacheInvalidator(name string, cache Invalidator, databaseID string) *CacheInvalidator {
	return &CacheInvalidator{
		BaseCommand: *cor.NewBaseCommand(name),
		cache:       cache,
		databaseID:  databaseID,
	}
}

// IsExecutable accepts empty message bodies.
func (c *CacheInvalidator) IsExecutable(context cor.Context) bool {
	return context != nil && context.GetContext() != nil
}

func (c *CacheInvalidator) Execute(context cor.Context) {
	in, _ := context.Get(c.GetInputParam()).(string)

	var msg ChangeNotification
	if body := strings.TrimSpace(in); body != "" {
		if err := json.Unmarshal([]byte(body), &msg); err != nil {
			slog.WarnContext(context.GetContext(), "unreadable change notification, invalidating anyway", "error", err)
		}
	}

	if msg.DatabaseID != "" && !sameDatabase(msg.DatabaseID, c.databaseID) {
		slog.DebugContext(context.GetContext(), "ignoring change notification for another database",
			"database_id", msg.DatabaseID)
		c.Succeeded(context)
		context.Add(c.GetOutputParam(), false)
		return
	}

	c.cache.Invalidate()
	slog.InfoContext(context.GetContext(), "record cache invalidated by notification",
		"source", msg.Source, "page_id", msg.PageID)
	c.Succeeded(context)
	context.Add(c.GetOutputParam(), true)
}

// database ids are compared without dashes since both forms are in use
func sameDatabase(a, b string) bool {
	norm := func(s string) string { return strings.ToLower(strings.ReplaceAll(s, "-", "")) }
	return norm(a) == norm(b)
}

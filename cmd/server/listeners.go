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

package main

import (
	"context"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/commands"
)

// CacheInvalidationTopic is the topic_subscriptions key of the record change feed.
const CacheInvalidationTopic = "CacheInvalidation"

// SetupListeners attaches the cache invalidator to the record change
// subscription, when one is configured, and starts receiving.
func SetupListeners(ctx context.Context, config *cloud.Config, cloudClients *cloud.ServiceClients, cache commands.Invalidator) {
	listener, ok := cloudClients.PubSubListeners[CacheInvalidationTopic]
	if !ok {
		return
	}
	listener.SetCommand(commands.NewCacheInvalidator("record-cache-invalidator", cache, config.RecordStore.DatabaseID))
	listener.Listen(ctx)
}

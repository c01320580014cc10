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

package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// RecordLister is the part of the record catalog the warmer drives.
type RecordLister interface {
	List(ctx context.Context, forceRefresh bool) ([]*model.VideoRecord, error)
}

// RecordCacheWarmer refreshes the record cache on a fixed interval so list
// requests rarely wait for the record store.
type RecordCacheWarmer struct {
	cor.BaseCommand
	catalog  RecordLister
	interval time.Duration

	mu   sync.Mutex
	stop chan struct{}
}

func NewRecordCacheWarmer(catalog RecordLister, interval time.Duration) *RecordCacheWarmer {
	return &RecordCacheWarmer{
		BaseCommand: *cor.NewBaseCommand("record-cache-warmer"),
		catalog:     catalog,
		interval:    interval,
	}
}

// IsExecutable is always true; the warmer reads nothing from the context.
func (w *RecordCacheWarmer) IsExecutable(_ cor.Context) bool {
	return true
}

// Execute performs one forced refresh.
func (w *RecordCacheWarmer) Execute(context cor.Context) {
	records, err := w.catalog.List(context.GetContext(), true)
	if err != nil {
		w.Failed(context, err)
		return
	}
	slog.DebugContext(context.GetContext(), "record cache warmed", "records", len(records))
	w.Succeeded(context)
	context.Add(w.GetOutputParam(), len(records))
}

// StartTimer refreshes the cache every interval until ctx is cancelled or
// Stop is called. A non-positive interval does nothing.
func (w *RecordCacheWarmer) StartTimer(ctx context.Context) {
	if w.interval <= 0 {
		return
	}
	w.mu.Lock()
	if w.stop != nil {
		w.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	w.stop = stop
	w.mu.Unlock()

	tracer := otel.Tracer("record-cache-warmer")
	ticker := time.NewTicker(w.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				traceCtx, span := tracer.Start(ctx, "record-cache-warm")
				chainCtx := cor.NewBaseContextWith(traceCtx)
				w.Execute(chainCtx)
				if chainCtx.HasErrors() {
					span.SetStatus(codes.Error, "failed to warm record cache")
				} else {
					span.SetStatus(codes.Ok, "warmed record cache")
				}
				span.End()
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the timer started by StartTimer.
func (w *RecordCacheWarmer) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		close(w.stop)
		w.stop = nil
	}
}

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

// Package services provides the record service: the cached listing of the
// video catalog kept in the record store, and the write path that adds videos
// to it.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/jomei/notionapi"
	"golang.org/x/sync/singleflight"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/classify"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// DefaultCacheTTL is the lifetime of the cached listing.
const DefaultCacheTTL = 300 * time.Second

// ErrInvalidURL is returned by Add for anything but an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid video url")

// RecordSource is the upstream record store.
type RecordSource interface {
	// QueryPages returns every page of the database, following pagination.
	QueryPages(ctx context.Context) ([]notionapi.Page, error)
	// CreatePage inserts a page with the given title and video URL.
	CreatePage(ctx context.Context, title string, videoURL string) (*notionapi.Page, error)
}

// TitleResolver looks up a human readable title for a video URL.
type TitleResolver interface {
	ResolveTitle(ctx context.Context, videoURL string) (string, error)
}

type cacheEntry struct {
	records   []*model.VideoRecord
	refreshed time.Time
}

// RecordService serves the video catalog from a single in-memory entry that
// is replaced as a whole on refresh. Concurrent misses share one upstream
// query, and a refresh that started before an invalidation never installs
// its result.
type RecordService struct {
	source  RecordSource
	decoder *RecordDecoder
	titles  TitleResolver
	ttl     time.Duration
	now     func() time.Time

	mu         sync.RWMutex
	entry      *cacheEntry
	generation uint64
	refreshes  singleflight.Group
}

// NewRecordService creates the service. A ttl of zero or less disables
// caching; titles may be nil.
func NewRecordService(source RecordSource, decoder *RecordDecoder, titles TitleResolver, ttl time.Duration) *RecordService {
	if decoder == nil {
		decoder = NewRecordDecoder(PropertyAliases{}, "", "")
	}
	return &RecordService{
		source:  source,
		decoder: decoder,
		titles:  titles,
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock replaces the time source.
func (s *RecordService) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// TTL returns the configured cache lifetime.
func (s *RecordService) TTL() time.Duration {
	return s.ttl
}

// List returns the catalog, from the cache when it is fresh. Upstream errors
// are returned as a STORE_UNAVAILABLE *classify.ClassifiedError.
func (s *RecordService) List(ctx context.Context, forceRefresh bool) ([]*model.VideoRecord, error) {
	if !forceRefresh {
		if records, ok := s.cached(); ok {
			slog.DebugContext(ctx, "record cache hit", "records", len(records))
			return records, nil
		}
	}

	s.mu.RLock()
	generation := s.generation
	s.mu.RUnlock()

	v, err, shared := s.refreshes.Do(fmt.Sprintf("records-%d", generation), func() (interface{}, error) {
		return s.refresh(context.WithoutCancel(ctx), generation)
	})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "record cache refreshed", "force", forceRefresh, "shared", shared)
	return v.([]*model.VideoRecord), nil
}

func (s *RecordService) cached() ([]*model.VideoRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.ttl <= 0 || s.entry == nil {
		return nil, false
	}
	if s.now().Sub(s.entry.refreshed) >= s.ttl {
		return nil, false
	}
	return s.entry.records, true
}

func (s *RecordService) refresh(ctx context.Context, generation uint64) ([]*model.VideoRecord, error) {
	pages, err := s.source.QueryPages(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "record store query failed", "error", err)
		return nil, classify.New(classify.StoreUnavailable, err.Error())
	}

	records := make([]*model.VideoRecord, 0, len(pages))
	for i := range pages {
		records = append(records, s.decoder.Decode(&pages[i]))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation == generation {
		s.entry = &cacheEntry{records: records, refreshed: s.now()}
	}
	return records, nil
}

// Invalidate drops the cached entry so the next List queries the store.
func (s *RecordService) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entry = nil
	s.generation++
}

// Add validates the URL, resolves a title for it, creates the record and
// invalidates the cache.
func (s *RecordService) Add(ctx context.Context, rawURL string) (*model.VideoRecord, error) {
	videoURL := strings.TrimSpace(rawURL)
	u, err := url.Parse(videoURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}

	title := videoURL
	if s.titles != nil {
		if resolved, err := s.titles.ResolveTitle(ctx, videoURL); err != nil {
			slog.WarnContext(ctx, "title lookup failed, using url as title", "url", videoURL, "error", err)
		} else if resolved != "" {
			title = resolved
		}
	}

	page, err := s.source.CreatePage(ctx, title, videoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create record: %w", err)
	}
	s.Invalidate()

	if page == nil {
		return &model.VideoRecord{Title: title, URL: videoURL, Cover: s.decoder.cover(&notionapi.Page{}, videoURL)}, nil
	}
	record := s.decoder.Decode(page)
	if record.Title == "" {
		record.Title = title
	}
	if record.URL == "" {
		record.URL = videoURL
	}
	return record, nil
}

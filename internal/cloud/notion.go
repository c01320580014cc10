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

package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jomei/notionapi"
)

// ErrRecordStoreNotConfigured is returned when no token or database id is set.
var ErrRecordStoreNotConfigured = errors.New("record store is not configured: set NOTION_API_KEY and NOTION_DATABASE_ID")

// NotionRecordStore reads and writes the video catalog database.
type NotionRecordStore struct {
	client        *notionapi.Client
	databaseID    notionapi.DatabaseID
	pageSize      int
	titleProperty string
	urlProperty   string

	// MaxTries bounds the attempts of one page query; RetryInterval is the
	// first backoff delay. Only 429 and 5xx answers are retried.
	MaxTries      uint
	RetryInterval time.Duration
}

// NewNotionRecordStore creates the store. The shared HTTP client carries the
// proxy and the per call timeout.
func NewNotionRecordStore(cfg RecordStore, httpClient *http.Client) *NotionRecordStore {
	opts := []notionapi.ClientOption{}
	if httpClient != nil {
		opts = append(opts, notionapi.WithHTTPClient(httpClient))
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 100
	}
	titleProperty := cfg.TitleProperty
	if titleProperty == "" {
		titleProperty = "title"
	}
	urlProperty := cfg.URLProperty
	if urlProperty == "" {
		urlProperty = "URL"
	}
	return &NotionRecordStore{
		client:        notionapi.NewClient(notionapi.Token(cfg.APIKey), opts...),
		databaseID:    notionapi.DatabaseID(cfg.DatabaseID),
		pageSize:      pageSize,
		titleProperty: titleProperty,
		urlProperty:   urlProperty,
		MaxTries:      3,
		RetryInterval: time.Second,
	}
}

// QueryPages returns every page of the database, following next_cursor until
// has_more is false.
func (n *NotionRecordStore) QueryPages(ctx context.Context) ([]notionapi.Page, error) {
	if n.databaseID == "" {
		return nil, ErrRecordStoreNotConfigured
	}

	var pages []notionapi.Page
	var cursor notionapi.Cursor
	for {
		req := &notionapi.DatabaseQueryRequest{PageSize: n.pageSize, StartCursor: cursor}
		resp, err := n.query(ctx, req)
		if err != nil {
			return nil, err
		}
		pages = append(pages, resp.Results...)
		if !resp.HasMore || resp.NextCursor == "" {
			break
		}
		cursor = resp.NextCursor
	}
	slog.DebugContext(ctx, "queried record store", "database_id", string(n.databaseID), "pages", len(pages))
	return pages, nil
}

func (n *NotionRecordStore) query(ctx context.Context, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	operation := func() (*notionapi.DatabaseQueryResponse, error) {
		resp, err := n.client.Database.Query(ctx, n.databaseID, req)
		if err != nil {
			if retryable(err) {
				slog.WarnContext(ctx, "record store query failed, retrying", "error", err)
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return resp, nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = n.RetryInterval
	bo.MaxInterval = 10 * time.Second

	return backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(n.MaxTries), backoff.WithMaxElapsedTime(30*time.Second))
}

func retryable(err error) bool {
	var apiErr *notionapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	return false
}

// CreatePage inserts a page whose title and URL properties are set.
func (n *NotionRecordStore) CreatePage(ctx context.Context, title string, videoURL string) (*notionapi.Page, error) {
	if n.databaseID == "" {
		return nil, ErrRecordStoreNotConfigured
	}
	page, err := n.client.Page.Create(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: n.databaseID,
		},
		Properties: notionapi.Properties{
			n.titleProperty: notionapi.TitleProperty{
				Title: []notionapi.RichText{{Text: &notionapi.Text{Content: title}}},
			},
			n.urlProperty: notionapi.URLProperty{URL: videoURL},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create page in %s: %w", n.databaseID, err)
	}
	slog.InfoContext(ctx, "created record", "page_id", string(page.ID), "url", videoURL)
	return page, nil
}

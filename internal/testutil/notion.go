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

package test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jomei/notionapi"
)

func richText(fragments ...string) []notionapi.RichText {
	out := make([]notionapi.RichText, 0, len(fragments))
	for _, f := range fragments {
		out = append(out, notionapi.RichText{
			Type:      notionapi.ObjectTypeText,
			Text:      &notionapi.Text{Content: f},
			PlainText: f,
		})
	}
	return out
}

func TitleProp(fragments ...string) notionapi.Property {
	return &notionapi.TitleProperty{Type: notionapi.PropertyTypeTitle, Title: richText(fragments...)}
}

func RichTextProp(fragments ...string) notionapi.Property {
	return &notionapi.RichTextProperty{Type: notionapi.PropertyTypeRichText, RichText: richText(fragments...)}
}

func SelectProp(name string) notionapi.Property {
	return &notionapi.SelectProperty{Type: notionapi.PropertyTypeSelect, Select: notionapi.Option{Name: name}}
}

func MultiSelectProp(names ...string) notionapi.Property {
	options := make([]notionapi.Option, 0, len(names))
	for _, n := range names {
		options = append(options, notionapi.Option{Name: n})
	}
	return &notionapi.MultiSelectProperty{Type: notionapi.PropertyTypeMultiSelect, MultiSelect: options}
}

func URLProp(url string) notionapi.Property {
	return &notionapi.URLProperty{Type: notionapi.PropertyTypeURL, URL: url}
}

func FilesProp(urls ...string) notionapi.Property {
	files := make([]notionapi.File, 0, len(urls))
	for _, u := range urls {
		files = append(files, notionapi.File{Name: u, Type: notionapi.FileTypeExternal, External: &notionapi.FileObject{URL: u}})
	}
	return &notionapi.FilesProperty{Type: notionapi.PropertyTypeFiles, Files: files}
}

// Page builds a record store page.
func Page(id string, props notionapi.Properties) notionapi.Page {
	return notionapi.Page{Object: notionapi.ObjectTypePage, ID: notionapi.ObjectID(id), Properties: props}
}

// FakeRecordSource is an in-memory record store.
type FakeRecordSource struct {
	mu         sync.Mutex
	pages      []notionapi.Page
	queryErr   error
	createErr  error
	queries    int
	queryGate  chan struct{}
	nextPageID int
}

func NewFakeRecordSource(pages ...notionapi.Page) *FakeRecordSource {
	return &FakeRecordSource{pages: pages}
}

// FailQueries makes QueryPages fail with err until reset with nil.
func (f *FakeRecordSource) FailQueries(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryErr = err
}

// FailCreates makes CreatePage fail with err until reset with nil.
func (f *FakeRecordSource) FailCreates(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
}

// BlockQueries makes QueryPages wait until the returned function is called.
func (f *FakeRecordSource) BlockQueries() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.queryGate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			f.queryGate = nil
			f.mu.Unlock()
			close(gate)
		})
	}
}

func (f *FakeRecordSource) Queries() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

func (f *FakeRecordSource) QueryPages(ctx context.Context) ([]notionapi.Page, error) {
	f.mu.Lock()
	f.queries++
	gate := f.queryGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	out := make([]notionapi.Page, len(f.pages))
	copy(out, f.pages)
	return out, nil
}

func (f *FakeRecordSource) CreatePage(_ context.Context, title string, videoURL string) (*notionapi.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextPageID++
	page := Page(fmt.Sprintf("created-%d", f.nextPageID), notionapi.Properties{
		"Name": TitleProp(title),
		"URL":  URLProp(videoURL),
	})
	f.pages = append(f.pages, page)
	return &page, nil
}

// FakeTitleResolver returns a title derived from the URL, or Err.
type FakeTitleResolver struct {
	Err error
}

func (f *FakeTitleResolver) ResolveTitle(_ context.Context, videoURL string) (string, error) {
	if f.Err != nil {
		return "", f.Err
	}
	return "Title of " + strings.TrimPrefix(videoURL, "https://"), nil
}

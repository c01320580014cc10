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

package services

import (
	"net/url"
	"strings"

	"github.com/jomei/notionapi"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

const (
	DefaultPlaceholderCover = "https://images.unsplash.com/photo-1618005182384-a83a8bd57fbe?q=80&w=800&auto=format&fit=crop"
	DefaultAnalysisText     = "No analysis yet."
)

// PropertyAliases lists, per record field, the property names that may hold
// it. The first name present on a page wins.
type PropertyAliases struct {
	Title         []string
	URL           []string
	Analysis      []string
	Cover         []string
	Company       []string
	AnimationType []string
	Technique     []string
	Features      []string
}

// DefaultPropertyAliases matches the column names used by the video database.
func DefaultPropertyAliases() PropertyAliases {
	return PropertyAliases{
		Title:         []string{"名称", "标题", "Name", "Title"},
		URL:           []string{"URL", "Url", "Link", "链接"},
		Analysis:      []string{"视频分析", "分析", "Analysis"},
		Cover:         []string{"封面", "Cover"},
		Company:       []string{"公司/产品", "公司", "品牌", "Company", "Brand"},
		AnimationType: []string{"动画类型", "AnimationType", "Type"},
		Technique:     []string{"表现手法", "Technique", "Style"},
		Features:      []string{"典型特征", "Features", "Tags"},
	}
}

// propertyDecoder turns one property into its ordered values.
type propertyDecoder func(p notionapi.Property) []string

// decoders is keyed by the property's declared type; properties of any other
// type are ignored.
var decoders = map[notionapi.PropertyType]propertyDecoder{
	notionapi.PropertyTypeTitle:       decodeTitle,
	notionapi.PropertyTypeRichText:    decodeRichText,
	notionapi.PropertyTypeSelect:      decodeSelect,
	notionapi.PropertyTypeMultiSelect: decodeMultiSelect,
	notionapi.PropertyTypeURL:         decodeURL,
	notionapi.PropertyTypeFiles:       decodeFiles,
}

// free-text types whose tag values are comma separated
var textual = map[notionapi.PropertyType]bool{
	notionapi.PropertyTypeTitle:    true,
	notionapi.PropertyTypeRichText: true,
}

func plainText(rt []notionapi.RichText) string {
	var sb strings.Builder
	for _, r := range rt {
		if r.PlainText != "" {
			sb.WriteString(r.PlainText)
		} else if r.Text != nil {
			sb.WriteString(r.Text.Content)
		}
	}
	return sb.String()
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func decodeTitle(p notionapi.Property) []string {
	switch v := p.(type) {
	case *notionapi.TitleProperty:
		return nonEmpty(plainText(v.Title))
	case notionapi.TitleProperty:
		return nonEmpty(plainText(v.Title))
	}
	return nil
}

func decodeRichText(p notionapi.Property) []string {
	switch v := p.(type) {
	case *notionapi.RichTextProperty:
		return nonEmpty(plainText(v.RichText))
	case notionapi.RichTextProperty:
		return nonEmpty(plainText(v.RichText))
	}
	return nil
}

func decodeSelect(p notionapi.Property) []string {
	switch v := p.(type) {
	case *notionapi.SelectProperty:
		return nonEmpty(v.Select.Name)
	case notionapi.SelectProperty:
		return nonEmpty(v.Select.Name)
	}
	return nil
}

func decodeMultiSelect(p notionapi.Property) []string {
	var options []notionapi.Option
	switch v := p.(type) {
	case *notionapi.MultiSelectProperty:
		options = v.MultiSelect
	case notionapi.MultiSelectProperty:
		options = v.MultiSelect
	}
	names := make([]string, 0, len(options))
	for _, o := range options {
		names = append(names, o.Name)
	}
	return nonEmpty(names...)
}

func decodeURL(p notionapi.Property) []string {
	switch v := p.(type) {
	case *notionapi.URLProperty:
		return nonEmpty(v.URL)
	case notionapi.URLProperty:
		return nonEmpty(v.URL)
	}
	return nil
}

func decodeFiles(p notionapi.Property) []string {
	var files []notionapi.File
	switch v := p.(type) {
	case *notionapi.FilesProperty:
		files = v.Files
	case notionapi.FilesProperty:
		files = v.Files
	}
	urls := make([]string, 0, len(files))
	for _, f := range files {
		switch {
		case f.File != nil && f.File.URL != "":
			urls = append(urls, f.File.URL)
		case f.External != nil && f.External.URL != "":
			urls = append(urls, f.External.URL)
		}
	}
	return urls
}

// RecordDecoder converts record store pages into VideoRecords.
type RecordDecoder struct {
	aliases          PropertyAliases
	placeholderCover string
	defaultAnalysis  string
}

// NewRecordDecoder creates a decoder; empty values fall back to the defaults.
func NewRecordDecoder(aliases PropertyAliases, placeholderCover string, defaultAnalysis string) *RecordDecoder {
	defaults := DefaultPropertyAliases()
	fill := func(v *[]string, d []string) {
		if len(*v) == 0 {
			*v = d
		}
	}
	fill(&aliases.Title, defaults.Title)
	fill(&aliases.URL, defaults.URL)
	fill(&aliases.Analysis, defaults.Analysis)
	fill(&aliases.Cover, defaults.Cover)
	fill(&aliases.Company, defaults.Company)
	fill(&aliases.AnimationType, defaults.AnimationType)
	fill(&aliases.Technique, defaults.Technique)
	fill(&aliases.Features, defaults.Features)

	if placeholderCover == "" {
		placeholderCover = DefaultPlaceholderCover
	}
	if defaultAnalysis == "" {
		defaultAnalysis = DefaultAnalysisText
	}
	return &RecordDecoder{aliases: aliases, placeholderCover: placeholderCover, defaultAnalysis: defaultAnalysis}
}

// lookup returns the first aliased property present on the page.
func lookup(props notionapi.Properties, aliases []string) notionapi.Property {
	for _, name := range aliases {
		if p, ok := props[name]; ok && p != nil {
			return p
		}
	}
	return nil
}

func values(p notionapi.Property) []string {
	if p == nil {
		return nil
	}
	if decode, ok := decoders[p.GetType()]; ok {
		return decode(p)
	}
	return nil
}

func (d *RecordDecoder) text(props notionapi.Properties, aliases []string) string {
	return strings.Join(values(lookup(props, aliases)), " ")
}

func (d *RecordDecoder) tags(props notionapi.Properties, aliases []string) []string {
	p := lookup(props, aliases)
	out := make([]string, 0)
	for _, v := range values(p) {
		if textual[p.GetType()] {
			out = append(out, splitTags(v)...)
			continue
		}
		out = append(out, v)
	}
	return out
}

func splitTags(s string) []string {
	s = strings.NewReplacer("，", ",", "、", ",").Replace(s)
	return nonEmpty(strings.Split(s, ",")...)
}

// Decode converts one page.
func (d *RecordDecoder) Decode(page *notionapi.Page) *model.VideoRecord {
	props := page.Properties

	title := d.text(props, d.aliases.Title)
	if title == "" {
		// every database has exactly one title column, whatever its name
		for _, p := range props {
			if p != nil && p.GetType() == notionapi.PropertyTypeTitle {
				title = strings.Join(values(p), " ")
				break
			}
		}
	}

	record := &model.VideoRecord{
		ID:            string(page.ID),
		Title:         title,
		URL:           d.text(props, d.aliases.URL),
		Analysis:      d.text(props, d.aliases.Analysis),
		Company:       d.tags(props, d.aliases.Company),
		AnimationType: d.tags(props, d.aliases.AnimationType),
		Technique:     d.tags(props, d.aliases.Technique),
		Features:      d.tags(props, d.aliases.Features),
	}
	if record.Analysis == "" {
		record.Analysis = d.defaultAnalysis
	}
	record.Cover = d.cover(page, record.URL)
	return record
}

// cover resolves the cover image: page cover, then a files property, then a
// thumbnail derived from the video URL, then the placeholder.
func (d *RecordDecoder) cover(page *notionapi.Page, videoURL string) string {
	if c := page.Cover; c != nil {
		if c.External != nil && c.External.URL != "" {
			return c.External.URL
		}
		if c.File != nil && c.File.URL != "" {
			return c.File.URL
		}
	}
	if files := values(lookup(page.Properties, d.aliases.Cover)); len(files) > 0 {
		return files[0]
	}
	if thumb := YouTubeThumbnail(videoURL); thumb != "" {
		return thumb
	}
	return d.placeholderCover
}

// YouTubeVideoID extracts the video id from youtu.be, watch?v= and /shorts/
// URLs. It returns "" for anything else.
func YouTubeVideoID(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	host = strings.TrimPrefix(host, "m.")
	switch {
	case host == "youtu.be":
		return strings.Trim(u.Path, "/")
	case strings.HasSuffix(host, "youtube.com"):
		if v := u.Query().Get("v"); v != "" {
			return v
		}
		for _, prefix := range []string{"/shorts/", "/embed/", "/live/"} {
			if strings.HasPrefix(u.Path, prefix) {
				return strings.Trim(strings.TrimPrefix(u.Path, prefix), "/")
			}
		}
	}
	return ""
}

// YouTubeThumbnail returns the max resolution thumbnail of a YouTube URL.
func YouTubeThumbnail(raw string) string {
	id := YouTubeVideoID(raw)
	if id == "" {
		return ""
	}
	return "https://img.youtube.com/vi/" + id + "/maxresdefault.jpg"
}

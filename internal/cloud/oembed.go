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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultOEmbedEndpoint serves oEmbed for YouTube, Vimeo and most video hosts.
const DefaultOEmbedEndpoint = "https://noembed.com/embed"

// OEmbedTitleResolver looks up video titles through an oEmbed endpoint.
type OEmbedTitleResolver struct {
	client   *http.Client
	endpoint string
}

func NewOEmbedTitleResolver(client *http.Client, endpoint string) *OEmbedTitleResolver {
	if client == nil {
		client = http.DefaultClient
	}
	if endpoint == "" {
		endpoint = DefaultOEmbedEndpoint
	}
	return &OEmbedTitleResolver{client: client, endpoint: endpoint}
}

type oEmbedResponse struct {
	Title string `json:"title"`
	Error string `json:"error"`
}

// ResolveTitle returns the title the host reports for videoURL.
func (o *OEmbedTitleResolver) ResolveTitle(ctx context.Context, videoURL string) (string, error) {
	target := o.endpoint + "?url=" + url.QueryEscape(videoURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("oembed: status %d", resp.StatusCode)
	}
	var body oEmbedResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return "", fmt.Errorf("oembed: %w", err)
	}
	if body.Error != "" {
		return "", errors.New("oembed: " + body.Error)
	}
	return strings.TrimSpace(body.Title), nil
}

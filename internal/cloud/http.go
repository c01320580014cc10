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
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http/httpproxy"
)

// DefaultTimeout bounds every outbound call when the configuration leaves it unset.
const DefaultTimeout = 30 * time.Second

// Timeout returns the configured per call timeout.
func (n Network) Timeout() time.Duration {
	if n.TimeoutSeconds <= 0 {
		return DefaultTimeout
	}
	return time.Duration(n.TimeoutSeconds) * time.Second
}

// NewHTTPClient builds the client shared by the transcript fetcher, the
// providers and the record store. The configured proxy applies to both http
// and https targets; hosts in NoProxy connect directly.
func NewHTTPClient(network Network) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 20
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 60 * time.Second

	if network.ProxyURL != "" {
		proxy := (&httpproxy.Config{
			HTTPProxy:  network.ProxyURL,
			HTTPSProxy: network.ProxyURL,
			NoProxy:    network.NoProxy,
		}).ProxyFunc()
		transport.Proxy = func(req *http.Request) (*url.URL, error) {
			return proxy(req.URL)
		}
	}

	return &http.Client{
		Timeout:   network.Timeout(),
		Transport: transport,
	}
}

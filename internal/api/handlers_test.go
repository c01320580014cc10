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

package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jomei/notionapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-video-insights/internal/api"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/classify"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
	test "github.com/jaycherian/gcp-go-video-insights/internal/testutil"
)

type fakeAnalyzer struct {
	outcome *workflow.Outcome
	ids     []string
}

func (f *fakeAnalyzer) AnalyzeVideo(_ context.Context, videoID string) *workflow.Outcome {
	f.ids = append(f.ids, videoID)
	return f.outcome
}

func newRouter(analyzer api.Analyzer, source *test.FakeRecordSource) *gin.Engine {
	gin.SetMode(gin.TestMode)
	catalog := services.NewRecordService(source,
		services.NewRecordDecoder(services.DefaultPropertyAliases(), "", ""),
		&test.FakeTitleResolver{}, services.DefaultCacheTTL)

	r := gin.New()
	r.Use(api.RequestID())
	api.NewHandlers(analyzer, catalog, api.HealthInfo{Proxy: "http://proxy:7890", Providers: []string{"primary"}}).Register(r)
	return r
}

func serve(t *testing.T, r http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	body := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

func TestHealth(t *testing.T) {
	r := newRouter(&fakeAnalyzer{}, test.NewFakeRecordSource())

	w, body := serve(t, r, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "http://proxy:7890", body["proxy"])
	assert.Equal(t, []interface{}{"primary"}, body["providers"])
	assert.EqualValues(t, 300, body["cache_ttl_seconds"])
	assert.NotEmpty(t, w.Header().Get(api.RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	r := newRouter(&fakeAnalyzer{}, test.NewFakeRecordSource())
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(api.RequestIDHeader, "abc-123")

	w, _ := serve(t, r, req)
	assert.Equal(t, "abc-123", w.Header().Get(api.RequestIDHeader))
}

func TestRequestIDIsReplacedWhenUnsafe(t *testing.T) {
	r := newRouter(&fakeAnalyzer{}, test.NewFakeRecordSource())

	for _, id := range []string{strings.Repeat("a", 65), "abc 123", "id\u00e9", "<script>"} {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(api.RequestIDHeader, id)

		w, _ := serve(t, r, req)
		got := w.Header().Get(api.RequestIDHeader)
		assert.NotEqual(t, id, got, id)
		_, err := uuid.Parse(got)
		assert.NoError(t, err, id)
	}
}

func TestAnalyzeVideoRequiresID(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	r := newRouter(analyzer, test.NewFakeRecordSource())

	w, body := serve(t, r, httptest.NewRequest(http.MethodGet, "/analyze_video?video_id=%20", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "error", body["status"])
	assert.Empty(t, analyzer.ids)
}

func TestAnalyzeVideoSuccess(t *testing.T) {
	analyzer := &fakeAnalyzer{outcome: &workflow.Outcome{
		Status: workflow.StatusSuccess,
		Result: &model.AnalysisResult{VisualStyle: "flat", MotionAnalysis: "calm", ScriptStructure: []*model.ScriptSection{}},
	}}
	r := newRouter(analyzer, test.NewFakeRecordSource())

	w, body := serve(t, r, httptest.NewRequest(http.MethodGet, "/analyze_video?video_id=dQw4w9WgXcQ", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", body["status"])
	result := body["ai_result"].(map[string]interface{})
	assert.Equal(t, "flat", result["visual_style"])
	assert.Equal(t, []interface{}{}, result["script_structure"])
	assert.Equal(t, []string{"dQw4w9WgXcQ"}, analyzer.ids)
}

func TestAnalyzeVideoClassifiedError(t *testing.T) {
	analyzer := &fakeAnalyzer{outcome: &workflow.Outcome{
		Status: workflow.StatusError,
		Error:  classify.Classify("API key was reported as leaked"),
	}}
	r := newRouter(analyzer, test.NewFakeRecordSource())

	w, body := serve(t, r, httptest.NewRequest(http.MethodGet, "/analyze_video?video_id=x", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "PROVIDER_AUTH_REVOKED", body["code"])
	assert.NotEmpty(t, body["message"])
}

func TestFetchVideoList(t *testing.T) {
	source := test.NewFakeRecordSource(
		test.Page("p1", notionapi.Properties{"Name": test.TitleProp("First"), "URL": test.URLProp("https://youtu.be/aaa")}),
		test.Page("p2", notionapi.Properties{"Name": test.TitleProp("Second")}),
	)
	r := newRouter(&fakeAnalyzer{}, source)

	w, body := serve(t, r, httptest.NewRequest(http.MethodGet, "/fetch_video_list", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", body["status"])
	assert.EqualValues(t, 2, body["count"])
	first := body["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "First", first["title"])

	serve(t, r, httptest.NewRequest(http.MethodGet, "/fetch_video_list", nil))
	assert.Equal(t, 1, source.Queries())

	serve(t, r, httptest.NewRequest(http.MethodGet, "/fetch_video_list?force_refresh=true", nil))
	assert.Equal(t, 2, source.Queries())
}

func TestFetchVideoListStoreUnavailable(t *testing.T) {
	source := test.NewFakeRecordSource()
	source.FailQueries(errors.New("notion: 401 unauthorized"))
	r := newRouter(&fakeAnalyzer{}, source)

	w, body := serve(t, r, httptest.NewRequest(http.MethodGet, "/fetch_video_list", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "error", body["status"])
	assert.Equal(t, "STORE_UNAVAILABLE", body["code"])
}

func TestAddVideo(t *testing.T) {
	source := test.NewFakeRecordSource()
	r := newRouter(&fakeAnalyzer{}, source)

	req := httptest.NewRequest(http.MethodPost, "/add_video", strings.NewReader(`{"url":"https://youtu.be/new1"}`))
	req.Header.Set("Content-Type", "application/json")
	w, body := serve(t, r, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "success", body["status"])
	data := body["data"].(map[string]interface{})
	assert.Equal(t, "Title of youtu.be/new1", data["title"])
	assert.Equal(t, "https://youtu.be/new1", data["url"])
}

func TestAddVideoBadRequests(t *testing.T) {
	r := newRouter(&fakeAnalyzer{}, test.NewFakeRecordSource())

	for _, payload := range []string{`not json`, `{}`, `{"url":"ftp://example.com/x"}`} {
		req := httptest.NewRequest(http.MethodPost, "/add_video", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		w, body := serve(t, r, req)
		assert.Equal(t, http.StatusBadRequest, w.Code, payload)
		assert.Equal(t, "error", body["status"], payload)
	}
}

func TestAddVideoUpstreamFailure(t *testing.T) {
	source := test.NewFakeRecordSource()
	source.FailCreates(errors.New("notion: 502 bad gateway"))
	r := newRouter(&fakeAnalyzer{}, source)

	req := httptest.NewRequest(http.MethodPost, "/add_video", strings.NewReader(`{"url":"https://youtu.be/x"}`))
	req.Header.Set("Content-Type", "application/json")
	w, body := serve(t, r, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "error", body["status"])
	assert.Contains(t, body["detail"], "502")
}

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

// Package api contains the HTTP routes of the server.
//
// Routes:
//   - GET  /health: Liveness plus the active proxy, providers and cache TTL.
//   - GET  /analyze_video?video_id=: Runs the analysis workflow for one video.
//   - GET  /fetch_video_list: Returns the video catalog, cached.
//   - POST /add_video: Adds a video URL to the catalog.
//
// Failures are reported in the body as {"status": "error", ...}; only
// malformed requests and failed writes change the HTTP status.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jaycherian/gcp-go-video-insights/internal/core/classify"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/services"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/workflow"
)

const (
	statusOK      = "ok"
	statusSuccess = "success"
	statusError   = "error"
)

// Analyzer runs the analysis of a single video.
type Analyzer interface {
	AnalyzeVideo(ctx context.Context, videoID string) *workflow.Outcome
}

// Catalog serves and extends the video catalog.
type Catalog interface {
	List(ctx context.Context, forceRefresh bool) ([]*model.VideoRecord, error)
	Add(ctx context.Context, rawURL string) (*model.VideoRecord, error)
	TTL() time.Duration
}

// HealthInfo is the static part of the health report.
type HealthInfo struct {
	Proxy     string
	Providers []string
}

// Handlers binds the routes to their backing services.
type Handlers struct {
	analyzer Analyzer
	catalog  Catalog
	health   HealthInfo
}

func NewHandlers(analyzer Analyzer, catalog Catalog, health HealthInfo) *Handlers {
	if health.Providers == nil {
		health.Providers = make([]string, 0)
	}
	return &Handlers{analyzer: analyzer, catalog: catalog, health: health}
}

// Register adds every route to r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/analyze_video", h.AnalyzeVideo)
	r.GET("/fetch_video_list", h.FetchVideoList)
	r.POST("/add_video", h.AddVideo)
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            statusOK,
		"message":           "backend service is running",
		"proxy":             h.health.Proxy,
		"providers":         h.health.Providers,
		"cache_ttl_seconds": int(h.catalog.TTL().Seconds()),
	})
}

func (h *Handlers) AnalyzeVideo(c *gin.Context) {
	videoID := strings.TrimSpace(c.Query("video_id"))
	if videoID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  statusError,
			"code":    "INVALID_REQUEST",
			"message": "the video_id query parameter is required",
		})
		return
	}

	out := h.analyzer.AnalyzeVideo(c.Request.Context(), videoID)
	if out.Status != workflow.StatusSuccess {
		classified := out.Error
		if classified == nil {
			classified = classify.New(classify.NetworkOrUnknown, "")
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  statusError,
			"code":    classified.Code(),
			"message": classified.Message,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    statusSuccess,
		"ai_result": out.Result,
		"fallback":  out.Fallback,
	})
}

func (h *Handlers) FetchVideoList(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("force_refresh", "false"))

	records, err := h.catalog.List(c.Request.Context(), force)
	if err != nil {
		var classified *classify.ClassifiedError
		if !errors.As(err, &classified) {
			classified = classify.New(classify.StoreUnavailable, err.Error())
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  statusError,
			"code":    classified.Code(),
			"message": classified.Message,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": statusSuccess,
		"count":  len(records),
		"data":   records,
	})
}

type addVideoRequest struct {
	URL string `json:"url" binding:"required"`
}

func (h *Handlers) AddVideo(c *gin.Context) {
	var req addVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  statusError,
			"message": "request body must be {\"url\": \"...\"}",
			"detail":  err.Error(),
		})
		return
	}

	record, err := h.catalog.Add(c.Request.Context(), req.URL)
	if errors.Is(err, services.ErrInvalidURL) {
		c.JSON(http.StatusBadRequest, gin.H{
			"status":  statusError,
			"message": "the url must be an absolute http(s) URL",
			"detail":  err.Error(),
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":  statusError,
			"message": "failed to add the video to the catalog",
			"detail":  classify.Truncate(err.Error(), classify.DetailLimit),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": statusSuccess,
		"data":   record,
	})
}

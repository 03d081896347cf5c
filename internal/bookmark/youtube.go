package bookmark

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const youtubeSearchURL = "https://www.googleapis.com/youtube/v3/search"

// YouTube searches videos with the YouTube Data API.
type YouTube struct {
	apiKey     string
	endpoint   string
	maxResults int
	client     *http.Client
	logger     *zap.Logger
}

// NewYouTube creates a YouTube search client.
func NewYouTube(apiKey string, timeout time.Duration, maxResults int, logger *zap.Logger) *YouTube {
	if maxResults <= 0 {
		maxResults = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YouTube{
		apiKey:     apiKey,
		endpoint:   youtubeSearchURL,
		maxResults: maxResults,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.Named("youtube"),
	}
}

type searchResponse struct {
	Items []struct {
		ID struct {
			VideoID string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title        string `json:"title"`
			ChannelTitle string `json:"channelTitle"`
		} `json:"snippet"`
	} `json:"items"`
}

// Search returns up to maxResults videos for query. Failures are logged and
// returned; callers may treat them as no results.
func (y *YouTube) Search(ctx context.Context, query string) ([]Video, error) {
	params := url.Values{}
	params.Set("part", "snippet")
	params.Set("q", query)
	params.Set("type", "video")
	params.Set("maxResults", strconv.Itoa(y.maxResults))
	params.Set("key", y.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, y.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		y.logger.Warn("search request failed", zap.Error(err))
		return nil, fmt.Errorf("search videos: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		y.logger.Warn("search returned error status", zap.Int("status", resp.StatusCode))
		return nil, fmt.Errorf("search videos: status %d", resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		y.logger.Warn("search response not decodable", zap.Error(err))
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	var videos []Video
	for _, item := range body.Items {
		if item.ID.VideoID == "" {
			continue
		}
		videos = append(videos, Video{
			ID:      item.ID.VideoID,
			Title:   item.Snippet.Title,
			Channel: item.Snippet.ChannelTitle,
		})
	}
	y.logger.Debug("search finished", zap.String("query", query), zap.Int("results", len(videos)))
	return videos, nil
}

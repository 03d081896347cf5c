package models

import (
	"bytes"
	"encoding/json"
)

// Confidence is the resolver's self-reported trust in a resolved URL.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ResolutionMethod names the tier that produced a bookmark URL.
type ResolutionMethod string

const (
	MethodDirectURL          ResolutionMethod = "direct_url"
	MethodDirectID           ResolutionMethod = "direct_id"
	MethodAPISearch          ResolutionMethod = "api_search"
	MethodConstructedSearch  ResolutionMethod = "constructed_search"
	MethodConstructedProfile ResolutionMethod = "constructed_profile"
	MethodFailed             ResolutionMethod = "failed"
)

// BookmarkCandidate is the oracle's description of on-screen content.
// Every field may be absent.
type BookmarkCandidate struct {
	Platform    *string `json:"platform"`
	Title       *string `json:"title"`
	Channel     *string `json:"channel"`
	Handle      *string `json:"handle"`
	VideoID     *string `json:"video_id"`
	URL         *string `json:"url"`
	Description *string `json:"description"`
	ContentType *string `json:"content_type"`
}

// UnmarshalJSON decodes each field on its own. Numbers keep their JSON text;
// any other non-string value is treated as absent.
func (c *BookmarkCandidate) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = BookmarkCandidate{
		Platform:    looseString(raw["platform"]),
		Title:       looseString(raw["title"]),
		Channel:     looseString(raw["channel"]),
		Handle:      looseString(raw["handle"]),
		VideoID:     looseString(raw["video_id"]),
		URL:         looseString(raw["url"]),
		Description: looseString(raw["description"]),
		ContentType: looseString(raw["content_type"]),
	}
	return nil
}

func looseString(data json.RawMessage) *string {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}
	switch c := data[0]; {
	case c == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		return &s
	case c == '-' || (c >= '0' && c <= '9'):
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return nil
		}
		s := n.String()
		return &s
	}
	return nil
}

// BookmarkResult is the candidate plus the resolved link.
type BookmarkResult struct {
	Platform    *string `json:"platform"`
	Title       *string `json:"title"`
	Channel     *string `json:"channel"`
	Handle      *string `json:"handle"`
	VideoID     *string `json:"video_id"`
	URL         *string `json:"url"`
	Description *string `json:"description"`
	ContentType *string `json:"content_type"`

	ResolvedURL *string           `json:"resolved_url"`
	Confidence  Confidence        `json:"confidence"`
	Method      ResolutionMethod  `json:"method"`
	Extras      map[string]string `json:"extras"`
}

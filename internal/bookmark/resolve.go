// Package bookmark turns the oracle's description of on-screen content into a
// link the user can open later.
package bookmark

import (
	"context"
	"net/url"
	"strings"

	"github.com/fentz26/doit/internal/models"
)

// MinSimilarity is the title overlap below which a search hit is low confidence.
const MinSimilarity = 0.3

// Video is one video search hit.
type Video struct {
	ID      string
	Title   string
	Channel string
}

// Searcher finds videos by free text.
type Searcher interface {
	Search(ctx context.Context, query string) ([]Video, error)
}

// Resolve picks a URL for the candidate using the first tier that applies:
// a direct URL, then platform-specific construction. A nil searcher disables
// video search.
func Resolve(ctx context.Context, c models.BookmarkCandidate, searcher Searcher) models.BookmarkResult {
	res := models.BookmarkResult{
		Platform:    c.Platform,
		Title:       c.Title,
		Channel:     c.Channel,
		Handle:      c.Handle,
		VideoID:     c.VideoID,
		URL:         c.URL,
		Description: c.Description,
		ContentType: c.ContentType,
		Confidence:  models.ConfidenceLow,
		Method:      models.MethodFailed,
		Extras:      map[string]string{},
	}
	resolved := func(link string, conf models.Confidence, method models.ResolutionMethod) models.BookmarkResult {
		res.ResolvedURL = &link
		res.Confidence = conf
		res.Method = method
		return res
	}

	link := value(c.URL)
	if strings.HasPrefix(link, "http") {
		return resolved(link, models.ConfidenceHigh, models.MethodDirectURL)
	}

	title := value(c.Title)
	channel := value(c.Channel)
	handle := strings.TrimLeft(value(c.Handle), "@")

	switch strings.ToLower(value(c.Platform)) {
	case "youtube":
		if strings.Contains(link, "youtube.com/") || strings.Contains(link, "youtu.be/") {
			return resolved(link, models.ConfidenceHigh, models.MethodDirectURL)
		}
		if id := value(c.VideoID); id != "" {
			return resolved(WatchURL(id), models.ConfidenceHigh, models.MethodDirectID)
		}
		if title != "" && searcher != nil {
			query, conf := title, models.ConfidenceMedium
			if channel != "" {
				query, conf = title+" "+channel, models.ConfidenceHigh
			}
			videos, _ := searcher.Search(ctx, query)
			if len(videos) > 0 {
				best, score := videos[0], Similarity(videos[0].Title, title)
				for _, v := range videos[1:] {
					if s := Similarity(v.Title, title); s > score {
						best, score = v, s
					}
				}
				if score < MinSimilarity {
					conf = models.ConfidenceLow
				}
				return resolved(WatchURL(best.ID), conf, models.MethodAPISearch)
			}
		}

	case "x", "twitter":
		if handle != "" && title != "" {
			query := "from:" + handle + " " + firstWords(title, 8)
			return resolved("https://x.com/search?q="+Quote(query)+"&f=top", models.ConfidenceMedium, models.MethodConstructedSearch)
		}
		if handle != "" {
			return resolved("https://x.com/"+handle, models.ConfidenceLow, models.MethodConstructedProfile)
		}

	case "instagram":
		username := handle
		if username == "" {
			username = channel
		}
		username = cleanUsername(username)
		if username == "" {
			break
		}
		profile := "https://www.instagram.com/" + username + "/"
		caption := title
		if caption == "" {
			caption = value(c.Description)
		}
		if caption != "" {
			query := username + " " + firstWords(caption, 6)
			res.Extras["search_url"] = "https://www.instagram.com/explore/search/keyword/?q=" + Quote(query)
			return resolved(profile, models.ConfidenceMedium, models.MethodConstructedProfile)
		}
		return resolved(profile, models.ConfidenceLow, models.MethodConstructedProfile)
	}

	return res
}

// Similarity is the word overlap of two titles: the size of the intersection
// of their lowercase word sets over the size of the larger set. It is 0 when
// either title has no words.
func Similarity(a, b string) float64 {
	wa, wb := wordSet(a), wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	shared := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			shared++
		}
	}
	return float64(shared) / float64(max(len(wa), len(wb)))
}

// WatchURL returns the canonical watch page of a video.
func WatchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

// Quote percent-encodes s for use in a query value, with spaces as %20 and
// slashes left as is.
func Quote(s string) string {
	q := url.QueryEscape(s)
	q = strings.ReplaceAll(q, "+", "%20")
	return strings.ReplaceAll(q, "%2F", "/")
}

func wordSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = struct{}{}
	}
	return set
}

func firstWords(s string, n int) string {
	words := strings.Fields(s)
	if len(words) > n {
		words = words[:n]
	}
	return strings.Join(words, " ")
}

// cleanUsername trims accessibility noise such as "name's profile".
func cleanUsername(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\''); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	return s
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package models

import "encoding/json"

// Goals is a free-form user profile: interests, target split, current score and
// the zone-out lists tracked for the user.
type Goals map[string]any

// StringList returns the string list stored under key. Clients sometimes store
// lists JSON-encoded inside a string; both forms are accepted. Anything else
// yields nil.
func (g Goals) StringList(key string) []string {
	raw, ok := g[key]
	if !ok || raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		var out []string
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil
		}
		return out
	}
	return nil
}

// ZoneOutProfile returns the previously tracked zone-out lists held in the goals.
func (g Goals) ZoneOutProfile() ZoneOutProfile {
	return ZoneOutProfile{
		Content:  g.StringList("content_zone_outs"),
		Behavior: g.StringList("behavior_zone_outs"),
	}
}

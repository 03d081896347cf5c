package models

// BlobRef points at an object in the evidence blob store.
type BlobRef struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
}

// Capture is one screen image plus optional accessibility metadata.
type Capture struct {
	Key         string  `json:"key"`
	Image       BlobRef `json:"image"`
	Metadata    BlobRef `json:"metadata,omitempty"`
	HasMetadata bool    `json:"has_metadata"`
}

// EvidenceSet is the ordered evidence found under one location.
// Captures are in chronological (key) order.
type EvidenceSet struct {
	Prefix     string    `json:"prefix"`
	Captures   []Capture `json:"captures"`
	SessionLog string    `json:"session_log,omitempty"`
	// Unpaired lists capture keys that have an image but no metadata.
	Unpaired []string `json:"unpaired,omitempty"`
	// Skipped lists blob names that matched no evidence kind.
	Skipped []string `json:"skipped,omitempty"`
	// Duplicates lists image blobs whose capture key was already taken by an
	// earlier blob in name order.
	Duplicates []string `json:"duplicates,omitempty"`
	// Blobs is every object listed under the prefix; the set deleted after success.
	Blobs []string `json:"blobs,omitempty"`
}

// Batch is a contiguous run of captures submitted in one oracle call.
type Batch struct {
	Index int `json:"index"`
	// Offset is the position of the first capture within the whole set.
	Offset     int       `json:"offset"`
	Captures   []Capture `json:"captures"`
	SessionLog string    `json:"session_log,omitempty"`
}

// Keys returns the capture keys of the batch in order.
func (b Batch) Keys() []string {
	keys := make([]string, len(b.Captures))
	for i, c := range b.Captures {
		keys[i] = c.Key
	}
	return keys
}

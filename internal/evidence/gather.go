// Package evidence turns the blobs under an evidence location into an ordered
// EvidenceSet and plans the oracle batches over it.
package evidence

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/fentz26/doit/internal/blobstore"
	"github.com/fentz26/doit/internal/models"
)

// Evidence file naming.
const (
	SessionLogName = "session.log"
	MetaSuffix     = "_meta.txt"
)

// Kind is the classification of one evidence blob.
type Kind int

const (
	KindSkipped Kind = iota
	KindImage
	KindMetadata
	KindSessionLog
)

var imageExts = map[string]bool{
	".webp": true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Classify decides what a blob is from its file name and content type, and
// returns the capture key it belongs to for images and metadata.
func Classify(b blobstore.Blob) (Kind, string) {
	if strings.HasSuffix(b.Name, "/") {
		return KindSkipped, ""
	}
	base := path.Base(b.Name)
	switch {
	case base == SessionLogName:
		return KindSessionLog, ""
	case strings.HasSuffix(base, MetaSuffix):
		return KindMetadata, strings.TrimSuffix(base, MetaSuffix)
	case strings.HasPrefix(b.ContentType, "image/") || imageExts[strings.ToLower(path.Ext(base))]:
		return KindImage, strings.TrimSuffix(base, path.Ext(base))
	}
	return KindSkipped, ""
}

// Location normalizes an evidence location into a listing prefix.
func Location(location string) string {
	location = strings.TrimLeft(strings.TrimSpace(location), "/")
	if location != "" && !strings.HasSuffix(location, "/") {
		location += "/"
	}
	return location
}

// Gather lists the blobs under location and assembles the evidence set. The
// session log text is downloaded; image and metadata bodies are not. When two
// images share a key the first in name order is used.
func Gather(ctx context.Context, blobs blobstore.Store, location string) (*models.EvidenceSet, error) {
	prefix := Location(location)
	listed, err := blobs.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	sort.Slice(listed, func(i, j int) bool { return listed[i].Name < listed[j].Name })

	set := &models.EvidenceSet{Prefix: prefix}
	images := make(map[string]blobstore.Blob)
	metas := make(map[string]blobstore.Blob)
	var sessionLog *blobstore.Blob

	for _, b := range listed {
		set.Blobs = append(set.Blobs, b.Name)
		kind, key := Classify(b)
		switch kind {
		case KindSessionLog:
			b := b
			sessionLog = &b
		case KindMetadata:
			metas[key] = b
		case KindImage:
			if _, taken := images[key]; taken {
				set.Duplicates = append(set.Duplicates, b.Name)
				continue
			}
			images[key] = b
		default:
			set.Skipped = append(set.Skipped, b.Name)
		}
	}

	keys := make([]string, 0, len(images))
	for k := range images {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return KeyLess(keys[i], keys[j]) })

	for _, k := range keys {
		img := images[k]
		c := models.Capture{
			Key:   k,
			Image: models.BlobRef{Name: img.Name, ContentType: imageContentType(img)},
		}
		if meta, ok := metas[k]; ok {
			c.Metadata = models.BlobRef{Name: meta.Name, ContentType: "text/plain"}
			c.HasMetadata = true
		} else {
			set.Unpaired = append(set.Unpaired, k)
		}
		set.Captures = append(set.Captures, c)
	}

	if sessionLog != nil {
		data, err := blobs.Download(ctx, sessionLog.Name)
		if err != nil {
			return nil, fmt.Errorf("download session log: %w", err)
		}
		set.SessionLog = string(data)
	}

	return set, nil
}

func imageContentType(b blobstore.Blob) string {
	if strings.HasPrefix(b.ContentType, "image/") {
		return b.ContentType
	}
	return blobstore.ContentType(b.Name)
}

package evidence

import (
	"errors"
	"sort"

	"github.com/fentz26/doit/internal/models"
)

// DefaultBatchSize bounds the captures sent in one oracle call.
const DefaultBatchSize = 15

// ErrNoCaptures is returned when there is nothing to plan.
var ErrNoCaptures = errors.New("evidence set has no captures")

// Plan splits the captures into consecutive batches of at most size
// captures, in key order. Only the first batch carries the session log.
func Plan(set *models.EvidenceSet, size int) ([]models.Batch, error) {
	if set == nil || len(set.Captures) == 0 {
		return nil, ErrNoCaptures
	}
	if size <= 0 {
		size = DefaultBatchSize
	}

	captures := make([]models.Capture, len(set.Captures))
	copy(captures, set.Captures)
	sort.SliceStable(captures, func(i, j int) bool { return KeyLess(captures[i].Key, captures[j].Key) })

	batches := make([]models.Batch, 0, (len(captures)+size-1)/size)
	for offset := 0; offset < len(captures); offset += size {
		end := offset + size
		if end > len(captures) {
			end = len(captures)
		}
		b := models.Batch{
			Index:    len(batches),
			Offset:   offset,
			Captures: captures[offset:end:end],
		}
		if b.Index == 0 {
			b.SessionLog = set.SessionLog
		}
		batches = append(batches, b)
	}
	return batches, nil
}

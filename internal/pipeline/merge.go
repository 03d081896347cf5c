package pipeline

import (
	"fmt"

	"github.com/fentz26/doit/internal/oracle"
)

// MergeParts lays out the raw batch outputs for the merge call, in
// submission order and unmodified.
func MergeParts(raws []string) []oracle.Part {
	parts := make([]oracle.Part, 0, len(raws))
	for i, raw := range raws {
		parts = append(parts, oracle.TextPart(fmt.Sprintf("\n=== BATCH %d ===\n%s\n", i+1, raw)))
	}
	return parts
}

// Package zoneout corrects the zone-out profile proposed by the oracle
// against what the user tracked last period and what was observed this one.
package zoneout

import (
	"sort"

	"github.com/fentz26/doit/internal/models"
)

type set map[string]struct{}

func newSet(lists ...[]string) set {
	s := make(set)
	for _, l := range lists {
		for _, p := range l {
			if p != "" {
				s[p] = struct{}{}
			}
		}
	}
	return s
}

func (s set) has(p string) bool {
	_, ok := s[p]
	return ok
}

func (s set) add(p string) {
	s[p] = struct{}{}
}

func (s set) sorted() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Reconcile returns the corrected profile. Previously tracked patterns
// (previous content and behavior lists) are trusted over the oracle: each ends
// up persistent when observed this period and resolved otherwise. Patterns
// the oracle proposes that were not tracked can only be emerging. The content
// and behavior lists of the result cover exactly persistent and emerging.
func Reconcile(proposed, previous models.ZoneOutProfile, observed []models.ZoneOutEvent) models.ZoneOutProfile {
	inputContent := newSet(previous.Content)
	inputBehavior := newSet(previous.Behavior)
	inputAll := newSet(previous.Content, previous.Behavior)

	observedContent, observedBehavior := make(set), make(set)
	for _, e := range observed {
		if e.Pattern == "" {
			continue
		}
		switch e.Type {
		case models.ZoneOutContent:
			observedContent.add(e.Pattern)
		case models.ZoneOutBehavior:
			observedBehavior.add(e.Pattern)
		}
	}
	observedAll := newSet(observedContent.sorted(), observedBehavior.sorted())

	persistent, emerging, resolved := make(set), make(set), make(set)

	// Tracked patterns follow this period's observations.
	track := func(p string) {
		if observedAll.has(p) {
			persistent.add(p)
		} else {
			resolved.add(p)
		}
	}

	for _, p := range newSet(proposed.Persistent).sorted() {
		if !inputAll.has(p) {
			emerging.add(p)
		} else {
			track(p)
		}
	}
	for _, p := range newSet(proposed.Emerging).sorted() {
		if inputAll.has(p) {
			track(p)
		} else {
			emerging.add(p)
		}
	}
	for _, p := range newSet(proposed.Resolved).sorted() {
		if inputAll.has(p) {
			track(p)
		}
	}
	for p := range inputAll {
		if persistent.has(p) || resolved.has(p) || emerging.has(p) {
			continue
		}
		track(p)
	}

	proposedContent := newSet(proposed.Content)
	proposedBehavior := newSet(proposed.Behavior)
	content, behavior := make(set), make(set)
	for _, p := range append(persistent.sorted(), emerging.sorted()...) {
		switch {
		case inputContent.has(p):
			content.add(p)
		case inputBehavior.has(p):
			behavior.add(p)
		case observedContent.has(p):
			content.add(p)
		case observedBehavior.has(p):
			behavior.add(p)
		case proposedContent.has(p):
			content.add(p)
		case proposedBehavior.has(p):
			behavior.add(p)
		default:
			content.add(p)
		}
	}

	return models.ZoneOutProfile{
		Content:    content.sorted(),
		Behavior:   behavior.sorted(),
		Emerging:   emerging.sorted(),
		Persistent: persistent.sorted(),
		Resolved:   resolved.sorted(),
	}
}

// Normalize returns p with every list sorted and non-nil, so profiles can be
// compared field by field.
func Normalize(p models.ZoneOutProfile) models.ZoneOutProfile {
	return models.ZoneOutProfile{
		Content:    newSet(p.Content).sorted(),
		Behavior:   newSet(p.Behavior).sorted(),
		Emerging:   newSet(p.Emerging).sorted(),
		Persistent: newSet(p.Persistent).sorted(),
		Resolved:   newSet(p.Resolved).sorted(),
	}
}

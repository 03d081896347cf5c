package zoneout

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/fentz26/doit/internal/models"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestReconcile_RageBaitNotObservedIsResolved(t *testing.T) {
	previous := models.ZoneOutProfile{Content: []string{"rage_bait"}, Behavior: []string{}}
	proposed := models.ZoneOutProfile{
		Content:    []string{"rage_bait"},
		Persistent: []string{"rage_bait"},
	}

	got := Reconcile(proposed, previous, nil)

	want := models.ZoneOutProfile{
		Content:    []string{},
		Behavior:   []string{},
		Emerging:   []string{},
		Persistent: []string{},
		Resolved:   []string{"rage_bait"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_Rules(t *testing.T) {
	previous := models.ZoneOutProfile{
		Content:  []string{"rage_bait", "celebrity_gossip", "forgotten"},
		Behavior: []string{"doomscrolling", "late_night"},
	}
	observed := []models.ZoneOutEvent{
		{Pattern: "rage_bait", Type: "content"},
		{Pattern: "doomscrolling", Type: "behavior"},
		{Pattern: "forgotten", Type: "content"},
		{Pattern: "new_habit", Type: "behavior"},
		{Pattern: "celebrity_gossip", Type: "unknown"},
	}
	proposed := models.ZoneOutProfile{
		Content:    []string{"rage_bait", "fresh_thing"},
		Behavior:   []string{"doomscrolling"},
		Persistent: []string{"rage_bait", "new_habit", "late_night"},
		Emerging:   []string{"doomscrolling", "fresh_thing"},
		Resolved:   []string{"celebrity_gossip", "never_tracked"},
	}

	got := Reconcile(proposed, previous, observed)

	want := models.ZoneOutProfile{
		// fresh_thing takes the oracle's placement, new_habit its observed type.
		Content:  []string{"forgotten", "fresh_thing", "rage_bait"},
		Behavior: []string{"doomscrolling", "new_habit"},
		// Rule 1: untracked persistent becomes emerging.
		Emerging: []string{"fresh_thing", "new_habit"},
		// Rule 2: tracked emerging and observed stays persistent; rule 4 adds forgotten.
		Persistent: []string{"doomscrolling", "forgotten", "rage_bait"},
		// Rule 1: late_night not observed; rule 3: never_tracked dropped.
		// celebrity_gossip was only observed with an unknown type.
		Resolved: []string{"celebrity_gossip", "late_night"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("profile mismatch (-want +got):\n%s", diff)
	}
}

func TestReconcile_DefaultTypeIsContent(t *testing.T) {
	got := Reconcile(models.ZoneOutProfile{Emerging: []string{"mystery"}}, models.ZoneOutProfile{}, nil)
	assert.Equal(t, []string{"mystery"}, got.Content)
	assert.Empty(t, got.Behavior)
}

func TestReconcile_PreviousTypeWins(t *testing.T) {
	previous := models.ZoneOutProfile{Behavior: []string{"shorts"}}
	observed := []models.ZoneOutEvent{{Pattern: "shorts", Type: "content"}}
	proposed := models.ZoneOutProfile{Content: []string{"shorts"}, Persistent: []string{"shorts"}}

	got := Reconcile(proposed, previous, observed)
	assert.Equal(t, []string{"shorts"}, got.Behavior)
	assert.Empty(t, got.Content)
}

func TestReconcile_StablePersistentIsIdempotent(t *testing.T) {
	previous := models.ZoneOutProfile{Content: []string{"rage_bait"}}
	observed := []models.ZoneOutEvent{{Pattern: "rage_bait", Type: "content"}}
	proposed := models.ZoneOutProfile{Content: []string{"rage_bait"}, Persistent: []string{"rage_bait"}}

	first := Reconcile(proposed, previous, observed)
	assert.Equal(t, []string{"rage_bait"}, first.Persistent)

	second := Reconcile(first, previous, observed)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("re-reconciliation changed the profile (-first +second):\n%s", diff)
	}
}

func TestReconcile_IgnoresEmptyPatterns(t *testing.T) {
	got := Reconcile(models.ZoneOutProfile{Persistent: []string{""}, Emerging: []string{""}}, models.ZoneOutProfile{}, []models.ZoneOutEvent{{Pattern: ""}})
	assert.Empty(t, got.Persistent)
	assert.Empty(t, got.Emerging)
	assert.Empty(t, got.Content)
}

func randomSubset(rng *rand.Rand, pool []string) []string {
	var out []string
	for _, p := range pool {
		if rng.Intn(3) == 0 {
			out = append(out, p)
		}
	}
	return out
}

// Partition and coverage hold for arbitrary inputs.
func TestReconcile_PartitionProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pool := make([]string, 12)
	for i := range pool {
		pool[i] = fmt.Sprintf("p%d", i)
	}
	types := []string{"content", "behavior", "other"}

	for iter := 0; iter < 500; iter++ {
		previous := models.ZoneOutProfile{Content: randomSubset(rng, pool), Behavior: randomSubset(rng, pool)}
		proposed := models.ZoneOutProfile{
			Content:    randomSubset(rng, pool),
			Behavior:   randomSubset(rng, pool),
			Persistent: randomSubset(rng, pool),
			Emerging:   randomSubset(rng, pool),
			Resolved:   randomSubset(rng, pool),
		}
		var observed []models.ZoneOutEvent
		for _, p := range randomSubset(rng, pool) {
			observed = append(observed, models.ZoneOutEvent{Pattern: p, Type: types[rng.Intn(len(types))]})
		}

		got := Reconcile(proposed, previous, observed)

		persistent, emerging, resolved := newSet(got.Persistent), newSet(got.Emerging), newSet(got.Resolved)
		for p := range persistent {
			if emerging.has(p) || resolved.has(p) {
				t.Fatalf("iter %d: %s in more than one class: %+v", iter, p, got)
			}
		}
		for p := range emerging {
			if resolved.has(p) {
				t.Fatalf("iter %d: %s both emerging and resolved: %+v", iter, p, got)
			}
		}
		for p := range newSet(previous.Content, previous.Behavior) {
			if persistent.has(p) == resolved.has(p) {
				t.Fatalf("iter %d: tracked %s not in exactly one of persistent/resolved: %+v", iter, p, got)
			}
		}

		active := newSet(got.Persistent, got.Emerging)
		typed := newSet(got.Content, got.Behavior)
		if diff := cmp.Diff(active.sorted(), typed.sorted()); diff != "" {
			t.Fatalf("iter %d: content+behavior != persistent+emerging:\n%s", iter, diff)
		}
		for _, p := range got.Content {
			if newSet(got.Behavior).has(p) {
				t.Fatalf("iter %d: %s typed twice", iter, p)
			}
		}
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize(models.ZoneOutProfile{Persistent: []string{"b", "a", "b"}})
	assert.Equal(t, []string{"a", "b"}, got.Persistent)
	assert.NotNil(t, got.Content)
}

package compliance

import (
	"testing"

	"tallybot/internal/registry"
)

func ref(id int64) registry.UserRef { return registry.UserRef{ID: id} }

func TestEvaluatePartition(t *testing.T) {
	t.Parallel()
	required := []registry.UserRef{ref(3), ref(1), ref(2)}
	reporters := map[int64]registry.UserRef{
		2: {ID: 2, Handle: "bob"},
		3: {ID: 3},
		9: {ID: 9, Handle: "stranger"}, // not required, ignored
	}

	res := Evaluate(required, reporters)

	if len(res.Reported) != 2 || res.Reported[0].ID != 2 || res.Reported[1].ID != 3 {
		t.Fatalf("unexpected reported: %+v", res.Reported)
	}
	if len(res.Missing) != 1 || res.Missing[0].ID != 1 {
		t.Fatalf("unexpected missing: %+v", res.Missing)
	}

	// Union covers required, intersection is empty.
	seen := map[int64]int{}
	for _, u := range res.Reported {
		seen[u.ID]++
	}
	for _, u := range res.Missing {
		seen[u.ID]++
	}
	if len(seen) != len(required) {
		t.Fatalf("partition does not cover required set: %v", seen)
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("user %d appears %d times across halves", id, n)
		}
	}
}

func TestEvaluateSnapshotPrecedence(t *testing.T) {
	t.Parallel()
	required := []registry.UserRef{{ID: 1, Name: "Configured", Handle: "configured"}}

	// Submitted fields win over configured ones.
	res := Evaluate(required, map[int64]registry.UserRef{1: {ID: 1, Name: "Submitted", Handle: "submitted"}})
	if got := res.Reported[0]; got.Name != "Submitted" || got.Handle != "submitted" {
		t.Fatalf("snapshot should take precedence, got %+v", got)
	}

	// Empty snapshot fields fall back to configured identity.
	res = Evaluate(required, map[int64]registry.UserRef{1: {ID: 1}})
	if got := res.Reported[0]; got.Name != "Configured" || got.Handle != "configured" {
		t.Fatalf("configured identity should backfill, got %+v", got)
	}
}

func TestEvaluateEmptyInputs(t *testing.T) {
	t.Parallel()
	res := Evaluate(nil, nil)
	if len(res.Reported) != 0 || len(res.Missing) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}

	// Empty required set means full compliance regardless of reporters.
	res = Evaluate(nil, map[int64]registry.UserRef{1: {ID: 1}})
	if len(res.Reported) != 0 || len(res.Missing) != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

func TestEvaluateOrdering(t *testing.T) {
	t.Parallel()
	required := []registry.UserRef{ref(5), ref(4), ref(9), ref(7)}
	reporters := map[int64]registry.UserRef{9: ref(9), 4: ref(4)}

	res := Evaluate(required, reporters)
	if res.Reported[0].ID != 4 || res.Reported[1].ID != 9 {
		t.Fatalf("reported not sorted: %+v", res.Reported)
	}
	if res.Missing[0].ID != 5 || res.Missing[1].ID != 7 {
		t.Fatalf("missing not sorted: %+v", res.Missing)
	}
}

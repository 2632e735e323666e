// Package compliance computes the reported/missing partition of a chat's
// required users for one deadline occurrence. It is a pure function of
// its inputs: no state, no I/O, no failure modes.
package compliance

import (
	"sort"

	"tallybot/internal/registry"
)

// Result partitions the required users. Reported ∪ Missing equals the
// required set and the two never overlap; both halves are sorted
// ascending by user ID.
type Result struct {
	Reported []registry.UserRef
	Missing  []registry.UserRef
}

// Evaluate splits required between those present in reporters and those
// absent. For the reported half the submitted identity wins over the
// configured one field by field (the snapshot reflects what the platform
// reported at submission time); the missing half necessarily keeps the
// configured identity.
func Evaluate(required []registry.UserRef, reporters map[int64]registry.UserRef) Result {
	var res Result
	for _, u := range required {
		snap, ok := reporters[u.ID]
		if !ok {
			res.Missing = append(res.Missing, u)
			continue
		}
		merged := u
		if snap.Handle != "" {
			merged.Handle = snap.Handle
		}
		if snap.Name != "" {
			merged.Name = snap.Name
		}
		res.Reported = append(res.Reported, merged)
	}
	sortByID(res.Reported)
	sortByID(res.Missing)
	return res
}

func sortByID(users []registry.UserRef) {
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
}

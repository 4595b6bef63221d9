package settings

import (
	"bytes"
	"encoding/json"
)

// Action describes what a merge did to one top-level key.
type Action string

const (
	ActionAdded     Action = "added"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
)

// Change is the effect of a merge on a single key.
type Change struct {
	Key    string `json:"key"`
	Action Action `json:"action"`
}

// Diff reports, in merged order, how each key of merged relates to
// existing. Values are compared after compaction so formatting differences
// do not count as updates.
func Diff(existing, merged *Settings) []Change {
	keys := merged.Keys()
	changes := make([]Change, 0, len(keys))
	for _, k := range keys {
		newVal, _ := merged.Get(k)
		oldVal, ok := existing.Get(k)
		switch {
		case !ok:
			changes = append(changes, Change{Key: k, Action: ActionAdded})
		case sameJSON(oldVal, newVal):
			changes = append(changes, Change{Key: k, Action: ActionUnchanged})
		default:
			changes = append(changes, Change{Key: k, Action: ActionUpdated})
		}
	}
	return changes
}

// Count returns how many changes carry the given action.
func Count(changes []Change, action Action) int {
	n := 0
	for _, c := range changes {
		if c.Action == action {
			n++
		}
	}
	return n
}

func sameJSON(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if json.Compact(&ca, a) != nil || json.Compact(&cb, b) != nil {
		return bytes.Equal(a, b)
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

package devicesync

import (
	"fmt"
	"reflect"
	"sort"
)

// updatedAtField is the per-record modification timestamp both sides carry.
const updatedAtField = "updated_at"

// Conflict reports one field that diverged between the local mutation and the
// server's current record. Conflicts are surfaced for explicit resolution,
// never auto-resolved: picking a winner silently would discard a concurrent
// edit.
type Conflict struct {
	Field  string `json:"field"`
	Local  any    `json:"local"`
	Server any    `json:"server"`
}

// DetectConflicts compares records field by field. Fields are only considered
// conflicting when the two records' updated_at timestamps differ; identical
// timestamps mean the records describe the same revision and any difference
// is representational. Timestamps are compared for inequality only, not
// ordered, so clock skew between devices cannot silently pick a winner.
func DetectConflicts(local, server map[string]any) []Conflict {
	if local == nil || server == nil {
		return nil
	}

	localTs, lok := local[updatedAtField]
	serverTs, sok := server[updatedAtField]
	if !lok || !sok || equalValue(localTs, serverTs) {
		return nil
	}

	fields := make([]string, 0, len(local))
	for f := range local {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	var conflicts []Conflict
	for _, f := range fields {
		if f == updatedAtField || f == "id" {
			continue
		}
		serverVal, ok := server[f]
		if !ok {
			continue
		}
		if !equalValue(local[f], serverVal) {
			conflicts = append(conflicts, Conflict{Field: f, Local: local[f], Server: serverVal})
		}
	}
	return conflicts
}

// equalValue compares loosely decoded JSON values; numbers are compared by
// their string form so int/float decodings of the same number match.
func equalValue(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

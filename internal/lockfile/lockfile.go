// Package lockfile regenerates the devcontainer feature lockfile with the
// devcontainer CLI and reports which features moved.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/obentoo/upkeep/internal/common/logger"
	"github.com/obentoo/upkeep/internal/report"
)

// Features maps a feature identifier to its normalized lock state
type Features map[string]report.FeatureEntry

// Normalize converts the "features" value of a lock document into Features.
// It accepts a mapping keyed by feature id or a list of objects carrying an
// "id". Anything else normalizes to empty.
func Normalize(features interface{}) Features {
	out := Features{}
	switch fs := features.(type) {
	case map[string]interface{}:
		for id, raw := range fs {
			if entry, ok := raw.(map[string]interface{}); ok {
				out[id] = normalizeEntry(entry)
			}
		}
	case []interface{}:
		for _, raw := range fs {
			entry, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			id, ok := entry["id"].(string)
			if !ok || id == "" {
				continue
			}
			out[id] = normalizeEntry(entry)
		}
	}
	return out
}

func normalizeEntry(entry map[string]interface{}) report.FeatureEntry {
	return report.FeatureEntry{
		Version:   field(entry, "version"),
		Resolved:  field(entry, "resolved"),
		Integrity: field(entry, "integrity"),
	}
}

func field(entry map[string]interface{}, key string) *string {
	switch v := entry[key].(type) {
	case nil:
		return nil
	case string:
		return &v
	default:
		s := fmt.Sprint(v)
		return &s
	}
}

// Diff returns one LockfileUpdate per feature whose normalized entry differs
// between old and new, in feature order. A side where the feature is absent
// is nil.
func Diff(old, new Features) []report.LockfileUpdate {
	ids := make([]string, 0, len(old)+len(new))
	for id := range old {
		ids = append(ids, id)
	}
	for id := range new {
		if _, ok := old[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	var changes []report.LockfileUpdate
	for _, id := range ids {
		prev, hadPrev := old[id]
		next, hasNext := new[id]
		if hadPrev && hasNext && equal(prev, next) {
			continue
		}
		change := report.LockfileUpdate{Feature: id}
		if hadPrev {
			change.Previous = &prev
		}
		if hasNext {
			change.Updated = &next
		}
		changes = append(changes, change)
	}
	return changes
}

func equal(a, b report.FeatureEntry) bool {
	return sameField(a.Version, b.Version) &&
		sameField(a.Resolved, b.Resolved) &&
		sameField(a.Integrity, b.Integrity)
}

func sameField(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Read loads and normalizes the lock document at path. A missing file is
// empty; malformed JSON is logged and treated as empty.
func Read(path string) (Features, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("Cannot read lockfile %s: %v", path, err)
		}
		return Features{}, false
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warn("Lockfile at %s is invalid JSON; treating as empty", path)
		return Features{}, true
	}
	features, ok := doc["features"]
	if !ok {
		return Features{}, true
	}
	switch features.(type) {
	case map[string]interface{}, []interface{}:
	default:
		logger.Warn("Lockfile at %s has unexpected features type %T; treating as empty", path, features)
	}
	return Normalize(features), true
}

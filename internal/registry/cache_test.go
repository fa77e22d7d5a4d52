package registry

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// **Feature: upstream-fetch, Property: Memoization is stable within a run**
func TestCacheMemoization(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("a stored entry is returned unchanged and other keys stay absent", prop.ForAll(
		func(key, tag string, nothing bool) bool {
			c := NewCache()
			var rel *ReleaseInfo
			if !nothing {
				rel = &ReleaseInfo{Tag: tag}
			}
			c.Set(key, CacheEntry{Release: rel})

			got, ok := c.Get(key)
			if !ok || got.Release != rel {
				return false
			}

			_, ok = c.Get(key + "-other")
			return !ok && c.Len() == 1
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

func TestCacheStats(t *testing.T) {
	c := NewCache()
	c.Get("npm:a")
	c.Set("npm:a", CacheEntry{Version: "1.0"})
	c.Get("npm:a")
	c.Get("npm:a")

	hits, misses := c.Stats()
	if hits != 2 || misses != 1 {
		t.Errorf("Stats() = %d hits, %d misses; want 2, 1", hits, misses)
	}
}

package maintenance

import (
	"context"

	"github.com/obentoo/upkeep/internal/allowlist"
	"github.com/obentoo/upkeep/internal/common/logger"
	"github.com/obentoo/upkeep/internal/registry"
)

// HomebrewVersion is the looked-up stable version of one Homebrew entry.
// Version is empty when the entry opts out of checks or the lookup failed.
type HomebrewVersion struct {
	Identifier string
	Formula    string
	Type       string
	Version    string
}

// HomebrewVersions looks up the current stable version of every entry in the
// Homebrew allowlist. Nothing is rewritten or reported.
func (e *Engine) HomebrewVersions(ctx context.Context) []HomebrewVersion {
	al := e.Allowlist(allowlist.Homebrew)
	var out []HomebrewVersion
	for _, entry := range al.Entries() {
		src, ok := entry.Source.(allowlist.HomebrewSource)
		if !ok {
			continue
		}
		hv := HomebrewVersion{Identifier: entry.Identifier, Formula: src.Formula, Type: src.Type()}
		if entry.SkipVersionCheck {
			logger.Debug("Skipping Homebrew version check for %s", entry.Identifier)
			out = append(out, hv)
			continue
		}

		q, _ := registry.HomebrewQueryFor(entry)
		version, err := e.registry.HomebrewVersion(ctx, q)
		if err != nil {
			logger.Warn("Could not determine Homebrew version for %s: %v", entry.Identifier, err)
		} else {
			logger.Info("Homebrew %s %s is at %s", hv.Type, src.Formula, version)
			hv.Version = version
		}
		out = append(out, hv)
	}
	return out
}

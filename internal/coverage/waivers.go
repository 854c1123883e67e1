package coverage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"tkb/internal/model"
)

// WaiversFile is the repo-level waiver registry, relative to the repo root.
const WaiversFile = ".tkb/waivers.toml"

type waiverDoc struct {
	Waiver []waiverEntry `toml:"waiver"`
}

type waiverEntry struct {
	Spec   string `toml:"spec"`
	AC     string `toml:"ac"`
	Owner  string `toml:"owner"`
	Reason string `toml:"reason"`
}

// LoadWaivers reads .tkb/waivers.toml. A missing file is an empty registry.
// Entries without an owner or reason are rejected: a waiver is a documented
// exemption, not a switch.
func LoadWaivers(repoRoot string) ([]model.Waiver, error) {
	path := filepath.Join(repoRoot, WaiversFile)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	var doc waiverDoc
	if _, err := toml.DecodeFile(path, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", WaiversFile, err)
	}

	waivers := make([]model.Waiver, 0, len(doc.Waiver))
	for i, e := range doc.Waiver {
		if e.Spec == "" || e.AC == "" {
			return nil, fmt.Errorf("%s: waiver %d missing spec or ac", WaiversFile, i+1)
		}
		if e.Owner == "" || e.Reason == "" {
			return nil, fmt.Errorf("%s: waiver for %s/%s missing owner or reason", WaiversFile, e.Spec, e.AC)
		}
		waivers = append(waivers, model.Waiver{
			SpecID: e.Spec, ACID: e.AC, Owner: e.Owner, Reason: e.Reason,
		})
	}
	return waivers, nil
}

// Package storage persists the memory stores: the three asset partitions,
// the facet cache and the append-only evolution log.
//
// Every whole-file write goes through a temp file in the target directory
// followed by a rename, so readers never observe a half-written store.
// The evolution log is only ever appended to.
package storage

import (
	"path/filepath"

	"github.com/madness-retro/madness/internal/types"
)

const (
	// GenesFile holds gene assets.
	GenesFile = "genes.json"

	// SOPsFile holds SOP assets.
	SOPsFile = "sops.json"

	// PrefsFile holds pref assets.
	PrefsFile = "prefs.json"

	// EvolutionFile is the append-only event log.
	EvolutionFile = "evolution.jsonl"

	// FacetsDir holds cached facets under the retro directory.
	FacetsDir = "facets"

	// ExportsDir holds portable exports under the memory directory.
	ExportsDir = "exports"

	// PortableFile is the portable export file name.
	PortableFile = "portable.json"

	// StateFile is the project state file under the retro directory.
	StateFile = "state.json"
)

// FileForType maps an asset type to its store file name.
func FileForType(t types.AssetType) string {
	switch t {
	case types.AssetGene:
		return GenesFile
	case types.AssetSOP:
		return SOPsFile
	case types.AssetPref:
		return PrefsFile
	}
	return string(t) + "s.json"
}

// IsStoreFile reports whether path names one of the asset store files or the
// evolution log.
func IsStoreFile(path string) bool {
	switch filepath.Base(path) {
	case GenesFile, SOPsFile, PrefsFile, EvolutionFile:
		return true
	}
	return false
}

package storage

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/madness-retro/madness/internal/types"
)

const (
	// PortableSchemaVersion versions the export document.
	PortableSchemaVersion = "1.0"

	// PortableConfidence is the confidence exported assets restart at in
	// the receiving project.
	PortableConfidence = 0.60

	// DefaultPortableMinConfidence is the default export cutoff.
	DefaultPortableMinConfidence = 0.70

	unknownProject = "unknown"
)

// PortableAsset is an exported asset with its confidence at export time.
type PortableAsset struct {
	*types.Asset
	OriginalConfidence float64
}

// MarshalJSON adds original_confidence to the asset's own encoding.
func (p PortableAsset) MarshalJSON() ([]byte, error) {
	data, err := encodeCompact(p.Asset)
	if err != nil {
		return nil, err
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	oc, err := json.Marshal(p.OriginalConfidence)
	if err != nil {
		return nil, err
	}
	obj["original_confidence"] = oc
	return encodeCompact(obj)
}

// PortableExport is the cross-project export document.
type PortableExport struct {
	SchemaVersion string                     `json:"schema_version"`
	ExportedAt    string                     `json:"exported_at"`
	SourceProject string                     `json:"source_project"`
	Assets        map[string][]PortableAsset `json:"assets"`
}

// ExportPortable collects active assets at or above minConfidence, resets
// them to provisional at PortableConfidence and writes the export document to
// <memory>/exports/portable.json. The stores themselves are not modified.
func (r *AssetRepository) ExportPortable(minConfidence float64, retroDir string) (*PortableExport, string, error) {
	export := &PortableExport{
		SchemaVersion: PortableSchemaVersion,
		ExportedAt:    r.now().UTC().Format(types.DateLayout),
		SourceProject: projectName(retroDir),
		Assets:        map[string][]PortableAsset{},
	}

	for _, t := range types.AssetTypes {
		key := string(t) + "s"
		export.Assets[key] = []PortableAsset{}

		assets, err := r.Load(t)
		if err != nil {
			return nil, "", err
		}
		for _, a := range assets {
			if a.Status != types.StatusActive || a.Confidence < minConfidence {
				continue
			}
			c := a.Clone()
			original := c.Confidence
			c.Confidence = PortableConfidence
			c.Status = types.StatusProvisional
			export.Assets[key] = append(export.Assets[key], PortableAsset{Asset: c, OriginalConfidence: original})
		}
	}

	target := filepath.Join(r.dir, ExportsDir, PortableFile)
	if err := WriteJSONAtomic(target, export); err != nil {
		return nil, "", err
	}
	return export, target, nil
}

// projectName reads project_name from <retro>/state.json.
func projectName(retroDir string) string {
	data, err := os.ReadFile(filepath.Join(retroDir, StateFile))
	if err != nil {
		return unknownProject
	}
	var state struct {
		ProjectName string `json:"project_name"`
	}
	if err := json.Unmarshal(data, &state); err != nil || state.ProjectName == "" {
		return unknownProject
	}
	return state.ProjectName
}

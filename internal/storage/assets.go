package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/madness-retro/madness/internal/types"
)

// wrapperKeys are the object keys older stores used to hold the asset list.
var wrapperKeys = []string{"items", "assets"}

// findOrder is the partition search order for lookups by ID.
var findOrder = []types.AssetType{types.AssetGene, types.AssetPref, types.AssetSOP}

// AssetRepository owns the gene, SOP and pref store files of one memory directory.
type AssetRepository struct {
	dir    string
	logger *zap.Logger
	events *EvolutionLog
	now    func() time.Time
}

// AssetOption configures an AssetRepository.
type AssetOption func(*AssetRepository)

// WithAssetLogger sets the logger used for skipped-file warnings.
func WithAssetLogger(l *zap.Logger) AssetOption {
	return func(r *AssetRepository) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithEvolutionLog makes Create and Update append their events to log.
func WithEvolutionLog(log *EvolutionLog) AssetOption {
	return func(r *AssetRepository) {
		r.events = log
	}
}

// WithAssetClock overrides the clock used for created_at and dates.
func WithAssetClock(now func() time.Time) AssetOption {
	return func(r *AssetRepository) {
		r.now = now
	}
}

// NewAssetRepository creates a repository rooted at memoryDir.
func NewAssetRepository(memoryDir string, opts ...AssetOption) *AssetRepository {
	r := &AssetRepository{
		dir:    memoryDir,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Dir returns the memory directory.
func (r *AssetRepository) Dir() string {
	return r.dir
}

// Path returns the store file for an asset type.
func (r *AssetRepository) Path(t types.AssetType) string {
	return filepath.Join(r.dir, FileForType(t))
}

// Load reads one partition. A missing file is an empty partition.
func (r *AssetRepository) Load(t types.AssetType) ([]*types.Asset, error) {
	path := r.Path(t)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	records, err := unwrapRecords(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	assets := make([]*types.Asset, 0, len(records))
	for i, rec := range records {
		a, err := types.DecodeAsset(rec, t)
		if err != nil {
			return nil, fmt.Errorf("parse %s record %d: %w", path, i, err)
		}
		assets = append(assets, a)
	}
	return assets, nil
}

// LoadAll reads every partition, keeping assets whose status is in statuses
// (all assets when none are given). An unreadable partition is logged and
// skipped so one corrupt file cannot stop a batch run.
func (r *AssetRepository) LoadAll(statuses ...types.Status) []*types.Asset {
	keep := make(map[types.Status]bool, len(statuses))
	for _, s := range statuses {
		keep[s] = true
	}

	var out []*types.Asset
	for _, t := range types.AssetTypes {
		assets, err := r.Load(t)
		if err != nil {
			r.logger.Warn("skipping unreadable asset store",
				zap.String("path", r.Path(t)), zap.Error(err))
			continue
		}
		for _, a := range assets {
			if len(keep) == 0 || keep[a.Status] {
				out = append(out, a)
			}
		}
	}
	return out
}

// Save replaces one partition atomically. When the existing file wraps its
// list in an object, the wrapper and its other keys are preserved.
func (r *AssetRepository) Save(t types.AssetType, assets []*types.Asset) error {
	path := r.Path(t)
	list := make([]*types.Asset, 0, len(assets))
	list = append(list, assets...)

	var payload any = list
	if existing, err := os.ReadFile(path); err == nil {
		if wrapper, key := detectWrapper(existing); wrapper != nil {
			encoded, err := MarshalIndent(list)
			if err != nil {
				return err
			}
			wrapper[key] = json.RawMessage(encoded)
			payload = wrapper
		}
	}

	if err := WriteJSONAtomic(path, payload); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

// Find looks an asset up by ID across partitions.
func (r *AssetRepository) Find(id string) (*types.Asset, error) {
	for _, t := range findOrder {
		assets, err := r.Load(t)
		if err != nil {
			return nil, err
		}
		for _, a := range assets {
			if a.ID == id {
				return a, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrAssetNotFound, id)
}

// Put replaces the stored asset with the same ID in its partition. The caller
// is responsible for version and status bookkeeping.
func (r *AssetRepository) Put(asset *types.Asset) error {
	assets, err := r.Load(asset.Type)
	if err != nil {
		return err
	}
	for i, a := range assets {
		if a.ID == asset.ID {
			assets[i] = asset
			return r.Save(asset.Type, assets)
		}
	}
	return fmt.Errorf("%w: %s", ErrAssetNotFound, asset.ID)
}

// Create stores a new asset built from draft. The ID is derived from the
// title and disambiguated within the partition; lifecycle fields start at
// their initial values regardless of what draft carries.
func (r *AssetRepository) Create(t types.AssetType, draft *types.Asset) (*types.Asset, error) {
	if draft.Title == "" {
		return nil, types.ErrTitleRequired
	}

	assets, err := r.Load(t)
	if err != nil {
		return nil, err
	}
	existing := make(map[string]bool, len(assets))
	for _, a := range assets {
		existing[a.ID] = true
	}

	today := r.now().UTC().Format(types.DateLayout)
	asset := draft.Clone()
	asset.ID = DedupeID(existing, Slugify(draft.Title))
	asset.Type = t
	asset.Version = 1
	asset.Confidence = types.InitialConfidence
	asset.Status = types.StatusForConfidence(types.InitialConfidence)
	asset.ValidatedCount = 1
	asset.FailedCount = 0
	asset.CreatedAt = today
	asset.LastValidated = today
	asset.LastFailed = nil
	if asset.Body == nil || asset.Body.Kind() != t {
		asset.Body = emptyBody(t)
	}

	if err := r.Save(t, append(assets, asset)); err != nil {
		return nil, err
	}

	r.record(types.EvolutionEvent{
		Event:     types.EventCreate,
		AssetID:   asset.ID,
		AssetType: t,
		Details:   map[string]any{"confidence": asset.Confidence},
	})
	return asset, nil
}

// AssetChange is a manual edit. Nil fields are left alone.
type AssetChange struct {
	Confidence *float64
	Status     *types.Status
}

// Update applies a manual edit. Status is always re-derived from confidence
// afterwards, so an explicit status that disagrees is overridden and the
// override is recorded as status_auto.
func (r *AssetRepository) Update(id string, change AssetChange) (*types.Asset, map[string]any, error) {
	asset, err := r.Find(id)
	if err != nil {
		return nil, nil, err
	}

	changes := map[string]any{}
	if change.Confidence != nil {
		next := types.ClampConfidence(*change.Confidence)
		changes["confidence"] = map[string]any{"from": asset.Confidence, "to": next}
		asset.Confidence = next
	}
	if change.Status != nil {
		changes["status"] = map[string]any{"from": asset.Status, "to": *change.Status}
		asset.Status = *change.Status
	}
	if derived := types.StatusForConfidence(asset.Confidence); asset.Status != derived {
		changes["status_auto"] = map[string]any{"from": asset.Status, "to": derived}
		asset.Status = derived
	}
	asset.Version++
	changes["version"] = asset.Version

	if err := r.Put(asset); err != nil {
		return nil, nil, err
	}

	r.record(types.EvolutionEvent{
		Event:     types.EventUpdate,
		AssetID:   asset.ID,
		AssetType: asset.Type,
		Details:   map[string]any{"changes": changes},
	})
	return asset, changes, nil
}

func (r *AssetRepository) record(e types.EvolutionEvent) {
	if r.events == nil {
		return
	}
	if _, err := r.events.Append(e); err != nil {
		r.logger.Warn("evolution append failed", zap.String("asset_id", e.AssetID), zap.Error(err))
	}
}

func emptyBody(t types.AssetType) types.Body {
	switch t {
	case types.AssetSOP:
		return types.SOPBody{}
	case types.AssetPref:
		return types.PrefBody{}
	default:
		return types.GeneBody{}
	}
}

// unwrapRecords accepts a bare list or an object holding the list under one
// of the wrapper keys.
func unwrapRecords(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var list []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, err
	}
	for _, key := range wrapperKeys {
		if raw, ok := obj[key]; ok {
			if err := json.Unmarshal(raw, &list); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			return list, nil
		}
	}
	return nil, errors.New("expected a list or an object with items or assets")
}

func detectWrapper(data []byte) (map[string]json.RawMessage, string) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ""
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, ""
	}
	for _, key := range wrapperKeys {
		if _, ok := obj[key]; ok {
			return obj, key
		}
	}
	return nil, ""
}

package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/madness-retro/madness/internal/types"
)

// facetPattern matches facet documents anywhere under the facets directory.
const facetPattern = "**/*.json"

// FacetValidator checks a raw facet document before it is cached.
type FacetValidator interface {
	Validate(data []byte) error
}

// FacetRepository owns the facet cache under <retro>/facets.
type FacetRepository struct {
	dir       string
	logger    *zap.Logger
	validator FacetValidator
}

// NewFacetRepository creates a repository for retroDir. validator may be nil,
// in which case Cache only checks that the document is JSON.
func NewFacetRepository(retroDir string, validator FacetValidator, logger *zap.Logger) *FacetRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FacetRepository{
		dir:       filepath.Join(retroDir, FacetsDir),
		logger:    logger,
		validator: validator,
	}
}

// Dir returns the facets directory.
func (r *FacetRepository) Dir() string {
	return r.dir
}

func (r *FacetRepository) files() ([]string, error) {
	if _, err := os.Stat(r.dir); os.IsNotExist(err) {
		return nil, nil
	}
	matches, err := doublestar.Glob(os.DirFS(r.dir), facetPattern)
	if err != nil {
		return nil, fmt.Errorf("glob facets: %w", err)
	}
	sort.Strings(matches)
	return matches, nil
}

// Load reads every cached facet dated on or after since (all when since is
// empty), in path order. Facets without a date are always kept. Unreadable
// and malformed files are logged and skipped.
func (r *FacetRepository) Load(since string) ([]types.Facet, error) {
	files, err := r.files()
	if err != nil {
		return nil, err
	}

	var out []types.Facet
	for _, rel := range files {
		full := filepath.Join(r.dir, filepath.FromSlash(rel))
		data, err := os.ReadFile(full)
		if err != nil {
			r.logger.Warn("skipping unreadable facet", zap.String("path", full), zap.Error(err))
			continue
		}
		facets, err := types.DecodeFacets(data)
		if err != nil {
			r.logger.Warn("skipping malformed facet", zap.String("path", full), zap.Error(err))
			continue
		}
		for _, f := range facets {
			if since != "" {
				if when := f.When(); when != "" && when < since {
					continue
				}
			}
			out = append(out, f)
		}
	}
	return out, nil
}

// Cache validates data and writes it as <session-id>.json. Re-caching the
// same session overwrites the previous document.
func (r *FacetRepository) Cache(sessionID string, data []byte) (string, error) {
	if strings.TrimSpace(sessionID) == "" {
		return "", ErrSessionIDRequired
	}
	if strings.ContainsAny(sessionID, `/\`) {
		return "", fmt.Errorf("invalid session ID %q", sessionID)
	}
	if r.validator != nil {
		if err := r.validator.Validate(data); err != nil {
			return "", err
		}
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return "", fmt.Errorf("parse facet: %w", err)
	}

	target := filepath.Join(r.dir, sessionID+".json")
	if err := WriteJSONAtomic(target, doc); err != nil {
		return "", err
	}
	return target, nil
}

// Cached returns the set of cached session IDs (facet file stems).
func (r *FacetRepository) Cached() (map[string]bool, error) {
	files, err := r.files()
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(files))
	for _, rel := range files {
		base := path.Base(rel)
		out[strings.TrimSuffix(base, path.Ext(base))] = true
	}
	return out, nil
}

// ListCached returns the cached session IDs in sorted order.
func (r *FacetRepository) ListCached() ([]string, error) {
	cached, err := r.Cached()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(cached))
	for id := range cached {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Uncached filters sessionIDs down to those without a cached facet,
// preserving input order.
func (r *FacetRepository) Uncached(sessionIDs []string) ([]string, error) {
	cached, err := r.Cached()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, id := range sessionIDs {
		if !cached[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

package main

import (
	"io"

	"go.uber.org/zap"

	"github.com/madness-retro/madness/internal/config"
	"github.com/madness-retro/madness/internal/formatter"
	"github.com/madness-retro/madness/internal/schema"
	"github.com/madness-retro/madness/internal/storage"
)

// environment is what every command needs after setup.
type environment struct {
	cfg     *config.Loaded
	logger  *zap.Logger
	format  formatter.Format
	palette *formatter.Palette

	root            string
	memoryDir       string
	retroDir        string
	instructionPath string
	transcriptsDir  string
}

var env *environment

func (e *environment) events() *storage.EvolutionLog {
	return storage.NewEvolutionLog(e.memoryDir)
}

// assets returns a repository that records create and update events.
func (e *environment) assets() *storage.AssetRepository {
	return storage.NewAssetRepository(e.memoryDir,
		storage.WithAssetLogger(e.logger),
		storage.WithEvolutionLog(e.events()))
}

func (e *environment) facets() *storage.FacetRepository {
	return storage.NewFacetRepository(e.retroDir, schema.NewValidator(), e.logger)
}

// render writes v as JSON/YAML, or calls table for table and markdown output.
func (e *environment) render(w io.Writer, v any, table func(io.Writer) error) error {
	if e.format.Structured() {
		return formatter.Encode(w, e.format, v)
	}
	return table(w)
}

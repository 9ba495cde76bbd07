// Package session validates assets against a single finished session.
//
// It runs unattended at session end, so Run never returns an error: every
// failure is logged and reported as "no result".
package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/madness-retro/madness/internal/match"
	"github.com/madness-retro/madness/internal/storage"
	"github.com/madness-retro/madness/internal/transcript"
	"github.com/madness-retro/madness/internal/types"
)

// Mode selects whether a run writes confidence changes.
type Mode string

const (
	ModeCheck  Mode = "check"
	ModeUpdate Mode = "update"
)

// ParseMode validates a mode name. Empty means check.
func ParseMode(raw string) (Mode, error) {
	switch Mode(raw) {
	case "", ModeCheck:
		return ModeCheck, nil
	case ModeUpdate:
		return ModeUpdate, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, raw)
}

// Options tunes the inline check. Deltas are deliberately smaller than the
// batch judgment deltas.
type Options struct {
	MinLength         int           `yaml:"min_length" json:"min_length"`
	TriggerThreshold  float64       `yaml:"trigger_threshold" json:"trigger_threshold"`
	CompliantRate     float64       `yaml:"compliant_rate" json:"compliant_rate"`
	NonCompliantRate  float64       `yaml:"non_compliant_rate" json:"non_compliant_rate"`
	PrefOverlapRatio  float64       `yaml:"pref_overlap_ratio" json:"pref_overlap_ratio"`
	CompliantDelta    float64       `yaml:"compliant_delta" json:"compliant_delta"`
	NonCompliantDelta float64       `yaml:"non_compliant_delta" json:"non_compliant_delta"`
	WarnThreshold     float64       `yaml:"warn_threshold" json:"warn_threshold"`
	ApplyTimeout      time.Duration `yaml:"apply_timeout" json:"apply_timeout"`
}

// DefaultOptions returns the stock inline settings.
func DefaultOptions() Options {
	return Options{
		MinLength:         500,
		TriggerThreshold:  0.50,
		CompliantRate:     0.5,
		NonCompliantRate:  0.2,
		PrefOverlapRatio:  0.3,
		CompliantDelta:    0.02,
		NonCompliantDelta: -0.05,
		WarnThreshold:     0.50,
		ApplyTimeout:      5 * time.Second,
	}
}

// Input names the session to validate.
type Input struct {
	// TranscriptPath is used when it points at an existing file.
	TranscriptPath string

	// TranscriptsDir and ProjectDir locate the latest transcript otherwise.
	TranscriptsDir string
	ProjectDir     string

	Mode Mode
}

// Result is the outcome of one inline run.
type Result struct {
	SessionDate     string      `json:"session_date" yaml:"session_date"`
	Transcript      string      `json:"transcript" yaml:"transcript"`
	TriggeredAssets []Triggered `json:"triggered_assets" yaml:"triggered_assets"`
	Summary         string      `json:"summary" yaml:"summary"`
	Warnings        []string    `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Validator runs the inline check against one memory directory.
type Validator struct {
	assets *storage.AssetRepository
	events *storage.EvolutionLog
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Validator. events may be nil when only check mode is used.
func New(assets *storage.AssetRepository, events *storage.EvolutionLog, opts Options, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		assets: assets,
		events: events,
		opts:   opts,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the clock used for the session date.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Run validates the session. It returns false when there is nothing to
// report, including on any failure; failures are logged, never returned.
func (v *Validator) Run(ctx context.Context, in Input) (res *Result, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("session validation panicked", zap.Any("panic", r))
			res, ok = nil, false
		}
	}()

	res, err := v.run(ctx, in)
	if err != nil {
		if skipped(err) {
			v.logger.Debug("session validation skipped", zap.Error(err))
		} else {
			v.logger.Warn("session validation failed", zap.Error(err))
		}
		return nil, false
	}
	return res, true
}

func skipped(err error) bool {
	return errors.Is(err, ErrSessionTooShort) ||
		errors.Is(err, ErrNoAssets) ||
		errors.Is(err, transcript.ErrNoTranscript) ||
		errors.Is(err, storage.ErrMemoryDirNotFound)
}

func (v *Validator) run(ctx context.Context, in Input) (*Result, error) {
	if info, err := os.Stat(v.assets.Dir()); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", storage.ErrMemoryDirNotFound, v.assets.Dir())
	}

	assets := v.assets.LoadAll(types.StatusActive, types.StatusProvisional)
	if len(assets) == 0 {
		return nil, ErrNoAssets
	}

	path, err := v.locate(in)
	if err != nil {
		return nil, err
	}
	text, err := transcript.ReadText(path)
	if err != nil {
		return nil, err
	}
	if n := utf8.RuneCountInString(text); n < v.opts.MinLength {
		return nil, fmt.Errorf("%w: %d < %d characters", ErrSessionTooShort, n, v.opts.MinLength)
	}

	triggered := Evaluate(assets, text, v.opts)
	res := &Result{
		SessionDate:     v.now().UTC().Format(types.DateLayout),
		Transcript:      path,
		TriggeredAssets: triggered,
		Summary:         summarize(triggered),
	}
	v.logger.Debug("session evaluated",
		zap.String("transcript", path),
		zap.Int("assets", len(assets)),
		zap.Int("triggered", len(triggered)))

	if in.Mode == ModeUpdate {
		warnings, err := v.applyBounded(ctx, res)
		res.Warnings = warnings
		if err != nil {
			// The report stands even when writes did not finish.
			v.logger.Warn("session confidence update incomplete", zap.Error(err))
		}
	}
	return res, nil
}

func (v *Validator) locate(in Input) (string, error) {
	if in.TranscriptPath != "" {
		if info, err := os.Stat(in.TranscriptPath); err == nil && !info.IsDir() {
			return in.TranscriptPath, nil
		}
	}
	return transcript.FindLatest(in.TranscriptsDir, in.ProjectDir)
}

func summarize(triggered []Triggered) string {
	var compliant, nonCompliant int
	for _, t := range triggered {
		switch t.Compliance {
		case match.Compliant:
			compliant++
		case match.NonCompliant:
			nonCompliant++
		}
	}
	return fmt.Sprintf("session triggered %d rules: %d followed, %d not followed",
		len(triggered), compliant, nonCompliant)
}

type applyOutcome struct {
	warnings []string
	err      error
}

// applyBounded runs apply under the configured timeout. On timeout the
// writer finishes its current asset and stops.
func (v *Validator) applyBounded(ctx context.Context, res *Result) ([]string, error) {
	timeout := v.opts.ApplyTimeout
	if timeout <= 0 {
		timeout = DefaultOptions().ApplyTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan applyOutcome, 1)
	go func() {
		done <- recovered(func() ([]string, error) {
			return v.apply(ctx, res.SessionDate, res.TriggeredAssets)
		})
	}()

	select {
	case out := <-done:
		return out.warnings, out.err
	case <-ctx.Done():
		return nil, fmt.Errorf("apply session updates: %w", ctx.Err())
	}
}

// recovered runs fn on the apply goroutine, turning a panic into an error
// since Run's recover cannot reach it.
func recovered(fn func() ([]string, error)) (out applyOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = applyOutcome{err: fmt.Errorf("apply session updates: panic: %v", r)}
		}
	}()
	w, err := fn()
	return applyOutcome{warnings: w, err: err}
}

func (v *Validator) apply(ctx context.Context, sessionDate string, triggered []Triggered) ([]string, error) {
	var warnings []string
	var errs []error
	for _, t := range triggered {
		if t.ConfidenceDelta == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return warnings, err
		}

		next := types.ClampConfidence(t.current + t.ConfidenceDelta)
		if _, _, err := v.assets.Update(t.AssetID, storage.AssetChange{Confidence: &next}); err != nil {
			errs = append(errs, fmt.Errorf("update %s: %w", t.AssetID, err))
			continue
		}

		if v.events != nil {
			_, err := v.events.Append(types.EvolutionEvent{
				Event:     types.EventSessionValidate,
				AssetID:   t.AssetID,
				AssetType: t.AssetType,
				Details: map[string]any{
					"compliance":      string(t.Compliance),
					"session_date":    sessionDate,
					"trigger_score":   t.TriggerMatchScore,
					"confidence_from": t.current,
					"confidence_to":   next,
				},
			})
			if err != nil {
				errs = append(errs, err)
			}
		}

		if next < v.opts.WarnThreshold {
			msg := fmt.Sprintf("asset %q confidence dropped to %.2f, below %.2f; it may need deprecation",
				t.AssetID, next, v.opts.WarnThreshold)
			warnings = append(warnings, msg)
			v.logger.Warn("asset nearing deprecation",
				zap.String("asset_id", t.AssetID),
				zap.Float64("confidence", next),
				zap.Float64("threshold", v.opts.WarnThreshold))
		}
	}
	return warnings, errors.Join(errs...)
}

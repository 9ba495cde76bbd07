package formatter

import (
	"github.com/fatih/color"
)

// Palette colors judgment and compliance labels.
type Palette struct {
	good, warn, bad, dim *color.Color
}

// NewPalette returns a palette; with enabled false every label is plain.
func NewPalette(enabled bool) *Palette {
	p := &Palette{
		good: color.New(color.FgGreen),
		warn: color.New(color.FgYellow),
		bad:  color.New(color.FgRed, color.Bold),
		dim:  color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.good, p.warn, p.bad, p.dim} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Judgment colors a judgment or compliance label by how it moves confidence.
func (p *Palette) Judgment(label string) string {
	switch label {
	case "validated", "weak_validate", "compliant":
		return p.good.Sprint(label)
	case "partial_validate", "partial", "ambiguous", "exploration_exempt":
		return p.warn.Sprint(label)
	case "ineffective", "over_scoped", "non_compliant", "deprecated":
		return p.bad.Sprint(label)
	case "no_match", "n/a", "":
		return p.dim.Sprint(label)
	}
	return label
}

// Status colors an asset status.
func (p *Palette) Status(status string) string {
	switch status {
	case "active":
		return p.good.Sprint(status)
	case "provisional":
		return p.warn.Sprint(status)
	case "deprecated":
		return p.bad.Sprint(status)
	}
	return status
}
